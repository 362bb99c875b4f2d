package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmulab/graphqa/internal/bootstrap"
	"github.com/fmulab/graphqa/internal/config"
	"github.com/fmulab/graphqa/internal/server"
	"github.com/fmulab/graphqa/internal/util"
	"github.com/fmulab/graphqa/pkg/logger"
	"github.com/fmulab/graphqa/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnvString("LOG_FORMAT", "text"),
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start QA service", "err", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release resources", "err", err)
		}
	}()

	if err := server.Run(ctx, app.Service, cfg.Server.Port); err != nil {
		logger.Error("Server failed", "err", err)
	}
}
