package main

import (
	"context"

	"github.com/fmulab/graphqa/internal/bootstrap"
	"github.com/fmulab/graphqa/internal/config"
	"github.com/fmulab/graphqa/pkg/logger"
	"github.com/fmulab/graphqa/pkg/logger/console"

	"github.com/spf13/cobra"
)

type cliKey struct{}

// cli carries what every subcommand shares once the root command ran.
type cli struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "graphqa",
		Short:         "Ask questions against a document knowledge graph",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Debug = true
			}
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  cfg.Log.Debug,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			}))
			cmd.SetContext(context.WithValue(cmd.Context(), cliKey{}, &cli{cfg: cfg}))
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newAskCmd(),
		newDocumentsCmd(),
		newGraphCmd(),
		newModesCmd(),
		newMigrateCmd(),
	)
	return root
}

func cliFrom(cmd *cobra.Command) *cli {
	if c, ok := cmd.Context().Value(cliKey{}).(*cli); ok {
		return c
	}
	return &cli{}
}

// withApp builds the QA service for the duration of fn.
func withApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.Build(cmd.Context(), cliFrom(cmd).cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to release resources", "err", err)
		}
	}()
	return fn(app)
}
