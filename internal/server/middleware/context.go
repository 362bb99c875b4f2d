package middleware

import (
	"github.com/fmulab/graphqa/pkg/qa"

	"github.com/labstack/echo/v4"
)

type App struct {
	Service *qa.Service
}

type AppContext struct {
	echo.Context
	App *App
}

// AppContextMiddleware hands the shared service to every handler. The
// service is built once at startup.
func AppContextMiddleware(service *qa.Service) echo.MiddlewareFunc {
	app := &App{Service: service}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
