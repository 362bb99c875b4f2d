package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fmulab/graphqa/internal/server/middleware"
)

func GetModesHandler(c echo.Context) error {
	service := c.(*middleware.AppContext).App.Service
	return c.JSON(http.StatusOK, service.Modes())
}
