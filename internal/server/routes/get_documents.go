package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fmulab/graphqa/internal/server/middleware"
)

func GetDocumentsHandler(c echo.Context) error {
	type responseData struct {
		Documents []string `json:"documents"`
	}

	service := c.(*middleware.AppContext).App.Service
	docs := service.Documents(c.Request().Context())
	if docs == nil {
		docs = []string{}
	}

	return c.JSON(http.StatusOK, responseData{Documents: docs})
}
