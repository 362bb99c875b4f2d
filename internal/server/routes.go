package server

import (
	"github.com/fmulab/graphqa/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Document routes
	apiRoutes.GET("/documents", routes.GetDocumentsHandler)
	apiRoutes.POST("/graph", routes.PostGraphHandler)

	// Chat routes
	apiRoutes.GET("/modes", routes.GetModesHandler)
	apiRoutes.POST("/chat", routes.PostChatHandler)
	apiRoutes.GET("/chat/:session_id", routes.GetChatHandler)
	apiRoutes.DELETE("/chat/:session_id", routes.DeleteChatHandler)
}
