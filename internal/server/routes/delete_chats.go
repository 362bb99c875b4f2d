package routes

import (
	"net/http"
	"strings"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/fmulab/graphqa/internal/server/middleware"
	serverutil "github.com/fmulab/graphqa/internal/server/util"
	"github.com/fmulab/graphqa/pkg/logger"
)

func DeleteChatHandler(c echo.Context) error {
	type deleteChatParams struct {
		SessionID string `param:"session_id" validate:"required"`
	}

	params := new(deleteChatParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "Invalid request params"})
	}

	params.SessionID = strings.TrimSpace(params.SessionID)
	if params.SessionID == "" {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "session_id is required"})
	}

	service := c.(*middleware.AppContext).App.Service
	if err := service.ClearSession(c.Request().Context(), params.SessionID); err != nil {
		logger.Error("Failed to clear chat", "session_id", params.SessionID, "err", err)
		return c.JSON(http.StatusInternalServerError, serverutil.MessageResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, serverutil.MessageResponse{Message: "Chat cleared"})
}
