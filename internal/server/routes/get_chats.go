package routes

import (
	"net/http"
	"strings"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/fmulab/graphqa/internal/server/middleware"
	serverutil "github.com/fmulab/graphqa/internal/server/util"
	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/logger"
)

func GetChatHandler(c echo.Context) error {
	type getChatParams struct {
		SessionID string `param:"session_id" validate:"required"`
	}

	type responseData struct {
		SessionID string               `json:"session_id"`
		Messages  []common.ChatMessage `json:"messages"`
	}

	params := new(getChatParams)
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
	msgs, err := service.History(c.Request().Context(), params.SessionID)
	if err != nil {
		logger.Error("Failed to get chat history", "session_id", params.SessionID, "err", err)
		return c.JSON(http.StatusInternalServerError, serverutil.MessageResponse{Message: "Internal server error"})
	}
	if msgs == nil {
		msgs = []common.ChatMessage{}
	}

	return c.JSON(http.StatusOK, responseData{SessionID: params.SessionID, Messages: msgs})
}
