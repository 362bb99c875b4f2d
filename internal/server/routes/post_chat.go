package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/fmulab/graphqa/internal/server/middleware"
	serverutil "github.com/fmulab/graphqa/internal/server/util"
	"github.com/fmulab/graphqa/pkg/qa"
	"github.com/fmulab/graphqa/pkg/query"
)

func PostChatHandler(c echo.Context) error {
	type postChatBody struct {
		Message   string          `json:"message" validate:"required"`
		Documents json.RawMessage `json:"documents"`
		Mode      string          `json:"mode"`
		SessionID string          `json:"session_id"`
	}

	body := new(postChatBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(body); err != nil {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "message is required"})
	}

	body.Message = strings.TrimSpace(body.Message)
	if body.Message == "" {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "message is required"})
	}

	service := c.(*middleware.AppContext).App.Service

	if _, err := service.ResolveMode(body.Mode); err != nil {
		var cfgErr *query.ConfigurationError
		if errors.As(err, &cfgErr) {
			return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: cfgErr.Error()})
		}
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "Invalid mode"})
	}

	resp := service.GetChatResponse(c.Request().Context(), qa.ChatRequest{
		Message:   body.Message,
		Documents: serverutil.DocumentNames(body.Documents),
		Mode:      body.Mode,
		SessionID: body.SessionID,
	})
	return c.JSON(http.StatusOK, resp)
}
