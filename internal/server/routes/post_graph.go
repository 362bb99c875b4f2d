package routes

import (
	"encoding/json"
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/fmulab/graphqa/internal/server/middleware"
	serverutil "github.com/fmulab/graphqa/internal/server/util"
)

func PostGraphHandler(c echo.Context) error {
	type postGraphBody struct {
		Documents  json.RawMessage `json:"documents"`
		ChunkLimit int             `json:"chunk_limit" validate:"gte=0"`
	}

	body := new(postGraphBody)
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(body); err != nil {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "Invalid request body"})
	}

	names := serverutil.DocumentNames(body.Documents)
	if len(names) == 0 {
		return c.JSON(http.StatusBadRequest, serverutil.MessageResponse{Message: "documents is required"})
	}

	// A zero chunk_limit leaves the configured store default in place.
	service := c.(*middleware.AppContext).App.Service
	return c.JSON(http.StatusOK, service.Graph(c.Request().Context(), names, body.ChunkLimit))
}
