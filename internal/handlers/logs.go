package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/sse"
)

// LogsHandler exposes the live event stream over SSE.
type LogsHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewLogsHandler(log *logger.Logger, hub *sse.Hub) *LogsHandler {
	return &LogsHandler{
		log: log.With("handler", "LogsHandler"),
		hub: hub,
	}
}

func (h *LogsHandler) Stream(c *gin.Context) {
	client := h.hub.Subscribe()
	defer h.hub.Unsubscribe(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
