package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

const (
	// RequestIDHeader carries the request id in and out of the API
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key and log attribute of the request id
	RequestIDKey = "request_id"
)

// RequestID returns the id stored on c by the request id middleware
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// log returns the handler logger tagged with the request id, if any
func (h *AudioHandler) log(c *gin.Context) *slog.Logger {
	if id := RequestID(c); id != "" {
		return h.logger.With(slog.String(RequestIDKey, id))
	}
	return h.logger
}
