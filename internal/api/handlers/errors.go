package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/ema/internal/apperr"
)

// StatusFor maps an error code to an HTTP status.
func StatusFor(code apperr.Code) int {
	switch code {
	case apperr.NotFound, apperr.SourceNotFound:
		return http.StatusNotFound
	case apperr.InvalidName, apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.AlreadyExists:
		return http.StatusConflict
	case apperr.UnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case apperr.ArchiveRead:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code == "" {
		code = apperr.IO
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "CANCELED"})
			return
		}
	}
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": string(code)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": string(apperr.InvalidInput)})
}

// parseID reads a uuid path parameter, answering 400 when it is malformed.
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
