package server

import (
	"errors"
	"net/http"

	"photomatch/src/allocator"
	"photomatch/src/app"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func success(c *gin.Context, status int, payload any) {
	c.JSON(status, gin.H{"status": "success", "payload": payload})
}

// respondError maps the domain error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var (
		verr    *app.ValidationError
		partial *app.PartialFailure
		ext     *app.ExternalServiceError
	)
	body := gin.H{"message": "error", "error": err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrNoMatchFound):
		status = http.StatusNotFound
		body["message"] = "no_match"
	case errors.As(err, &partial):
		body["message"] = "partial_failure"
		body["committed"] = partial.Committed
		body["failed"] = partial.Failed
	case errors.Is(err, app.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, allocator.ErrExhausted):
		status = http.StatusServiceUnavailable
	case errors.As(err, &ext):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}
