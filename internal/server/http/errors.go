package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/devdice/internal/errs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// statusOf maps domain errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var defaultMessages = map[int]string{
	http.StatusBadRequest:      "Invalid request",
	http.StatusUnauthorized:    "Unauthorized",
	http.StatusForbidden:       "Forbidden",
	http.StatusNotFound:        "Not found",
	http.StatusConflict:        "Already exists",
	http.StatusTooManyRequests: "Too many requests",
}

// writeError aborts the request with a JSON error body. Internal errors are
// logged and never echoed to the client.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(code, errorBody{Message: "internal"})
		return
	}
	msg := errs.Message(err)
	if msg == "" {
		msg = defaultMessages[code]
	}
	c.AbortWithStatusJSON(code, errorBody{Message: msg})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := errorBody{Message: msg}
	if err != nil {
		body.Error = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
