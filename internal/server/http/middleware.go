package httpserver

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/and161185/devdice/internal/errs"
	"github.com/and161185/devdice/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logging logs one line per request. Payloads are never logged.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

// Recover turns a panic into a 500 response.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Message: "internal"})
			}
		}()
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// RequireAuth verifies the bearer token and stores its claims for handlers.
func RequireAuth(auth service.AuthService, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			writeError(c, log, errNoUser)
			return
		}
		cl, err := auth.VerifyToken(tok)
		if err != nil {
			writeError(c, log, err)
			return
		}
		setClaims(c, cl)
		c.Next()
	}
}

// RequireAdmin lets through only tokens carrying the admin role. Must run after RequireAuth.
func RequireAdmin(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := ClaimsFrom(c)
		if !ok {
			writeError(c, log, errNoUser)
			return
		}
		if !cl.IsAdmin() {
			writeError(c, log, errs.New(errs.ErrForbidden, "Admin access required"))
			return
		}
		c.Next()
	}
}
