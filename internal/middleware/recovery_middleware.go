// internal/middleware/recovery_middleware.go
package middleware

import (
	"errors"
	"net/http"

	"lovi-service/internal/pkg/metrics"
	"lovi-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope and counts it
// in m when m is set. A panic with http.ErrAbortHandler is passed on so the
// server drops the connection. When the handler already wrote part of the
// response, nothing more is written.
func RecoveryMiddleware(logger *zap.Logger, m *metrics.HTTP) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			path := c.FullPath()
			if path == "" {
				path = "unmatched"
			}
			logger.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.String("request_id", RequestID(c)),
				zap.String("username", GetUsername(c)),
				zap.Stack("stack"),
			)
			if m != nil {
				m.Panics.WithLabelValues(c.Request.Method, path).Inc()
			}

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}()
		c.Next()
	}
}
