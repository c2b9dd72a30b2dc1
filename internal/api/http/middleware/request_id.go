package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixelforge/imagegen-backend/internal/platform/logger"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-Id"

// ContextKeyRequestID is the gin context key holding the correlation id.
const ContextKeyRequestID = "req_id"

type requestIDKey struct{}

// RequestIDMiddleware tags every request with a correlation id (reusing the
// caller's X-Request-Id when present) and logs one line per completed request.
func RequestIDMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}

		c.Set(ContextKeyRequestID, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, rid))
		c.Writer.Header().Set(HeaderRequestID, rid)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		reqLog := log.With(
			ContextKeyRequestID, rid,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
		)
		switch {
		case status >= 500:
			reqLog.Error("request failed")
		case status >= 400:
			reqLog.Warn("request rejected")
		default:
			reqLog.Info("request completed")
		}
	}
}

// GetRequestID returns the correlation id stored by RequestIDMiddleware, or "".
func GetRequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}
