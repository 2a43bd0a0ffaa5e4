package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/memoir-studio-backend/internal/platform/ctxutil"
	"github.com/yungbote/memoir-studio-backend/internal/platform/logger"
)

// Health check routes are hit every few seconds and only logged when they fail.
var quietRoutes = map[string]bool{
	"/healthcheck": true,
	"/readyz":      true,
	"/metrics":     true,
}

const slowRequest = 2 * time.Second

// RequestLogger writes one line per request, at warn for 4xx or slow calls and at
// error for 5xx.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		status := c.Writer.Status()
		if quietRoutes[route] && status < 400 {
			return
		}
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx := c.Request.Context()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if td := ctxutil.GetTraceData(ctx); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if s := ctxutil.RateSubject(ctx); s != "" {
			fields = append(fields, "subject", s)
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "chapter_instance_id", id)
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, "error", err.Error())
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400 || elapsed > slowRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
