package middlewares

import (
	"strconv"
	"time"

	"quizserver/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware はHTTPリクエストの件数と処理時間を記録する
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// パラメータ入りのパスではなくルート定義で集計する
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestCounter.WithLabelValues(status, c.Request.Method, path).Inc()
		metrics.RequestDuration.WithLabelValues(status, c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
