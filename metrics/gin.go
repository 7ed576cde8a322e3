package metrics

import (
	"slices"
	"time"

	"github.com/gin-gonic/gin"
)

// GinHTTPMiddleware 返回记录 HTTP RED 指标的 Gin 中间件
//
// skipRoutes 中的路由（如 /metrics、/healthz 这类探针）不计入指标。
func GinHTTPMiddleware(httpMetrics *HTTPServerMetrics, skipRoutes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpMetrics == nil || slices.Contains(skipRoutes, c.FullPath()) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = UnknownRoute
		}
		httpMetrics.Observe(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
