package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 创建 Gin 限流中间件
//
// keyFunc 从请求中提取限流键，为 nil 时使用客户端 IP；键为空时放行。
// 限流器出错时放行，避免存储故障拖垮入口。被限流时返回 429。
//
//	r.Use(ratelimit.GinMiddleware(limiter, func(c *gin.Context) string {
//		return c.PostForm("user_id")
//	}, ratelimit.Limit{Rate: 2, Burst: 5}))
func GinMiddleware(limiter Limiter, keyFunc func(*gin.Context) string, limit Limit) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		if limiter == nil || !limit.Valid() {
			c.Next()
			return
		}

		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
