package server

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/ceyewan/chanlock/auth"
	"github.com/ceyewan/chanlock/clog"
)

type requestIDKey struct{}

// RequestIDKey 请求 ID 在 Context 中的键，配合 clog.WithContextField 输出到日志
var RequestIDKey = requestIDKey{}

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// maxBodyBytes Slack 请求体上限
const maxBodyBytes = 1 << 20

// requestID 沿用调用方的 X-Request-ID，没有时生成一个
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, id))
		c.Next()
	}
}

// RequestID 返回 ctx 中的请求 ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// verifySignature 校验 Slack 请求签名，校验后把请求体放回，后续处理器照常解析表单
func verifySignature(secret string, logger clog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sv, err := slack.NewSecretsVerifier(c.Request.Header, secret)
		if err == nil {
			_, err = sv.Write(body)
		}
		if err == nil {
			err = sv.Ensure()
		}
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rejected unsigned request",
				clog.String("path", c.FullPath()), clog.Error(err))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// limitKey 斜杠命令按 user_id 限流，交互回调没有该字段时按客户端 IP
func limitKey(c *gin.Context) string {
	if user := c.PostForm("user_id"); user != "" {
		return user
	}
	return c.ClientIP()
}

func requireAdmin() gin.HandlerFunc {
	return auth.RequireRoles(auth.RoleAdmin)
}
