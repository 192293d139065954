package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	correlationIDKey = "correlationID"
	// CorrelationIDHeader 在请求与响应上携带 Correlation ID，异步任务负载沿用同一个值。
	CorrelationIDHeader = "X-Correlation-ID"
	maxCorrelationIDLen = 64
)

// validCorrelationID 只接受短的可打印 ASCII 标识，避免客户端向日志注入任意内容。
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		if ch <= ' ' || ch > '~' {
			return false
		}
	}
	return true
}

// CorrelationIDMiddleware 复用合法的上游 Correlation ID，否则生成新的 UUID。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}
		c.Set(correlationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// GetCorrelationID 从上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}
