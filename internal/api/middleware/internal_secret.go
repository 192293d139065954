package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// InternalSecretHeader 是内部接口（worker/导出网关 → API）的鉴权头。
// 密钥只通过 Header 传递，不接受 query，避免出现在访问日志里。
const InternalSecretHeader = "X-Internal-Secret"

// InternalSecretMiddleware 使用常量时间比较校验内部密钥；未配置密钥时拒绝所有请求。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal api secret is not configured"})
			return
		}
		token := strings.TrimSpace(c.GetHeader(InternalSecretHeader))
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			LoggerFromContext(c).Warn("internal request rejected", "client_ip", c.ClientIP())
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}
