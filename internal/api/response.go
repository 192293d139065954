package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvStudio/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// ErrorCode 在错误体中附带机器可读的 code，前端据此区分需要付费/权益过期等情况。
func ErrorCode(c *gin.Context, status, code int, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": errcode.Slug(code)})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

func EntitlementRequired(c *gin.Context) {
	ErrorCode(c, http.StatusPaymentRequired, errcode.EntitlementRequired, "template requires purchase")
}

func EntitlementExpired(c *gin.Context) {
	ErrorCode(c, http.StatusPaymentRequired, errcode.EntitlementExpired, "template purchase expired")
}
