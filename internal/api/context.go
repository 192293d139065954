package api

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"cvStudio/internal/api/middleware"
)

var errInvalidID = errors.New("invalid id")

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// requestLogger 优先使用请求级 logger（带 correlation id）。
func requestLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if _, ok := c.Get(middleware.LoggerContextKey); ok {
		return middleware.LoggerFromContext(c)
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
