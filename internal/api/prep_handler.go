package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvStudio/internal/database"
	"cvStudio/internal/prepcache"
)

const maxPrepValueBytes = 256 << 10

// PrepStore 由 *prepcache.Cache 实现。
type PrepStore interface {
	Get(ctx context.Context, k prepcache.Key) (string, bool, error)
	Put(ctx context.Context, k prepcache.Key, value string) error
	Clear(ctx context.Context, userID uint) error
}

// PrepHandler 暴露按 (文档, 语言) 缓存的准备内容。
type PrepHandler struct {
	docs   *database.DocumentRepository
	cache  PrepStore
	logger *slog.Logger
}

type prepPutRequest struct {
	Value string `json:"value"`
}

// GetPrep GET /v1/prep/:id/:lang
func (h *PrepHandler) GetPrep(c *gin.Context) {
	key, ok := h.resolveKey(c)
	if !ok {
		return
	}
	value, found, err := h.cache.Get(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		NotFound(c, "prep content not cached")
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}

// PutPrep PUT /v1/prep/:id/:lang
func (h *PrepHandler) PutPrep(c *gin.Context) {
	key, ok := h.resolveKey(c)
	if !ok {
		return
	}
	var req prepPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if len(req.Value) > maxPrepValueBytes {
		Error(c, http.StatusRequestEntityTooLarge, "prep content too large")
		return
	}
	if err := h.cache.Put(c.Request.Context(), key, req.Value); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearPrep DELETE /v1/prep，清除当前用户全部文档的准备内容。
func (h *PrepHandler) ClearPrep(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if err := h.cache.Clear(c.Request.Context(), userID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PrepHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, prepcache.ErrInvalidKey) {
		BadRequest(c, err.Error())
		return
	}
	requestLogger(c, h.logger).Error("prep cache failed", slog.Any("error", err))
	Internal(c, "prep cache unavailable")
}

func (h *PrepHandler) resolveKey(c *gin.Context) (prepcache.Key, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return prepcache.Key{}, false
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid document id")
		return prepcache.Key{}, false
	}
	if _, err := h.docs.Get(c.Request.Context(), userID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document not found")
		} else {
			Internal(c, "failed to query document")
		}
		return prepcache.Key{}, false
	}
	return prepcache.Key{UserID: userID, DocumentID: id, Language: c.Param("lang")}, true
}
