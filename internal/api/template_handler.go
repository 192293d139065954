package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvStudio/internal/catalog"
	"cvStudio/internal/database"
)

const templatePreviewTTL = time.Hour

// PresignedURLer 由 *storage.Client 实现。
type PresignedURLer interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// TemplateHandler 负责模板目录接口。
type TemplateHandler struct {
	db      *gorm.DB
	objects PresignedURLer
	logger  *slog.Logger
}

type templateListItem struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Restricted bool   `json:"restricted"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency,omitempty"`
	Accent     string `json:"accent"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// ListTemplates GET /v1/templates
// 目录以数据库镜像为准；缩略图尚未生成的模板不返回 preview_url。
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	ctx := c.Request.Context()
	log := requestLogger(c, h.logger)

	var rows []database.Template
	if err := h.db.WithContext(ctx).Order("price_cents ASC, key ASC").Find(&rows).Error; err != nil {
		log.Error("list templates failed", slog.Any("error", err))
		Internal(c, "failed to list templates")
		return
	}

	items := make([]templateListItem, 0, len(rows))
	for _, t := range rows {
		item := templateListItem{
			Key:        t.Key,
			Name:       t.Name,
			Category:   t.Category,
			Restricted: t.Category == string(catalog.CategoryRestricted),
			PriceCents: t.PriceCents,
			Currency:   t.Currency,
			Accent:     t.DefaultAccent,
		}
		if t.PreviewImageKey != "" && h.objects != nil {
			url, err := h.objects.GeneratePresignedURL(ctx, t.PreviewImageKey, templatePreviewTTL)
			if err != nil {
				log.Warn("presign template preview failed", slog.String("template", t.Key), slog.Any("error", err))
			} else {
				item.PreviewURL = url
			}
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, items)
}
