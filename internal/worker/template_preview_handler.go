package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"cvStudio/internal/catalog"
	"cvStudio/internal/database"
	"cvStudio/internal/render"
	"cvStudio/internal/storage"
	"cvStudio/internal/tasks"
)

const previewQuality = 80

// Screenshotter 在无头浏览器中截取 HTML 的预览图，由 pdf.Generator 实现。
type Screenshotter interface {
	Screenshot(ctx context.Context, htmlContent string, quality int) ([]byte, error)
}

// TemplatePreviewHandler 负责模板缩略图生成任务：用示例简历以缩略图模式渲染模板并截图。
type TemplatePreviewHandler struct {
	db       *gorm.DB
	renderer *render.Renderer
	shooter  Screenshotter
	storage  Uploader
	logger   *slog.Logger
}

func NewTemplatePreviewHandler(
	db *gorm.DB,
	renderer *render.Renderer,
	shooter Screenshotter,
	storageClient Uploader,
	logger *slog.Logger,
) *TemplatePreviewHandler {
	return &TemplatePreviewHandler{
		db:       db,
		renderer: renderer,
		shooter:  shooter,
		storage:  storageClient,
		logger:   logger,
	}
}

func (h *TemplatePreviewHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.TemplatePreviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal template preview payload failed", slog.Any("error", err))
		return errors.Join(err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("template", payload.TemplateKey),
		slog.String("correlation_id", payload.CorrelationID),
	)

	tpl, ok := catalog.Lookup(payload.TemplateKey)
	if !ok {
		log.Warn("template not found, skipping task")
		return nil
	}
	log.Info("starting template preview generation task")

	html, err := h.renderer.RenderString(tpl.Key, render.SampleDocument(tpl.Key), render.Options{Thumbnail: true})
	if err != nil {
		return fmt.Errorf("render template preview: %w", err)
	}

	previewBytes, err := h.shooter.Screenshot(ctx, html, previewQuality)
	if err != nil {
		log.Error("capture template screenshot failed", slog.Any("error", err))
		return err
	}

	objectName := storage.TemplateThumbnailKey(tpl.Key)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(previewBytes), int64(len(previewBytes)), "image/jpeg"); err != nil {
		log.Error("upload template preview failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).
		Model(&database.Template{}).
		Where("key = ?", tpl.Key).
		Update("preview_image_key", objectName).Error; err != nil {
		log.Error("update template preview key failed", slog.Any("error", err))
		return err
	}

	log.Info("template preview generation completed")
	return nil
}
