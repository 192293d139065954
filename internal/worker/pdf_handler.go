package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"cvStudio/internal/errcode"
	"cvStudio/internal/export"
	"cvStudio/internal/storage"
	"cvStudio/internal/tasks"
)

// Uploader 是对象存储的上传能力，由 storage.Client 实现。
type Uploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// PDFRecorder 记录文档最近一次异步 PDF 的对象键与状态。
type PDFRecorder interface {
	SetPDF(ctx context.Context, id uint, objectKey, status string) error
}

// PDFTaskHandler 负责消费 PDF 生成任务：调用内部导出接口取得 PDF，上传到对象存储，
// 并通过 Redis 通知前端。
type PDFTaskHandler struct {
	exporter  export.Exporter
	storage   Uploader
	documents PDFRecorder
	publisher Publisher
	logger    *slog.Logger
}

// NewPDFTaskHandler 创建任务处理器。
func NewPDFTaskHandler(
	exporter export.Exporter,
	storage Uploader,
	documents PDFRecorder,
	publisher Publisher,
	logger *slog.Logger,
) *PDFTaskHandler {
	return &PDFTaskHandler{
		exporter:  exporter,
		storage:   storage,
		documents: documents,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *PDFTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.PDFGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return errors.Join(err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("document_id", uint64(payload.DocumentID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting pdf generation task")

	defer func() {
		if retErr == nil {
			return
		}
		var svcErr *export.ServiceError
		final := errors.As(retErr, &svcErr) || isFinalAsynqAttempt(ctx)
		if !final {
			return
		}
		_ = h.documents.SetPDF(ctx, payload.DocumentID, "", "failed")
		notify := NotifyMessage{
			Type:          "pdf",
			Status:        "error",
			DocumentID:    payload.DocumentID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.ExportFailed,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if svcErr != nil {
			notify.ErrorMessage = svcErr.Message
		}
		if err := publishUserNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
			log.Error("publish pdf error notification failed", slog.Any("error", err))
		}
	}()

	artifact, err := h.exporter.Export(ctx, payload.DocumentID)
	if err != nil {
		log.Error("export pdf failed", slog.Any("error", err))
		var svcErr *export.ServiceError
		if errors.As(err, &svcErr) {
			// 非 PDF 响应是确定性错误，重试无意义
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}

	objectName := storage.GeneratedPDFKey(payload.UserID, payload.DocumentID)
	if _, err := h.storage.UploadFile(ctx, objectName, bytes.NewReader(artifact.Data), int64(len(artifact.Data)), artifact.ContentType); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.documents.SetPDF(ctx, payload.DocumentID, objectName, "completed"); err != nil {
		log.Error("update document pdf failed", slog.Any("error", err))
		return err
	}

	notify := NotifyMessage{
		Type:          "pdf",
		Status:        "completed",
		DocumentID:    payload.DocumentID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
		Pages:         artifact.Pages,
	}
	if err := publishUserNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("pdf generation task completed", slog.Int("pages", artifact.Pages))
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
