package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"cvStudio/internal/api/middleware"
	"cvStudio/internal/cv"
	"cvStudio/internal/database"
	"cvStudio/internal/entitlement"
	"cvStudio/internal/errcode"
	"cvStudio/internal/export"
	"cvStudio/internal/storage"
	"cvStudio/internal/tasks"
)

const (
	maxDocumentBytes = 1 << 20
	downloadLinkTTL  = 5 * time.Minute
)

// EntitlementChecker 由 *entitlement.Service 实现。
type EntitlementChecker interface {
	Check(ctx context.Context, userID, documentID uint, templateKey string) (entitlement.Decision, error)
	CheckUpdate(ctx context.Context, userID, documentID uint, templateKey string) error
	Paid(ctx context.Context, userID, documentID uint) (bool, error)
}

// PrepClearer 由 *prepcache.Cache 实现。
type PrepClearer interface {
	ClearDocument(ctx context.Context, userID, documentID uint) error
}

// TaskEnqueuer 由 *asynq.Client 实现。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DocumentObjects 是文档相关对象在 MinIO 上的操作。
type DocumentObjects interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// CVHandler 负责简历文档的 REST 接口。
type CVHandler struct {
	docs     *database.DocumentRepository
	ent      EntitlementChecker
	prep     PrepClearer
	objects  DocumentObjects
	enqueuer TaskEnqueuer
	render   *documentRenderer
	logger   *slog.Logger
}

type cvListItem struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Template  string    `json:"template"`
	PdfStatus string    `json:"pdf_status,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type cvResponse struct {
	ID        uint        `json:"id"`
	Title     string      `json:"title"`
	Document  cv.Document `json:"document"`
	Paid      bool        `json:"paid"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ListDocuments GET /v1/cv
func (h *CVHandler) ListDocuments(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	rows, err := h.docs.List(c.Request.Context(), userID)
	if err != nil {
		requestLogger(c, h.logger).Error("list documents failed", slog.Any("error", err))
		Internal(c, "failed to list documents")
		return
	}

	items := make([]cvListItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, cvListItem{
			ID:        r.ID,
			Title:     r.Title,
			Template:  r.TemplateKey,
			PdfStatus: r.PdfStatus,
			UpdatedAt: r.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

// GetDocument GET /v1/cv/:id，返回归一化后的文档及是否已付费。
func (h *CVHandler) GetDocument(c *gin.Context) {
	userID, row, ok := h.loadOwned(c)
	if !ok {
		return
	}
	log := requestLogger(c, h.logger)

	doc, err := row.Decode()
	if err != nil {
		log.Error("decode document failed", slog.Any("error", err))
		Internal(c, "failed to decode document")
		return
	}
	paid, err := h.ent.Paid(c.Request.Context(), userID, row.ID)
	if err != nil {
		log.Error("paid lookup failed", slog.Any("error", err))
		Internal(c, "failed to query entitlement")
		return
	}

	c.JSON(http.StatusOK, cvResponse{ID: row.ID, Title: row.Title, Document: doc, Paid: paid, UpdatedAt: row.UpdatedAt})
}

// CreateDocument POST /v1/cv，接受任何符合 schema 的文档。
func (h *CVHandler) CreateDocument(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	doc, ok := h.bindDocument(c)
	if !ok {
		return
	}

	row, err := h.docs.Create(c.Request.Context(), userID, doc)
	if err != nil {
		requestLogger(c, h.logger).Error("create document failed", slog.Any("error", err))
		Internal(c, "failed to create document")
		return
	}
	c.JSON(http.StatusCreated, cvResponse{ID: row.ID, Title: row.Title, Document: doc, UpdatedAt: row.UpdatedAt})
}

// UpdateDocument PUT /v1/cv/:id
func (h *CVHandler) UpdateDocument(c *gin.Context) {
	userID, row, ok := h.loadOwned(c)
	if !ok {
		return
	}
	doc, ok := h.bindDocument(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("document_id", uint64(row.ID)))

	if err := h.ent.CheckUpdate(ctx, userID, row.ID, doc.Template); err != nil {
		if errors.Is(err, entitlement.ErrExpired) {
			log.Info("update rejected: template purchase expired", slog.String("template", doc.Template))
			EntitlementExpired(c)
			return
		}
		log.Error("entitlement check failed", slog.Any("error", err))
		Internal(c, "failed to query entitlement")
		return
	}

	previous, err := row.Decode()
	if err != nil {
		log.Error("decode stored document failed", slog.Any("error", err))
		Internal(c, "failed to decode document")
		return
	}

	if err := h.docs.Update(ctx, userID, row.ID, doc); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document not found")
			return
		}
		log.Error("update document failed", slog.Any("error", err))
		Internal(c, "failed to update document")
		return
	}

	if cv.PersonalChanged(previous, doc) {
		if err := h.prep.ClearDocument(ctx, userID, row.ID); err != nil {
			log.Warn("clear prep cache failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, cvResponse{ID: row.ID, Title: row.Title, Document: doc, UpdatedAt: time.Now()})
}

// DeleteDocument DELETE /v1/cv/:id，同时清理准备缓存与生成的 PDF。
func (h *CVHandler) DeleteDocument(c *gin.Context) {
	userID, row, ok := h.loadOwned(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("document_id", uint64(row.ID)))

	if err := h.docs.Delete(ctx, userID, row.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document not found")
			return
		}
		log.Error("delete document failed", slog.Any("error", err))
		Internal(c, "failed to delete document")
		return
	}

	if err := h.prep.ClearDocument(ctx, userID, row.ID); err != nil {
		log.Warn("clear prep cache failed", slog.Any("error", err))
	}
	if h.objects != nil {
		for _, prefix := range storage.DocumentPrefixes(userID, row.ID) {
			if err := h.objects.DeletePrefix(ctx, prefix); err != nil {
				log.Warn("delete document objects failed", slog.String("prefix", prefix), slog.Any("error", err))
			}
		}
	}

	c.Status(http.StatusNoContent)
}

// ExportDocument GET /v1/cv/:id/export，同步渲染 PDF。付费模板需要权益。
func (h *CVHandler) ExportDocument(c *gin.Context) {
	userID, row, ok := h.loadOwned(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("document_id", uint64(row.ID)))

	if !h.requireEntitlement(c, log, userID, row) {
		return
	}

	out, err := h.render.PDF(ctx, log, row)
	if err != nil {
		log.Error("render pdf failed", slog.Any("error", err))
		ErrorCode(c, http.StatusInternalServerError, errcode.ExportFailed, "failed to render pdf")
		return
	}

	c.Header(export.PageCountHeader, strconv.Itoa(out.Pages.Total))
	c.Header("Content-Disposition", `attachment; filename="`+pdfFilename(row)+`"`)
	c.Data(http.StatusOK, "application/pdf", out.Data)
}

// DownloadDocument POST /v1/cv/:id/download，将 PDF 生成任务入队并立即返回 202。
func (h *CVHandler) DownloadDocument(c *gin.Context) {
	userID, row, ok := h.loadOwned(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("document_id", uint64(row.ID)))

	if !h.requireEntitlement(c, log, userID, row) {
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewPDFGenerateTask(row.ID, userID, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	// 先标记 pending 再入队，避免 worker 先完成后状态被覆盖；入队失败时恢复原状态
	if err := h.docs.SetPDF(ctx, row.ID, row.PdfObject, "pending"); err != nil {
		log.Error("mark pdf pending failed", slog.Any("error", err))
		Internal(c, "failed to update document")
		return
	}

	info, err := h.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		log.Error("enqueue pdf generation failed", slog.Any("error", err))
		if err := h.docs.SetPDF(context.WithoutCancel(ctx), row.ID, row.PdfObject, row.PdfStatus); err != nil {
			log.Error("restore pdf status failed", slog.Any("error", err))
		}
		Internal(c, "failed to enqueue pdf generation")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "PDF generation request accepted",
		"task_id": info.ID,
	})
}

// GetDownloadLink GET /v1/cv/:id/download-link
func (h *CVHandler) GetDownloadLink(c *gin.Context) {
	_, row, ok := h.loadOwned(c)
	if !ok {
		return
	}

	if row.PdfObject == "" {
		Conflict(c, "pdf not ready")
		return
	}

	signedURL, err := h.objects.GeneratePresignedURL(c.Request.Context(), row.PdfObject, downloadLinkTTL)
	if err != nil {
		requestLogger(c, h.logger).Error("generate download link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL, "status": row.PdfStatus})
}

// PreviewDocument GET /v1/cv/:id/preview[?thumbnail=1]
func (h *CVHandler) PreviewDocument(c *gin.Context) {
	_, row, ok := h.loadOwned(c)
	if !ok {
		return
	}
	thumbnail := c.Query("thumbnail") == "1" || c.Query("thumbnail") == "true"

	html, _, err := h.render.HTML(c.Request.Context(), requestLogger(c, h.logger), row, thumbnail)
	if err != nil {
		requestLogger(c, h.logger).Error("render preview failed", slog.Any("error", err))
		Internal(c, "failed to render preview")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *CVHandler) requireEntitlement(c *gin.Context, log *slog.Logger, userID uint, row *database.Document) bool {
	decision, err := h.ent.Check(c.Request.Context(), userID, row.ID, row.TemplateKey)
	if err != nil {
		log.Error("entitlement check failed", slog.Any("error", err))
		Internal(c, "failed to query entitlement")
		return false
	}
	if !decision.Allowed() {
		if decision.Expired {
			EntitlementExpired(c)
		} else {
			EntitlementRequired(c)
		}
		return false
	}
	return true
}

func (h *CVHandler) bindDocument(c *gin.Context) (cv.Document, bool) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDocumentBytes+1))
	if err != nil {
		BadRequest(c, "failed to read body")
		return cv.Document{}, false
	}
	if len(raw) > maxDocumentBytes {
		Error(c, http.StatusRequestEntityTooLarge, "document too large")
		return cv.Document{}, false
	}
	if err := cv.ValidatePayload(raw); err != nil {
		BadRequest(c, err.Error())
		return cv.Document{}, false
	}
	doc, err := cv.Normalize(raw, "")
	if err != nil {
		BadRequest(c, err.Error())
		return cv.Document{}, false
	}
	return doc, true
}

func (h *CVHandler) loadOwned(c *gin.Context) (uint, *database.Document, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return 0, nil, false
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid document id")
		return 0, nil, false
	}

	row, err := h.docs.Get(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document not found")
		} else {
			requestLogger(c, h.logger).Error("query document failed", slog.Any("error", err))
			Internal(c, "failed to query document")
		}
		return 0, nil, false
	}
	return userID, row, true
}
