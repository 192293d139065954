package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvStudio/internal/database"
	"cvStudio/internal/errcode"
	"cvStudio/internal/export"
)

// InternalHandler 提供仅供 worker 与导出网关调用的内部接口，需 X-Internal-Secret。
type InternalHandler struct {
	docs   *database.DocumentRepository
	render *documentRenderer
	logger *slog.Logger
}

// ExportDocument GET /v1/internal/cv/:id/export
// 成功时返回 application/pdf 与页数头，失败时返回 JSON 错误体。
func (h *InternalHandler) ExportDocument(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		ErrorCode(c, http.StatusBadRequest, errcode.ExportFailed, "invalid document id")
		return
	}
	log := requestLogger(c, h.logger).With(slog.Uint64("document_id", uint64(id)))

	row, err := h.docs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ErrorCode(c, http.StatusNotFound, errcode.ResourceMissing, "document not found")
			return
		}
		log.Error("query document failed", slog.Any("error", err))
		ErrorCode(c, http.StatusInternalServerError, errcode.SystemError, "failed to query document")
		return
	}

	out, err := h.render.PDF(c.Request.Context(), log, row)
	if err != nil {
		log.Error("internal export failed", slog.Any("error", err))
		ErrorCode(c, http.StatusInternalServerError, errcode.ExportFailed, "failed to render pdf")
		return
	}

	log.Info("internal export rendered", slog.Int("pages", out.Pages.Total), slog.Int("bytes", len(out.Data)))
	c.Header(export.PageCountHeader, strconv.Itoa(out.Pages.Total))
	c.Header("Content-Disposition", `attachment; filename="`+pdfFilename(row)+`"`)
	c.Data(http.StatusOK, "application/pdf", out.Data)
}
