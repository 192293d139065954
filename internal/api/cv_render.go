package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cvStudio/internal/cv"
	"cvStudio/internal/database"
	"cvStudio/internal/pdf"
	"cvStudio/internal/render"
	"cvStudio/internal/storage"
)

// 头像内联时允许读取的最大字节数。
const maxInlinePhotoBytes = 8 << 20

// PhotoReader 读取私有 Bucket 中的头像，由 *storage.Client 实现。
type PhotoReader interface {
	ReadObject(ctx context.Context, objectKey string, maxBytes int64) ([]byte, string, error)
}

// PDFRenderer 由 *pdf.Generator 实现。
type PDFRenderer interface {
	PDF(ctx context.Context, htmlContent string) (pdf.Output, error)
}

// documentRenderer 把持久化的文档渲染为 HTML/PDF，预览、导出与内部导出接口共用。
type documentRenderer struct {
	renderer *render.Renderer
	photos   PhotoReader
	pdf      PDFRenderer
}

// inlinePhoto 把头像对象转成 data URI，浏览器端打印时无需访问 MinIO。
// 对象缺失或键非法时跳过头像并记录告警，Bucket 缺失等系统错误直接返回。
func (r *documentRenderer) inlinePhoto(ctx context.Context, log *slog.Logger, ownerID uint, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || r.photos == nil {
		return "", nil
	}
	if !storage.OwnsPhoto(ownerID, key) {
		log.Warn("photo skipped: object key not owned", slog.String("object_key", key))
		return "", nil
	}

	data, contentType, err := r.photos.ReadObject(ctx, key, maxInlinePhotoBytes)
	if err != nil {
		if storage.IsNoSuchBucket(err) {
			return "", fmt.Errorf("minio bucket does not exist: %w", err)
		}
		if storage.IsNoSuchKey(err) {
			log.Warn("photo skipped: object missing", slog.String("object_key", key))
			return "", nil
		}
		return "", fmt.Errorf("read photo: %w", err)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}

// HTML 渲染文档当前模板的 HTML。
func (r *documentRenderer) HTML(ctx context.Context, log *slog.Logger, row *database.Document, thumbnail bool) (string, cv.Document, error) {
	doc, err := row.Decode()
	if err != nil {
		return "", cv.Document{}, fmt.Errorf("decode document %d: %w", row.ID, err)
	}
	photo, err := r.inlinePhoto(ctx, log, row.UserID, doc.Personal.Photo)
	if err != nil {
		return "", doc, err
	}
	html, err := r.renderer.RenderString(doc.Template, doc, render.Options{Thumbnail: thumbnail, PhotoSrc: photo})
	if err != nil {
		return "", doc, fmt.Errorf("render document %d: %w", row.ID, err)
	}
	return html, doc, nil
}

// PDF 渲染并打印文档。
func (r *documentRenderer) PDF(ctx context.Context, log *slog.Logger, row *database.Document) (pdf.Output, error) {
	if r.pdf == nil {
		return pdf.Output{}, errors.New("pdf renderer is not configured")
	}
	html, _, err := r.HTML(ctx, log, row, false)
	if err != nil {
		return pdf.Output{}, err
	}
	return r.pdf.PDF(ctx, html)
}

func pdfFilename(row *database.Document) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, row.Title)
	if name == "" {
		name = "cv"
	}
	return name + ".pdf"
}
