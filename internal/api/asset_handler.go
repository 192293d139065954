package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"

	"cvStudio/internal/storage"
)

// 允许上传的头像类型及其扩展名，以内容嗅探结果为准。
var photoTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// VirusScanner 扫描上传内容，clean 为 false 表示检测到恶意文件。
type VirusScanner interface {
	Scan(r io.Reader) (clean bool, err error)
}

type clamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner 返回基于 clamd 守护进程的扫描器。
func NewClamdScanner(addr string) VirusScanner {
	return &clamdScanner{client: clamd.NewClamd(addr)}
}

func (s *clamdScanner) Scan(r io.Reader) (bool, error) {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := s.client.ScanStream(r, abortChan)
	if err != nil {
		return false, fmt.Errorf("clamd scan stream: %w", err)
	}
	clean := true
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}

// AssetStore 由 *storage.Client 实现。
type AssetStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// AssetHandler 负责头像上传与访问。
type AssetHandler struct {
	Storage  AssetStore
	Scanner  VirusScanner
	Logger   *slog.Logger
	MaxBytes int64
}

// UploadAsset 处理头像上传：限制大小、嗅探类型、扫描病毒后写入 MinIO。
// 返回的 objectKey 由前端写入 personal.photo。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := requestLogger(c, h.Logger).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	data, err := io.ReadAll(io.LimitReader(reader, file.Size+1))
	_ = reader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}

	contentType := http.DetectContentType(data)
	ext, allowed := photoTypes[contentType]
	if !allowed {
		BadRequest(c, "unsupported image type")
		return
	}

	if h.Scanner != nil {
		clean, err := h.Scanner.Scan(bytes.NewReader(data))
		if err != nil {
			log.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			log.Warn("malicious upload rejected", slog.String("filename", file.Filename))
			BadRequest(c, "malicious file detected")
			return
		}
	}

	objectKey := storage.PhotoKey(userID, ext)
	if _, err := h.Storage.UploadFile(c.Request.Context(), objectKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// GetAssetURL 返回头像的临时预签名 URL。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.OwnsPhoto(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		requestLogger(c, h.Logger).Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}
