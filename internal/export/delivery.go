package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// ObjectStore 是 Delivery 需要的对象存储能力，由 storage.Client 实现。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// StorageDelivery 把产物上传到对象存储并返回限时下载链接。
type StorageDelivery struct {
	store ObjectStore
	ttl   time.Duration
}

// NewStorageDelivery 构造 StorageDelivery。
func NewStorageDelivery(store ObjectStore, ttl time.Duration) *StorageDelivery {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StorageDelivery{store: store, ttl: ttl}
}

// Deliver 上传产物并生成预签名链接。
func (d *StorageDelivery) Deliver(ctx context.Context, userID, documentID uint, artifact Artifact) (string, error) {
	key := fmt.Sprintf("exports/%d/%d/%s.pdf", userID, documentID, uuid.NewString())
	if _, err := d.store.UploadFile(ctx, key, bytes.NewReader(artifact.Data), int64(len(artifact.Data)), artifact.ContentType); err != nil {
		return "", err
	}
	return d.store.GeneratePresignedURL(ctx, key, d.ttl)
}
