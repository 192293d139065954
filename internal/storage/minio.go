package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cvStudio/internal/config"
)

// Client 封装 MinIO：internal 客户端走集群内地址读写对象，
// public 客户端只用于签发浏览器可访问的预签名链接（签名包含 Host）。
type Client struct {
	internal *minio.Client
	public   *minio.Client
	bucket   string
}

func bucketLookupType(value string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	default:
		return minio.BucketLookupAuto, fmt.Errorf("invalid minio bucket lookup %q", value)
	}
}

// NewClient 根据配置初始化两个客户端，并确保 Bucket 存在。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	lookup, err := bucketLookupType(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	internal, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        creds,
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	publicURL, err := url.Parse(cfg.PublicEndpoint)
	if err != nil || publicURL.Host == "" {
		return nil, fmt.Errorf("invalid minio public endpoint %q", cfg.PublicEndpoint)
	}
	public, err := minio.New(publicURL.Host, &minio.Options{
		Creds:        creds,
		Secure:       publicURL.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init public minio client: %w", err)
	}

	c := &Client{internal: internal, public: public, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.ensureBucket(ctx, cfg.Region, cfg.AutoCreateBucket); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context, region string, autoCreate bool) error {
	exists, err := c.internal.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if !autoCreate {
		return fmt.Errorf("bucket %q does not exist (auto create disabled)", c.bucket)
	}
	if err := c.internal.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("make bucket %q: %w", c.bucket, err)
	}
	return nil
}

// UploadFile 上传 PDF、缩略图或头像。
func (c *Client) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error) {
	info, err := c.internal.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", objectName, err)
	}
	return &info, nil
}

// ReadObject 读取整个对象并返回内容类型，供头像内联使用。
// 对象缺失时返回的错误满足 IsNoSuchKey；超过 maxBytes（>0 时）返回错误。
func (c *Client) ReadObject(ctx context.Context, objectKey string, maxBytes int64) ([]byte, string, error) {
	obj, err := c.internal.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %q: %w", objectKey, err)
	}
	defer obj.Close()

	// GetObject 是惰性的，Stat 才会真正发起请求并暴露 NoSuchKey
	stat, err := obj.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("stat object %q: %w", objectKey, err)
	}
	if maxBytes > 0 && stat.Size > maxBytes {
		return nil, "", fmt.Errorf("object %q is %d bytes, limit %d", objectKey, stat.Size, maxBytes)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read object %q: %w", objectKey, err)
	}
	return data, stat.ContentType, nil
}

// GeneratePresignedURL 通过公共客户端生成限时下载链接。
func (c *Client) GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error) {
	u, err := c.public.PresignedGetObject(ctx, c.bucket, objectKey, duration, nil)
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", objectKey, err)
	}
	return u.String(), nil
}

// DeletePrefix 批量删除前缀下的所有对象（文档删除时清理生成与导出的 PDF）。
// 已不存在的对象视为成功，其余失败聚合返回。
func (c *Client) DeletePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || !strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("refusing to delete with prefix %q", prefix)
	}

	objects := make(chan minio.ObjectInfo)
	var listErr error
	go func() {
		defer close(objects)
		for obj := range c.internal.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case objects <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for res := range c.internal.RemoveObjects(ctx, c.bucket, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && !IsNoSuchKey(res.Err) {
			errs = append(errs, fmt.Errorf("remove %q: %w", res.ObjectName, res.Err))
		}
	}
	// RemoveObjects 的结果通道在输入通道关闭后才关闭，此时 listErr 已写入完毕
	if listErr != nil {
		errs = append(errs, fmt.Errorf("list objects under %q: %w", prefix, listErr))
	}
	return errors.Join(errs...)
}
