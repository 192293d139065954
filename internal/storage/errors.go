package storage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
)

// errorCode 返回 S3 错误码（小写），非 S3 错误返回空串。
func errorCode(err error) (string, int) {
	if err == nil {
		return "", 0
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return "", 0
	}
	return strings.ToLower(resp.Code), resp.StatusCode
}

// IsNoSuchKey 判断对象是否不存在。头像内联时据此跳过缺失的头像，而不是让整份导出失败。
func IsNoSuchKey(err error) bool {
	code, status := errorCode(err)
	switch code {
	case "nosuchkey", "notfound":
		return true
	case "nosuchbucket":
		return false
	}
	if status == http.StatusNotFound && code == "" {
		// HEAD 请求的 404 没有错误体
		return true
	}
	// 经过代理的错误可能只剩下文本
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}

// IsNoSuchBucket 判断 Bucket 是否不存在，属于部署错误。
func IsNoSuchBucket(err error) bool {
	code, _ := errorCode(err)
	if code == "nosuchbucket" {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "specified bucket does not exist")
}
