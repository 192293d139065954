package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// 对象键布局：
//
//	photos/{user}/{uuid}{ext}          头像
//	generated-cvs/{user}/{doc}/{uuid}.pdf  异步生成的 PDF
//	exports/{user}/{doc}/{uuid}.pdf    导出网关交付的 PDF
//	thumbnails/template/{key}/preview.jpg
const (
	photoPrefix     = "photos"
	generatedPrefix = "generated-cvs"
	exportPrefix    = "exports"
)

// PhotoKey 为用户上传的头像生成新的对象键。
func PhotoKey(userID uint, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%d/%s%s", photoPrefix, userID, uuid.NewString(), ext)
}

// PhotoPrefix 返回用户头像目录前缀。
func PhotoPrefix(userID uint) string {
	return fmt.Sprintf("%s/%d/", photoPrefix, userID)
}

// GeneratedPDFKey 为异步生成的 PDF 生成对象键。
func GeneratedPDFKey(userID, documentID uint) string {
	return fmt.Sprintf("%s/%d/%d/%s.pdf", generatedPrefix, userID, documentID, uuid.NewString())
}

// DocumentPrefixes 返回某文档所有派生对象的前缀，用于删除文档时清理。
func DocumentPrefixes(userID, documentID uint) []string {
	return []string{
		fmt.Sprintf("%s/%d/%d/", generatedPrefix, userID, documentID),
		fmt.Sprintf("%s/%d/%d/", exportPrefix, userID, documentID),
	}
}

// TemplateThumbnailKey 返回模板缩略图的对象键。
func TemplateThumbnailKey(templateKey string) string {
	return path.Join("thumbnails", "template", templateKey, "preview.jpg")
}

// OwnsPhoto 判断对象键是否位于该用户的头像目录下，且不包含路径穿越。
func OwnsPhoto(userID uint, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return false
	}
	return strings.HasPrefix(key, PhotoPrefix(userID)) && path.Clean(key) == key
}
