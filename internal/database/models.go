package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 购买记录状态。
const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
	PurchaseFailed    = "failed"
)

// User 表示系统中的账号信息。
// PremiumUntil 为全局会员到期时间，为空表示未开通。
type User struct {
	gorm.Model
	Username     string     `gorm:"uniqueIndex;size:64"`
	PasswordHash string     `gorm:"size:255"`
	PremiumUntil *time.Time `gorm:"index"`
	Documents    []Document `gorm:"constraint:OnDelete:CASCADE"`
}

// Document 表示用户的一份简历，Content 为 cv.Document 的 JSON 形式。
type Document struct {
	gorm.Model
	Title       string         `gorm:"size:255"`
	TemplateKey string         `gorm:"size:64;index"`
	Content     datatypes.JSON `gorm:"type:jsonb"`
	UserID      uint           `gorm:"index"`
	User        User           `gorm:"constraint:OnDelete:CASCADE"`
	PdfObject   string         `gorm:"size:512"`
	PdfStatus   string         `gorm:"size:32"`
}

// Purchase 记录某个文档对某个付费模板的购买。导出网关只读。
type Purchase struct {
	gorm.Model
	UserID          uint       `gorm:"index:idx_purchase_lookup"`
	DocumentID      uint       `gorm:"index:idx_purchase_lookup"`
	TemplateKey     string     `gorm:"size:64;index:idx_purchase_lookup"`
	Status          string     `gorm:"size:16;index"`
	ExpiresAt       *time.Time
	StripeSessionID string `gorm:"size:255;uniqueIndex"`
}

// Template 是模板目录在数据库中的镜像，启动时从渲染器注册表同步。
type Template struct {
	gorm.Model
	Key             string `gorm:"uniqueIndex;size:64"`
	Name            string `gorm:"size:255"`
	Category        string `gorm:"size:16"`
	PriceCents      int64
	Currency        string `gorm:"size:8"`
	DefaultAccent   string `gorm:"size:16"`
	PreviewImageKey string `gorm:"size:512"`
}

// AllModels 返回需要迁移的全部模型。
func AllModels() []any {
	return []any{&User{}, &Document{}, &Purchase{}, &Template{}}
}
