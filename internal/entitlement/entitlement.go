package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cvStudio/internal/catalog"
	"cvStudio/internal/database"
)

// ErrExpired 表示文档的付费模板购买已过期，且用户没有有效的全局会员。
var ErrExpired = errors.New("entitlement expired")

// Decision 是一次权益判断的结果。
type Decision struct {
	Restricted bool
	Global     bool
	Purchased  bool
	// Expired 表示存在已完成但已过期的购买记录。
	Expired bool
}

// Allowed reports whether the document may be exported with its template.
func (d Decision) Allowed() bool {
	return !d.Restricted || d.Global || d.Purchased
}

// Service 基于用户会员期与购买记录判断导出权限。只读，不修改购买记录。
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService 构造 Service。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock 替换时间源，便于测试。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HasGlobal 判断用户的全局会员是否仍在有效期内。
func (s *Service) HasGlobal(ctx context.Context, userID uint) (bool, error) {
	var user database.User
	err := s.db.WithContext(ctx).Select("id", "premium_until").First(&user, userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user.PremiumUntil != nil && user.PremiumUntil.After(s.now()), nil
}

// HasPurchase 判断文档是否有已完成且未过期的购买记录。
// 返回的 expired 表示仅存在已过期的已完成购买。
func (s *Service) HasPurchase(ctx context.Context, userID, documentID uint) (active, expired bool, err error) {
	var purchases []database.Purchase
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND document_id = ? AND status = ?", userID, documentID, database.PurchaseCompleted).
		Find(&purchases).Error; err != nil {
		return false, false, fmt.Errorf("load purchases for document %d: %w", documentID, err)
	}

	now := s.now()
	for _, p := range purchases {
		if p.ExpiresAt == nil || p.ExpiresAt.After(now) {
			return true, false, nil
		}
		expired = true
	}
	return false, expired, nil
}

// Check 计算 (用户, 文档, 模板) 的导出权限。免费模板不查询数据库。
func (s *Service) Check(ctx context.Context, userID, documentID uint, templateKey string) (Decision, error) {
	tpl := catalog.Resolve(templateKey)
	if !tpl.Restricted() {
		return Decision{}, nil
	}

	d := Decision{Restricted: true}
	global, err := s.HasGlobal(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	d.Global = global

	if documentID != 0 {
		active, expired, err := s.HasPurchase(ctx, userID, documentID)
		if err != nil {
			return Decision{}, err
		}
		d.Purchased = active
		d.Expired = expired
	}
	return d, nil
}

// CheckUpdate 用于保存前的服务端校验：仅当购买已过期且没有其他有效权益时返回 ErrExpired。
// 从未购买过的付费模板允许继续编辑，在导出时才会被拦截。
func (s *Service) CheckUpdate(ctx context.Context, userID, documentID uint, templateKey string) error {
	d, err := s.Check(ctx, userID, documentID, templateKey)
	if err != nil {
		return err
	}
	if !d.Allowed() && d.Expired {
		return ErrExpired
	}
	return nil
}

// Paid 返回文档是否有有效的已完成购买，用于文档详情中的 paid 标记。
func (s *Service) Paid(ctx context.Context, userID, documentID uint) (bool, error) {
	active, _, err := s.HasPurchase(ctx, userID, documentID)
	return active, err
}
