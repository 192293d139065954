package payments

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"cvStudio/internal/catalog"
	"cvStudio/internal/database"
)

var (
	// ErrCheckoutDisabled 表示未配置支付服务。
	ErrCheckoutDisabled = errors.New("checkout is not configured")
	// ErrNotPurchasable 表示模板是免费模板，无需购买。
	ErrNotPurchasable = errors.New("template is not purchasable")
)

// SessionRequest 是创建支付会话所需的信息。
type SessionRequest struct {
	UserID         uint
	DocumentID     uint
	TemplateKey    string
	ProductName    string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// Session 是支付服务返回的会话。
type Session struct {
	ID          string
	RedirectURL string
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// Service 创建支付会话并写入一条 pending 购买记录，由外部回调更新其状态。
type Service struct {
	db       *gorm.DB
	provider Provider
}

// NewService 构造 Service；provider 为 nil 时所有结账请求返回 ErrCheckoutDisabled。
func NewService(db *gorm.DB, provider Provider) *Service {
	return &Service{db: db, provider: provider}
}

// CreateCheckout 为 (文档, 模板) 发起结账并返回跳转地址。
func (s *Service) CreateCheckout(ctx context.Context, userID, documentID uint, templateKey string) (string, error) {
	if s.provider == nil {
		return "", ErrCheckoutDisabled
	}
	tpl, ok := catalog.Lookup(templateKey)
	if !ok || !tpl.Restricted() || tpl.PriceCents <= 0 {
		return "", fmt.Errorf("%w: %q", ErrNotPurchasable, templateKey)
	}

	session, err := s.provider.CreateSession(ctx, SessionRequest{
		UserID:      userID,
		DocumentID:  documentID,
		TemplateKey: tpl.Key,
		ProductName: tpl.Name + " template",
		AmountCents: tpl.PriceCents,
		Currency:    tpl.Currency,
	})
	if err != nil {
		return "", err
	}

	purchase := database.Purchase{
		UserID:          userID,
		DocumentID:      documentID,
		TemplateKey:     tpl.Key,
		Status:          database.PurchasePending,
		StripeSessionID: session.ID,
	}
	if err := s.db.WithContext(ctx).Create(&purchase).Error; err != nil {
		return "", fmt.Errorf("record pending purchase: %w", err)
	}
	return session.RedirectURL, nil
}
