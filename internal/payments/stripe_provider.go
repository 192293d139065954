package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeConfig configures the StripeProvider. Sessions replaces the real
// Stripe client in tests.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     *slog.Logger
	Sessions   stripeSessionAPI
}

// StripeProvider 使用 Stripe Checkout 创建一次性付款会话。
type StripeProvider struct {
	sessions   stripeSessionAPI
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// NewStripeProvider 构造 StripeProvider。
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("stripe: success and cancel urls are required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeProvider{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}, nil
}

// CreateSession 为 (文档, 模板) 创建 Checkout 会话，返回会话 ID 与跳转地址。
func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if req.AmountCents <= 0 {
		return Session{}, fmt.Errorf("stripe: invalid amount %d", req.AmountCents)
	}

	metadata := map[string]string{
		"user_id":      strconv.FormatUint(uint64(req.UserID), 10),
		"document_id":  strconv.FormatUint(uint64(req.DocumentID), 10),
		"template_key": req.TemplateKey,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionPlaceholder(p.successURL)),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(metadata["document_id"]),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
			},
		}},
		Metadata: metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if session.URL == "" {
		return Session{}, errors.New("stripe: checkout session has no redirect url")
	}

	p.logger.InfoContext(ctx, "stripe checkout session created",
		slog.String("session_id", session.ID),
		slog.Uint64("document_id", uint64(req.DocumentID)),
		slog.String("template", req.TemplateKey),
	)

	return Session{ID: session.ID, RedirectURL: session.URL}, nil
}

func withSessionPlaceholder(u string) string {
	if strings.Contains(u, "{CHECKOUT_SESSION_ID}") {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}
