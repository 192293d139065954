package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvStudio/internal/database"
	"cvStudio/internal/payments"
)

// CheckoutCreator 由 *payments.Service 实现。
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, userID, documentID uint, templateKey string) (string, error)
}

// CheckoutHandler 为 (文档, 付费模板) 发起 Stripe 结账。
type CheckoutHandler struct {
	docs     *database.DocumentRepository
	checkout CheckoutCreator
	logger   *slog.Logger
}

type checkoutRequest struct {
	DocumentID uint   `json:"document_id" binding:"required"`
	Template   string `json:"template"`
}

// CreateCheckout POST /v1/checkout
// template 为空时使用文档当前模板。
func (h *CheckoutHandler) CreateCheckout(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := requestLogger(c, h.logger).With(slog.Uint64("document_id", uint64(req.DocumentID)))

	row, err := h.docs.Get(ctx, userID, req.DocumentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "document not found")
			return
		}
		log.Error("query document failed", slog.Any("error", err))
		Internal(c, "failed to query document")
		return
	}

	templateKey := req.Template
	if templateKey == "" {
		templateKey = row.TemplateKey
	}

	url, err := h.checkout.CreateCheckout(ctx, userID, row.ID, templateKey)
	switch {
	case errors.Is(err, payments.ErrNotPurchasable):
		BadRequest(c, "template is not purchasable")
		return
	case errors.Is(err, payments.ErrCheckoutDisabled):
		Error(c, http.StatusServiceUnavailable, "checkout is not available")
		return
	case err != nil:
		log.Error("create checkout failed", slog.Any("error", err))
		Internal(c, "failed to create checkout")
		return
	}

	c.JSON(http.StatusOK, gin.H{"redirect_url": url})
}
