package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cvStudio/internal/catalog"
	"cvStudio/internal/entitlement"
	"cvStudio/internal/metrics"
)

// ErrSaveFailed 表示导出前的无条件保存失败，此时不会进入付费流程。
var ErrSaveFailed = errors.New("save before export failed")

// Saver 对当前文档执行一次无条件保存并返回其持久化 ID。
type Saver interface {
	Flush(ctx context.Context) (uint, error)
}

// Entitlements 判断 (用户, 文档, 模板) 是否可以导出。
type Entitlements interface {
	Check(ctx context.Context, userID, documentID uint, templateKey string) (entitlement.Decision, error)
}

// Checkout 为付费模板发起外部结账，返回跳转地址。
type Checkout interface {
	CreateCheckout(ctx context.Context, userID, documentID uint, templateKey string) (string, error)
}

// Exporter 请求渲染后的导出产物。
type Exporter interface {
	Export(ctx context.Context, documentID uint) (Artifact, error)
}

// Delivery 保存导出产物并返回下载地址。
type Delivery interface {
	Deliver(ctx context.Context, userID, documentID uint, artifact Artifact) (string, error)
}

// Artifact 是导出服务返回的二进制产物。
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
	// Pages 为导出服务报告的页数，未知时为 0。
	Pages int
}

// Request 描述一次用户发起的导出。
type Request struct {
	UserID      uint
	TemplateKey string
	Saver       Saver
}

// Result 要么是结账跳转，要么是下载地址。
type Result struct {
	DocumentID  uint   `json:"document_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Pages       int    `json:"pages,omitempty"`
}

// Gate 串联保存、权益判断、结账与导出。
type Gate struct {
	entitlements Entitlements
	checkout     Checkout
	exporter     Exporter
	delivery     Delivery
	logger       *slog.Logger
}

// NewGate 构造 Gate。
func NewGate(entitlements Entitlements, checkout Checkout, exporter Exporter, delivery Delivery, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		entitlements: entitlements,
		checkout:     checkout,
		exporter:     exporter,
		delivery:     delivery,
		logger:       logger,
	}
}

// Export 先无条件保存，确保持久化记录反映当前模板；付费模板在没有权益时返回结账跳转，
// 不会调用导出服务。
func (g *Gate) Export(ctx context.Context, req Request) (Result, error) {
	documentID, err := req.Saver.Flush(ctx)
	if err != nil {
		metrics.ObserveExport("save_failed")
		return Result{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	tpl := catalog.Resolve(req.TemplateKey)
	decision, err := g.entitlements.Check(ctx, req.UserID, documentID, tpl.Key)
	if err != nil {
		metrics.ObserveExport("failed")
		return Result{DocumentID: documentID}, fmt.Errorf("check entitlement: %w", err)
	}

	if !decision.Allowed() {
		url, err := g.checkout.CreateCheckout(ctx, req.UserID, documentID, tpl.Key)
		if err != nil {
			metrics.ObserveExport("failed")
			return Result{DocumentID: documentID}, fmt.Errorf("create checkout: %w", err)
		}
		g.logger.InfoContext(ctx, "export redirected to checkout",
			slog.Uint64("document_id", uint64(documentID)),
			slog.String("template", tpl.Key),
		)
		metrics.ObserveExport("redirected")
		return Result{DocumentID: documentID, RedirectURL: url}, nil
	}

	artifact, err := g.exporter.Export(ctx, documentID)
	if err != nil {
		metrics.ObserveExport("failed")
		return Result{DocumentID: documentID}, err
	}

	url, err := g.delivery.Deliver(ctx, req.UserID, documentID, artifact)
	if err != nil {
		metrics.ObserveExport("failed")
		return Result{DocumentID: documentID}, fmt.Errorf("deliver export: %w", err)
	}

	metrics.ObserveExport("delivered")
	return Result{DocumentID: documentID, DownloadURL: url, Pages: artifact.Pages}, nil
}
