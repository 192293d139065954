package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"cvStudio/internal/catalog"
	"cvStudio/internal/cv"
	"cvStudio/internal/database"
	"cvStudio/internal/editor"
	"cvStudio/internal/entitlement"
	"cvStudio/internal/errcode"
	"cvStudio/internal/export"
	"cvStudio/internal/layout"
	"cvStudio/internal/metrics"
)

// ExportGate 由 *export.Gate 实现。
type ExportGate interface {
	Export(ctx context.Context, req export.Request) (export.Result, error)
}

// UpdateGuard 由 *entitlement.Service 实现。
type UpdateGuard interface {
	CheckUpdate(ctx context.Context, userID, documentID uint, templateKey string) error
}

// EditorService 为每个 WebSocket 连接创建编辑会话。
type EditorService struct {
	docs       *database.DocumentRepository
	guard      UpdateGuard
	gate       ExportGate
	prep       PrepClearer
	delay      time.Duration
	pageHeight float64
	clock      editor.Clock
	logger     *slog.Logger
}

// NewEditorService 构造 EditorService。delay/pageHeight 为 0 时使用默认值。
func NewEditorService(docs *database.DocumentRepository, guard UpdateGuard, gate ExportGate, prep PrepClearer, delay time.Duration, pageHeight float64, logger *slog.Logger) *EditorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditorService{
		docs:       docs,
		guard:      guard,
		gate:       gate,
		prep:       prep,
		delay:      delay,
		pageHeight: pageHeight,
		clock:      editor.RealClock,
		logger:     logger,
	}
}

// 客户端消息类型。
const (
	msgOpen     = "open"
	msgEdit     = "edit"
	msgRemove   = "remove"
	msgMove     = "move"
	msgTemplate = "template"
	msgSave     = "save"
	msgLayout   = "layout"
	msgExport   = "export"
)

type wsInbound struct {
	Type          string          `json:"type"`
	DocumentID    uint            `json:"document_id,omitempty"`
	Template      string          `json:"template,omitempty"`
	Path          string          `json:"path,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	Section       string          `json:"section,omitempty"`
	Index         int             `json:"index"`
	From          int             `json:"from"`
	To            int             `json:"to"`
	ContentHeight *float64        `json:"content_height,omitempty"`
	ScrollTop     *float64        `json:"scroll_top,omitempty"`
}

type wsOutbound struct {
	Type       string         `json:"type"`
	DocumentID uint           `json:"document_id,omitempty"`
	Status     *editor.Status `json:"status,omitempty"`
	Document   *cv.Document   `json:"document,omitempty"`
	Pages      *layout.Pages  `json:"pages,omitempty"`
	URL        string         `json:"url,omitempty"`
	Code       string         `json:"code,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type messageSink interface {
	writeJSON(v any) error
}

// guardedPersister 在更新前检查权益：付费模板购买过期后拒绝继续保存。
type guardedPersister struct {
	docs   *database.UserDocuments
	guard  UpdateGuard
	userID uint
}

func (p *guardedPersister) Create(ctx context.Context, doc cv.Document) (uint, error) {
	return p.docs.Create(ctx, doc)
}

func (p *guardedPersister) Update(ctx context.Context, id uint, doc cv.Document) error {
	if p.guard != nil {
		if err := p.guard.CheckUpdate(ctx, p.userID, id, doc.Template); err != nil {
			return err
		}
	}
	return p.docs.Update(ctx, id, doc)
}

// editorConn 是单个连接上的编辑状态。session/observer 只在读循环 goroutine 中访问，
// 自动保存回调只通过线程安全的 out 写消息。
type editorConn struct {
	svc      *EditorService
	userID   uint
	out      messageSink
	log      *slog.Logger
	session  *editor.Session
	observer *layout.Observer
}

func (s *EditorService) newConn(userID uint, out messageSink, log *slog.Logger) *editorConn {
	return &editorConn{svc: s, userID: userID, out: out, log: log}
}

func (e *editorConn) send(msg wsOutbound) {
	if err := e.out.writeJSON(msg); err != nil {
		e.log.Debug("write websocket message failed", slog.Any("error", err))
	}
}

func (e *editorConn) sendError(code, text string) {
	e.send(wsOutbound{Type: "error", Code: code, Error: text})
}

func (e *editorConn) handle(ctx context.Context, raw []byte) {
	var msg wsInbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.sendError("bad_request", "invalid message")
		return
	}
	if msg.Type != msgOpen && e.session == nil {
		e.sendError("no_document", "open a document first")
		return
	}

	var err error
	switch msg.Type {
	case msgOpen:
		e.open(ctx, msg)
	case msgEdit:
		err = e.edit(msg)
	case msgRemove:
		err = e.session.RemoveItem(msg.Section, msg.Index)
	case msgMove:
		err = e.session.MoveItem(msg.Section, msg.From, msg.To)
	case msgTemplate:
		err = e.setTemplate(msg.Template)
	case msgSave:
		e.save(ctx)
	case msgLayout:
		e.layout(msg)
	case msgExport:
		e.export(ctx)
	default:
		e.sendError("bad_request", fmt.Sprintf("unknown message type %q", msg.Type))
	}
	if err != nil {
		e.sendError("invalid_edit", err.Error())
	}
}

// 加载失败时会话保持关闭：resource_missing 表示文档不存在或已删除，
// load_failed 表示其他读取错误，客户端唯一的恢复动作是重新发送 open。
const codeLoadFailed = "load_failed"

func (e *editorConn) open(ctx context.Context, msg wsInbound) {
	if e.session != nil {
		e.close(ctx)
	}

	if msg.Template != "" {
		if _, ok := catalog.Lookup(msg.Template); !ok {
			e.sendError("invalid_template", fmt.Sprintf("%v: %q", cv.ErrUnknownTemplate, msg.Template))
			return
		}
	}

	var (
		doc cv.Document
		id  uint
	)
	if msg.DocumentID != 0 {
		row, err := e.svc.docs.Get(ctx, e.userID, msg.DocumentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				e.sendError(errcode.Slug(errcode.ResourceMissing), fmt.Sprintf("document %d not found", msg.DocumentID))
				return
			}
			e.log.Error("load document failed", slog.Any("error", err), slog.Uint64("document_id", uint64(msg.DocumentID)))
			e.sendError(codeLoadFailed, "failed to load document")
			return
		}
		// open 同时携带 template 时（从模板创建），该模板优先于已保存的模板
		if doc, err = row.DecodeAs(msg.Template); err != nil {
			e.log.Error("decode document failed", slog.Any("error", err), slog.Uint64("document_id", uint64(row.ID)))
			e.sendError(codeLoadFailed, "failed to load document")
			return
		}
		id = row.ID
	} else {
		key := msg.Template
		if key == "" {
			key = catalog.DefaultKey
		}
		doc = cv.Empty(key)
	}

	persister := &guardedPersister{docs: e.svc.docs.ForUser(e.userID), guard: e.svc.guard, userID: e.userID}
	e.session = editor.NewSession(persister, id, doc, editor.Options{
		Delay:    e.svc.delay,
		Clock:    e.svc.clock,
		Logger:   e.log,
		OnStatus: e.onStatus,
		OnSave:   e.onSave,
	})
	e.observer = layout.NewObserver(e.svc.pageHeight, e.sendPages)
	metrics.SessionOpened()

	e.sendDocument()
	pages := e.observer.Pages()
	e.send(wsOutbound{Type: "pages", Pages: &pages})
}

func (e *editorConn) edit(msg wsInbound) error {
	var value any
	if len(msg.Value) > 0 {
		if err := json.Unmarshal(msg.Value, &value); err != nil {
			return fmt.Errorf("%w: %v", cv.ErrInvalidValue, err)
		}
	}
	_, err := e.session.Edit(msg.Path, value)
	return err
}

func (e *editorConn) setTemplate(key string) error {
	changed, err := e.session.SetTemplate(key)
	if err != nil {
		return err
	}
	if changed {
		e.sendDocument()
	}
	return nil
}

func (e *editorConn) save(ctx context.Context) {
	if _, err := e.session.Flush(ctx); err != nil {
		switch {
		case errors.Is(err, editor.ErrEmptyDocument):
			e.sendError("empty_document", err.Error())
		case errors.Is(err, entitlement.ErrExpired):
			// onSave 已经通知
		default:
			e.sendError("save_failed", err.Error())
		}
	}
}

func (e *editorConn) layout(msg wsInbound) {
	switch {
	case msg.ContentHeight != nil && msg.ScrollTop != nil:
		e.observer.Measure(*msg.ContentHeight, *msg.ScrollTop)
	case msg.ContentHeight != nil:
		e.observer.Resize(*msg.ContentHeight)
	case msg.ScrollTop != nil:
		e.observer.Scroll(*msg.ScrollTop)
	}
}

func (e *editorConn) export(ctx context.Context) {
	res, err := e.svc.gate.Export(ctx, export.Request{
		UserID:      e.userID,
		TemplateKey: e.session.Document().Template,
		Saver:       e.session,
	})
	if err != nil {
		var svcErr *export.ServiceError
		switch {
		case errors.Is(err, export.ErrSaveFailed):
			e.sendError("save_failed", err.Error())
		case errors.As(err, &svcErr):
			e.sendError(errcode.Slug(errcode.ExportFailed), svcErr.Message)
		default:
			e.log.Error("export failed", slog.Any("error", err))
			e.sendError(errcode.Slug(errcode.ExportFailed), "export failed")
		}
		return
	}

	if res.RedirectURL != "" {
		e.send(wsOutbound{Type: "redirect", DocumentID: res.DocumentID, URL: res.RedirectURL})
		return
	}
	e.send(wsOutbound{Type: "download", DocumentID: res.DocumentID, URL: res.DownloadURL})
}

func (e *editorConn) sendDocument() {
	doc := e.session.Document()
	e.send(wsOutbound{Type: "document", DocumentID: e.session.ID(), Document: &doc})
}

func (e *editorConn) sendPages(p layout.Pages) {
	e.send(wsOutbound{Type: "pages", Pages: &p})
}

func (e *editorConn) onStatus(st editor.Status) {
	if st.Skipped {
		metrics.ObserveAutosave("skipped")
	}
	e.send(wsOutbound{Type: "status", DocumentID: st.DocumentID, Status: &st})
}

// onSave 在保存 goroutine 中调用。
func (e *editorConn) onSave(ev editor.SaveEvent) {
	switch {
	case ev.Err != nil:
		metrics.ObserveAutosave("failed")
		if errors.Is(ev.Err, entitlement.ErrExpired) {
			e.send(wsOutbound{Type: "error", DocumentID: ev.DocumentID, Code: errcode.Slug(errcode.EntitlementExpired), Error: "template purchase expired"})
		}
		return
	case ev.Created:
		metrics.ObserveAutosave("created")
		return
	default:
		metrics.ObserveAutosave("updated")
	}

	if e.svc.prep != nil && cv.PersonalChanged(ev.Previous, ev.Saved) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.svc.prep.ClearDocument(ctx, e.userID, ev.DocumentID); err != nil {
			e.log.Warn("clear prep cache failed", slog.Uint64("document_id", uint64(ev.DocumentID)), slog.Any("error", err))
		}
	}
}

// close 在关闭前保存未落盘的修改。
func (e *editorConn) close(ctx context.Context) {
	if e.session == nil {
		return
	}
	if e.session.State() == editor.StateDirty {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := e.session.Flush(flushCtx); err != nil && !errors.Is(err, editor.ErrEmptyDocument) {
			e.log.Warn("flush on close failed", slog.Any("error", err))
		}
		cancel()
	}
	e.session.Close()
	e.session = nil
	e.observer = nil
	metrics.SessionClosed()
}
