package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cvStudio/internal/cv"
)

// State 是自动保存状态机的状态。
type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
)

// DefaultAutosaveDelay 是最后一次编辑之后触发保存的静默时长。
const DefaultAutosaveDelay = 3 * time.Second

var (
	ErrEmptyDocument = errors.New("document has no content yet")
	ErrClosed        = errors.New("editor session closed")
)

// Persister 是编辑会话依赖的持久化协作方。
type Persister interface {
	Create(ctx context.Context, doc cv.Document) (uint, error)
	Update(ctx context.Context, id uint, doc cv.Document) error
}

// Status 描述一次状态变化，由 WebSocket 层转发给前端。
type Status struct {
	State      State  `json:"state"`
	DocumentID uint   `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
}

// SaveEvent is reported after every save attempt that reached the persister.
type SaveEvent struct {
	DocumentID uint
	Created    bool
	Previous   cv.Document
	Saved      cv.Document
	Err        error
}

// Options configures a Session.
type Options struct {
	Delay    time.Duration
	Clock    Clock
	Logger   *slog.Logger
	OnStatus func(Status)
	OnSave   func(SaveEvent)
	// SaveTimeout bounds a single debounced save; zero means 30s.
	SaveTimeout time.Duration
}

// Session 持有一个打开中的简历文档，负责应用编辑、脏标记与防抖自动保存。
// 同一会话任意时刻最多只有一个保存请求在途。
type Session struct {
	mu sync.Mutex

	persister Persister
	clock     Clock
	delay     time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	onStatus  func(Status)
	onSave    func(SaveEvent)

	doc       cv.Document
	persisted cv.Document
	id        uint
	state     State
	version   uint64

	timer      Timer
	generation uint64

	inFlight     bool
	saveDone     chan struct{}
	resaveQueued bool
	closed       bool
}

// NewSession opens a session on doc. id is zero for a document that has never
// been persisted.
func NewSession(persister Persister, id uint, doc cv.Document, opts Options) *Session {
	if opts.Delay <= 0 {
		opts.Delay = DefaultAutosaveDelay
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 30 * time.Second
	}
	return &Session{
		persister: persister,
		clock:     opts.Clock,
		delay:     opts.Delay,
		timeout:   opts.SaveTimeout,
		logger:    opts.Logger,
		onStatus:  opts.OnStatus,
		onSave:    opts.OnSave,
		doc:       doc,
		persisted: doc,
		id:        id,
		state:     StateClean,
	}
}

// Document 返回当前内存中的文档。
func (s *Session) Document() cv.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// ID returns the persisted identifier, zero before the first create.
func (s *Session) ID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current autosave state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Edit 应用一次字段修改；值未变化时不改变状态，返回 false。
func (s *Session) Edit(path string, value any) (bool, error) {
	return s.mutate(func(doc cv.Document) (cv.Document, bool, error) {
		return cv.Set(doc, path, value)
	})
}

// RemoveItem deletes a section entry.
func (s *Session) RemoveItem(section string, index int) error {
	_, err := s.mutate(func(doc cv.Document) (cv.Document, bool, error) {
		next, err := cv.RemoveItem(doc, section, index)
		return next, err == nil, err
	})
	return err
}

// MoveItem reorders a section entry.
func (s *Session) MoveItem(section string, from, to int) error {
	_, err := s.mutate(func(doc cv.Document) (cv.Document, bool, error) {
		next, err := cv.MoveItem(doc, section, from, to)
		return next, err == nil && from != to, err
	})
	return err
}

// SetTemplate 切换模板，仅修改模板指针与默认强调色。
func (s *Session) SetTemplate(key string) (bool, error) {
	return s.mutate(func(doc cv.Document) (cv.Document, bool, error) {
		if doc.Template == key {
			return doc, false, nil
		}
		next, err := cv.ApplyTemplate(doc, key)
		return next, err == nil, err
	})
}

func (s *Session) mutate(apply func(cv.Document) (cv.Document, bool, error)) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	next, changed, err := apply(s.doc)
	if err != nil || !changed {
		s.mu.Unlock()
		return false, err
	}

	s.doc = next
	s.version++
	notify := s.state != StateDirty && s.state != StateSaving
	if s.state != StateSaving {
		s.state = StateDirty
	}
	s.armLocked()
	st := s.statusLocked()
	s.mu.Unlock()

	if notify {
		s.emit(st)
	}
	return true, nil
}

// armLocked 取消旧定时器并以新的代号重新计时。
func (s *Session) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(gen) })
}

func (s *Session) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.inFlight {
		// 保存进行中，等其结束后重新开启一个防抖窗口
		s.resaveQueued = true
		s.mu.Unlock()
		return
	}
	if s.state != StateDirty {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.save(ctx, false); err != nil && !errors.Is(err, ErrEmptyDocument) {
		s.logger.Warn("autosave failed", slog.Uint64("document_id", uint64(s.ID())), slog.Any("error", err))
	}
}

// Flush 无条件保存当前文档：等待在途保存结束后立即持久化。
// 尚未创建且没有实质内容的文档返回 ErrEmptyDocument。
func (s *Session) Flush(ctx context.Context) (uint, error) {
	if err := s.save(ctx, true); err != nil {
		return s.ID(), err
	}
	return s.ID(), nil
}

// save 执行一次保存。unconditional 为 false 时仅在 Dirty 状态保存。
func (s *Session) save(ctx context.Context, unconditional bool) error {
	s.mu.Lock()
	for s.inFlight {
		done := s.saveDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !unconditional && s.state != StateDirty {
		s.mu.Unlock()
		return nil
	}

	if unconditional && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.generation++
	}

	doc := s.doc
	previous := s.persisted
	id := s.id
	version := s.version

	if id == 0 && !cv.HasContent(doc) {
		if s.state == StateDirty {
			s.state = StateClean
		}
		st := s.statusLocked()
		st.Skipped = true
		s.mu.Unlock()
		s.emit(st)
		return ErrEmptyDocument
	}

	s.inFlight = true
	s.saveDone = make(chan struct{})
	prevState := s.state
	s.state = StateSaving
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)

	created := false
	var err error
	if id == 0 {
		var newID uint
		newID, err = s.persister.Create(ctx, doc)
		if err == nil {
			id = newID
			created = true
		}
	} else {
		err = s.persister.Update(ctx, id, doc)
	}

	s.mu.Lock()
	s.inFlight = false
	close(s.saveDone)
	resave := s.resaveQueued
	s.resaveQueued = false

	if err != nil {
		s.state = StateDirty
		if prevState == StateClean && s.version == version {
			// 无条件保存失败时文档本身并无未保存修改
			s.state = StateClean
		}
	} else {
		s.id = id
		s.persisted = doc
		if s.version == version {
			s.state = StateClean
		} else {
			s.state = StateDirty
		}
	}
	if s.state == StateDirty && resave && !s.closed {
		s.armLocked()
	}
	st = s.statusLocked()
	if err != nil {
		st.Error = err.Error()
	}
	s.mu.Unlock()

	s.emit(st)
	if s.onSave != nil {
		s.onSave(SaveEvent{DocumentID: id, Created: created, Previous: previous, Saved: doc, Err: err})
	}
	if err != nil {
		return fmt.Errorf("persist document: %w", err)
	}
	return nil
}

// Close 停止定时器；在途保存不会被取消。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

func (s *Session) statusLocked() Status {
	return Status{State: s.state, DocumentID: s.id}
}

func (s *Session) emit(st Status) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}
