package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvStudio/internal/cv"
)

type manualTimer struct {
	mu      *sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{mu: &c.mu, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every pending timer synchronously and returns how many ran.
func (c *manualClock) fire() int {
	c.mu.Lock()
	pending := make([]*manualTimer, 0)
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			pending = append(pending, t)
		}
	}
	c.mu.Unlock()
	for _, t := range pending {
		t.f()
	}
	return len(pending)
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakePersister struct {
	mu       sync.Mutex
	creates  []cv.Document
	updates  []cv.Document
	err      error
	block    chan struct{}
	entered  chan struct{}
	inFlight int
	maxSeen  int
	nextID   uint
}

func (p *fakePersister) begin() {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	block, entered := p.block, p.entered
	p.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
}

func (p *fakePersister) end() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

func (p *fakePersister) Create(_ context.Context, doc cv.Document) (uint, error) {
	p.begin()
	defer p.end()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.creates = append(p.creates, doc)
	p.nextID++
	return p.nextID, nil
}

func (p *fakePersister) Update(_ context.Context, _ uint, doc cv.Document) error {
	p.begin()
	defer p.end()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.updates = append(p.updates, doc)
	return nil
}

func (p *fakePersister) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creates), len(p.updates)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *statusRecorder) count(state State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, st := range r.statuses {
		if st.State == state && !st.Skipped {
			n++
		}
	}
	return n
}

func newTestSession(p *fakePersister, id uint, doc cv.Document) (*Session, *manualClock, *statusRecorder) {
	clock := &manualClock{}
	rec := &statusRecorder{}
	s := NewSession(p, id, doc, Options{Clock: clock, OnStatus: rec.record})
	return s, clock, rec
}

func TestSession_EmptyDocumentNeverCreated(t *testing.T) {
	p := &fakePersister{}
	s, clock, _ := newTestSession(p, 0, cv.Empty("classic"))

	for _, path := range []string{"personal.firstName", "personal.summary", "experience.0.description"} {
		changed, err := s.Edit(path, "  <p><br></p> ")
		require.NoError(t, err)
		assert.False(t, changed, path)
	}
	assert.Equal(t, 0, clock.fire())

	changed, err := s.Edit("style.accentColor", "#000000")
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = s.Edit("personal.firstName", "   ")
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, 1, clock.fire())
	creates, updates := p.counts()
	assert.Equal(t, 0, creates)
	assert.Equal(t, 0, updates)
	assert.Equal(t, uint(0), s.ID())
	assert.Equal(t, StateClean, s.State())
}

func TestSession_FirstSaveCreatesThenUpdates(t *testing.T) {
	p := &fakePersister{}
	s, clock, rec := newTestSession(p, 0, cv.Empty("classic"))

	_, err := s.Edit("experience.0.title", "Engineer")
	require.NoError(t, err)
	assert.Equal(t, StateDirty, s.State())
	require.Equal(t, 1, clock.fire())

	creates, updates := p.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, updates)
	assert.Equal(t, uint(1), s.ID())
	assert.Equal(t, StateClean, s.State())

	_, err = s.Edit("experience.0.employer", "Acme")
	require.NoError(t, err)
	require.Equal(t, 1, clock.fire())
	_, err = s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)
	require.Equal(t, 1, clock.fire())

	creates, updates = p.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 2, updates)
	assert.Equal(t, 3, rec.count(StateClean))
	assert.Equal(t, "Ann", p.updates[1].Personal.FirstName)
}

func TestSession_ExistingDocumentSavesUnconditionally(t *testing.T) {
	p := &fakePersister{}
	doc := cv.Empty("classic")
	doc.Personal.FirstName = "Ann"
	s, clock, _ := newTestSession(p, 42, doc)

	_, err := s.Edit("personal.firstName", "")
	require.NoError(t, err)
	require.Equal(t, 1, clock.fire())

	creates, updates := p.counts()
	assert.Equal(t, 0, creates)
	assert.Equal(t, 1, updates)
}

func TestSession_SameValueTwiceSingleDirtyTransition(t *testing.T) {
	p := &fakePersister{}
	s, clock, rec := newTestSession(p, 7, cv.Empty("classic"))

	first, err := s.Edit("personal.lastName", "Lee")
	require.NoError(t, err)
	second, err := s.Edit("personal.lastName", "Lee")
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, rec.count(StateDirty))
	assert.Equal(t, 1, clock.pending())
}

func TestSession_DebounceResetsOnEveryEdit(t *testing.T) {
	p := &fakePersister{}
	s, clock, _ := newTestSession(p, 3, cv.Empty("classic"))

	for _, name := range []string{"A", "An", "Ann"} {
		_, err := s.Edit("personal.firstName", name)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, clock.pending(), "older timers are stopped")

	// a stale callback that slipped past Stop must not save
	clock.mu.Lock()
	stale := clock.timers[0]
	clock.mu.Unlock()
	stale.f()
	_, updates := p.counts()
	assert.Equal(t, 0, updates)

	require.Equal(t, 1, clock.fire())
	_, updates = p.counts()
	require.Equal(t, 1, updates)
	assert.Equal(t, "Ann", p.updates[0].Personal.FirstName)
}

func TestSession_EditDuringSaveResavesLatest(t *testing.T) {
	p := &fakePersister{block: make(chan struct{}), entered: make(chan struct{}, 4)}
	s, clock, _ := newTestSession(p, 9, cv.Empty("classic"))

	_, err := s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		clock.fire()
		close(done)
	}()
	<-p.entered
	assert.Equal(t, StateSaving, s.State())

	_, err = s.Edit("personal.lastName", "Lee")
	require.NoError(t, err)
	assert.Equal(t, StateSaving, s.State(), "edits do not cancel the in-flight save")

	// the new debounce window elapses while the first save is still running
	require.Equal(t, 1, clock.fire())

	p.block <- struct{}{}
	<-done

	assert.Equal(t, StateDirty, s.State())
	require.Equal(t, 1, clock.pending(), "a fresh debounce window is armed after the save settles")

	go func() { p.block <- struct{}{} }()
	require.Equal(t, 1, clock.fire())
	<-p.entered

	_, updates := p.counts()
	require.Equal(t, 2, updates)
	assert.Equal(t, "Lee", p.updates[1].Personal.LastName)
	assert.Equal(t, StateClean, s.State())
	assert.Equal(t, 1, p.maxSeen, "saves never overlap")
}

func TestSession_FailureLeavesDirtyWithoutRetry(t *testing.T) {
	p := &fakePersister{err: errors.New("network down")}
	s, clock, rec := newTestSession(p, 5, cv.Empty("classic"))

	_, err := s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)
	require.Equal(t, 1, clock.fire())

	assert.Equal(t, StateDirty, s.State())
	assert.Equal(t, 0, clock.pending(), "no automatic retry loop")
	rec.mu.Lock()
	last := rec.statuses[len(rec.statuses)-1]
	rec.mu.Unlock()
	assert.Equal(t, "network down", last.Error)

	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()

	_, err = s.Edit("personal.lastName", "Lee")
	require.NoError(t, err)
	require.Equal(t, 1, clock.fire())
	assert.Equal(t, StateClean, s.State())
	_, updates := p.counts()
	assert.Equal(t, 1, updates)
}

func TestSession_Flush(t *testing.T) {
	p := &fakePersister{}
	s, clock, _ := newTestSession(p, 0, cv.Empty("classic"))

	_, err := s.Flush(context.Background())
	require.ErrorIs(t, err, ErrEmptyDocument)

	_, err = s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)
	id, err := s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, 0, clock.pending(), "flush cancels the pending debounce")

	id, err = s.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)

	creates, updates := p.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, updates, "flush saves even when clean")
}

func TestSession_SetTemplate(t *testing.T) {
	p := &fakePersister{}
	doc := cv.Empty("classic")
	doc.Skills = []cv.Skill{{Name: "Go", Level: 5}}
	s, _, _ := newTestSession(p, 1, doc)

	changed, err := s.SetTemplate("modern")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "modern", s.Document().Template)
	assert.Equal(t, doc.Skills, s.Document().Skills)

	changed, err = s.SetTemplate("modern")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.SetTemplate("missing")
	require.ErrorIs(t, err, cv.ErrUnknownTemplate)
}

func TestSession_OnSaveReportsPrevious(t *testing.T) {
	p := &fakePersister{}
	var events []SaveEvent
	clock := &manualClock{}
	s := NewSession(p, 0, cv.Empty("classic"), Options{
		Clock:  clock,
		OnSave: func(e SaveEvent) { events = append(events, e) },
	})

	_, err := s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)
	clock.fire()
	_, err = s.Edit("personal.firstName", "Anna")
	require.NoError(t, err)
	clock.fire()

	require.Len(t, events, 2)
	assert.True(t, events[0].Created)
	assert.False(t, events[1].Created)
	assert.Equal(t, "Ann", events[1].Previous.Personal.FirstName)
	assert.Equal(t, "Anna", events[1].Saved.Personal.FirstName)
}

func TestSession_ClosedRejectsEdits(t *testing.T) {
	p := &fakePersister{}
	s, clock, _ := newTestSession(p, 1, cv.Empty("classic"))
	_, err := s.Edit("personal.firstName", "Ann")
	require.NoError(t, err)

	s.Close()
	assert.Equal(t, 0, clock.fire())
	_, err = s.Edit("personal.lastName", "Lee")
	require.ErrorIs(t, err, ErrClosed)
}
