// Package editor keeps a triage tree open for editing and saves it after
// the editor goes quiet. Every mutation restarts a trailing-edge debounce;
// when it fires the tree is snapshotted and saved in full.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/erqueue/internal/triage"
)

// DefaultDebounce is how long the tree must stay unchanged before it is saved.
const DefaultDebounce = 3000 * time.Millisecond

// ErrClosed is returned by mutations on a closed Session.
var ErrClosed = errors.New("editor: session closed")

// Status is the persistence state shown to the editor.
type Status int

const (
	// StatusSaved means the last snapshot reached the server and nothing
	// changed since.
	StatusSaved Status = iota
	// StatusPending means there are changes waiting for the debounce.
	StatusPending
	// StatusSaving means a save is in flight.
	StatusSaving
	// StatusFailed means the last save failed; Err holds the reason.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusPending:
		return "pending"
	case StatusSaving:
		return "saving"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Saver persists a full tree.
type Saver interface {
	SaveTriage(ctx context.Context, dto triage.DTO) error
}

// Loader fetches the saved tree.
type Loader interface {
	LoadTriage(ctx context.Context) (triage.DTO, error)
}

// Remote is the server side of a session.
type Remote interface {
	Loader
	Saver
}

// Timer is a pending debounce.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets the quiet period before a save.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// WithAfterFunc replaces the timer source, for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Session) { s.afterFunc = fn }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithStatusHook is called after every status change, outside the lock.
func WithStatusHook(fn func(Status, error)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// Session owns one Graph being edited.
type Session struct {
	mu        sync.Mutex
	saveMu    sync.Mutex
	g         *triage.Graph
	saver     Saver
	delay     time.Duration
	afterFunc AfterFunc
	logger    log.Logger
	onStatus  func(Status, error)

	timer  Timer
	gen    uint64
	saved  uint64
	status Status
	err    error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a session on g. A nil graph starts empty.
func New(g *triage.Graph, saver Saver, opts ...Option) *Session {
	if g == nil {
		g = triage.NewGraph()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		g:     g,
		saver: saver,
		delay: DefaultDebounce,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: log.Nop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the saved tree and starts a session on it. A tree that was
// never saved gets a fresh root, which is not saved until the first edit.
func Open(ctx context.Context, c Remote, opts ...Option) (*Session, error) {
	dto, err := c.LoadTriage(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	g, err := triage.Deserialize(dto)
	if err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	if g.Empty() {
		g.CreateRoot()
	}
	return New(g, c, opts...), nil
}

// Status returns the current persistence state and, for StatusFailed, the
// error.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// Snapshot returns the DTO of the tree as it is now.
func (s *Session) Snapshot() triage.DTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.Serialize()
}

// View runs fn with read access to the graph. fn must not keep g.
func (s *Session) View(fn func(g *triage.Graph)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.g)
}

// Flush cancels the debounce and saves pending changes now.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.save(ctx)
}

// Close cancels the debounce and any in-flight save. Pending changes are
// discarded; call Flush first to keep them.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
}

// mutate applies fn under the lock and, when it succeeds, marks the tree
// dirty and restarts the debounce.
func (s *Session) mutate(fn func(g *triage.Graph) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err := fn(s.g); err != nil {
		s.mu.Unlock()
		return err
	}

	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.gen
	s.timer = s.afterFunc(s.delay, func() { s.fire(gen) })
	changed := s.setStatusLocked(StatusPending, nil)
	st, err := s.status, s.err
	s.mu.Unlock()

	if changed {
		s.notify(st, err)
	}
	return nil
}

// fire runs the save scheduled for gen. A timer that fired after a later
// mutation failed to stop it is stale: the newer timer owns the save.
func (s *Session) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	if err := s.save(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn(s.ctx, "triage tree autosave failed", "error", err.Error())
	}
}

// save writes the current snapshot if it is newer than the last one saved.
// Saves are serialized; a mutation made while saving leaves the session
// pending.
func (s *Session) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.gen == s.saved && s.status != StatusFailed {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	dto := s.g.Serialize()
	verr := s.g.Validate()
	if verr == nil {
		s.setStatusLocked(StatusSaving, nil)
	}
	s.mu.Unlock()

	err := verr
	if err == nil {
		s.notify(StatusSaving, nil)
		err = s.saver.SaveTriage(ctx, dto)
	}

	s.mu.Lock()
	var st Status
	switch {
	case err != nil:
		st = StatusFailed
	case s.gen != gen:
		st = StatusPending
	default:
		st = StatusSaved
	}
	if err == nil {
		s.saved = gen
	}
	s.setStatusLocked(st, err)
	s.mu.Unlock()

	s.notify(st, err)
	return err
}

func (s *Session) setStatusLocked(st Status, err error) bool {
	changed := s.status != st || s.err != err
	s.status, s.err = st, err
	return changed
}

func (s *Session) notify(st Status, err error) {
	if s.onStatus != nil {
		s.onStatus(st, err)
	}
}
