// Package autosave coalesces rapid edits to many notes into infrequent save
// calls. Each note has its own debounce timer; the latest snapshot known when
// the timer fires is what gets saved, and saves for one note never overlap.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notely/notely/internal/logging"
)

// DefaultDebounce is the quiet period after the last edit before a save.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrClosed is returned by Edit after Close.
	ErrClosed = errors.New("autosave: coordinator closed")
	// ErrDeleted is returned by Edit for a note deleted through this coordinator.
	ErrDeleted = errors.New("autosave: note was deleted")
	// ErrNoID is returned by Edit for a note without an ID.
	ErrNoID = errors.New("autosave: note has no id")
)

// Note is the full snapshot written on every save.
type Note struct {
	ID      string
	Title   string
	Content string
}

// Store persists notes. Save is a full replacement, so repeating it is harmless.
type Store interface {
	Save(ctx context.Context, n Note) error
	Delete(ctx context.Context, id string) error
}

// PersistenceError reports a failed save. Local edits are kept; the next
// edit to the note schedules the retry.
type PersistenceError struct {
	NoteID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save note %s: %v", e.NoteID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// record is the pending-edit state of one note.
type record struct {
	latest   Note
	timer    Timer
	gen      uint64
	inFlight bool
	queued   bool
	settled  chan struct{}
}

func (r *record) saving() bool {
	return r.timer != nil || r.inFlight || r.queued
}

// Coordinator owns the pending-edit records of one client session. It is
// safe for concurrent use; callbacks run on timer or save goroutines and
// must not call back into the coordinator synchronously while blocking.
type Coordinator struct {
	store    Store
	debounce time.Duration
	sched    Scheduler
	onStatus func(id string, saving bool)
	onError  func(id string, err error)
	logger   *slog.Logger

	mu       sync.Mutex
	pending  map[string]*record
	deleted  map[string]struct{}
	inFlight int
	idle     chan struct{}
	closed   bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithScheduler replaces the timer source (useful for tests).
func WithScheduler(s Scheduler) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.sched = s
		}
	}
}

// OnStatus registers a callback invoked whenever a note's saving flag flips.
func OnStatus(fn func(id string, saving bool)) Option {
	return func(c *Coordinator) { c.onStatus = fn }
}

// OnError registers a callback for failed saves. The error is a *PersistenceError.
func OnError(fn func(id string, err error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Coordinator writing through store.
func New(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		debounce: DefaultDebounce,
		sched:    realScheduler{},
		logger:   logging.Discard(),
		pending:  make(map[string]*record),
		deleted:  make(map[string]struct{}),
		idle:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Edit records the latest snapshot of a note and restarts its debounce timer.
// The note reports saving from this moment until the resulting save settles.
func (c *Coordinator) Edit(n Note) error {
	if n.ID == "" {
		return ErrNoID
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, gone := c.deleted[n.ID]; gone {
		c.mu.Unlock()
		return ErrDeleted
	}

	rec, ok := c.pending[n.ID]
	if !ok {
		rec = &record{}
		c.pending[n.ID] = rec
	}
	wasSaving := rec.saving()
	rec.latest = n
	c.armLocked(n.ID, rec)
	c.mu.Unlock()

	if !wasSaving {
		c.status(n.ID, true)
	}
	return nil
}

// armLocked replaces the note's timer. The generation guards against a timer
// that fired concurrently with Stop.
func (c *Coordinator) armLocked(id string, rec *record) {
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.gen++
	gen := rec.gen
	rec.timer = c.sched.AfterFunc(c.debounce, func() { c.fire(id, gen) })
}

func (c *Coordinator) fire(id string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.pending[id]
	if !ok || rec.gen != gen || rec.timer == nil {
		return
	}
	rec.timer = nil
	if rec.inFlight {
		rec.queued = true
		return
	}
	c.startLocked(id, rec)
}

func (c *Coordinator) startLocked(id string, rec *record) {
	rec.inFlight = true
	rec.settled = make(chan struct{})
	c.inFlight++
	go c.save(id, rec.latest, rec.settled)
}

func (c *Coordinator) save(id string, snapshot Note, settled chan struct{}) {
	err := c.store.Save(context.Background(), snapshot)
	if err != nil {
		c.logger.Warn("autosave failed", slog.String("note_id", id), slog.Any("error", err))
	} else {
		c.logger.Debug("autosaved", slog.String("note_id", id))
	}

	c.mu.Lock()
	stillSaving := false
	rec, ok := c.pending[id]
	ok = ok && rec.settled == settled
	if ok {
		rec.inFlight = false
		switch {
		case rec.queued:
			rec.queued = false
			c.startLocked(id, rec)
			stillSaving = true
		case rec.timer != nil:
			stillSaving = true
		default:
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	if err != nil && c.onError != nil {
		c.onError(id, &PersistenceError{NoteID: id, Err: err})
	}
	if ok && !stillSaving {
		c.status(id, false)
	}

	// Settle only after callbacks ran so Flush and Delete observe them.
	c.mu.Lock()
	close(settled)
	c.inFlight--
	if c.inFlight == 0 {
		close(c.idle)
		c.idle = make(chan struct{})
	}
	c.mu.Unlock()
}

// Delete cancels any pending save for the note, waits for an in-flight save
// to settle, then deletes through the store. Later edits to the id are refused.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	c.deleted[id] = struct{}{}
	rec, ok := c.pending[id]
	var settled chan struct{}
	wasSaving := false
	if ok {
		wasSaving = rec.saving()
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
		rec.gen++
		rec.queued = false
		if rec.inFlight {
			settled = rec.settled
		}
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if wasSaving {
		c.status(id, false)
	}
	if settled != nil {
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.store.Delete(ctx, id)
}

// Forget drops the delete tombstone for id, e.g. after a failed delete the
// user wants to keep editing.
func (c *Coordinator) Forget(id string) {
	c.mu.Lock()
	delete(c.deleted, id)
	c.mu.Unlock()
}

// Saving reports whether the note has an unsaved edit or a save in flight.
func (c *Coordinator) Saving(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.pending[id]
	return ok && rec.saving()
}

// Snapshot returns the latest buffered snapshot while the note has a record.
func (c *Coordinator) Snapshot(id string) (Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.pending[id]
	if !ok {
		return Note{}, false
	}
	return rec.latest, true
}

// Pending returns the number of notes with an outstanding edit or save.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush saves every pending edit now and waits until no save is in flight.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	for id, rec := range c.pending {
		if rec.timer == nil {
			continue
		}
		rec.timer.Stop()
		rec.timer = nil
		rec.gen++
		if rec.inFlight {
			rec.queued = true
			continue
		}
		c.startLocked(id, rec)
	}
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.inFlight == 0 {
			c.mu.Unlock()
			return nil
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops all timers. Unsaved edits are dropped; call Flush first to keep
// them. Saves already in flight are left to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for id, rec := range c.pending {
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
			rec.gen++
		}
		rec.queued = false
		if !rec.inFlight {
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()
}

func (c *Coordinator) status(id string, saving bool) {
	if c.onStatus != nil {
		c.onStatus(id, saving)
	}
}
