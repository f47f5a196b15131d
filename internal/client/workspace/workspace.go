// Package workspace is the client's dashboard controller. It owns the local
// session, the cached note list and the autosave coordinator, and makes sure
// results that arrive after a logout or re-login are dropped.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/notely/notely/internal/client/api"
	"github.com/notely/notely/internal/client/autosave"
	"github.com/notely/notely/internal/client/state"
	"github.com/notely/notely/internal/logging"
)

var (
	// ErrNoSession means no token is stored locally.
	ErrNoSession = errors.New("not signed in")
	// ErrStaleSession is returned for a call whose session ended while it ran.
	ErrStaleSession = errors.New("session changed while the request was running")
)

// redirect parameters the dashboard URL may carry after a federated login.
var handoffParams = []string{"code", "token", "name", "email"}

// Backend is the subset of the API client the workspace uses.
type Backend interface {
	ExchangeCode(ctx context.Context, code string) (api.Session, error)
	ListNotes(ctx context.Context, token string) ([]api.Note, error)
	CreateNote(ctx context.Context, token, title, content string) (api.Note, error)
	UpdateNote(ctx context.Context, token string, n api.Note) (api.Note, error)
	DeleteNote(ctx context.Context, token, id string) error
	Summarize(ctx context.Context, token, text string) (string, error)
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAutosave passes options to every coordinator the workspace creates.
func WithAutosave(opts ...autosave.Option) Option {
	return func(w *Workspace) {
		w.autosaveOpts = append(w.autosaveOpts, opts...)
	}
}

// Workspace is safe for concurrent use.
type Workspace struct {
	backend      Backend
	state        state.Store
	autosaveOpts []autosave.Option
	logger       *slog.Logger

	mu          sync.Mutex
	gen         uint64
	token       string
	user        api.User
	adoptedCode string
	notes       []api.Note
	coord       *autosave.Coordinator
}

// New builds a workspace. Call Restore to pick up a stored session.
func New(backend Backend, st state.Store, opts ...Option) *Workspace {
	w := &Workspace{
		backend: backend,
		state:   st,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.coord = w.newCoordinatorLocked()
	return w
}

// Restore loads the session persisted by an earlier run.
func (w *Workspace) Restore(ctx context.Context) error {
	token, err := w.state.Get(ctx, state.KeyToken)
	if errors.Is(err, state.ErrNotFound) || (err == nil && token == "") {
		return ErrNoSession
	}
	if err != nil {
		return err
	}
	name, _ := w.state.Get(ctx, state.KeyName)
	email, _ := w.state.Get(ctx, state.KeyEmail)

	w.mu.Lock()
	old := w.startSessionLocked(token, api.User{Name: name, Email: email})
	w.mu.Unlock()
	old.Close()
	return nil
}

// Login persists a freshly issued session and makes it current.
func (w *Workspace) Login(ctx context.Context, s api.Session) error {
	if s.Token == "" {
		return ErrNoSession
	}
	if err := w.state.SetMany(ctx, map[string]string{
		state.KeyToken: s.Token,
		state.KeyName:  s.User.Name,
		state.KeyEmail: s.User.Email,
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	w.mu.Lock()
	old := w.startSessionLocked(s.Token, s.User)
	w.mu.Unlock()
	old.Close()
	return nil
}

// Logout clears every locally stored value and ends the session. Unsaved
// edits are dropped and calls still running under the old session resolve
// to ErrStaleSession.
func (w *Workspace) Logout(ctx context.Context) error {
	w.mu.Lock()
	old := w.startSessionLocked("", api.User{})
	w.mu.Unlock()
	old.Close()

	if err := w.state.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	w.logger.Info("logged out")
	return nil
}

// User returns the signed-in user, if any.
func (w *Workspace) User() (api.User, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user, w.token != ""
}

// AdoptRedirect consumes the session parameters a federated login leaves on
// the dashboard URL and returns the URL without them. A URL without those
// parameters, or one whose code was already adopted, is left as is.
func (w *Workspace) AdoptRedirect(ctx context.Context, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	code, token := q.Get("code"), q.Get("token")

	switch {
	case code != "":
		w.mu.Lock()
		seen := code == w.adoptedCode && w.token != ""
		w.mu.Unlock()
		if !seen {
			s, err := w.backend.ExchangeCode(ctx, code)
			if err != nil {
				return "", fmt.Errorf("redeem login code: %w", err)
			}
			if err := w.Login(ctx, s); err != nil {
				return "", err
			}
			w.mu.Lock()
			w.adoptedCode = code
			w.mu.Unlock()
		}
	case token != "":
		w.mu.Lock()
		seen := token == w.token
		w.mu.Unlock()
		if !seen {
			s := api.Session{Token: token, User: api.User{Name: q.Get("name"), Email: q.Get("email")}}
			if err := w.Login(ctx, s); err != nil {
				return "", err
			}
		}
	default:
		return raw, nil
	}

	for _, p := range handoffParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Load fetches the note list. A rejected session logs the user out; other
// failures leave the session alone.
func (w *Workspace) Load(ctx context.Context) ([]api.Note, error) {
	token, gen, err := w.current()
	if err != nil {
		return nil, err
	}
	notes, err := w.backend.ListNotes(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) && w.isCurrent(gen) {
			if lerr := w.Logout(ctx); lerr != nil {
				w.logger.Warn("logout after rejected session failed", slog.Any("error", lerr))
			}
		}
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return nil, ErrStaleSession
	}
	w.notes = slices.Clone(notes)
	return slices.Clone(notes), nil
}

// Notes returns the cached list with local edits applied.
func (w *Workspace) Notes() []api.Note {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.notes)
}

// Create adds a note with the server's default title and content.
func (w *Workspace) Create(ctx context.Context) (api.Note, error) {
	token, gen, err := w.current()
	if err != nil {
		return api.Note{}, err
	}
	n, err := w.backend.CreateNote(ctx, token, "", "")
	if err != nil {
		return api.Note{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return api.Note{}, ErrStaleSession
	}
	w.notes = append([]api.Note{n}, w.notes...)
	return n, nil
}

// Edit applies a local change and schedules an autosave for it.
func (w *Workspace) Edit(id, title, content string) error {
	w.mu.Lock()
	if w.token == "" {
		w.mu.Unlock()
		return ErrNoSession
	}
	for i := range w.notes {
		if w.notes[i].ID == id {
			w.notes[i].Title = title
			w.notes[i].Content = content
			break
		}
	}
	coord := w.coord
	w.mu.Unlock()

	return coord.Edit(autosave.Note{ID: id, Title: title, Content: content})
}

// Delete removes a note. No save for it is issued afterwards.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	if w.token == "" {
		w.mu.Unlock()
		return ErrNoSession
	}
	coord := w.coord
	w.mu.Unlock()

	if err := coord.Delete(ctx, id); err != nil {
		coord.Forget(id)
		return err
	}

	w.mu.Lock()
	w.notes = slices.DeleteFunc(w.notes, func(n api.Note) bool { return n.ID == id })
	w.mu.Unlock()
	return nil
}

// Saving reports whether a note has unsaved or in-flight changes.
func (w *Workspace) Saving(id string) bool {
	w.mu.Lock()
	coord := w.coord
	w.mu.Unlock()
	return coord.Saving(id)
}

// Summarize asks the server to summarize text.
func (w *Workspace) Summarize(ctx context.Context, text string) (string, error) {
	token, gen, err := w.current()
	if err != nil {
		return "", err
	}
	summary, err := w.backend.Summarize(ctx, token, text)
	if err != nil {
		return "", err
	}
	if !w.isCurrent(gen) {
		return "", ErrStaleSession
	}
	return summary, nil
}

// Flush writes pending edits now and waits for them.
func (w *Workspace) Flush(ctx context.Context) error {
	w.mu.Lock()
	coord := w.coord
	w.mu.Unlock()
	return coord.Flush(ctx)
}

// Close flushes pending edits and stops the coordinator.
func (w *Workspace) Close(ctx context.Context) error {
	err := w.Flush(ctx)
	w.mu.Lock()
	coord := w.coord
	w.mu.Unlock()
	coord.Close()
	return err
}

func (w *Workspace) current() (string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.token == "" {
		return "", 0, ErrNoSession
	}
	return w.token, w.gen, nil
}

func (w *Workspace) isCurrent(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == gen
}

// startSessionLocked switches to a new session generation and returns the
// previous coordinator for the caller to close outside the lock.
func (w *Workspace) startSessionLocked(token string, user api.User) *autosave.Coordinator {
	w.gen++
	w.token = token
	w.user = user
	w.notes = nil
	old := w.coord
	w.coord = w.newCoordinatorLocked()
	return old
}

func (w *Workspace) newCoordinatorLocked() *autosave.Coordinator {
	store := &noteStore{w: w, gen: w.gen}
	opts := append([]autosave.Option{autosave.WithLogger(w.logger)}, w.autosaveOpts...)
	return autosave.New(store, opts...)
}

// noteStore writes autosaves for one session generation.
type noteStore struct {
	w   *Workspace
	gen uint64
}

func (s *noteStore) token() (string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.gen != s.gen {
		return "", ErrStaleSession
	}
	if s.w.token == "" {
		return "", ErrNoSession
	}
	return s.w.token, nil
}

func (s *noteStore) Save(ctx context.Context, n autosave.Note) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	_, err = s.w.backend.UpdateNote(ctx, token, api.Note{ID: n.ID, Title: n.Title, Content: n.Content})
	return err
}

func (s *noteStore) Delete(ctx context.Context, id string) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	return s.w.backend.DeleteNote(ctx, token, id)
}
