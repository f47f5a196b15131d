package workspace

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notely/notely/internal/client/api"
	"github.com/notely/notely/internal/client/autosave"
	"github.com/notely/notely/internal/client/state"
)

type fakeBackend struct {
	mu        sync.Mutex
	exchanges int
	updates   []api.Note
	deletes   []string
	tokens    []string
	listErr   error
	listGate  chan struct{}
	listIn    chan struct{}
	notes     []api.Note
}

func (f *fakeBackend) ExchangeCode(_ context.Context, code string) (api.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if code != "good" || f.exchanges > 1 {
		return api.Session{}, &api.Error{Status: 400, Message: "invalid or expired code"}
	}
	return api.Session{Token: "tok-google", User: api.User{Name: "Ann", Email: "ann@x.com"}}, nil
}

func (f *fakeBackend) ListNotes(_ context.Context, token string) ([]api.Note, error) {
	if f.listGate != nil {
		close(f.listIn)
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.notes, nil
}

func (f *fakeBackend) CreateNote(_ context.Context, token, title, content string) (api.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return api.Note{ID: "new", Title: "New Note", Content: "Write something here..."}, nil
}

func (f *fakeBackend) UpdateNote(_ context.Context, token string, n api.Note) (api.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.updates = append(f.updates, n)
	return n, nil
}

func (f *fakeBackend) DeleteNote(_ context.Context, token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeBackend) Summarize(context.Context, string, string) (string, error) {
	return "- short", nil
}

func (f *fakeBackend) snapshot() (updates []api.Note, deletes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Note(nil), f.updates...), append([]string(nil), f.deletes...)
}

func signedIn(t *testing.T, backend *fakeBackend, opts ...Option) (*Workspace, *state.MemoryStore) {
	t.Helper()
	st := state.NewMemoryStore()
	w := New(backend, st, opts...)
	require.NoError(t, w.Login(context.Background(), api.Session{Token: "tok", User: api.User{Name: "Ann", Email: "ann@x.com"}}))
	return w, st
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	st := state.NewMemoryStore()

	w := New(&fakeBackend{}, st)
	assert.ErrorIs(t, w.Restore(ctx), ErrNoSession)
	_, err := w.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, st.SetMany(ctx, map[string]string{state.KeyToken: "tok", state.KeyName: "Ann", state.KeyEmail: "ann@x.com"}))
	require.NoError(t, w.Restore(ctx))
	user, ok := w.User()
	assert.True(t, ok)
	assert.Equal(t, api.User{Name: "Ann", Email: "ann@x.com"}, user)
}

func TestAdoptRedirectExchangeCode(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	st := state.NewMemoryStore()
	w := New(backend, st)

	raw := "http://app.local/dashboard?code=good&tab=all"
	clean, err := w.AdoptRedirect(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "http://app.local/dashboard?tab=all", clean)

	token, err := st.Get(ctx, state.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-google", token)

	again, err := w.AdoptRedirect(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, clean, again)
	assert.Equal(t, 1, backend.exchanges)

	same, err := w.AdoptRedirect(ctx, clean)
	require.NoError(t, err)
	assert.Equal(t, clean, same)
}

func TestAdoptRedirectQueryParams(t *testing.T) {
	ctx := context.Background()
	st := state.NewMemoryStore()
	w := New(&fakeBackend{}, st)

	clean, err := w.AdoptRedirect(ctx, "http://app.local/dashboard?token=t1&name=Ann&email=ann%40x.com")
	require.NoError(t, err)
	assert.Equal(t, "http://app.local/dashboard", clean)

	email, err := st.Get(ctx, state.KeyEmail)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", email)
	user, ok := w.User()
	require.True(t, ok)
	assert.Equal(t, "Ann", user.Name)
}

func TestAdoptRedirectRejectedCode(t *testing.T) {
	w := New(&fakeBackend{}, state.NewMemoryStore())
	_, err := w.AdoptRedirect(context.Background(), "http://app.local/dashboard?code=forged")
	assert.ErrorIs(t, err, api.ErrRequestFailed)
	_, ok := w.User()
	assert.False(t, ok)
}

func TestLoadUnauthorizedLogsOut(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{listErr: &api.Error{Status: 401, Message: "invalid or expired token"}}
	w, st := signedIn(t, backend)

	_, err := w.Load(ctx)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	_, ok := w.User()
	assert.False(t, ok)
	_, err = st.Get(ctx, state.KeyToken)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestLoadTransientFailureKeepsSession(t *testing.T) {
	backend := &fakeBackend{listErr: &api.Error{Status: 502}}
	w, _ := signedIn(t, backend)

	_, err := w.Load(context.Background())
	assert.ErrorIs(t, err, api.ErrRequestFailed)
	_, ok := w.User()
	assert.True(t, ok)
}

func TestLoadAfterLogoutIsStale(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{listGate: make(chan struct{}), listIn: make(chan struct{}), notes: []api.Note{{ID: "n1"}}}
	w, _ := signedIn(t, backend)

	done := make(chan error, 1)
	go func() {
		_, err := w.Load(ctx)
		done <- err
	}()
	<-backend.listIn
	require.NoError(t, w.Logout(ctx))
	close(backend.listGate)

	assert.ErrorIs(t, <-done, ErrStaleSession)
	assert.Empty(t, w.Notes())
}

func TestEditAutosavesLatest(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []api.Note{{ID: "n1", Title: "A"}}}
	w, _ := signedIn(t, backend, WithAutosave(autosave.WithDebounce(time.Hour)))

	_, err := w.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Edit("n1", "A1", "x"))
	require.NoError(t, w.Edit("n1", "A2", "y"))
	assert.True(t, w.Saving("n1"))
	assert.Equal(t, "A2", w.Notes()[0].Title)

	require.NoError(t, w.Flush(ctx))
	updates, _ := backend.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, api.Note{ID: "n1", Title: "A2", Content: "y"}, updates[0])
	assert.False(t, w.Saving("n1"))
}

func TestLogoutDropsPendingEdits(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	w, st := signedIn(t, backend, WithAutosave(autosave.WithDebounce(time.Hour)))

	require.NoError(t, w.Edit("n1", "A", "x"))
	require.NoError(t, w.Logout(ctx))
	require.NoError(t, w.Flush(ctx))

	updates, _ := backend.snapshot()
	assert.Empty(t, updates)
	assert.ErrorIs(t, w.Edit("n1", "A", "y"), ErrNoSession)
	_, err := st.Get(ctx, state.KeyName)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []api.Note{{ID: "old"}}}
	w, _ := signedIn(t, backend, WithAutosave(autosave.WithDebounce(time.Hour)))

	_, err := w.Load(ctx)
	require.NoError(t, err)
	n, err := w.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "New Note", n.Title)
	assert.Equal(t, []string{"new", "old"}, ids(w.Notes()))

	require.NoError(t, w.Edit("new", "t", "c"))
	require.NoError(t, w.Delete(ctx, "new"))
	require.NoError(t, w.Flush(ctx))

	updates, deletes := backend.snapshot()
	assert.Empty(t, updates)
	assert.Equal(t, []string{"new"}, deletes)
	assert.Equal(t, []string{"old"}, ids(w.Notes()))
}

func ids(notes []api.Note) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.ID)
	}
	return out
}
