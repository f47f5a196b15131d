// Package cli implements the notes command line client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/notely/notely/internal/client/api"
	"github.com/notely/notely/internal/client/autosave"
	"github.com/notely/notely/internal/client/config"
	"github.com/notely/notely/internal/client/state"
	"github.com/notely/notely/internal/client/workspace"
	"github.com/notely/notely/internal/logging"
)

// Env is what the commands read from and write to. Zero fields fall back to
// the process's stdio and the configured state file.
type Env struct {
	In    io.Reader
	Out   io.Writer
	Err   io.Writer
	State state.Store
}

// openState is a test seam for state.Open.
var openState = state.Open

// App holds the objects one command invocation works with.
type App struct {
	cfg       config.Config
	client    *api.Client
	workspace *workspace.Workspace
	in        *bufio.Reader
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger
	closeFn   func() error

	mu     sync.Mutex
	failed map[string]bool
}

func newApp(cfg config.Config, env Env) (*App, error) {
	a := &App{
		cfg:    cfg,
		in:     bufio.NewReader(orStdin(env.In)),
		out:    orWriter(env.Out, os.Stdout),
		errOut: orWriter(env.Err, os.Stderr),
	}
	a.logger = logging.NewText(a.errOut, cfg.LogLevel)
	a.client = api.New(cfg.ServerURL, api.WithTimeout(cfg.RequestTimeout), api.WithLogger(a.logger))

	st := env.State
	if st == nil {
		sqlite, err := openState(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		st = sqlite
		a.closeFn = sqlite.Close
	}

	a.workspace = workspace.New(a.client, st,
		workspace.WithLogger(a.logger),
		workspace.WithAutosave(
			autosave.WithDebounce(cfg.Debounce),
			autosave.OnStatus(a.printStatus),
			autosave.OnError(a.printSaveError),
		),
	)
	return a, nil
}

// close flushes pending edits and releases the state file.
func (a *App) close(ctx context.Context) error {
	err := a.workspace.Close(ctx)
	if a.closeFn != nil {
		err = errors.Join(err, a.closeFn())
	}
	return err
}

// requireSession restores the stored session or explains how to get one.
func (a *App) requireSession(ctx context.Context) error {
	if err := a.workspace.Restore(ctx); err != nil {
		if errors.Is(err, workspace.ErrNoSession) {
			return fmt.Errorf("%w: run `notes signin` first", err)
		}
		return err
	}
	return nil
}

// printStatus reports save progress. A save that just failed was already
// reported by printSaveError and does not end in "saved".
func (a *App) printStatus(id string, saving bool) {
	a.mu.Lock()
	failed := a.failed[id]
	delete(a.failed, id)
	a.mu.Unlock()

	switch {
	case saving:
		fmt.Fprintf(a.errOut, "%s: saving...\n", id)
	case !failed:
		fmt.Fprintf(a.errOut, "%s: saved\n", id)
	}
}

func (a *App) printSaveError(id string, err error) {
	a.mu.Lock()
	if a.failed == nil {
		a.failed = make(map[string]bool)
	}
	a.failed[id] = true
	a.mu.Unlock()
	fmt.Fprintf(a.errOut, "%s: not saved: %v\n", id, err)
}

func orStdin(r io.Reader) io.Reader {
	if r == nil {
		return os.Stdin
	}
	return r
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
