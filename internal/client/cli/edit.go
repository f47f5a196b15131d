package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newEditCmd(app func() *App) *cobra.Command {
	var (
		title, content, file string
		watch                bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a note; with --watch every save of --file is synced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			id := args[0]
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}

			if file == "" {
				if watch {
					return errors.New("--watch needs --file")
				}
				n, err := a.findNote(cmd, id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					n.Title = title
				}
				if cmd.Flags().Changed("content") {
					n.Content = content
				}
				if err := a.workspace.Edit(id, n.Title, n.Content); err != nil {
					return err
				}
				return a.workspace.Flush(ctx)
			}

			t, c, err := readNoteFile(file)
			if err != nil {
				return err
			}
			if err := a.workspace.Edit(id, t, c); err != nil {
				return err
			}
			if !watch {
				return a.workspace.Flush(ctx)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(a.errOut, "Watching %s, press Ctrl-C to stop\n", file)
			err = watchFile(ctx, file, a.logger, func(raw []byte) error {
				t, c := parseNoteFile(raw)
				return a.workspace.Edit(id, t, c)
			})
			return errors.Join(err, a.workspace.Flush(context.WithoutCancel(ctx)))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the note from a file (first line is the title)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing --file until interrupted")
	return cmd
}

// watchFile calls onChange with the file's bytes each time it is written or
// replaced, until ctx is done. The parent directory is watched so editors
// that save through a rename are followed.
func watchFile(ctx context.Context, path string, logger *slog.Logger, onChange func([]byte) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			raw, err := os.ReadFile(target)
			if err != nil {
				logger.Debug("read watched file", slog.Any("error", err))
				continue
			}
			if string(raw) == last {
				continue
			}
			last = string(raw)
			if err := onChange(raw); err != nil {
				return err
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", slog.Any("error", err))
		}
	}
}
