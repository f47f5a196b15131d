package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/notely/notely/internal/client/api"
)

func newListCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your notes, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			notes, err := a.workspace.Load(cmd.Context())
			if err != nil {
				return err
			}
			return renderNotes(a.out, notes, time.Local)
		},
	}
}

func newNewCmd(app func() *App) *cobra.Command {
	var title, content string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a note",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			n, err := a.workspace.Create(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("title") || cmd.Flags().Changed("content") {
				if title == "" {
					title = n.Title
				}
				if content == "" {
					content = n.Content
				}
				if err := a.workspace.Edit(n.ID, title, content); err != nil {
					return err
				}
				if err := a.workspace.Flush(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, n.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "note title")
	cmd.Flags().StringVar(&content, "content", "", "note content")
	return cmd
}

func newRmCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			var errs []error
			for _, id := range args {
				if err := a.workspace.Delete(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(a.out, "Deleted %s\n", id)
			}
			return errors.Join(errs...)
		},
	}
}

func newSummarizeCmd(app func() *App) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "summarize [id]",
		Short: "Summarize a note in a few bullet points",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if len(args) == 1 {
				n, err := a.findNote(cmd, args[0])
				if err != nil {
					return err
				}
				text = n.Content
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to summarize: pass a note id or --text")
			}
			summary, err := a.workspace.Summarize(ctx, text)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "text to summarize instead of a note")
	return cmd
}

func (a *App) findNote(cmd *cobra.Command, id string) (api.Note, error) {
	notes, err := a.workspace.Load(cmd.Context())
	if err != nil {
		return api.Note{}, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, nil
		}
	}
	return api.Note{}, fmt.Errorf("note %s not found", id)
}

// parseNoteFile reads a note file: the first line is the title, the rest is
// the content.
func parseNoteFile(raw []byte) (title, content string) {
	title, content, _ = strings.Cut(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	return strings.TrimSpace(title), strings.TrimPrefix(content, "\n")
}

func readNoteFile(path string) (title, content string, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	title, content = parseNoteFile(raw)
	return title, content, nil
}
