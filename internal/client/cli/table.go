package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/notely/notely/internal/client/api"
)

const previewWidth = 24

// renderNotes writes notes as a table, timestamps shown in loc.
func renderNotes(w io.Writer, notes []api.Note, loc *time.Location) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes yet. Create one with `notes new`.")
		return err
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleDefault)
	t.AppendHeader(table.Row{"ID", "Title", "Preview", "Updated"})
	for _, n := range notes {
		t.AppendRow(table.Row{n.ID, n.Title, preview(n.Content), n.UpdatedAt.In(loc).Format("2006-01-02 15:04")})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// preview collapses whitespace and cuts long content.
func preview(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	r := []rune(s)
	if len(r) <= previewWidth {
		return s
	}
	return string(r[:previewWidth-3]) + "..."
}
