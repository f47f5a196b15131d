package notes

import (
	"errors"
	"time"
)

const (
	// DefaultTitle is used when a note is created without a title.
	DefaultTitle = "New Note"
	// DefaultContent is used when a note is created without content.
	DefaultContent = "Write something here..."

	maxTitleLength = 200
)

var (
	// ErrNotFound is returned for unknown notes and for notes owned by someone else.
	ErrNotFound = errors.New("note not found")
	// ErrInvalid marks input rejected before storage.
	ErrInvalid = errors.New("invalid note")
)

// Note is a titled piece of text owned by one identity.
type Note struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
