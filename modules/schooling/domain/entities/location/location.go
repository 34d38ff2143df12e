package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("location not found")

type Location struct {
	ID     uuid.UUID
	Handle string
	Title  string

	Phantom bool
}

func New(handle, title string) *Location {
	return &Location{
		ID:      uuid.New(),
		Handle:  handle,
		Title:   title,
		Phantom: true,
	}
}

// RoomHandle names rooms imported from section spreadsheets.
func RoomHandle(code string) string {
	return fmt.Sprintf("room-%s", code)
}

func (l *Location) RecordKind() string { return "location" }

func (l *Location) RecordID() uuid.UUID { return l.ID }

func (l *Location) IsPhantom() bool { return l.Phantom }

func (l *Location) RecordTitle() string { return l.Title }

func (l *Location) AuditFields() map[string]any {
	return map[string]any{"Handle": l.Handle, "Title": l.Title}
}

type Repository interface {
	GetByHandle(ctx context.Context, handle string) (*Location, error)
	Save(ctx context.Context, l *Location) error
}
