// Package term models academic periods as a nested-set tree: a school year
// is the master term, with semesters and quarters nested inside it.
package term

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("term not found")

type Term struct {
	ID        uuid.UUID
	Handle    string
	Title     string
	ParentID  *uuid.UUID
	Left      int
	Right     int
	StartDate time.Time
	EndDate   time.Time
}

// WithinMaster reports whether t falls inside the master term's interval.
func (t *Term) WithinMaster(master *Term) bool {
	return t.Left >= master.Left && t.Left <= master.Right
}

func (t *Term) RecordKind() string { return "term" }

func (t *Term) RecordID() uuid.UUID { return t.ID }

func (t *Term) IsPhantom() bool { return false }

func (t *Term) RecordTitle() string { return t.Title }

func (t *Term) AuditFields() map[string]any {
	return map[string]any{
		"Handle": t.Handle,
		"Title":  t.Title,
	}
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Term, error)
	GetByHandle(ctx context.Context, handle string) (*Term, error)
	// ClosestGraduationYear returns the graduation year the current (or
	// next upcoming) master term leads to, used to derive graduation
	// years from grade levels.
	ClosestGraduationYear(ctx context.Context) (int, error)
}
