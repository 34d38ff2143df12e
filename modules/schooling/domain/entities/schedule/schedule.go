package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("schedule not found")

type Schedule struct {
	ID    uuid.UUID
	Title string

	Phantom bool
}

func New(title string) *Schedule {
	return &Schedule{
		ID:      uuid.New(),
		Title:   title,
		Phantom: true,
	}
}

func (s *Schedule) RecordKind() string { return "schedule" }

func (s *Schedule) RecordID() uuid.UUID { return s.ID }

func (s *Schedule) IsPhantom() bool { return s.Phantom }

func (s *Schedule) RecordTitle() string { return s.Title }

func (s *Schedule) AuditFields() map[string]any {
	return map[string]any{"Title": s.Title}
}

type Repository interface {
	GetByTitle(ctx context.Context, title string) (*Schedule, error)
	Save(ctx context.Context, s *Schedule) error
}
