package section

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campusworks/campus-sdk/pkg/types"
)

var ErrNotFound = errors.New("section not found")

type Section struct {
	ID               uuid.UUID
	Code             string
	Title            string
	CourseID         uuid.UUID
	TermID           *uuid.UUID
	ScheduleID       *uuid.UUID
	LocationID       *uuid.UUID
	StudentsCapacity int
	Notes            string

	Phantom bool
}

func New() *Section {
	return &Section{
		ID:      uuid.New(),
		Phantom: true,
	}
}

func (s *Section) Validate() []types.InvalidField {
	var invalid []types.InvalidField
	if s.CourseID == uuid.Nil {
		invalid = append(invalid, types.InvalidField{Field: "Course", Problem: "required"})
	}
	if s.Title == "" {
		invalid = append(invalid, types.InvalidField{Field: "Title", Problem: "required"})
	}
	return invalid
}

func (s *Section) RecordKind() string { return "section" }

func (s *Section) RecordID() uuid.UUID { return s.ID }

func (s *Section) IsPhantom() bool { return s.Phantom }

func (s *Section) RecordTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Code
}

func (s *Section) AuditFields() map[string]any {
	fields := map[string]any{
		"Code":             s.Code,
		"Title":            s.Title,
		"CourseID":         s.CourseID.String(),
		"StudentsCapacity": s.StudentsCapacity,
		"Notes":            s.Notes,
	}
	if s.TermID != nil {
		fields["TermID"] = s.TermID.String()
	}
	if s.ScheduleID != nil {
		fields["ScheduleID"] = s.ScheduleID.String()
	}
	if s.LocationID != nil {
		fields["LocationID"] = s.LocationID.String()
	}
	return fields
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Section, error)
	GetByCode(ctx context.Context, code string) (*Section, error)
	Save(ctx context.Context, s *Section) error
}
