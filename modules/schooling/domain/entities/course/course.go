package course

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("course not found")
	ErrDepartmentNotFound = errors.New("department not found")
)

type Course struct {
	ID           uuid.UUID
	Code         string
	Title        string
	DepartmentID *uuid.UUID

	Phantom bool
}

func New(code, title string) *Course {
	return &Course{
		ID:      uuid.New(),
		Code:    code,
		Title:   title,
		Phantom: true,
	}
}

func (c *Course) RecordKind() string { return "course" }

func (c *Course) RecordID() uuid.UUID { return c.ID }

func (c *Course) IsPhantom() bool { return c.Phantom }

func (c *Course) RecordTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Code
}

func (c *Course) AuditFields() map[string]any {
	fields := map[string]any{
		"Code":  c.Code,
		"Title": c.Title,
	}
	if c.DepartmentID != nil {
		fields["DepartmentID"] = c.DepartmentID.String()
	}
	return fields
}

type Department struct {
	ID    uuid.UUID
	Title string

	Phantom bool
}

func NewDepartment(title string) *Department {
	return &Department{
		ID:      uuid.New(),
		Title:   title,
		Phantom: true,
	}
}

func (d *Department) RecordKind() string { return "department" }

func (d *Department) RecordID() uuid.UUID { return d.ID }

func (d *Department) IsPhantom() bool { return d.Phantom }

func (d *Department) RecordTitle() string { return d.Title }

func (d *Department) AuditFields() map[string]any {
	return map[string]any{"Title": d.Title}
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Course, error)
	GetByCode(ctx context.Context, code string) (*Course, error)
	GetByTitle(ctx context.Context, title string) (*Course, error)
	Save(ctx context.Context, c *Course) error
}

type DepartmentRepository interface {
	GetByTitle(ctx context.Context, title string) (*Department, error)
	Save(ctx context.Context, d *Department) error
}
