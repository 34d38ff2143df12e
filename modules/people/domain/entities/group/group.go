// Package group models the hierarchical category tree people are organized
// into (students, graduation classes, staff, ...). The tree is stored with
// nested-set bounds so descendant checks are a pair of comparisons.
package group

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("group not found")

type Group struct {
	ID       uuid.UUID
	Handle   string
	Name     string
	ParentID *uuid.UUID
	Left     int
	Right    int

	Phantom bool
}

func New(handle, name string) *Group {
	return &Group{
		ID:      uuid.New(),
		Handle:  handle,
		Name:    name,
		Phantom: true,
	}
}

// NewChild creates an in-memory subgroup of parent. Nested-set bounds are
// assigned by the repository on save.
func NewChild(parent *Group, handle, name string) *Group {
	g := New(handle, name)
	parentID := parent.ID
	g.ParentID = &parentID
	return g
}

// Contains reports whether other sits at or below g in the tree. A phantom
// group has no bounds yet and contains nothing.
func (g *Group) Contains(other *Group) bool {
	if g.Phantom || other == nil {
		return false
	}
	return other.Left >= g.Left && other.Right <= g.Right
}

// HandleFromName produces a tree-safe handle from a display name.
func HandleFromName(name string) string {
	handle := strings.ToLower(strings.TrimSpace(name))
	handle = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, handle)
	return strings.Trim(handle, "_")
}

// GraduationClassHandle names the on-demand "Class of YYYY" subgroups.
func GraduationClassHandle(year int) string {
	return fmt.Sprintf("class_of_%d", year)
}

func (g *Group) RecordKind() string { return "group" }

func (g *Group) RecordID() uuid.UUID { return g.ID }

func (g *Group) IsPhantom() bool { return g.Phantom }

func (g *Group) RecordTitle() string { return g.Name }

func (g *Group) AuditFields() map[string]any {
	fields := map[string]any{
		"Handle": g.Handle,
		"Name":   g.Name,
	}
	if g.ParentID != nil {
		fields["ParentID"] = g.ParentID.String()
	}
	return fields
}

type Repository interface {
	GetByHandle(ctx context.Context, handle string) (*Group, error)
	GetByParentAndName(ctx context.Context, parentID uuid.UUID, name string) (*Group, error)
	// ListForUser returns the groups a user is directly a member of.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Group, error)
	Save(ctx context.Context, g *Group) error
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
}
