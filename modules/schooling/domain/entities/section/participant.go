package section

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrParticipantNotFound = errors.New("participant not found")

type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
)

// Participant ties a person to a section with a role. One row per
// (section, person) pair; re-imports update the role in place.
type Participant struct {
	ID        uuid.UUID
	SectionID uuid.UUID
	PersonID  uuid.UUID
	Role      Role

	Phantom bool
}

func NewParticipant(sectionID, personID uuid.UUID, role Role) *Participant {
	return &Participant{
		ID:        uuid.New(),
		SectionID: sectionID,
		PersonID:  personID,
		Role:      role,
		Phantom:   true,
	}
}

func (p *Participant) RecordKind() string { return "participant" }

func (p *Participant) RecordID() uuid.UUID { return p.ID }

func (p *Participant) IsPhantom() bool { return p.Phantom }

func (p *Participant) RecordTitle() string { return string(p.Role) }

func (p *Participant) AuditFields() map[string]any {
	return map[string]any{
		"SectionID": p.SectionID.String(),
		"PersonID":  p.PersonID.String(),
		"Role":      string(p.Role),
	}
}

type ParticipantRepository interface {
	GetBySectionAndPerson(ctx context.Context, sectionID, personID uuid.UUID) (*Participant, error)
	Save(ctx context.Context, p *Participant) error
	// ListStudentIDs returns the person ids currently enrolled in the
	// section with role Student, in a stable order.
	ListStudentIDs(ctx context.Context, sectionID uuid.UUID) ([]uuid.UUID, error)
	RemoveStudents(ctx context.Context, sectionID uuid.UUID, personIDs []uuid.UUID) error
}
