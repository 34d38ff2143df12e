// Package mapping persists the correspondence between external-system
// identifiers and internal records, namespaced by connector and key type.
// Mappings are only ever created, never updated or deleted: an orphaned
// mapping is reported by the importer, not repaired.
package mapping

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("mapping not found")

// External key namespaces used by the spreadsheet connectors.
const (
	PersonForeignKey  = "person[foreign_key]"
	SectionForeignKey = "section[foreign_key]"
	CourseForeignKey  = "course[foreign_key]"
)

// Context types a mapping may point at.
const (
	ContextUser    = "user"
	ContextSection = "section"
	ContextCourse  = "course"
)

type Mapping struct {
	ID                 uuid.UUID
	Connector          string
	ExternalKey        string
	ExternalIdentifier string
	ContextType        string
	ContextID          uuid.UUID
	Source             string
	CreatedAt          time.Time
}

func New(connector, externalKey, externalIdentifier, contextType string, contextID uuid.UUID) *Mapping {
	return &Mapping{
		ID:                 uuid.New(),
		Connector:          connector,
		ExternalKey:        externalKey,
		ExternalIdentifier: externalIdentifier,
		ContextType:        contextType,
		ContextID:          contextID,
		Source:             "creation",
	}
}

type Repository interface {
	Find(ctx context.Context, connector, externalKey, externalIdentifier string) (*Mapping, error)
	// Create inserts a new mapping. Callers must Find first; inserting a
	// duplicate (connector, key, identifier) is a data-integrity error
	// surfaced by the storage layer, not retried here.
	Create(ctx context.Context, m *Mapping) error
}
