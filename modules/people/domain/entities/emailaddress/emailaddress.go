package emailaddress

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("email address not found")

// EmailAddress is a contact point tied to a user account.
type EmailAddress struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Address string
	Label   string
	Primary bool

	Phantom bool
}

func New(address, label string) *EmailAddress {
	return &EmailAddress{
		ID:      uuid.New(),
		Address: strings.TrimSpace(address),
		Label:   label,
		Phantom: true,
	}
}

// LocalPart returns everything before the @.
func (e *EmailAddress) LocalPart() string {
	local, _, _ := strings.Cut(e.Address, "@")
	return local
}

// Domain returns everything after the @.
func (e *EmailAddress) Domain() string {
	_, domain, _ := strings.Cut(e.Address, "@")
	return domain
}

func Split(address string) (local, domain string) {
	local, domain, _ = strings.Cut(strings.TrimSpace(address), "@")
	return local, domain
}

// Equal compares two addresses case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (e *EmailAddress) RecordKind() string { return "email" }

func (e *EmailAddress) RecordID() uuid.UUID { return e.ID }

func (e *EmailAddress) IsPhantom() bool { return e.Phantom }

func (e *EmailAddress) RecordTitle() string { return e.Address }

func (e *EmailAddress) AuditFields() map[string]any {
	return map[string]any{
		"Address": e.Address,
		"Label":   e.Label,
		"Primary": e.Primary,
	}
}

type Repository interface {
	// GetByAddress matches case-insensitively.
	GetByAddress(ctx context.Context, address string) (*EmailAddress, error)
	GetPrimaryForUser(ctx context.Context, userID uuid.UUID) (*EmailAddress, error)
	Save(ctx context.Context, e *EmailAddress) error
}
