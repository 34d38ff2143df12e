package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("user not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByStudentNumber(ctx context.Context, studentNumber string) (*User, error)
	// GetByFullName matches first and last name case-insensitively and
	// returns ErrNotFound unless exactly one user matches.
	GetByFullName(ctx context.Context, firstName, lastName string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Save(ctx context.Context, u *User) error
}
