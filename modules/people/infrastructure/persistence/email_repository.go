package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/people/domain/entities/emailaddress"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgEmailRepository struct{}

func NewEmailRepository() emailaddress.Repository {
	return &PgEmailRepository{}
}

func (r *PgEmailRepository) GetByAddress(ctx context.Context, address string) (*emailaddress.EmailAddress, error) {
	return r.getOne(ctx, `WHERE lower(address) = lower($1)`, address)
}

func (r *PgEmailRepository) GetPrimaryForUser(ctx context.Context, userID uuid.UUID) (*emailaddress.EmailAddress, error) {
	return r.getOne(ctx, `WHERE user_id = $1 AND is_primary`, userID)
}

// Save upserts the contact point. Marking one address primary demotes
// the user's previous primary in the same statement batch.
func (r *PgEmailRepository) Save(ctx context.Context, e *emailaddress.EmailAddress) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if e.Primary {
		if _, err := tx.Exec(ctx, `
			UPDATE email_contact_points SET is_primary = false
			WHERE user_id = $1 AND id <> $2
		`, e.UserID, e.ID); err != nil {
			return errors.Wrap(err, "demoting previous primary email")
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO email_contact_points (id, user_id, address, label, is_primary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			address = EXCLUDED.address,
			label = EXCLUDED.label,
			is_primary = EXCLUDED.is_primary
	`, e.ID, e.UserID, e.Address, e.Label, e.Primary); err != nil {
		return errors.Wrap(err, "saving email contact point")
	}
	return nil
}

func (r *PgEmailRepository) getOne(ctx context.Context, where string, arg any) (*emailaddress.EmailAddress, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var e emailaddress.EmailAddress
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, address, label, is_primary
		FROM email_contact_points `+where, arg,
	).Scan(&e.ID, &e.UserID, &e.Address, &e.Label, &e.Primary)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, emailaddress.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning email contact point")
	}
	return &e, nil
}
