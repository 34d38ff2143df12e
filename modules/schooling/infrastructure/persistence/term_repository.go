package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgTermRepository struct{}

func NewTermRepository() term.Repository {
	return &PgTermRepository{}
}

func (r *PgTermRepository) GetByID(ctx context.Context, id uuid.UUID) (*term.Term, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PgTermRepository) GetByHandle(ctx context.Context, handle string) (*term.Term, error) {
	return r.getOne(ctx, `WHERE handle = $1`, handle)
}

// ClosestGraduationYear derives the graduating class from the current
// master term: the school year in progress, or the next one when
// between years. Falls back to the most recent year when the calendar
// has no future terms.
func (r *PgTermRepository) ClosestGraduationYear(ctx context.Context) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "getting transaction")
	}

	var year int
	err = tx.QueryRow(ctx, `
		SELECT EXTRACT(YEAR FROM end_date)::int
		FROM terms
		WHERE parent_id IS NULL AND end_date >= CURRENT_DATE
		ORDER BY start_date
		LIMIT 1
	`).Scan(&year)
	if err == nil {
		return year, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrap(err, "resolving closest master term")
	}

	err = tx.QueryRow(ctx, `
		SELECT EXTRACT(YEAR FROM end_date)::int
		FROM terms
		WHERE parent_id IS NULL
		ORDER BY end_date DESC
		LIMIT 1
	`).Scan(&year)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return 0, term.ErrNotFound
		}
		return 0, errors.Wrap(err, "resolving latest master term")
	}
	return year, nil
}

func (r *PgTermRepository) getOne(ctx context.Context, where string, arg any) (*term.Term, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var t term.Term
	err = tx.QueryRow(ctx, `
		SELECT id, handle, title, parent_id, lft, rgt, start_date, end_date
		FROM terms `+where, arg,
	).Scan(&t.ID, &t.Handle, &t.Title, &t.ParentID, &t.Left, &t.Right, &t.StartDate, &t.EndDate)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, term.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning term")
	}
	return &t, nil
}
