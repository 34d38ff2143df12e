package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/location"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/schedule"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgScheduleRepository struct{}

func NewScheduleRepository() schedule.Repository {
	return &PgScheduleRepository{}
}

func (r *PgScheduleRepository) GetByTitle(ctx context.Context, title string) (*schedule.Schedule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var s schedule.Schedule
	err = tx.QueryRow(ctx, `SELECT id, title FROM schedules WHERE lower(title) = lower($1)`, title).
		Scan(&s.ID, &s.Title)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, schedule.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning schedule")
	}
	return &s, nil
}

func (r *PgScheduleRepository) Save(ctx context.Context, s *schedule.Schedule) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schedules (id, title)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`, s.ID, s.Title); err != nil {
		return errors.Wrap(err, "saving schedule")
	}
	return nil
}

type PgLocationRepository struct{}

func NewLocationRepository() location.Repository {
	return &PgLocationRepository{}
}

func (r *PgLocationRepository) GetByHandle(ctx context.Context, handle string) (*location.Location, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var l location.Location
	err = tx.QueryRow(ctx, `SELECT id, handle, title FROM locations WHERE handle = $1`, handle).
		Scan(&l.ID, &l.Handle, &l.Title)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, location.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning location")
	}
	return &l, nil
}

func (r *PgLocationRepository) Save(ctx context.Context, l *location.Location) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO locations (id, handle, title)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET handle = EXCLUDED.handle, title = EXCLUDED.title
	`, l.ID, l.Handle, l.Title); err != nil {
		return errors.Wrap(err, "saving location")
	}
	return nil
}
