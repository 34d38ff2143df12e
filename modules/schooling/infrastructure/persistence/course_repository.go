package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/course"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgCourseRepository struct{}

func NewCourseRepository() course.Repository {
	return &PgCourseRepository{}
}

func (r *PgCourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*course.Course, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PgCourseRepository) GetByCode(ctx context.Context, code string) (*course.Course, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *PgCourseRepository) GetByTitle(ctx context.Context, title string) (*course.Course, error) {
	return r.getOne(ctx, `WHERE lower(title) = lower($1)`, title)
}

func (r *PgCourseRepository) Save(ctx context.Context, c *course.Course) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO courses (id, code, title, department_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			title = EXCLUDED.title,
			department_id = EXCLUDED.department_id
	`, c.ID, c.Code, c.Title, c.DepartmentID); err != nil {
		return errors.Wrap(err, "saving course")
	}
	return nil
}

func (r *PgCourseRepository) getOne(ctx context.Context, where string, arg any) (*course.Course, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var c course.Course
	err = tx.QueryRow(ctx, `SELECT id, code, title, department_id FROM courses `+where, arg).
		Scan(&c.ID, &c.Code, &c.Title, &c.DepartmentID)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, course.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning course")
	}
	return &c, nil
}

type PgDepartmentRepository struct{}

func NewDepartmentRepository() course.DepartmentRepository {
	return &PgDepartmentRepository{}
}

func (r *PgDepartmentRepository) GetByTitle(ctx context.Context, title string) (*course.Department, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var d course.Department
	err = tx.QueryRow(ctx, `SELECT id, title FROM departments WHERE lower(title) = lower($1)`, title).
		Scan(&d.ID, &d.Title)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, course.ErrDepartmentNotFound
		}
		return nil, errors.Wrap(err, "scanning department")
	}
	return &d, nil
}

func (r *PgDepartmentRepository) Save(ctx context.Context, d *course.Department) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO departments (id, title)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`, d.ID, d.Title); err != nil {
		return errors.Wrap(err, "saving department")
	}
	return nil
}
