package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgSectionRepository struct{}

func NewSectionRepository() section.Repository {
	return &PgSectionRepository{}
}

func (r *PgSectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*section.Section, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PgSectionRepository) GetByCode(ctx context.Context, code string) (*section.Section, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *PgSectionRepository) Save(ctx context.Context, s *section.Section) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}

	var code *string
	if s.Code != "" {
		code = &s.Code
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO sections (
			id, code, title, course_id, term_id, schedule_id, location_id,
			students_capacity, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			title = EXCLUDED.title,
			course_id = EXCLUDED.course_id,
			term_id = EXCLUDED.term_id,
			schedule_id = EXCLUDED.schedule_id,
			location_id = EXCLUDED.location_id,
			students_capacity = EXCLUDED.students_capacity,
			notes = EXCLUDED.notes
	`, s.ID, code, s.Title, s.CourseID, s.TermID, s.ScheduleID, s.LocationID,
		s.StudentsCapacity, s.Notes); err != nil {
		return errors.Wrap(err, "saving section")
	}
	return nil
}

func (r *PgSectionRepository) getOne(ctx context.Context, where string, arg any) (*section.Section, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var (
		s    section.Section
		code *string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, code, title, course_id, term_id, schedule_id, location_id,
			students_capacity, notes
		FROM sections `+where, arg,
	).Scan(&s.ID, &code, &s.Title, &s.CourseID, &s.TermID, &s.ScheduleID, &s.LocationID,
		&s.StudentsCapacity, &s.Notes)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, section.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning section")
	}
	if code != nil {
		s.Code = *code
	}
	return &s, nil
}

type PgParticipantRepository struct{}

func NewParticipantRepository() section.ParticipantRepository {
	return &PgParticipantRepository{}
}

func (r *PgParticipantRepository) GetBySectionAndPerson(ctx context.Context, sectionID, personID uuid.UUID) (*section.Participant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var (
		p    section.Participant
		role string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, section_id, person_id, role
		FROM section_participants
		WHERE section_id = $1 AND person_id = $2
	`, sectionID, personID).Scan(&p.ID, &p.SectionID, &p.PersonID, &role)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, section.ErrParticipantNotFound
		}
		return nil, errors.Wrap(err, "scanning participant")
	}
	p.Role = section.Role(role)
	return &p, nil
}

func (r *PgParticipantRepository) Save(ctx context.Context, p *section.Participant) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO section_participants (id, section_id, person_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (section_id, person_id) DO UPDATE SET role = EXCLUDED.role
	`, p.ID, p.SectionID, p.PersonID, string(p.Role)); err != nil {
		return errors.Wrap(err, "saving participant")
	}
	return nil
}

func (r *PgParticipantRepository) ListStudentIDs(ctx context.Context, sectionID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	rows, err := tx.Query(ctx, `
		SELECT person_id
		FROM section_participants
		WHERE section_id = $1 AND role = $2
		ORDER BY created_at, person_id
	`, sectionID, string(section.RoleStudent))
	if err != nil {
		return nil, errors.Wrap(err, "querying enrolled students")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning student id")
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating students")
	}
	return out, nil
}

func (r *PgParticipantRepository) RemoveStudents(ctx context.Context, sectionID uuid.UUID, personIDs []uuid.UUID) error {
	if len(personIDs) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM section_participants
		WHERE section_id = $1 AND role = $2 AND person_id = ANY($3)
	`, sectionID, string(section.RoleStudent), personIDs); err != nil {
		return errors.Wrap(err, "removing enrollments")
	}
	return nil
}
