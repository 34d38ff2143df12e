package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

const userColumns = `
	id,
	kind,
	username,
	password_hash,
	account_level,
	first_name,
	last_name,
	middle_name,
	preferred_name,
	gender,
	birth_date,
	about,
	student_number,
	graduation_year,
	advisor_id,
	created_at,
	updated_at
`

type PgUserRepository struct{}

func NewUserRepository() user.Repository {
	return &PgUserRepository{}
}

func (r *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.getOne(ctx, `WHERE username = $1`, username)
}

func (r *PgUserRepository) GetByStudentNumber(ctx context.Context, studentNumber string) (*user.User, error) {
	return r.getOne(ctx, `WHERE student_number = $1`, studentNumber)
}

func (r *PgUserRepository) GetByFullName(ctx context.Context, firstName, lastName string) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}

	rows, err := tx.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2)
		LIMIT 2
	`, firstName, lastName)
	if err != nil {
		return nil, errors.Wrap(err, "querying users by full name")
	}
	defer rows.Close()

	var matches []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating users")
	}
	// An ambiguous name is treated the same as no match: the importer
	// must not guess between two people.
	if len(matches) != 1 {
		return nil, user.ErrNotFound
	}
	return matches[0], nil
}

func (r *PgUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, errors.Wrap(err, "getting transaction")
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "checking username")
	}
	return exists, nil
}

func (r *PgUserRepository) Save(ctx context.Context, u *user.User) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}

	var username, studentNumber *string
	if u.Username != "" {
		username = &u.Username
	}
	if u.StudentNumber != "" {
		studentNumber = &u.StudentNumber
	}
	var graduationYear *int
	if u.GraduationYear != 0 {
		graduationYear = &u.GraduationYear
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (
			id, kind, username, password_hash, account_level,
			first_name, last_name, middle_name, preferred_name,
			gender, birth_date, about,
			student_number, graduation_year, advisor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			account_level = EXCLUDED.account_level,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			middle_name = EXCLUDED.middle_name,
			preferred_name = EXCLUDED.preferred_name,
			gender = EXCLUDED.gender,
			birth_date = EXCLUDED.birth_date,
			about = EXCLUDED.about,
			student_number = EXCLUDED.student_number,
			graduation_year = EXCLUDED.graduation_year,
			advisor_id = EXCLUDED.advisor_id,
			updated_at = now()
	`,
		u.ID, string(u.Kind), username, u.PasswordHash, string(u.AccountLevel),
		u.FirstName, u.LastName, u.MiddleName, u.PreferredName,
		u.Gender, u.BirthDate, u.About,
		studentNumber, graduationYear, u.AdvisorID,
	)
	if err != nil {
		return errors.Wrap(err, "saving user")
	}
	return nil
}

func (r *PgUserRepository) getOne(ctx context.Context, where string, arg any) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}

	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u              user.User
		kind           string
		accountLevel   string
		username       *string
		studentNumber  *string
		graduationYear *int
	)
	err := row.Scan(
		&u.ID,
		&kind,
		&username,
		&u.PasswordHash,
		&accountLevel,
		&u.FirstName,
		&u.LastName,
		&u.MiddleName,
		&u.PreferredName,
		&u.Gender,
		&u.BirthDate,
		&u.About,
		&studentNumber,
		&graduationYear,
		&u.AdvisorID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scanning user")
	}
	u.Kind = user.Kind(kind)
	u.AccountLevel = user.AccountLevel(accountLevel)
	if username != nil {
		u.Username = *username
	}
	if studentNumber != nil {
		u.StudentNumber = *studentNumber
	}
	if graduationYear != nil {
		u.GraduationYear = *graduationYear
	}
	return &u, nil
}
