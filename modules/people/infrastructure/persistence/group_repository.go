package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/people/domain/entities/group"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgGroupRepository struct{}

func NewGroupRepository() group.Repository {
	return &PgGroupRepository{}
}

func (r *PgGroupRepository) GetByHandle(ctx context.Context, handle string) (*group.Group, error) {
	return r.getOne(ctx, `WHERE handle = $1`, handle)
}

func (r *PgGroupRepository) GetByParentAndName(ctx context.Context, parentID uuid.UUID, name string) (*group.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	row := tx.QueryRow(ctx, `
		SELECT id, handle, name, parent_id, lft, rgt
		FROM groups
		WHERE parent_id = $1 AND lower(name) = lower($2)
	`, parentID, name)
	return scanGroup(row)
}

func (r *PgGroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*group.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	rows, err := tx.Query(ctx, `
		SELECT g.id, g.handle, g.name, g.parent_id, g.lft, g.rgt
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.lft
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user groups")
	}
	defer rows.Close()

	var out []*group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating groups")
	}
	return out, nil
}

// Save inserts a new group into the nested-set tree, or updates the name
// and handle of an existing one. New children open a gap at the end of
// the parent's interval; new roots append after the rightmost tree.
func (r *PgGroupRepository) Save(ctx context.Context, g *group.Group) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, g.ID).Scan(&exists); err != nil {
		return errors.Wrap(err, "checking group")
	}
	if exists {
		if _, err := tx.Exec(ctx, `UPDATE groups SET handle = $2, name = $3 WHERE id = $1`, g.ID, g.Handle, g.Name); err != nil {
			return errors.Wrap(err, "updating group")
		}
		return nil
	}

	if g.ParentID == nil {
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(rgt), 0) + 1 FROM groups`).Scan(&g.Left); err != nil {
			return errors.Wrap(err, "sizing group tree")
		}
	} else {
		if err := tx.QueryRow(ctx, `SELECT rgt FROM groups WHERE id = $1`, *g.ParentID).Scan(&g.Left); err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return group.ErrNotFound
			}
			return errors.Wrap(err, "locating parent group")
		}
		if _, err := tx.Exec(ctx, `UPDATE groups SET rgt = rgt + 2 WHERE rgt >= $1`, g.Left); err != nil {
			return errors.Wrap(err, "widening group tree")
		}
		if _, err := tx.Exec(ctx, `UPDATE groups SET lft = lft + 2 WHERE lft > $1`, g.Left); err != nil {
			return errors.Wrap(err, "widening group tree")
		}
	}
	g.Right = g.Left + 1

	if _, err := tx.Exec(ctx, `
		INSERT INTO groups (id, handle, name, parent_id, lft, rgt)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, g.ID, g.Handle, g.Name, g.ParentID, g.Left, g.Right); err != nil {
		return errors.Wrap(err, "inserting group")
	}
	return nil
}

func (r *PgGroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID); err != nil {
		return errors.Wrap(err, "adding group member")
	}
	return nil
}

func (r *PgGroupRepository) getOne(ctx context.Context, where string, arg any) (*group.Group, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	row := tx.QueryRow(ctx, `SELECT id, handle, name, parent_id, lft, rgt FROM groups `+where, arg)
	return scanGroup(row)
}

func scanGroup(row pgx.Row) (*group.Group, error) {
	var g group.Group
	if err := row.Scan(&g.ID, &g.Handle, &g.Name, &g.ParentID, &g.Left, &g.Right); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, group.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning group")
	}
	return &g, nil
}
