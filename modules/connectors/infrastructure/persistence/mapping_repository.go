package persistence

import (
	"context"
	stderrors "errors"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgMappingRepository struct{}

func NewMappingRepository() mapping.Repository {
	return &PgMappingRepository{}
}

func (r *PgMappingRepository) Find(ctx context.Context, connector, externalKey, externalIdentifier string) (*mapping.Mapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	var m mapping.Mapping
	err = tx.QueryRow(ctx, `
		SELECT id, connector, external_key, external_identifier, context_type, context_id, source, created_at
		FROM connector_mappings
		WHERE connector = $1 AND external_key = $2 AND external_identifier = $3
	`, connector, externalKey, externalIdentifier).Scan(
		&m.ID, &m.Connector, &m.ExternalKey, &m.ExternalIdentifier,
		&m.ContextType, &m.ContextID, &m.Source, &m.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, mapping.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning mapping")
	}
	return &m, nil
}

func (r *PgMappingRepository) Create(ctx context.Context, m *mapping.Mapping) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO connector_mappings (id, connector, external_key, external_identifier, context_type, context_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.Connector, m.ExternalKey, m.ExternalIdentifier, m.ContextType, m.ContextID, m.Source); err != nil {
		return errors.Wrap(err, "creating mapping")
	}
	return nil
}
