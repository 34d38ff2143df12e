package persistence

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/pkg/composables"
)

type PgJobRepository struct{}

func NewJobRepository() job.Repository {
	return &PgJobRepository{}
}

func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}

	var (
		connector   string
		status      string
		configRaw   []byte
		resultsRaw  []byte
		createdAt   time.Time
		completedAt *time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT connector, status, config, results, created_at, completed_at
		FROM connector_jobs
		WHERE id = $1
	`, id).Scan(&connector, &status, &configRaw, &resultsRaw, &createdAt, &completedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, errors.Wrap(err, "scanning job")
	}

	var config job.Config
	if err := json.Unmarshal(configRaw, &config); err != nil {
		return nil, errors.Wrap(err, "decoding job config")
	}
	var results map[string]any
	if err := json.Unmarshal(resultsRaw, &results); err != nil {
		return nil, errors.Wrap(err, "decoding job results")
	}

	return job.Hydrate(id, connector, job.Status(status), config, results, createdAt, completedAt), nil
}

func (r *PgJobRepository) Save(ctx context.Context, j *job.Job) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}

	configRaw, err := json.Marshal(j.Config)
	if err != nil {
		return errors.Wrap(err, "encoding job config")
	}
	resultsRaw, err := json.Marshal(j.Results)
	if err != nil {
		return errors.Wrap(err, "encoding job results")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO connector_jobs (id, connector, status, config, results, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			config = EXCLUDED.config,
			results = EXCLUDED.results,
			completed_at = EXCLUDED.completed_at
	`, j.ID, j.Connector, string(j.Status), configRaw, resultsRaw, j.CreatedAt, j.CompletedAt); err != nil {
		return errors.Wrap(err, "saving job")
	}
	return nil
}
