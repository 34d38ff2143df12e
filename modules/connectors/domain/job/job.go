// Package job models one import run: its configuration, its audit log and
// its aggregated results. The audit logger both forwards to logrus and
// captures a transcript so a pretend run can be compared, entry by entry,
// against a committed run.
package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("job not found")

type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Config holds the per-run policy flags recognized by the import engine.
type Config struct {
	AutoCapitalize    bool   `json:"autoCapitalize"`
	UpdateUsernames   bool   `json:"updateUsernames"`
	UpdatePasswords   bool   `json:"updatePasswords"`
	UpdateAbout       bool   `json:"updateAbout"`
	MatchFullNames    bool   `json:"matchFullNames"`
	AutoAssignEmail   bool   `json:"autoAssignEmail"`
	MasterTerm        string `json:"masterTerm,omitempty"`
	EnrollmentDivider string `json:"enrollmentDivider,omitempty"`
}

type Job struct {
	ID          uuid.UUID
	Connector   string
	Status      Status
	Config      Config
	Results     map[string]any
	CreatedAt   time.Time
	CompletedAt *time.Time

	logger     *logrus.Entry
	transcript []Entry
	snapshots  map[string]map[string]any
}

func New(connector string, config Config, logger *logrus.Entry) *Job {
	return &Job{
		ID:        uuid.New(),
		Connector: connector,
		Status:    StatusPending,
		Config:    config,
		Results:   map[string]any{},
		CreatedAt: time.Now(),
		logger:    logger,
		snapshots: map[string]map[string]any{},
	}
}

// Hydrate rebuilds a stored job for inspection. The transcript and
// snapshots start empty; rerunning passes requires a fresh job.
func Hydrate(id uuid.UUID, connector string, status Status, config Config, results map[string]any, createdAt time.Time, completedAt *time.Time) *Job {
	return &Job{
		ID:          id,
		Connector:   connector,
		Status:      status,
		Config:      config,
		Results:     results,
		CreatedAt:   createdAt,
		CompletedAt: completedAt,
		snapshots:   map[string]map[string]any{},
	}
}

// Complete marks the job finished and stores the pass results.
func (j *Job) Complete(results map[string]any) {
	now := time.Now()
	j.Status = StatusCompleted
	j.Results = results
	j.CompletedAt = &now
}

// Fail marks the job failed. The transcript keeps whatever was logged
// before the failure.
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = StatusFailed
	j.CompletedAt = &now
	if err != nil {
		j.LogException(err)
	}
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	Save(ctx context.Context, j *Job) error
}
