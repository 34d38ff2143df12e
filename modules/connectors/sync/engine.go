// Package sync is the reconciliation and synchronization engine: it
// streams spreadsheet rows through identity resolution and field
// reconciliation, maintains external-identifier mappings, and prunes
// stale enrollments, identically in pretend and committed runs except
// for the persistence calls themselves.
package sync

import (
	"context"

	"github.com/pkg/errors"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
	"github.com/campusworks/campus-sdk/pkg/eventbus"
)

// Engine drives one import job against one data source preset.
type Engine struct {
	preset  Preset
	store   *Store
	job     *job.Job
	pretend bool

	emailDomain string
	bus         eventbus.EventBus

	masterTerm *term.Term
	scratch    *scratch
}

type Option func(*Engine)

// WithPretend suppresses every persistence call while keeping decision
// logic, counters and audit output identical to a committed run.
func WithPretend(pretend bool) Option {
	return func(e *Engine) { e.pretend = pretend }
}

// WithEmailDomain sets the organization's user email domain, used for
// local-part username resolution and auto-assigned addresses.
func WithEmailDomain(domain string) Option {
	return func(e *Engine) { e.emailDomain = domain }
}

// WithEventBus publishes job lifecycle events during Synchronize.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

func NewEngine(preset Preset, store *Store, j *job.Job, opts ...Option) *Engine {
	e := &Engine{
		preset:  preset,
		store:   store,
		job:     j,
		scratch: newScratch(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pretend reports whether the engine is in dry-run mode.
func (e *Engine) Pretend() bool { return e.pretend }

// Job returns the job this engine is running.
func (e *Engine) Job() *job.Job { return e.job }

// MasterTerm resolves the job's master term once and caches it for the
// rest of the job. Its absence is a pass-level configuration error.
func (e *Engine) MasterTerm(ctx context.Context) (*term.Term, error) {
	if e.masterTerm != nil {
		return e.masterTerm, nil
	}
	handle := e.job.Config.MasterTerm
	if handle == "" {
		return nil, errors.New("master term is not configured")
	}
	t, err := e.store.Terms.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, term.ErrNotFound) {
			return nil, errors.Errorf("master term %q not found", handle)
		}
		return nil, errors.Wrap(err, "resolving master term")
	}
	e.masterTerm = t
	return t, nil
}

func (e *Engine) publish(event any) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}
