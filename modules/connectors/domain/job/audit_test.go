package job

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecord struct {
	id      uuid.UUID
	phantom bool
	title   string
	fields  map[string]any
}

func (r *fakeRecord) RecordKind() string          { return "widget" }
func (r *fakeRecord) RecordID() uuid.UUID         { return r.id }
func (r *fakeRecord) IsPhantom() bool             { return r.phantom }
func (r *fakeRecord) RecordTitle() string         { return r.title }
func (r *fakeRecord) AuditFields() map[string]any { return r.fields }

func newTestJob() *Job {
	return New("test", Config{}, nil)
}

func TestTranscriptInterpolation(t *testing.T) {
	j := newTestJob()
	j.Notice("add {user} to group {group}", Ctx{"user": "Mary Smith", "group": "Class of 2027"})
	j.Warning("plain message", nil)

	transcript := j.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, Entry{Level: "notice", Message: "add Mary Smith to group Class of 2027"}, transcript[0])
	assert.Equal(t, Entry{Level: "warning", Message: "plain message"}, transcript[1])
}

func TestLogRecordDeltaCreate(t *testing.T) {
	j := newTestJob()
	rec := &fakeRecord{id: uuid.New(), phantom: true, title: "Widget A", fields: map[string]any{
		"Name": "Widget A",
		"Size": 3,
	}}

	delta := j.LogRecordDelta(rec)
	assert.Equal(t, ActionCreate, delta.Action)

	transcript := j.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "Creating widget Widget A: Name=Widget A, Size=3", transcript[0].Message)
}

func TestLogRecordDeltaUpdate(t *testing.T) {
	j := newTestJob()
	rec := &fakeRecord{id: uuid.New(), title: "Widget A", fields: map[string]any{"Name": "Widget A"}}

	j.Observe(rec)
	rec.fields["Name"] = "Widget B"

	delta := j.LogRecordDelta(rec)
	assert.Equal(t, ActionUpdate, delta.Action)
	require.Len(t, j.Transcript(), 1)
	assert.Equal(t, "Updating widget Widget A: Name=Widget B", j.Transcript()[0].Message)

	// The snapshot was refreshed: re-logging without a change is silent.
	again := j.LogRecordDelta(rec)
	assert.Equal(t, ActionNone, again.Action)
	assert.Len(t, j.Transcript(), 1)
}

func TestLogRecordDeltaUnobserved(t *testing.T) {
	j := newTestJob()
	rec := &fakeRecord{id: uuid.New(), title: "Widget A", fields: map[string]any{"Name": "Widget A"}}

	// A non-phantom record that was never observed has no baseline to
	// diff against; nothing is reported.
	delta := j.LogRecordDelta(rec)
	assert.Equal(t, ActionNone, delta.Action)
	assert.Empty(t, j.Transcript())
}

func TestDeltaOptions(t *testing.T) {
	advisorID := uuid.New()

	t.Run("field label and value renderer", func(t *testing.T) {
		j := newTestJob()
		rec := &fakeRecord{id: uuid.New(), title: "Mary Smith", fields: map[string]any{"AdvisorID": ""}}
		j.Observe(rec)
		rec.fields["AdvisorID"] = advisorID.String()

		j.LogRecordDelta(rec,
			WithFieldLabel("AdvisorID", "Advisor"),
			WithValueRenderer("AdvisorID", func(any) string { return "John Doe" }))

		require.Len(t, j.Transcript(), 1)
		assert.Equal(t, "Updating widget Mary Smith: Advisor=John Doe", j.Transcript()[0].Message)
	})

	t.Run("message renderer", func(t *testing.T) {
		j := newTestJob()
		rec := &fakeRecord{id: uuid.New(), phantom: true, title: "mary@school.test", fields: map[string]any{"Address": "mary@school.test"}}

		j.LogRecordDelta(rec, WithMessageRenderer(func(entry DeltaEntry) string {
			return "Setting user Mary Smith primary email to " + entry.Record.RecordTitle()
		}))

		require.Len(t, j.Transcript(), 1)
		assert.Equal(t, "Setting user Mary Smith primary email to mary@school.test", j.Transcript()[0].Message)
	})
}

func TestJobLifecycle(t *testing.T) {
	j := New("spreadsheet", Config{MasterTerm: "2026-2027"}, nil)
	assert.Equal(t, StatusPending, j.Status)

	j.Complete(map[string]any{"students": 12})
	assert.Equal(t, StatusCompleted, j.Status)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, 12, j.Results["students"])

	failed := New("spreadsheet", Config{}, nil)
	failed.Fail(assert.AnError)
	assert.Equal(t, StatusFailed, failed.Status)
	require.Len(t, failed.Transcript(), 1)
	assert.Equal(t, "error", failed.Transcript()[0].Level)
}
