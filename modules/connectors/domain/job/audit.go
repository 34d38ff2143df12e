package job

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"
)

// Auditable is what a record must expose to be tracked by the audit log.
type Auditable interface {
	RecordKind() string
	RecordID() uuid.UUID
	IsPhantom() bool
	RecordTitle() string
	AuditFields() map[string]any
}

// Ctx carries template values for a log message. Placeholders of the form
// {key} in the message are replaced by the corresponding value.
type Ctx map[string]any

// Entry is one captured audit line.
type Entry struct {
	Level   string
	Message string
}

// Transcript returns the captured audit log in emission order.
func (j *Job) Transcript() []Entry {
	out := make([]Entry, len(j.transcript))
	copy(out, j.transcript)
	return out
}

func (j *Job) Notice(message string, ctx Ctx)  { j.emit(logrus.InfoLevel, "notice", message, ctx) }
func (j *Job) Info(message string, ctx Ctx)    { j.emit(logrus.InfoLevel, "info", message, ctx) }
func (j *Job) Debug(message string, ctx Ctx)   { j.emit(logrus.DebugLevel, "debug", message, ctx) }
func (j *Job) Warning(message string, ctx Ctx) { j.emit(logrus.WarnLevel, "warning", message, ctx) }
func (j *Job) Error(message string, ctx Ctx)   { j.emit(logrus.ErrorLevel, "error", message, ctx) }

// LogException records a row- or pass-level failure without interrupting
// the transcript.
func (j *Job) LogException(err error) {
	j.emit(logrus.ErrorLevel, "error", err.Error(), nil)
}

func (j *Job) emit(level logrus.Level, label, message string, ctx Ctx) {
	rendered := interpolate(message, ctx)
	j.transcript = append(j.transcript, Entry{Level: label, Message: rendered})
	if j.logger == nil {
		return
	}
	fields := logrus.Fields{"job": j.ID.String()}
	for k, v := range ctx {
		fields[k] = v
	}
	j.logger.WithFields(fields).Log(level, rendered)
}

func interpolate(message string, ctx Ctx) string {
	if len(ctx) == 0 {
		return message
	}
	replacements := make([]string, 0, len(ctx)*2)
	for k, v := range ctx {
		replacements = append(replacements, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(replacements...).Replace(message)
}

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionNone   Action = "none"
)

// DeltaEntry is the outcome of LogRecordDelta for one record.
type DeltaEntry struct {
	Action Action
	Patch  jsondiff.Patch
	Record Auditable
}

type deltaOptions struct {
	messageRenderer func(DeltaEntry) string
	valueRenderers  map[string]func(any) string
	fieldLabels     map[string]string
}

type DeltaOption func(*deltaOptions)

// WithMessageRenderer replaces the default create/update message.
func WithMessageRenderer(fn func(DeltaEntry) string) DeltaOption {
	return func(o *deltaOptions) { o.messageRenderer = fn }
}

// WithFieldLabel renames a field in the logged change list, e.g.
// AdvisorID shown as Advisor.
func WithFieldLabel(field, label string) DeltaOption {
	return func(o *deltaOptions) {
		if o.fieldLabels == nil {
			o.fieldLabels = map[string]string{}
		}
		o.fieldLabels[field] = label
	}
}

// WithValueRenderer rewrites a field's values in the logged change list,
// e.g. resolving an advisor id to a display name.
func WithValueRenderer(field string, fn func(any) string) DeltaOption {
	return func(o *deltaOptions) {
		if o.valueRenderers == nil {
			o.valueRenderers = map[string]func(any) string{}
		}
		o.valueRenderers[field] = fn
	}
}

// Observe snapshots a record's audit fields so a later LogRecordDelta can
// tell what the import changed. Call it right after a record is loaded.
func (j *Job) Observe(rec Auditable) {
	key := snapshotKey(rec)
	fields := rec.AuditFields()
	snapshot := make(map[string]any, len(fields))
	for k, v := range fields {
		snapshot[k] = v
	}
	j.snapshots[key] = snapshot
}

// LogRecordDelta classifies what happened to a record during this job
// (create, update or none), logs it, and refreshes the stored snapshot so
// repeated calls do not re-report the same change.
func (j *Job) LogRecordDelta(rec Auditable, opts ...DeltaOption) DeltaEntry {
	options := deltaOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	entry := DeltaEntry{Action: ActionNone, Record: rec}
	key := snapshotKey(rec)

	if rec.IsPhantom() {
		entry.Action = ActionCreate
	} else if snapshot, ok := j.snapshots[key]; ok {
		patch, err := jsondiff.Compare(snapshot, rec.AuditFields())
		if err != nil {
			j.LogException(err)
			return entry
		}
		if len(patch) > 0 {
			entry.Action = ActionUpdate
			entry.Patch = patch
		}
	}

	j.Observe(rec)

	if entry.Action == ActionNone {
		return entry
	}

	message := j.renderDelta(entry, options)
	j.emit(logrus.InfoLevel, "notice", message, nil)
	return entry
}

// LogInvalidRecord reports a record that failed validation.
func (j *Job) LogInvalidRecord(rec Auditable) {
	j.Error("Invalid {kind} record {title}", Ctx{
		"kind":  rec.RecordKind(),
		"title": rec.RecordTitle(),
	})
}

func (j *Job) renderDelta(entry DeltaEntry, options deltaOptions) string {
	if options.messageRenderer != nil {
		return options.messageRenderer(entry)
	}

	rec := entry.Record
	if entry.Action == ActionCreate {
		return fmt.Sprintf("Creating %s %s: %s", rec.RecordKind(), rec.RecordTitle(), renderFields(rec.AuditFields(), options))
	}

	changes := make([]string, 0, len(entry.Patch))
	for _, op := range entry.Patch {
		field := strings.TrimPrefix(op.Path, "/")
		value := renderValue(field, op.Value, options)
		changes = append(changes, fmt.Sprintf("%s=%s", fieldLabel(field, options), value))
	}
	return fmt.Sprintf("Updating %s %s: %s", rec.RecordKind(), rec.RecordTitle(), strings.Join(changes, ", "))
}

func fieldLabel(field string, options deltaOptions) string {
	if label, ok := options.fieldLabels[field]; ok {
		return label
	}
	return field
}

func renderFields(fields map[string]any, options deltaOptions) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", fieldLabel(k, options), renderValue(k, fields[k], options)))
	}
	return strings.Join(parts, ", ")
}

func renderValue(field string, value any, options deltaOptions) string {
	if fn, ok := options.valueRenderers[field]; ok {
		return fn(value)
	}
	return fmt.Sprint(value)
}

func snapshotKey(rec Auditable) string {
	return rec.RecordKind() + "/" + rec.RecordID().String()
}
