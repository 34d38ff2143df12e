package sync

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

// Events published on the bus during Synchronize.
type (
	JobStarted    struct{ Job *job.Job }
	PassCompleted struct {
		Job    *job.Job
		Pass   string
		Result *Result
	}
	JobCompleted struct{ Job *job.Job }
)

// Sources names one row source per pass; nil sources are skipped.
type Sources struct {
	Students    RowSource
	Alumni      RowSource
	Staff       RowSource
	Sections    RowSource
	Enrollments RowSource
}

// Synchronize runs every supplied pass in order, aggregates the per-pass
// results into the job, and flips the job's status. A pass-level error
// fails the whole job; row-level failures only feed the counters.
func (e *Engine) Synchronize(ctx context.Context, sources Sources) (map[string]*Result, error) {
	e.publish(JobStarted{e.job})
	results := map[string]*Result{}

	passes := []struct {
		name string
		src  RowSource
		pull func(context.Context, RowSource) (*Result, error)
	}{
		{"students", sources.Students, e.PullStudents},
		{"alumni", sources.Alumni, e.PullAlumni},
		{"staff", sources.Staff, e.PullStaff},
		{"sections", sources.Sections, e.PullSections},
		{"enrollments", sources.Enrollments, e.PullEnrollments},
	}
	for _, pass := range passes {
		if pass.src == nil {
			continue
		}
		e.job.Info("starting {pass} pass", map[string]any{"pass": pass.name})
		res, err := pass.pull(ctx, pass.src)
		if err != nil {
			err = errors.Wrapf(err, "%s pass", pass.name)
			return results, e.failJob(ctx, err)
		}
		results[pass.name] = res
		e.job.Info("completed {pass} pass: {analyzed} analyzed, {created} created, {updated} updated, {failed} failed", map[string]any{
			"pass":     pass.name,
			"analyzed": res.Analyzed,
			"created":  res.Created,
			"updated":  res.Updated,
			"failed":   res.FailedTotal(),
		})
		e.publish(PassCompleted{e.job, pass.name, res})
	}

	jobResults := make(map[string]any, len(results))
	for name, res := range results {
		jobResults[name] = res
	}
	e.job.Complete(jobResults)
	if !e.pretend && e.store.Jobs != nil {
		if err := e.store.Jobs.Save(ctx, e.job); err != nil {
			return results, errors.Wrap(err, "saving job")
		}
	}
	e.publish(JobCompleted{e.job})
	return results, nil
}

func (e *Engine) failJob(ctx context.Context, cause error) error {
	e.job.Fail(cause)
	if !e.pretend && e.store.Jobs != nil {
		if err := e.store.Jobs.Save(ctx, e.job); err != nil {
			return errors.Wrap(cause, "saving failed job: "+err.Error())
		}
	}
	return cause
}

func (e *Engine) PullStudents(ctx context.Context, src RowSource) (*Result, error) {
	return e.pullPersons(ctx, src, kindStudent, e.preset.StudentColumns, e.preset.StudentRequired, e.preset.Hooks.ReadStudent)
}

func (e *Engine) PullAlumni(ctx context.Context, src RowSource) (*Result, error) {
	return e.pullPersons(ctx, src, kindAlumnus, e.preset.AlumniColumns, e.preset.AlumniRequired, e.preset.Hooks.ReadStudent)
}

func (e *Engine) PullStaff(ctx context.Context, src RowSource) (*Result, error) {
	return e.pullPersons(ctx, src, kindStaff, e.preset.StaffColumns, e.preset.StaffRequired, e.preset.Hooks.ReadStaff)
}

func (e *Engine) newMapper(src RowSource, columns []rowmap.ColumnMap, required []string) (*rowmap.Mapper, error) {
	headers, err := src.ReadRow()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("sheet has no header row")
		}
		return nil, errors.Wrap(err, "reading header row")
	}
	mapper := rowmap.NewMapper(headers, columns)
	if err := mapper.RequireFields(required...); err != nil {
		return nil, err
	}
	return mapper, nil
}

func (e *Engine) pullPersons(ctx context.Context, src RowSource, kind personKind, columns []rowmap.ColumnMap, required []string, readHook func(*rowmap.Row)) (*Result, error) {
	mapper, err := e.newMapper(src, columns, required)
	if err != nil {
		return nil, err
	}

	res := NewResult()
	rowNum := 1
	for {
		cells, err := src.ReadRow()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "reading row")
		}
		rowNum++
		row := mapper.Map(cells)
		if readHook != nil {
			readHook(&row)
		}
		res.Analyzed++

		if filter := e.preset.Hooks.FilterPerson; filter != nil {
			if skip, reason := filter(row); skip {
				res.Filter(reason)
				e.job.Debug("row {row} filtered: {reason}", map[string]any{
					"row":    rowNum,
					"reason": reason,
				})
				continue
			}
		}

		if err := e.processPersonRow(ctx, row, kind, res); err != nil {
			var invalid *RemoteRecordInvalid
			if errors.As(err, &invalid) {
				res.Fail(invalid.Reason, invalid.Value)
				e.job.Error("row {row} failed: {message}", map[string]any{
					"row":     rowNum,
					"message": invalid.Message,
				})
				continue
			}
			return nil, err
		}
	}
	return res, nil
}

func (e *Engine) processPersonRow(ctx context.Context, row rowmap.Row, kind personKind, res *Result) error {
	u, err := e.resolvePerson(ctx, row)
	if err != nil {
		return err
	}
	if u == nil {
		if kind == kindStaff {
			u = user.NewStaff()
		} else {
			u = user.NewStudent()
		}
	} else {
		e.job.Observe(u)
	}
	wasPhantom := u.Phantom

	changes, err := e.applyUser(ctx, u, row, res)
	if err != nil {
		return err
	}

	if invalid := u.Validate(); len(invalid) > 0 {
		first := invalid[0]
		e.job.LogInvalidRecord(u)
		return invalidRecord(row, ReasonInvalid+"."+first.Field, first.Problem,
			"validation failed: %s %s", first.Field, first.Problem)
	}

	delta := e.job.LogRecordDelta(u,
		job.WithFieldLabel("AdvisorID", "Advisor"),
		job.WithValueRenderer("AdvisorID", e.renderUserID(ctx)))
	switch delta.Action {
	case job.ActionCreate:
		res.Created++
	case job.ActionUpdate:
		res.Updated++
	default:
		res.Unmodified++
	}

	if changes.email != nil {
		emailDelta := e.job.LogRecordDelta(changes.email, job.WithMessageRenderer(func(entry job.DeltaEntry) string {
			if entry.Action == job.ActionCreate {
				return "Setting user " + u.Title() + " primary email to " + entry.Record.RecordTitle()
			}
			return "Changing user " + u.Title() + " primary email to " + entry.Record.RecordTitle()
		}))
		switch emailDelta.Action {
		case job.ActionCreate:
			res.AssignedPrimaryEmail++
		case job.ActionUpdate:
			res.UpdatedPrimaryEmail++
		}
	}

	if !e.pretend {
		if err := e.store.Users.Save(ctx, u); err != nil {
			return errors.Wrap(err, "saving user")
		}
	}
	u.Phantom = false
	e.scratch.addUser(u)

	if wasPhantom {
		if fk := row.Get(FieldForeignKey); fk != "" {
			if err := e.createMapping(ctx, mapping.PersonForeignKey, fk, mapping.ContextUser, u.ID); err != nil {
				return err
			}
		}
	}

	if !e.pretend {
		if err := e.persistPersonChanges(ctx, u, changes); err != nil {
			return errors.Wrap(err, "saving person changes")
		}
	}
	for _, g := range changes.newGroups {
		g.Phantom = false
	}
	if changes.email != nil {
		changes.email.Phantom = false
		e.scratch.emailsByUser[u.ID] = changes.email
	}
	return nil
}

// renderUserID resolves a user id to a display name in audit deltas.
func (e *Engine) renderUserID(ctx context.Context) func(any) string {
	return func(value any) string {
		raw, ok := value.(string)
		if !ok {
			return ""
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return raw
		}
		u, err := e.store.Users.GetByID(ctx, id)
		if err != nil {
			return raw
		}
		return u.Title()
	}
}

// createMapping records an external identifier against an internal
// record, once: an existing mapping is never overwritten.
func (e *Engine) createMapping(ctx context.Context, keyNamespace, identifier, contextType string, contextID uuid.UUID) error {
	key := keyNamespace + "|" + identifier
	if e.scratch.mappings[key] {
		return nil
	}
	_, err := e.store.Mappings.Find(ctx, e.job.Connector, keyNamespace, identifier)
	if err == nil {
		return nil
	}
	if !errors.Is(err, mapping.ErrNotFound) {
		return err
	}
	e.scratch.mappings[key] = true
	e.job.Debug("mapping {identifier} under {namespace}", map[string]any{
		"identifier": identifier,
		"namespace":  keyNamespace,
	})
	if e.pretend {
		return nil
	}
	return e.store.Mappings.Create(ctx, mapping.New(e.job.Connector, keyNamespace, identifier, contextType, contextID))
}

func (e *Engine) PullSections(ctx context.Context, src RowSource) (*Result, error) {
	master, err := e.MasterTerm(ctx)
	if err != nil {
		return nil, err
	}
	mapper, err := e.newMapper(src, e.preset.SectionColumns, e.preset.SectionRequired)
	if err != nil {
		return nil, err
	}

	res := NewResult()
	rowNum := 1
	for {
		cells, err := src.ReadRow()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "reading row")
		}
		rowNum++
		row := mapper.Map(cells)
		if hook := e.preset.Hooks.ReadSection; hook != nil {
			hook(&row)
		}
		res.Analyzed++

		if filter := e.preset.Hooks.FilterSection; filter != nil {
			if skip, reason := filter(row); skip {
				res.Filter(reason)
				e.job.Debug("row {row} filtered: {reason}", map[string]any{
					"row":    rowNum,
					"reason": reason,
				})
				continue
			}
		}

		if err := e.processSectionRow(ctx, row, master, res); err != nil {
			var invalid *RemoteRecordInvalid
			if errors.As(err, &invalid) {
				res.Fail(invalid.Reason, invalid.Value)
				e.job.Error("row {row} failed: {message}", map[string]any{
					"row":     rowNum,
					"message": invalid.Message,
				})
				continue
			}
			return nil, err
		}
	}
	return res, nil
}

func (e *Engine) processSectionRow(ctx context.Context, row rowmap.Row, master *term.Term, res *Result) error {
	if e.preset.RequireSectionCourseCode && !row.Has(FieldCourseCode) {
		return invalidRecord(row, ReasonMissingRequiredField, FieldCourseCode,
			"section row carries no course code")
	}
	if !row.Has(FieldSectionExternal) && !row.Has(FieldSectionCode) {
		return invalidRecord(row, ReasonMissingRequiredField, FieldSectionCode,
			"section row carries no identifier or code")
	}

	teachers, err := e.resolveTeachers(ctx, row)
	if err != nil {
		return err
	}

	s, err := e.resolveSection(ctx, row, master)
	if err != nil {
		return err
	}
	if s == nil {
		s = section.New()
	} else {
		e.job.Observe(s)
	}

	changes, err := e.applySection(ctx, s, row, master, teachers, res)
	if err != nil {
		return err
	}

	if invalid := s.Validate(); len(invalid) > 0 {
		first := invalid[0]
		e.job.LogInvalidRecord(s)
		return invalidRecord(row, ReasonInvalid+"."+first.Field, first.Problem,
			"validation failed: %s %s", first.Field, first.Problem)
	}

	// Related records created or touched on this row show up in the
	// audit stream alongside the section itself.
	for _, d := range changes.newDepartments {
		e.job.LogRecordDelta(d)
	}
	for _, c := range changes.newCourses {
		e.job.LogRecordDelta(c)
	}
	for _, sched := range changes.newSchedules {
		e.job.LogRecordDelta(sched)
	}
	for _, loc := range changes.newLocations {
		e.job.LogRecordDelta(loc)
	}
	for _, rec := range changes.touched {
		e.job.LogRecordDelta(rec)
	}

	delta := e.job.LogRecordDelta(s)
	switch delta.Action {
	case job.ActionCreate:
		res.Created++
	case job.ActionUpdate:
		res.Updated++
	default:
		res.Unmodified++
	}

	if !e.pretend {
		if err := e.store.Sections.Save(ctx, s); err != nil {
			return errors.Wrap(err, "saving section")
		}
		if err := e.persistSectionChanges(ctx, changes); err != nil {
			return errors.Wrap(err, "saving section changes")
		}
	}
	s.Phantom = false
	for _, d := range changes.newDepartments {
		d.Phantom = false
	}
	for _, c := range changes.newCourses {
		c.Phantom = false
	}
	for _, sched := range changes.newSchedules {
		sched.Phantom = false
	}
	for _, loc := range changes.newLocations {
		loc.Phantom = false
	}
	for _, p := range changes.participants {
		p.Phantom = false
	}

	if changes.courseMappingExternal != "" {
		if err := e.createMapping(ctx, mapping.CourseForeignKey, changes.courseMappingExternal, mapping.ContextCourse, changes.courseMappingCourse.ID); err != nil {
			return err
		}
	}

	if s.Code != "" {
		e.scratch.sectionsByCode[s.Code] = s
	}
	if external := row.Get(FieldSectionExternal); external != "" {
		e.scratch.sectionsByExternal[external] = s
		if err := e.createMapping(ctx, mapping.SectionForeignKey, sectionMappingIdentifier(master, external), mapping.ContextSection, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// roster accumulates which students were seen enrolled in which sections
// during the enrollment pass, in first-touch order so the removal sweep
// is deterministic.
type roster struct {
	order []*section.Section
	seen  map[uuid.UUID]map[uuid.UUID]bool
}

func newRoster() *roster {
	return &roster{seen: map[uuid.UUID]map[uuid.UUID]bool{}}
}

func (r *roster) add(s *section.Section, studentID uuid.UUID) {
	students, ok := r.seen[s.ID]
	if !ok {
		students = map[uuid.UUID]bool{}
		r.seen[s.ID] = students
		r.order = append(r.order, s)
	}
	students[studentID] = true
}

func (e *Engine) PullEnrollments(ctx context.Context, src RowSource) (*Result, error) {
	master, err := e.MasterTerm(ctx)
	if err != nil {
		return nil, err
	}
	mapper, err := e.newMapper(src, e.preset.EnrollmentColumns, e.preset.EnrollmentRequired)
	if err != nil {
		return nil, err
	}

	res := NewResult()
	seen := newRoster()
	rowNum := 1
	for {
		cells, err := src.ReadRow()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "reading row")
		}
		rowNum++
		row := mapper.Map(cells)
		if hook := e.preset.Hooks.ReadEnrollment; hook != nil {
			hook(&row)
		}
		res.Analyzed++

		if filter := e.preset.Hooks.FilterEnrollment; filter != nil {
			if skip, reason := filter(row); skip {
				res.Filter(reason)
				e.job.Debug("row {row} filtered: {reason}", map[string]any{
					"row":    rowNum,
					"reason": reason,
				})
				continue
			}
		}

		if err := e.processEnrollmentRow(ctx, row, master, seen, res); err != nil {
			return nil, err
		}
	}

	if err := e.pruneRosters(ctx, seen, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) processEnrollmentRow(ctx context.Context, row rowmap.Row, master *term.Term, seen *roster, res *Result) error {
	studentNumber := row.Get(FieldStudentNumber)
	if studentNumber == "" {
		res.Fail(ReasonMissingStudentNumber, "")
		e.job.Warning("enrollment row carries no student number", nil)
		return nil
	}
	student, err := e.lookupUserByStudentNumber(ctx, studentNumber)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			res.Fail(ReasonStudentNotFound, studentNumber)
			e.job.Warning("student {number} not found", map[string]any{"number": studentNumber})
			return nil
		}
		return err
	}

	divider := e.job.Config.EnrollmentDivider
	for _, cell := range row.Rest {
		refs := []string{cell.Value}
		if divider != "" {
			refs = strings.Split(cell.Value, divider)
		}
		for _, ref := range refs {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			res.EnrollmentsAnalyzed++
			s, reason, err := e.resolveEnrollmentSection(ctx, ref, master)
			if err != nil {
				return err
			}
			if s == nil {
				res.Fail(reason, ref)
				e.job.Warning("section reference {ref} unresolved: {reason}", map[string]any{
					"ref":    ref,
					"reason": reason,
				})
				continue
			}
			if err := e.enrollStudent(ctx, s, student, res); err != nil {
				return err
			}
			seen.add(s, student.ID)
		}
	}
	return nil
}

// resolveEnrollmentSection tries a code lookup first, then a
// master-term-scoped mapping lookup, per the preset's reference flags. A
// mapping that points at a missing section is reported as an orphan, not
// repaired.
func (e *Engine) resolveEnrollmentSection(ctx context.Context, ref string, master *term.Term) (*section.Section, string, error) {
	if e.preset.SectionCodeReferences {
		s, err := e.lookupSectionByCode(ctx, ref)
		if err == nil {
			return s, "", nil
		}
		if !errors.Is(err, section.ErrNotFound) {
			return nil, "", err
		}
	}
	if e.preset.SectionMappingReferences {
		if s, ok := e.scratch.sectionsByExternal[ref]; ok {
			return s, "", nil
		}
		m, err := e.store.Mappings.Find(ctx, e.job.Connector, mapping.SectionForeignKey, sectionMappingIdentifier(master, ref))
		switch {
		case err == nil:
			s, err := e.store.Sections.GetByID(ctx, m.ContextID)
			if err == nil {
				return s, "", nil
			}
			if !errors.Is(err, section.ErrNotFound) {
				return nil, "", err
			}
			return nil, ReasonOrphanMapping, nil
		case !errors.Is(err, mapping.ErrNotFound):
			return nil, "", err
		}
	}
	return nil, ReasonSectionNotFound, nil
}

func (e *Engine) enrollStudent(ctx context.Context, s *section.Section, student *user.User, res *Result) error {
	existing, err := e.lookupParticipant(ctx, s.ID, student.ID)
	if err != nil {
		if !errors.Is(err, section.ErrParticipantNotFound) {
			return err
		}
		p := section.NewParticipant(s.ID, student.ID, section.RoleStudent)
		e.scratch.participants[pairKey(s.ID, student.ID)] = p
		res.EnrollmentsCreated++
		e.job.Notice("Adding user {student} to section {section} with role Student", map[string]any{
			"student": student.Title(),
			"section": s.RecordTitle(),
		})
		if !e.pretend {
			if err := e.store.Participants.Save(ctx, p); err != nil {
				return errors.Wrap(err, "saving enrollment")
			}
		}
		p.Phantom = false
		return nil
	}
	if existing.Role != section.RoleStudent {
		existing.Role = section.RoleStudent
		res.EnrollmentsUpdated++
		e.job.Notice("Updated user {student} in section {section} to role Student", map[string]any{
			"student": student.Title(),
			"section": s.RecordTitle(),
		})
		if !e.pretend {
			if err := e.store.Participants.Save(ctx, existing); err != nil {
				return errors.Wrap(err, "saving enrollment")
			}
		}
	}
	return nil
}

// pruneRosters removes enrollments that no longer appear in the batch:
// for every section touched this pass, currently enrolled students minus
// seen students are dropped. Sections the batch never mentioned are left
// alone.
func (e *Engine) pruneRosters(ctx context.Context, seen *roster, res *Result) error {
	for _, s := range seen.order {
		current, err := e.store.Participants.ListStudentIDs(ctx, s.ID)
		if err != nil {
			return errors.Wrap(err, "listing enrolled students")
		}
		var remove []uuid.UUID
		for _, studentID := range current {
			if seen.seen[s.ID][studentID] {
				continue
			}
			remove = append(remove, studentID)
			res.EnrollmentsRemoved++
			e.job.Notice("Removed user {student} from section {section} with role Student", map[string]any{
				"student": e.renderUserID(ctx)(studentID.String()),
				"section": s.RecordTitle(),
			})
		}
		if len(remove) > 0 && !e.pretend {
			if err := e.store.Participants.RemoveStudents(ctx, s.ID, remove); err != nil {
				return errors.Wrap(err, "removing stale enrollments")
			}
		}
	}
	return nil
}
