package sync

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/course"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/location"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/schedule"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

// sectionChanges collects the related records a section row produced,
// persisted by the pass loop after the section validated.
type sectionChanges struct {
	newDepartments []*course.Department
	newCourses     []*course.Course
	newSchedules   []*schedule.Schedule
	newLocations   []*location.Location
	participants   []*section.Participant
	// related records that already existed but should show up in the
	// audit delta stream.
	touched []job.Auditable

	// courseMappingExternal is set when the row carried a course foreign
	// key that resolved without going through a mapping; the pass loop
	// records the mapping so later files can skip the code lookup.
	courseMappingExternal string
	courseMappingCourse   *course.Course
}

// applySection reconciles one row onto a new or existing section:
// course, term (bounded by the master term), schedule, location,
// capacity, notes, code and title. Teachers are resolved by the pass
// loop before it gets here.
func (e *Engine) applySection(ctx context.Context, s *section.Section, row rowmap.Row, master *term.Term, teachers []*user.User, res *Result) (*sectionChanges, error) {
	changes := &sectionChanges{}

	c, err := e.applyCourse(ctx, s, row, changes)
	if err != nil {
		return nil, err
	}

	if err := e.applySectionTerm(ctx, s, row, master); err != nil {
		return nil, err
	}

	if title := row.Get(FieldSchedule); title != "" {
		sched, err := e.lookupScheduleByTitle(ctx, title)
		if err != nil {
			if !errors.Is(err, schedule.ErrNotFound) {
				return nil, err
			}
			sched = schedule.New(title)
			e.scratch.schedulesByTitle[title] = sched
			changes.newSchedules = append(changes.newSchedules, sched)
		}
		id := sched.ID
		s.ScheduleID = &id
	}

	if code := row.Get(FieldLocation); code != "" {
		handle := location.RoomHandle(code)
		loc, err := e.lookupLocationByHandle(ctx, handle)
		if err != nil {
			if !errors.Is(err, location.ErrNotFound) {
				return nil, err
			}
			loc = location.New(handle, "Room "+code)
			e.scratch.locationsByHandle[handle] = loc
			changes.newLocations = append(changes.newLocations, loc)
		}
		id := loc.ID
		s.LocationID = &id
	}

	if raw := row.Get(FieldCapacity); raw != "" {
		if capacity, err := strconv.Atoi(raw); err == nil {
			s.StudentsCapacity = capacity
		} else {
			e.job.Warning("unparseable capacity {value}", map[string]any{"value": raw})
		}
	}

	if notes := row.Get(FieldNotes); notes != "" {
		s.Notes = notes
	}

	if code := row.Get(FieldSectionCode); code != "" {
		s.Code = code
	}

	e.applySectionTitle(s, row, c)

	for _, teacher := range teachers {
		if err := e.upsertTeacher(ctx, s, teacher, changes, res); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// applyCourse resolves the row's course: foreign-key mapping first, then
// code, then title when the preset allows it. Missing courses are
// created only under the create-missing-courses policy. A foreign key
// that resolved without a mapping is queued for mapping creation.
func (e *Engine) applyCourse(ctx context.Context, s *section.Section, row rowmap.Row, changes *sectionChanges) (*course.Course, error) {
	code := row.Get(FieldCourseCode)
	title := row.Get(FieldCourseTitle)
	external := row.Get(FieldCourseExternal)

	var c *course.Course
	if external != "" {
		m, err := e.store.Mappings.Find(ctx, e.job.Connector, mapping.CourseForeignKey, external)
		switch {
		case err == nil:
			found, err := e.store.Courses.GetByID(ctx, m.ContextID)
			if err != nil {
				if !errors.Is(err, course.ErrNotFound) {
					return nil, err
				}
				e.job.Warning("course mapping {identifier} points at a missing course", map[string]any{
					"identifier": external,
				})
			}
			c = found
		case !errors.Is(err, mapping.ErrNotFound):
			return nil, err
		}
	}
	if c == nil && code != "" {
		found, err := e.lookupCourseByCode(ctx, code)
		if err != nil && !errors.Is(err, course.ErrNotFound) {
			return nil, err
		}
		c = found
	}
	if c == nil && e.preset.CoursesByTitle && title != "" {
		found, err := e.lookupCourseByTitle(ctx, title)
		if err != nil && !errors.Is(err, course.ErrNotFound) {
			return nil, err
		}
		c = found
	}

	if c == nil {
		if !e.preset.CreateMissingCourses {
			value := code
			if value == "" {
				value = title
			}
			return nil, invalidRecord(row, ReasonCourseNotFound, value,
				"course %q not found", value)
		}
		c = course.New(code, title)
		if code != "" {
			e.scratch.coursesByCode[code] = c
		}
		if title != "" {
			e.scratch.coursesByTitle[title] = c
		}
		if err := e.applyDepartment(ctx, c, row, changes); err != nil {
			return nil, err
		}
		changes.newCourses = append(changes.newCourses, c)
		e.job.Notice("creating course {course}", map[string]any{"course": c.RecordTitle()})
	} else {
		changes.touched = append(changes.touched, c)
	}

	if external != "" {
		changes.courseMappingExternal = external
		changes.courseMappingCourse = c
	}

	s.CourseID = c.ID
	return c, nil
}

func (e *Engine) applyDepartment(ctx context.Context, c *course.Course, row rowmap.Row, changes *sectionChanges) error {
	title := row.Get(FieldDepartment)
	if title == "" {
		return nil
	}
	d, err := e.lookupDepartmentByTitle(ctx, title)
	if err != nil {
		if !errors.Is(err, course.ErrDepartmentNotFound) {
			return err
		}
		d = course.NewDepartment(title)
		e.scratch.departmentsByTitle[title] = d
		changes.newDepartments = append(changes.newDepartments, d)
	}
	id := d.ID
	c.DepartmentID = &id
	return nil
}

// applySectionTerm binds the section to a term inside the master term.
// The handle comes from the row, or from the preset's term hook when the
// row has no term column. A new section without any resolvable term is a
// row failure; an existing section keeps its term but that term still
// has to fall inside the master.
func (e *Engine) applySectionTerm(ctx context.Context, s *section.Section, row rowmap.Row, master *term.Term) error {
	handle := row.Get(FieldTerm)
	if handle == "" && e.preset.Hooks.ResolveTermHandle != nil {
		handle = e.preset.Hooks.ResolveTermHandle(row, master)
	}

	if handle == "" {
		if s.TermID == nil {
			return invalidRecord(row, ReasonTermNotFound, "",
				"section row does not have a term set")
		}
		t, err := e.store.Terms.GetByID(ctx, *s.TermID)
		if err != nil {
			if errors.Is(err, term.ErrNotFound) {
				return invalidRecord(row, ReasonTermNotFound, s.TermID.String(),
					"existing section references a missing term")
			}
			return err
		}
		if !t.WithinMaster(master) {
			return invalidRecord(row, ReasonTermOutsideMaster, t.Handle,
				"term %q falls outside master term %q", t.Handle, master.Handle)
		}
		return nil
	}

	t, err := e.store.Terms.GetByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, term.ErrNotFound) {
			return invalidRecord(row, ReasonTermNotFound, handle,
				"term %q not found", handle)
		}
		return err
	}
	if !t.WithinMaster(master) {
		return invalidRecord(row, ReasonTermOutsideMaster, handle,
			"term %q falls outside master term %q", handle, master.Handle)
	}
	id := t.ID
	s.TermID = &id
	return nil
}

// applySectionTitle keeps an explicit title, leaves an existing one
// alone, and otherwise defaults to the course through the preset's
// optional formatter.
func (e *Engine) applySectionTitle(s *section.Section, row rowmap.Row, c *course.Course) {
	if title := row.Get(FieldSectionTitle); title != "" {
		s.Title = title
		return
	}
	if s.Title != "" || c == nil {
		return
	}
	if format := e.preset.Hooks.SectionTitle; format != nil {
		s.Title = format(row, c)
		return
	}
	s.Title = c.RecordTitle()
}

// resolveTeachers locates the row's teacher, and any secondary teacher
// the preset extracts, before the section itself is touched. A teacher
// reference that cannot be located sinks the whole row.
func (e *Engine) resolveTeachers(ctx context.Context, row rowmap.Row) ([]*user.User, error) {
	var teachers []*user.User

	switch {
	case row.Has(FieldTeacherUsername):
		username := row.Get(FieldTeacherUsername)
		t, err := e.lookupUserByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return nil, invalidRecord(row, ReasonTeacherNotByUsername, username,
					"teacher not found for username %q", username)
			}
			return nil, err
		}
		teachers = append(teachers, t)

	case row.Has(FieldTeacherFirstName) && row.Has(FieldTeacherLastName):
		first, last := row.Get(FieldTeacherFirstName), row.Get(FieldTeacherLastName)
		t, err := e.store.Users.GetByFullName(ctx, first, last)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return nil, invalidRecord(row, ReasonTeacherNotByName, first+" "+last,
					"teacher not found for full name %q", first+" "+last)
			}
			return nil, err
		}
		teachers = append(teachers, t)

	case row.Has(FieldTeacherFullName):
		full := row.Get(FieldTeacherFullName)
		first, last := user.ParseFullName(full)
		t, err := e.store.Users.GetByFullName(ctx, first, last)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return nil, invalidRecord(row, ReasonTeacherNotByName, full,
					"teacher not found for full name %q", full)
			}
			return nil, err
		}
		teachers = append(teachers, t)
	}

	if extract := e.preset.Hooks.SecondaryTeacher; extract != nil {
		if full := extract(row); full != "" {
			first, last := user.ParseFullName(full)
			t, err := e.store.Users.GetByFullName(ctx, first, last)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					return nil, invalidRecord(row, ReasonTeacherNotByName, full,
						"secondary teacher not found for full name %q", full)
				}
				return nil, err
			}
			teachers = append(teachers, t)
		}
	}

	return teachers, nil
}

func (e *Engine) upsertTeacher(ctx context.Context, s *section.Section, teacher *user.User, changes *sectionChanges, res *Result) error {
	existing, err := e.lookupParticipant(ctx, s.ID, teacher.ID)
	if err != nil {
		if !errors.Is(err, section.ErrParticipantNotFound) {
			return err
		}
		p := section.NewParticipant(s.ID, teacher.ID, section.RoleTeacher)
		e.scratch.participants[pairKey(s.ID, teacher.ID)] = p
		changes.participants = append(changes.participants, p)
		res.TeacherEnrollmentsCreated++
		e.job.Notice("Adding user {teacher} to section {section} with role Teacher", map[string]any{
			"teacher": teacher.Title(),
			"section": s.RecordTitle(),
		})
		return nil
	}
	if existing.Role != section.RoleTeacher {
		existing.Role = section.RoleTeacher
		changes.participants = append(changes.participants, existing)
		res.TeacherEnrollmentsUpdated++
		e.job.Notice("Updated user {teacher} in section {section} to role Teacher", map[string]any{
			"teacher": teacher.Title(),
			"section": s.RecordTitle(),
		})
	}
	return nil
}

// persistSectionChanges writes the related records of one accepted
// section row. Never called in pretend mode.
func (e *Engine) persistSectionChanges(ctx context.Context, changes *sectionChanges) error {
	for _, d := range changes.newDepartments {
		if err := e.store.Departments.Save(ctx, d); err != nil {
			return err
		}
	}
	for _, c := range changes.newCourses {
		if err := e.store.Courses.Save(ctx, c); err != nil {
			return err
		}
	}
	for _, sched := range changes.newSchedules {
		if err := e.store.Schedules.Save(ctx, sched); err != nil {
			return err
		}
	}
	for _, loc := range changes.newLocations {
		if err := e.store.Locations.Save(ctx, loc); err != nil {
			return err
		}
	}
	for _, p := range changes.participants {
		if err := e.store.Participants.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
