package sync

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
)

// batchFixture seeds the store every full-batch test starts from: terms,
// root groups and one teacher account.
func batchFixture() *memStore {
	store := newMemStore()
	seedTerms(store)
	seedGroups(store)
	seedTeacher(store)
	return store
}

func batchConfig() job.Config {
	return job.Config{
		AutoCapitalize:  true,
		AutoAssignEmail: true,
		MatchFullNames:  true,
		MasterTerm:      "2026-2027",
	}
}

func batchSources() Sources {
	return Sources{
		Students: NewSliceSource([][]string{
			{"Student ID", "First Name", "Last Name", "Grade", "Email"},
			{"4211", "MARY", "SMITH", "9", "mary@family.test"},
			{"4212", "John", "Jones", "10", ""},
		}),
		Alumni: NewSliceSource([][]string{
			{"First Name", "Last Name", "Graduation Year"},
			{"Olivia", "Grady", "2019"},
		}),
		Staff: NewSliceSource([][]string{
			{"First Name", "Last Name", "Username", "Account Level"},
			{"John", "Doe", "jdoe", "Teacher"},
		}),
		Sections: NewSliceSource([][]string{
			{"Section ID", "Section Code", "Title", "Course Code", "Teacher", "Term", "Schedule", "Location", "Students Capacity"},
			{"1001", "MATH-101-1", "Algebra I", "MATH-101", "jdoe", "fall-2026", "Period 1", "204", "25"},
		}),
		Enrollments: NewSliceSource([][]string{
			{"School ID Number", "Section 1"},
			{"4211", "1001"},
			{"4212", "1001"},
		}),
	}
}

func TestSynchronizeCommitted(t *testing.T) {
	ctx := context.Background()
	store := batchFixture()
	e := newTestEngine(store, batchConfig(), WithEmailDomain("school.test"))

	results, err := e.Synchronize(ctx, batchSources())
	require.NoError(t, err)

	students := results["students"]
	require.NotNil(t, students)
	assert.Equal(t, 2, students.Analyzed)
	assert.Equal(t, 2, students.Created)
	assert.Equal(t, 2, students.AssignedPrimaryEmail)
	assert.Equal(t, map[string]int{"Class of 2030": 1, "Class of 2029": 1}, students.AddedToGroup)

	alumni := results["alumni"]
	require.NotNil(t, alumni)
	assert.Equal(t, 1, alumni.Created)
	assert.Equal(t, map[string]int{"Class of 2019": 1}, alumni.AddedToGroup)

	staff := results["staff"]
	require.NotNil(t, staff)
	assert.Equal(t, 1, staff.Unmodified)
	assert.Equal(t, map[string]int{"Teachers": 1}, staff.AddedToGroup)

	sections := results["sections"]
	require.NotNil(t, sections)
	assert.Equal(t, 1, sections.Created)
	assert.Equal(t, 1, sections.TeacherEnrollmentsCreated)

	enrollments := results["enrollments"]
	require.NotNil(t, enrollments)
	assert.Equal(t, 2, enrollments.Analyzed)
	assert.Equal(t, 2, enrollments.EnrollmentsAnalyzed)
	assert.Equal(t, 2, enrollments.EnrollmentsCreated)
	assert.Zero(t, enrollments.EnrollmentsRemoved)

	// The store reflects the batch: three new people, one section with a
	// teacher and two students, and the supporting records around it.
	assert.Len(t, store.users.users, 4)
	assert.Len(t, store.sections.sections, 1)
	assert.Len(t, store.participants.participants, 3)
	assert.Len(t, store.courses.courses, 1)
	assert.Len(t, store.schedules.schedules, 1)
	assert.Len(t, store.locations.locations, 1)

	mary, err := store.users.GetByStudentNumber(ctx, "4211")
	require.NoError(t, err)
	assert.Equal(t, "Mary", mary.FirstName)
	assert.Equal(t, 2030, mary.GraduationYear)
	assert.Equal(t, "msmith", mary.Username)

	_, err = store.mappings.Find(ctx, "spreadsheet", mapping.SectionForeignKey, "2026-2027:1001")
	assert.NoError(t, err)

	saved, err := store.jobs.GetByID(ctx, e.Job().ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, saved.Status)
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

func normalizeTranscript(entries []job.Entry) []job.Entry {
	out := make([]job.Entry, len(entries))
	for i, entry := range entries {
		out[i] = job.Entry{Level: entry.Level, Message: uuidPattern.ReplaceAllString(entry.Message, "<id>")}
	}
	return out
}

// A pretend run and a committed run over the same data must make the
// same decisions: identical counters and an identical audit transcript,
// record identifiers aside.
func TestPretendMatchesCommitted(t *testing.T) {
	ctx := context.Background()

	pretendStore := batchFixture()
	pretendEngine := newTestEngine(pretendStore, batchConfig(), WithEmailDomain("school.test"), WithPretend(true))
	pretendResults, err := pretendEngine.Synchronize(ctx, batchSources())
	require.NoError(t, err)

	commitStore := batchFixture()
	commitEngine := newTestEngine(commitStore, batchConfig(), WithEmailDomain("school.test"))
	commitResults, err := commitEngine.Synchronize(ctx, batchSources())
	require.NoError(t, err)

	assert.Equal(t, commitResults, pretendResults)
	assert.Equal(t,
		normalizeTranscript(commitEngine.Job().Transcript()),
		normalizeTranscript(pretendEngine.Job().Transcript()))

	// The pretend run wrote nothing.
	assert.Len(t, pretendStore.users.users, 1)
	assert.Empty(t, pretendStore.sections.sections)
	assert.Empty(t, pretendStore.participants.participants)
	assert.Empty(t, pretendStore.mappings.mappings)
	assert.Empty(t, pretendStore.emails.emails)
	assert.Empty(t, pretendStore.jobs.jobs)
}

// Two rows creating new courses under the same new department must agree
// between a pretend and a committed run: the department is created once,
// not once per row.
func TestPretendMatchesCommittedSharedDepartment(t *testing.T) {
	ctx := context.Background()

	sheet := func() RowSource {
		return NewSliceSource([][]string{
			{"Section ID", "Section Code", "Title", "Course Code", "Department", "Teacher", "Term"},
			{"1001", "MATH-101-1", "Algebra I", "MATH-101", "STEM", "jdoe", "fall-2026"},
			{"1002", "PHYS-101-1", "Physics I", "PHYS-101", "STEM", "jdoe", "fall-2026"},
		})
	}
	newEngine := func(store *memStore, opts ...Option) *Engine {
		p := Base()
		p.SectionColumns = rowmap.Stack(p.SectionColumns, []rowmap.ColumnMap{
			{Header: "Department", Field: FieldDepartment},
		})
		return NewEngine(p, store.Store, job.New("spreadsheet", batchConfig(), nil), opts...)
	}

	commitStore := batchFixture()
	commit := newEngine(commitStore)
	commitRes, err := commit.PullSections(ctx, sheet())
	require.NoError(t, err)

	pretendStore := batchFixture()
	pretend := newEngine(pretendStore, WithPretend(true))
	pretendRes, err := pretend.PullSections(ctx, sheet())
	require.NoError(t, err)

	assert.Equal(t, commitRes, pretendRes)
	assert.Equal(t,
		normalizeTranscript(commit.Job().Transcript()),
		normalizeTranscript(pretend.Job().Transcript()))

	require.Len(t, commitStore.departments.departments, 1)
	assert.Empty(t, pretendStore.departments.departments)
}

// The same student appearing twice in one sheet must not re-create the
// primary contact point in a pretend run: both runs assign it on the
// first row and recognize it on the second.
func TestPretendMatchesCommittedDuplicateStudentRow(t *testing.T) {
	ctx := context.Background()

	sheet := func() RowSource {
		return NewSliceSource([][]string{
			{"Student ID", "First Name", "Last Name", "Email"},
			{"4211", "Mary", "Smith", "mary@family.test"},
			{"4211", "Mary", "Smith", "mary@family.test"},
		})
	}

	commitStore := batchFixture()
	commit := newTestEngine(commitStore, batchConfig(), WithEmailDomain("school.test"))
	commitRes, err := commit.PullStudents(ctx, sheet())
	require.NoError(t, err)

	pretendStore := batchFixture()
	pretend := newTestEngine(pretendStore, batchConfig(), WithEmailDomain("school.test"), WithPretend(true))
	pretendRes, err := pretend.PullStudents(ctx, sheet())
	require.NoError(t, err)

	assert.Equal(t, 1, commitRes.Created)
	assert.Equal(t, 1, commitRes.Unmodified)
	assert.Equal(t, 1, commitRes.AssignedPrimaryEmail)
	assert.Equal(t, commitRes, pretendRes)
	assert.Equal(t,
		normalizeTranscript(commit.Job().Transcript()),
		normalizeTranscript(pretend.Job().Transcript()))
}

func TestSynchronizeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := batchFixture()

	first := newTestEngine(store, batchConfig(), WithEmailDomain("school.test"))
	_, err := first.Synchronize(ctx, batchSources())
	require.NoError(t, err)

	second := newTestEngine(store, batchConfig(), WithEmailDomain("school.test"))
	results, err := second.Synchronize(ctx, batchSources())
	require.NoError(t, err)

	assert.Equal(t, 2, results["students"].Unmodified)
	assert.Zero(t, results["students"].Created)
	assert.Zero(t, results["students"].AssignedPrimaryEmail)
	assert.Empty(t, results["students"].AddedToGroup)
	assert.Equal(t, 1, results["alumni"].Unmodified)
	assert.Equal(t, 1, results["sections"].Unmodified)
	assert.Zero(t, results["sections"].TeacherEnrollmentsCreated)
	assert.Zero(t, results["enrollments"].EnrollmentsCreated)
	assert.Zero(t, results["enrollments"].EnrollmentsRemoved)

	assert.Len(t, store.users.users, 4)
	assert.Len(t, store.participants.participants, 3)
}

func TestEnrollmentRosterPrune(t *testing.T) {
	ctx := context.Background()
	store := batchFixture()

	master, err := store.terms.GetByHandle(ctx, "2026-2027")
	require.NoError(t, err)
	fall, err := store.terms.GetByHandle(ctx, "fall-2026")
	require.NoError(t, err)

	s := section.New()
	s.Phantom = false
	s.Title = "Algebra I"
	s.CourseID = uuid.New()
	termID := fall.ID
	s.TermID = &termID
	require.NoError(t, store.sections.Save(ctx, s))
	require.NoError(t, store.mappings.Create(ctx,
		mapping.New("spreadsheet", mapping.SectionForeignKey, sectionMappingIdentifier(master, "1001"), mapping.ContextSection, s.ID)))

	var students []*user.User
	for _, number := range []string{"4211", "4212", "4213", "4214"} {
		u := user.NewStudent()
		u.Phantom = false
		u.FirstName, u.LastName = "Student", number
		u.StudentNumber = number
		u.Username = "s" + number
		require.NoError(t, store.users.Save(ctx, u))
		students = append(students, u)
	}
	// 4211, 4212 and 4214 start enrolled; the batch names 4211, 4212 and
	// 4213, so 4214 must be dropped and 4213 added.
	for _, u := range []*user.User{students[0], students[1], students[3]} {
		p := section.NewParticipant(s.ID, u.ID, section.RoleStudent)
		p.Phantom = false
		require.NoError(t, store.participants.Save(ctx, p))
	}

	e := newTestEngine(store, batchConfig())
	res, err := e.PullEnrollments(ctx, NewSliceSource([][]string{
		{"School ID Number", "Section 1"},
		{"4211", "1001"},
		{"4212", "1001"},
		{"4213", "1001"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 3, res.EnrollmentsAnalyzed)
	assert.Equal(t, 1, res.EnrollmentsCreated)
	assert.Equal(t, 1, res.EnrollmentsRemoved)

	var removal string
	for _, entry := range e.Job().Transcript() {
		if strings.Contains(entry.Message, "Removed user") {
			removal = entry.Message
		}
	}
	require.NotEmpty(t, removal)
	assert.Contains(t, removal, "from section Algebra I")

	enrolled, err := store.participants.ListStudentIDs(ctx, s.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{students[0].ID, students[1].ID, students[2].ID}, enrolled)
}

func TestEnrollmentFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing student number", func(t *testing.T) {
		store := batchFixture()
		e := newTestEngine(store, batchConfig())
		res, err := e.PullEnrollments(ctx, NewSliceSource([][]string{
			{"School ID Number", "Section 1"},
			{"", "1001"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"-": 1}, res.Failed[ReasonMissingStudentNumber])
	})

	t.Run("unknown student", func(t *testing.T) {
		store := batchFixture()
		e := newTestEngine(store, batchConfig())
		res, err := e.PullEnrollments(ctx, NewSliceSource([][]string{
			{"School ID Number", "Section 1"},
			{"9999", "1001"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"9999": 1}, res.Failed[ReasonStudentNotFound])
	})

	t.Run("unresolved section reference", func(t *testing.T) {
		store := batchFixture()
		u := user.NewStudent()
		u.Phantom = false
		u.StudentNumber = "4211"
		require.NoError(t, store.users.Save(ctx, u))

		e := newTestEngine(store, batchConfig())
		res, err := e.PullEnrollments(ctx, NewSliceSource([][]string{
			{"School ID Number", "Section 1"},
			{"4211", "8888"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"8888": 1}, res.Failed[ReasonSectionNotFound])
	})

	t.Run("orphaned mapping reported, not repaired", func(t *testing.T) {
		store := batchFixture()
		master, err := store.terms.GetByHandle(ctx, "2026-2027")
		require.NoError(t, err)
		u := user.NewStudent()
		u.Phantom = false
		u.StudentNumber = "4211"
		require.NoError(t, store.users.Save(ctx, u))
		require.NoError(t, store.mappings.Create(ctx,
			mapping.New("spreadsheet", mapping.SectionForeignKey, sectionMappingIdentifier(master, "9999"), mapping.ContextSection, uuid.New())))

		e := newTestEngine(store, batchConfig())
		res, err := e.PullEnrollments(ctx, NewSliceSource([][]string{
			{"School ID Number", "Section 1"},
			{"4211", "9999"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"9999": 1}, res.Failed[ReasonOrphanMapping])
	})

	t.Run("divider splits stacked references", func(t *testing.T) {
		store := batchFixture()
		u := user.NewStudent()
		u.Phantom = false
		u.StudentNumber = "4211"
		require.NoError(t, store.users.Save(ctx, u))

		cfg := batchConfig()
		cfg.EnrollmentDivider = ","
		e := newTestEngine(store, cfg)
		res, err := e.PullEnrollments(ctx, NewSliceSource([][]string{
			{"School ID Number", "Sections"},
			{"4211", "1001, 1002"},
		}))
		require.NoError(t, err)
		assert.Equal(t, 2, res.EnrollmentsAnalyzed)
	})
}

func TestSectionFailures(t *testing.T) {
	ctx := context.Background()

	header := []string{"Section ID", "Section Code", "Title", "Course Code", "Teacher", "Term"}

	t.Run("unknown teacher sinks the row", func(t *testing.T) {
		store := batchFixture()
		e := newTestEngine(store, batchConfig())
		res, err := e.PullSections(ctx, NewSliceSource([][]string{
			header,
			{"1001", "MATH-101-1", "Algebra I", "MATH-101", "ghost", "fall-2026"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"ghost": 1}, res.Failed[ReasonTeacherNotByUsername])
		assert.Empty(t, store.sections.sections)
	})

	t.Run("term outside the master term", func(t *testing.T) {
		store := batchFixture()
		e := newTestEngine(store, batchConfig())
		res, err := e.PullSections(ctx, NewSliceSource([][]string{
			header,
			{"1001", "MATH-101-1", "Algebra I", "MATH-101", "jdoe", "spring-2026"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"spring-2026": 1}, res.Failed[ReasonTermOutsideMaster])
	})

	t.Run("unknown term", func(t *testing.T) {
		store := batchFixture()
		e := newTestEngine(store, batchConfig())
		res, err := e.PullSections(ctx, NewSliceSource([][]string{
			header,
			{"1001", "MATH-101-1", "Algebra I", "MATH-101", "jdoe", "winter-2099"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"winter-2099": 1}, res.Failed[ReasonTermNotFound])
	})

	t.Run("missing course code", func(t *testing.T) {
		store := batchFixture()
		e := newTestEngine(store, batchConfig())
		res, err := e.PullSections(ctx, NewSliceSource([][]string{
			header,
			{"1001", "MATH-101-1", "Algebra I", "", "jdoe", "fall-2026"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{FieldCourseCode: 1}, res.Failed[ReasonMissingRequiredField])
	})

	t.Run("course not created when the preset forbids it", func(t *testing.T) {
		store := batchFixture()
		preset := Base()
		preset.CreateMissingCourses = false
		j := job.New("spreadsheet", batchConfig(), nil)
		e := NewEngine(preset, store.Store, j)

		res, err := e.PullSections(ctx, NewSliceSource([][]string{
			header,
			{"1001", "MATH-101-1", "Algebra I", "MATH-101", "jdoe", "fall-2026"},
		}))
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"MATH-101": 1}, res.Failed[ReasonCourseNotFound])
	})
}

func TestPullStudentsRequiresColumns(t *testing.T) {
	e := newTestEngine(newMemStore(), job.Config{})
	_, err := e.PullStudents(context.Background(), NewSliceSource([][]string{
		{"Student ID", "First Name"},
		{"4211", "Mary"},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), FieldLastName)
}

func TestSynchronizeFailsJobOnPassError(t *testing.T) {
	ctx := context.Background()
	store := batchFixture()
	cfg := batchConfig()
	cfg.MasterTerm = "" // sections cannot resolve a master term
	e := newTestEngine(store, cfg)

	_, err := e.Synchronize(ctx, Sources{Sections: NewSliceSource([][]string{
		{"Section Code", "Course Code"},
		{"MATH-101-1", "MATH-101"},
	})})
	require.Error(t, err)
	assert.Equal(t, job.StatusFailed, e.Job().Status)

	saved, err := store.jobs.GetByID(ctx, e.Job().ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, saved.Status)
}

// recordingBus captures published events in order.
type recordingBus struct{ events *[]any }

func (b recordingBus) Publish(args ...interface{}) { *b.events = append(*b.events, args...) }
func (b recordingBus) Subscribe(interface{})       {}
func (b recordingBus) Unsubscribe(interface{})     {}
func (b recordingBus) Clear()                      {}
func (b recordingBus) SubscribersCount() int       { return 0 }

func TestSynchronizePublishesEvents(t *testing.T) {
	ctx := context.Background()
	store := batchFixture()

	var events []any
	bus := recordingBus{events: &events}
	e := newTestEngine(store, batchConfig(), WithEventBus(bus))

	_, err := e.Synchronize(ctx, Sources{Students: NewSliceSource([][]string{
		{"Student ID", "First Name", "Last Name"},
		{"4211", "Mary", "Smith"},
	})})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.IsType(t, JobStarted{}, events[0])
	pass, ok := events[1].(PassCompleted)
	require.True(t, ok)
	assert.Equal(t, "students", pass.Pass)
	assert.IsType(t, JobCompleted{}, events[2])
}
