package sync

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/emailaddress"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/group"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/course"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/location"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/schedule"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
)

// scratch indexes the records created during the current job so later
// rows resolve them even in pretend mode, where nothing reaches storage.
// Without it a dry run would re-create the same class group or schedule
// on every row while a committed run creates it once, and the two runs
// would diverge, the one property pretend mode must never break.
type scratch struct {
	usersByStudentNumber map[string]*user.User
	usersByUsername      map[string]*user.User
	groupsByHandle       map[string]*group.Group
	memberships          map[string]bool
	emailsByUser         map[uuid.UUID]*emailaddress.EmailAddress
	coursesByCode        map[string]*course.Course
	coursesByTitle       map[string]*course.Course
	departmentsByTitle   map[string]*course.Department
	schedulesByTitle     map[string]*schedule.Schedule
	locationsByHandle    map[string]*location.Location
	sectionsByCode       map[string]*section.Section
	sectionsByExternal   map[string]*section.Section
	participants         map[string]*section.Participant
	mappings             map[string]bool
}

func newScratch() *scratch {
	return &scratch{
		usersByStudentNumber: map[string]*user.User{},
		usersByUsername:      map[string]*user.User{},
		groupsByHandle:       map[string]*group.Group{},
		memberships:          map[string]bool{},
		emailsByUser:         map[uuid.UUID]*emailaddress.EmailAddress{},
		coursesByCode:        map[string]*course.Course{},
		coursesByTitle:       map[string]*course.Course{},
		departmentsByTitle:   map[string]*course.Department{},
		schedulesByTitle:     map[string]*schedule.Schedule{},
		locationsByHandle:    map[string]*location.Location{},
		sectionsByCode:       map[string]*section.Section{},
		sectionsByExternal:   map[string]*section.Section{},
		participants:         map[string]*section.Participant{},
		mappings:             map[string]bool{},
	}
}

func (s *scratch) addUser(u *user.User) {
	if u.StudentNumber != "" {
		s.usersByStudentNumber[u.StudentNumber] = u
	}
	if u.Username != "" {
		s.usersByUsername[u.Username] = u
	}
}

func pairKey(a, b uuid.UUID) string {
	return a.String() + "/" + b.String()
}

// Lookup helpers: scratch first, then the repository.

func (e *Engine) lookupUserByStudentNumber(ctx context.Context, studentNumber string) (*user.User, error) {
	if u, ok := e.scratch.usersByStudentNumber[studentNumber]; ok {
		return u, nil
	}
	return e.store.Users.GetByStudentNumber(ctx, studentNumber)
}

func (e *Engine) lookupUserByUsername(ctx context.Context, username string) (*user.User, error) {
	if u, ok := e.scratch.usersByUsername[username]; ok {
		return u, nil
	}
	return e.store.Users.GetByUsername(ctx, username)
}

func (e *Engine) lookupGroupByHandle(ctx context.Context, handle string) (*group.Group, error) {
	if g, ok := e.scratch.groupsByHandle[handle]; ok {
		return g, nil
	}
	return e.store.Groups.GetByHandle(ctx, handle)
}

func (e *Engine) lookupCourseByCode(ctx context.Context, code string) (*course.Course, error) {
	if c, ok := e.scratch.coursesByCode[code]; ok {
		return c, nil
	}
	return e.store.Courses.GetByCode(ctx, code)
}

func (e *Engine) lookupCourseByTitle(ctx context.Context, title string) (*course.Course, error) {
	if c, ok := e.scratch.coursesByTitle[title]; ok {
		return c, nil
	}
	return e.store.Courses.GetByTitle(ctx, title)
}

func (e *Engine) lookupDepartmentByTitle(ctx context.Context, title string) (*course.Department, error) {
	if d, ok := e.scratch.departmentsByTitle[title]; ok {
		return d, nil
	}
	return e.store.Departments.GetByTitle(ctx, title)
}

func (e *Engine) lookupPrimaryEmail(ctx context.Context, userID uuid.UUID) (*emailaddress.EmailAddress, error) {
	if point, ok := e.scratch.emailsByUser[userID]; ok {
		return point, nil
	}
	return e.store.Emails.GetPrimaryForUser(ctx, userID)
}

func (e *Engine) lookupScheduleByTitle(ctx context.Context, title string) (*schedule.Schedule, error) {
	if s, ok := e.scratch.schedulesByTitle[title]; ok {
		return s, nil
	}
	return e.store.Schedules.GetByTitle(ctx, title)
}

func (e *Engine) lookupLocationByHandle(ctx context.Context, handle string) (*location.Location, error) {
	if l, ok := e.scratch.locationsByHandle[handle]; ok {
		return l, nil
	}
	return e.store.Locations.GetByHandle(ctx, handle)
}

func (e *Engine) lookupSectionByCode(ctx context.Context, code string) (*section.Section, error) {
	if s, ok := e.scratch.sectionsByCode[code]; ok {
		return s, nil
	}
	return e.store.Sections.GetByCode(ctx, code)
}

func (e *Engine) lookupParticipant(ctx context.Context, sectionID, personID uuid.UUID) (*section.Participant, error) {
	if p, ok := e.scratch.participants[pairKey(sectionID, personID)]; ok {
		return p, nil
	}
	return e.store.Participants.GetBySectionAndPerson(ctx, sectionID, personID)
}

func (e *Engine) hasMembership(ctx context.Context, target *group.Group, userID uuid.UUID) (bool, error) {
	if e.scratch.memberships[pairKey(target.ID, userID)] {
		return true, nil
	}
	memberships, err := e.store.Groups.ListForUser(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "listing group memberships")
	}
	for _, m := range memberships {
		if m.ID == target.ID || target.Contains(m) {
			return true, nil
		}
	}
	return false, nil
}
