package sync

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/emailaddress"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/group"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/course"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/location"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/schedule"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

// In-memory repositories backing engine tests. They honor the same
// contracts as the pgx implementations: ErrNotFound sentinels,
// case-insensitive name and address lookups, exactly-one full-name
// matches.

type memUsers struct {
	users []*user.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*user.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByStudentNumber(_ context.Context, studentNumber string) (*user.User, error) {
	for _, u := range m.users {
		if u.StudentNumber == studentNumber {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetByFullName(_ context.Context, firstName, lastName string) (*user.User, error) {
	var matches []*user.User
	for _, u := range m.users {
		if strings.EqualFold(u.FirstName, firstName) && strings.EqualFold(u.LastName, lastName) {
			matches = append(matches, u)
		}
	}
	if len(matches) != 1 {
		return nil, user.ErrNotFound
	}
	return matches[0], nil
}

func (m *memUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) Save(_ context.Context, u *user.User) error {
	for i, existing := range m.users {
		if existing.ID == u.ID {
			m.users[i] = u
			return nil
		}
	}
	m.users = append(m.users, u)
	return nil
}

type memGroups struct {
	groups  []*group.Group
	members map[uuid.UUID][]uuid.UUID
	nextLft int
}

func (m *memGroups) GetByHandle(_ context.Context, handle string) (*group.Group, error) {
	for _, g := range m.groups {
		if g.Handle == handle {
			return g, nil
		}
	}
	return nil, group.ErrNotFound
}

func (m *memGroups) GetByParentAndName(_ context.Context, parentID uuid.UUID, name string) (*group.Group, error) {
	for _, g := range m.groups {
		if g.ParentID != nil && *g.ParentID == parentID && strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	return nil, group.ErrNotFound
}

func (m *memGroups) ListForUser(_ context.Context, userID uuid.UUID) ([]*group.Group, error) {
	var out []*group.Group
	for groupID, userIDs := range m.members {
		for _, id := range userIDs {
			if id != userID {
				continue
			}
			for _, g := range m.groups {
				if g.ID == groupID {
					out = append(out, g)
				}
			}
		}
	}
	return out, nil
}

func (m *memGroups) Save(_ context.Context, g *group.Group) error {
	for i, existing := range m.groups {
		if existing.ID == g.ID {
			m.groups[i] = g
			return nil
		}
	}
	if g.Left == 0 {
		m.nextLft += 2
		g.Left = 1000 + m.nextLft
		g.Right = g.Left + 1
	}
	m.groups = append(m.groups, g)
	return nil
}

func (m *memGroups) AddMember(_ context.Context, groupID, userID uuid.UUID) error {
	if m.members == nil {
		m.members = map[uuid.UUID][]uuid.UUID{}
	}
	for _, id := range m.members[groupID] {
		if id == userID {
			return nil
		}
	}
	m.members[groupID] = append(m.members[groupID], userID)
	return nil
}

type memEmails struct {
	emails []*emailaddress.EmailAddress
}

func (m *memEmails) GetByAddress(_ context.Context, address string) (*emailaddress.EmailAddress, error) {
	for _, e := range m.emails {
		if emailaddress.Equal(e.Address, address) {
			return e, nil
		}
	}
	return nil, emailaddress.ErrNotFound
}

func (m *memEmails) GetPrimaryForUser(_ context.Context, userID uuid.UUID) (*emailaddress.EmailAddress, error) {
	for _, e := range m.emails {
		if e.UserID == userID && e.Primary {
			return e, nil
		}
	}
	return nil, emailaddress.ErrNotFound
}

func (m *memEmails) Save(_ context.Context, point *emailaddress.EmailAddress) error {
	if point.Primary {
		for _, e := range m.emails {
			if e.UserID == point.UserID && e.ID != point.ID {
				e.Primary = false
			}
		}
	}
	for i, e := range m.emails {
		if e.ID == point.ID {
			m.emails[i] = point
			return nil
		}
	}
	m.emails = append(m.emails, point)
	return nil
}

type memTerms struct {
	terms          []*term.Term
	graduationYear int
}

func (m *memTerms) GetByID(_ context.Context, id uuid.UUID) (*term.Term, error) {
	for _, t := range m.terms {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, term.ErrNotFound
}

func (m *memTerms) GetByHandle(_ context.Context, handle string) (*term.Term, error) {
	for _, t := range m.terms {
		if t.Handle == handle {
			return t, nil
		}
	}
	return nil, term.ErrNotFound
}

func (m *memTerms) ClosestGraduationYear(_ context.Context) (int, error) {
	if m.graduationYear == 0 {
		return 0, term.ErrNotFound
	}
	return m.graduationYear, nil
}

type memCourses struct {
	courses []*course.Course
}

func (m *memCourses) GetByID(_ context.Context, id uuid.UUID) (*course.Course, error) {
	for _, c := range m.courses {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, course.ErrNotFound
}

func (m *memCourses) GetByCode(_ context.Context, code string) (*course.Course, error) {
	for _, c := range m.courses {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return nil, course.ErrNotFound
}

func (m *memCourses) GetByTitle(_ context.Context, title string) (*course.Course, error) {
	for _, c := range m.courses {
		if strings.EqualFold(c.Title, title) {
			return c, nil
		}
	}
	return nil, course.ErrNotFound
}

func (m *memCourses) Save(_ context.Context, c *course.Course) error {
	for i, existing := range m.courses {
		if existing.ID == c.ID {
			m.courses[i] = c
			return nil
		}
	}
	m.courses = append(m.courses, c)
	return nil
}

type memDepartments struct {
	departments []*course.Department
}

func (m *memDepartments) GetByTitle(_ context.Context, title string) (*course.Department, error) {
	for _, d := range m.departments {
		if strings.EqualFold(d.Title, title) {
			return d, nil
		}
	}
	return nil, course.ErrDepartmentNotFound
}

func (m *memDepartments) Save(_ context.Context, d *course.Department) error {
	m.departments = append(m.departments, d)
	return nil
}

type memSections struct {
	sections []*section.Section
}

func (m *memSections) GetByID(_ context.Context, id uuid.UUID) (*section.Section, error) {
	for _, s := range m.sections {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, section.ErrNotFound
}

func (m *memSections) GetByCode(_ context.Context, code string) (*section.Section, error) {
	for _, s := range m.sections {
		if s.Code == code {
			return s, nil
		}
	}
	return nil, section.ErrNotFound
}

func (m *memSections) Save(_ context.Context, s *section.Section) error {
	for i, existing := range m.sections {
		if existing.ID == s.ID {
			m.sections[i] = s
			return nil
		}
	}
	m.sections = append(m.sections, s)
	return nil
}

type memParticipants struct {
	participants []*section.Participant
}

func (m *memParticipants) GetBySectionAndPerson(_ context.Context, sectionID, personID uuid.UUID) (*section.Participant, error) {
	for _, p := range m.participants {
		if p.SectionID == sectionID && p.PersonID == personID {
			return p, nil
		}
	}
	return nil, section.ErrParticipantNotFound
}

func (m *memParticipants) Save(_ context.Context, p *section.Participant) error {
	for i, existing := range m.participants {
		if existing.SectionID == p.SectionID && existing.PersonID == p.PersonID {
			m.participants[i] = p
			return nil
		}
	}
	m.participants = append(m.participants, p)
	return nil
}

func (m *memParticipants) ListStudentIDs(_ context.Context, sectionID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, p := range m.participants {
		if p.SectionID == sectionID && p.Role == section.RoleStudent {
			out = append(out, p.PersonID)
		}
	}
	return out, nil
}

func (m *memParticipants) RemoveStudents(_ context.Context, sectionID uuid.UUID, personIDs []uuid.UUID) error {
	drop := map[uuid.UUID]bool{}
	for _, id := range personIDs {
		drop[id] = true
	}
	kept := m.participants[:0]
	for _, p := range m.participants {
		if p.SectionID == sectionID && p.Role == section.RoleStudent && drop[p.PersonID] {
			continue
		}
		kept = append(kept, p)
	}
	m.participants = kept
	return nil
}

type memSchedules struct {
	schedules []*schedule.Schedule
}

func (m *memSchedules) GetByTitle(_ context.Context, title string) (*schedule.Schedule, error) {
	for _, s := range m.schedules {
		if strings.EqualFold(s.Title, title) {
			return s, nil
		}
	}
	return nil, schedule.ErrNotFound
}

func (m *memSchedules) Save(_ context.Context, s *schedule.Schedule) error {
	m.schedules = append(m.schedules, s)
	return nil
}

type memLocations struct {
	locations []*location.Location
}

func (m *memLocations) GetByHandle(_ context.Context, handle string) (*location.Location, error) {
	for _, l := range m.locations {
		if l.Handle == handle {
			return l, nil
		}
	}
	return nil, location.ErrNotFound
}

func (m *memLocations) Save(_ context.Context, l *location.Location) error {
	m.locations = append(m.locations, l)
	return nil
}

type memMappings struct {
	mappings []*mapping.Mapping
}

func (m *memMappings) Find(_ context.Context, connector, externalKey, externalIdentifier string) (*mapping.Mapping, error) {
	for _, found := range m.mappings {
		if found.Connector == connector && found.ExternalKey == externalKey && found.ExternalIdentifier == externalIdentifier {
			return found, nil
		}
	}
	return nil, mapping.ErrNotFound
}

func (m *memMappings) Create(_ context.Context, created *mapping.Mapping) error {
	m.mappings = append(m.mappings, created)
	return nil
}

type memJobs struct {
	jobs map[uuid.UUID]*job.Job
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	if j, ok := m.jobs[id]; ok {
		return j, nil
	}
	return nil, job.ErrNotFound
}

func (m *memJobs) Save(_ context.Context, j *job.Job) error {
	if m.jobs == nil {
		m.jobs = map[uuid.UUID]*job.Job{}
	}
	m.jobs[j.ID] = j
	return nil
}

// memStore bundles the fakes with direct access to their contents for
// seeding and assertions.
type memStore struct {
	*Store
	users        *memUsers
	groups       *memGroups
	emails       *memEmails
	terms        *memTerms
	courses      *memCourses
	departments  *memDepartments
	sections     *memSections
	participants *memParticipants
	schedules    *memSchedules
	locations    *memLocations
	mappings     *memMappings
	jobs         *memJobs
}

func newMemStore() *memStore {
	m := &memStore{
		users:        &memUsers{},
		groups:       &memGroups{members: map[uuid.UUID][]uuid.UUID{}},
		emails:       &memEmails{},
		terms:        &memTerms{},
		courses:      &memCourses{},
		departments:  &memDepartments{},
		sections:     &memSections{},
		participants: &memParticipants{},
		schedules:    &memSchedules{},
		locations:    &memLocations{},
		mappings:     &memMappings{},
		jobs:         &memJobs{jobs: map[uuid.UUID]*job.Job{}},
	}
	m.Store = &Store{
		Users:        m.users,
		Groups:       m.groups,
		Emails:       m.emails,
		Terms:        m.terms,
		Courses:      m.courses,
		Departments:  m.departments,
		Sections:     m.sections,
		Participants: m.participants,
		Schedules:    m.schedules,
		Locations:    m.locations,
		Mappings:     m.mappings,
		Jobs:         m.jobs,
	}
	return m
}
