package sync

import (
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

// Store bundles every repository the engine touches. The CLI wires the
// pgx implementations; tests wire in-memory fakes.
type Store struct {
	Users        user.Repository
	Groups       group.Repository
	Emails       emailaddress.Repository
	Terms        term.Repository
	Courses      course.Repository
	Departments  course.DepartmentRepository
	Sections     section.Repository
	Participants section.ParticipantRepository
	Schedules    schedule.Repository
	Locations    location.Repository
	Mappings     mapping.Repository
	Jobs         job.Repository
}
