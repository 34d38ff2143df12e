package sync

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/course"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

// FilterFunc may flag a row to skip before resolution. The reason string
// feeds the filtered counter; empty means "no-reason".
type FilterFunc func(row rowmap.Row) (skip bool, reason string)

// Hooks are the connector-specific extension points. Every hook is
// optional; a nil hook means the engine's default behavior.
type Hooks struct {
	// Row-transform hooks run right after column mapping, before
	// resolution. They may derive or reshape fields in place.
	ReadStudent    func(row *rowmap.Row)
	ReadStaff      func(row *rowmap.Row)
	ReadSection    func(row *rowmap.Row)
	ReadEnrollment func(row *rowmap.Row)

	// FilterPerson may skip person rows (students, alumni, staff).
	FilterPerson FilterFunc

	// FilterSection and FilterEnrollment may skip their rows the same way.
	FilterSection    FilterFunc
	FilterEnrollment FilterFunc

	// OnUserNotFound runs when every resolution strategy failed. It may
	// locate or synthesize a user; returning (nil, nil) means the engine
	// creates a fresh record.
	OnUserNotFound func(ctx context.Context, st *Store, row rowmap.Row) (*user.User, error)

	// SectionTitle formats the default title for a section that has none;
	// nil falls back to the course's title or code.
	SectionTitle func(row rowmap.Row, c *course.Course) string

	// ResolveTermHandle derives a section's term handle from the row when
	// the source does not carry one directly; empty falls through to the
	// row's Term field.
	ResolveTermHandle func(row rowmap.Row, master *term.Term) string

	// SecondaryTeacher extracts an additional teacher's full name from a
	// section row (typically from the overflow bucket); empty means none.
	SecondaryTeacher func(row rowmap.Row) string
}

// Preset is one data source's complete import configuration: column
// synonym tables, required fields, group placement rules, reference
// resolution flags and hooks. Presets are compiled in per connector and
// may be overlaid from YAML.
type Preset struct {
	ID    string
	Title string

	StudentColumns    []rowmap.ColumnMap
	AlumniColumns     []rowmap.ColumnMap
	StaffColumns      []rowmap.ColumnMap
	SectionColumns    []rowmap.ColumnMap
	EnrollmentColumns []rowmap.ColumnMap

	StudentRequired    []string
	AlumniRequired     []string
	StaffRequired      []string
	SectionRequired    []string
	EnrollmentRequired []string

	// Root group handles per person kind. When GroupsBySchool is set the
	// row's School field selects the root group instead, and a missing or
	// unmapped school is a row failure.
	StudentsRootGroup string
	AlumniRootGroup   string
	StaffRootGroup    string
	TeachersRootGroup string
	GroupsBySchool    map[string]string

	// StudentsGraduationYearGroups nests students under an on-demand
	// "Class of YYYY" subgroup of their root group.
	StudentsGraduationYearGroups bool

	// Enrollment reference resolution. Code references are tried before
	// mapping references when both are enabled.
	SectionCodeReferences    bool
	SectionMappingReferences bool

	RequireSectionCourseCode bool
	CreateMissingCourses     bool
	// CoursesByTitle falls back to a course-title lookup when the code
	// lookup finds nothing.
	CoursesByTitle bool

	Hooks Hooks
}

// Base returns the shared default preset every connector layers its own
// configuration over.
func Base() Preset {
	return Preset{
		ID:                "spreadsheet",
		Title:             "Spreadsheet",
		StudentColumns:    baseStudentColumns(),
		AlumniColumns:     baseAlumniColumns(),
		StaffColumns:      baseStaffColumns(),
		SectionColumns:    baseSectionColumns(),
		EnrollmentColumns: baseEnrollmentColumns(),

		StudentRequired:    []string{FieldStudentNumber, FieldFirstName, FieldLastName},
		AlumniRequired:     []string{FieldFirstName, FieldLastName},
		StaffRequired:      []string{FieldFirstName, FieldLastName},
		SectionRequired:    []string{FieldCourseCode},
		EnrollmentRequired: []string{FieldStudentNumber},

		StudentsRootGroup: "students",
		AlumniRootGroup:   "alumni",
		StaffRootGroup:    "staff",
		TeachersRootGroup: "teachers",

		StudentsGraduationYearGroups: true,
		SectionMappingReferences:     true,
		RequireSectionCourseCode:     true,
		CreateMissingCourses:         true,
	}
}

func baseStudentColumns() []rowmap.ColumnMap {
	return []rowmap.ColumnMap{
		{Header: "Key", Field: FieldForeignKey},
		{Header: "School ID Number", Field: FieldStudentNumber},
		{Header: "Student ID", Field: FieldStudentNumber},
		{Header: "Username", Field: FieldUsername},
		{Header: "Password", Field: FieldPassword},
		{Header: "Email", Field: FieldEmail},
		{Header: "First Name", Field: FieldFirstName},
		{Header: "First", Field: FieldFirstName},
		{Header: "Last Name", Field: FieldLastName},
		{Header: "Last", Field: FieldLastName},
		{Header: "Middle Name", Field: FieldMiddleName},
		{Header: "Middle", Field: FieldMiddleName},
		{Header: "Gender", Field: FieldGender},
		{Header: "Sex", Field: FieldGender},
		{Header: "Birth Date", Field: FieldBirthDate},
		{Header: "Birthday", Field: FieldBirthDate},
		{Header: "Graduation Year", Field: FieldGraduationYear},
		{Header: "Graduation", Field: FieldGraduationYear},
		{Header: "Grade", Field: FieldGrade},
		{Header: "School", Field: FieldSchool},
		{Header: "Cohort", Field: FieldCohort},
		{Header: "Group", Field: FieldCohort},
		{Header: "Advisor", Field: FieldAdvisorUsername},
	}
}

func baseAlumniColumns() []rowmap.ColumnMap {
	return []rowmap.ColumnMap{
		{Header: "Username", Field: FieldUsername},
		{Header: "Password", Field: FieldPassword},
		{Header: "Email", Field: FieldEmail},
		{Header: "First Name", Field: FieldFirstName},
		{Header: "First", Field: FieldFirstName},
		{Header: "Last Name", Field: FieldLastName},
		{Header: "Last", Field: FieldLastName},
		{Header: "Middle Name", Field: FieldMiddleName},
		{Header: "Middle", Field: FieldMiddleName},
		{Header: "Gender", Field: FieldGender},
		{Header: "Sex", Field: FieldGender},
		{Header: "Birth Date", Field: FieldBirthDate},
		{Header: "Birthday", Field: FieldBirthDate},
		{Header: "Graduation Year", Field: FieldGraduationYear},
		{Header: "Graduation", Field: FieldGraduationYear},
	}
}

func baseStaffColumns() []rowmap.ColumnMap {
	return []rowmap.ColumnMap{
		{Header: "First Name", Field: FieldFirstName},
		{Header: "First", Field: FieldFirstName},
		{Header: "Last Name", Field: FieldLastName},
		{Header: "Last", Field: FieldLastName},
		{Header: "Middle Name", Field: FieldMiddleName},
		{Header: "Middle", Field: FieldMiddleName},
		{Header: "Gender", Field: FieldGender},
		{Header: "Sex", Field: FieldGender},
		{Header: "Birth Date", Field: FieldBirthDate},
		{Header: "Birthday", Field: FieldBirthDate},
		{Header: "Username", Field: FieldUsername},
		{Header: "Password", Field: FieldPassword},
		{Header: "Account Level", Field: FieldAccountLevel},
		{Header: "Account Type", Field: FieldAccountLevel},
		{Header: "Role / Job Title", Field: FieldAbout},
		{Header: "Email", Field: FieldEmail},
		{Header: "School", Field: FieldSchool},
	}
}

func baseSectionColumns() []rowmap.ColumnMap {
	return []rowmap.ColumnMap{
		{Header: "Section ID", Field: FieldSectionExternal},
		{Header: "Section Code", Field: FieldSectionCode},
		{Header: "Title", Field: FieldSectionTitle},
		{Header: "Course Code", Field: FieldCourseCode},
		{Header: "Teacher", Field: FieldTeacherUsername},
		{Header: "Term", Field: FieldTerm},
		{Header: "Terms", Field: FieldTerm},
		{Header: "Schedule", Field: FieldSchedule},
		{Header: "Location", Field: FieldLocation},
		{Header: "Room", Field: FieldLocation},
		{Header: "Students Capacity", Field: FieldCapacity},
		{Header: "# of Students", Field: FieldCapacity},
		{Header: "Seats", Field: FieldCapacity},
		{Header: "Notes", Field: FieldNotes},
	}
}

func baseEnrollmentColumns() []rowmap.ColumnMap {
	return []rowmap.ColumnMap{
		{Header: "School ID Number", Field: FieldStudentNumber},
		{Header: "School ID", Field: FieldStudentNumber},
		{Header: "Student Number", Field: FieldStudentNumber},
	}
}

// Overlay is the YAML shape of a preset override file: column synonym
// tables as header-to-field maps (a "-" field discards the column), plus the
// handful of scalar settings sites adjust per deployment. Overlay columns
// stack on top of the preset's compiled-in tables.
type Overlay struct {
	Title             string            `yaml:"title"`
	GroupsBySchool    map[string]string `yaml:"groupsBySchool"`
	StudentColumns    map[string]string `yaml:"studentColumns"`
	StaffColumns      map[string]string `yaml:"staffColumns"`
	SectionColumns    map[string]string `yaml:"sectionColumns"`
	EnrollmentColumns map[string]string `yaml:"enrollmentColumns"`
}

// WithOverlayFile layers a YAML overlay over the preset and returns the
// merged copy.
func (p Preset) WithOverlayFile(path string) (Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrap(err, "reading preset overlay")
	}
	var overlay Overlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return p, errors.Wrap(err, "parsing preset overlay")
	}
	return p.WithOverlay(overlay), nil
}

func (p Preset) WithOverlay(o Overlay) Preset {
	if o.Title != "" {
		p.Title = o.Title
	}
	if len(o.GroupsBySchool) > 0 {
		merged := make(map[string]string, len(p.GroupsBySchool)+len(o.GroupsBySchool))
		for k, v := range p.GroupsBySchool {
			merged[k] = v
		}
		for k, v := range o.GroupsBySchool {
			merged[k] = v
		}
		p.GroupsBySchool = merged
	}
	p.StudentColumns = rowmap.Stack(p.StudentColumns, overlayColumns(o.StudentColumns))
	p.AlumniColumns = rowmap.Stack(p.AlumniColumns, overlayColumns(o.StudentColumns))
	p.StaffColumns = rowmap.Stack(p.StaffColumns, overlayColumns(o.StaffColumns))
	p.SectionColumns = rowmap.Stack(p.SectionColumns, overlayColumns(o.SectionColumns))
	p.EnrollmentColumns = rowmap.Stack(p.EnrollmentColumns, overlayColumns(o.EnrollmentColumns))
	return p
}

func overlayColumns(columns map[string]string) []rowmap.ColumnMap {
	out := make([]rowmap.ColumnMap, 0, len(columns))
	for header, field := range columns {
		if field == "-" {
			field = rowmap.Discard
		}
		out = append(out, rowmap.ColumnMap{Header: header, Field: field})
	}
	return out
}
