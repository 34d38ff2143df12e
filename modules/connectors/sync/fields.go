package sync

// Canonical field names produced by the row mapper and consumed by the
// resolver and reconcilers. Column maps translate source headers into
// these.
const (
	FieldForeignKey     = "ForeignKey"
	FieldStudentNumber  = "StudentNumber"
	FieldUsername       = "Username"
	FieldPassword       = "Password"
	FieldEmail          = "Email"
	FieldFirstName      = "FirstName"
	FieldLastName       = "LastName"
	FieldMiddleName     = "MiddleName"
	FieldPreferredName  = "PreferredName"
	FieldFullName       = "FullName"
	FieldGender         = "Gender"
	FieldBirthDate      = "BirthDate"
	FieldAbout          = "About"
	FieldAccountLevel   = "AccountLevel"
	FieldGrade          = "Grade"
	FieldGraduationYear = "GraduationYear"
	FieldSchool         = "School"
	FieldCohort         = "Cohort"

	FieldAdvisorUsername   = "AdvisorUsername"
	FieldAdvisorForeignKey = "AdvisorForeignKey"
	FieldAdvisorFirstName  = "AdvisorFirstName"
	FieldAdvisorLastName   = "AdvisorLastName"
	FieldAdvisorFullName   = "AdvisorFullName"

	FieldSectionExternal = "SectionExternal"
	FieldSectionCode     = "SectionCode"
	FieldSectionTitle    = "SectionTitle"
	FieldCourseCode      = "CourseCode"
	FieldCourseExternal  = "CourseExternal"
	FieldCourseTitle     = "CourseTitle"
	FieldDepartment      = "Department"
	FieldTerm            = "Term"
	FieldSchedule        = "Schedule"
	FieldLocation        = "Location"
	FieldCapacity        = "Capacity"
	FieldNotes           = "Notes"

	FieldTeacherUsername  = "TeacherUsername"
	FieldTeacherFirstName = "TeacherFirstName"
	FieldTeacherLastName  = "TeacherLastName"
	FieldTeacherFullName  = "TeacherFullName"
)
