// Package infinitecampus configures the import engine for Infinite
// Campus spreadsheet exports. Infinite Campus sheets identify sections
// by numeric IDs rather than codes, name teachers as "Last, First"
// display strings, and encode a section's term as a length/end-quarter
// pair instead of a handle.
package infinitecampus

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/connectors/sync"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

// lastFirst matches "Last, First" display names, tolerating apostrophes
// and hyphens.
var lastFirst = regexp.MustCompile(`^([A-Za-z'\-]+),\s*([A-Za-z'\-]+)`)

// Preset returns the Infinite Campus import configuration layered over
// the shared spreadsheet defaults.
func Preset() sync.Preset {
	p := sync.Base()
	p.ID = "infinite-campus"
	p.Title = "Infinite Campus"

	p.StudentColumns = rowmap.Stack(p.StudentColumns, []rowmap.ColumnMap{
		{Header: "Student Number", Field: sync.FieldStudentNumber},
		{Header: "Homeroom Teacher", Field: sync.FieldAdvisorFullName},
	})

	// The section sheet shares almost nothing with the generic layout, so
	// its column table replaces the base one outright.
	p.SectionColumns = []rowmap.ColumnMap{
		{Header: "Section ID", Field: sync.FieldSectionExternal},
		{Header: "Course Number", Field: sync.FieldCourseExternal},
		{Header: "Course Name", Field: sync.FieldCourseTitle},
		{Header: "Max Students", Field: sync.FieldCapacity},
		{Header: "Room Name", Field: sync.FieldLocation},
	}
	p.SectionRequired = nil
	p.RequireSectionCourseCode = false

	// Courses are maintained in Slate by hand; the import matches them by
	// foreign key, code or title but never creates them.
	p.CreateMissingCourses = false
	p.CoursesByTitle = true

	p.Hooks.ReadStudent = readStudent
	p.Hooks.ReadSection = readSection
	p.Hooks.SecondaryTeacher = secondaryTeacher
	p.Hooks.ResolveTermHandle = resolveTermHandle
	return p
}

// readStudent splits a "Last, First" homeroom teacher into advisor name
// parts.
func readStudent(row *rowmap.Row) {
	full := row.Get(sync.FieldAdvisorFullName)
	if full == "" {
		return
	}
	if m := lastFirst.FindStringSubmatch(full); m != nil {
		row.Values[sync.FieldAdvisorLastName] = m[1]
		row.Values[sync.FieldAdvisorFirstName] = m[2]
		delete(row.Values, sync.FieldAdvisorFullName)
	}
}

// readSection turns the "Teacher Display" column, which the column table
// leaves unmapped, into a first-last teacher name.
func readSection(row *rowmap.Row) {
	display := row.Get(sync.FieldTeacherFullName)
	if display == "" {
		display = row.RestValue("Teacher Display")
	}
	if display == "" {
		return
	}
	if m := lastFirst.FindStringSubmatch(display); m != nil {
		row.Values[sync.FieldTeacherFullName] = m[2] + " " + m[1]
	}
}

// secondaryTeacher extracts a co-teacher from the "Teacher 2 Display"
// overflow column.
func secondaryTeacher(row rowmap.Row) string {
	display := row.RestValue("Teacher 2 Display")
	if display == "" {
		return ""
	}
	m := lastFirst.FindStringSubmatch(display)
	if m == nil {
		return ""
	}
	return m[2] + " " + m[1]
}

// resolveTermHandle derives a term handle from the "Terms" (length in
// quarters) and "Term End" (final quarter) columns: one quarter maps to
// q<year>-<quarter>, two quarters to a semester, four to the full year.
func resolveTermHandle(row rowmap.Row, master *term.Term) string {
	length := row.Get(sync.FieldTerm)
	if length == "" {
		length = row.RestValue("Terms")
	}
	if length == "" {
		return ""
	}
	end := row.RestValue("Term End")

	year := master.StartDate.Year()
	quarters, err := strconv.Atoi(length)
	if err != nil {
		return ""
	}
	switch quarters {
	case 1:
		endQuarter, err := strconv.Atoi(end)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("q%d-%d", year, endQuarter)
	case 2:
		endQuarter, err := strconv.Atoi(end)
		if err != nil || endQuarter%2 != 0 {
			return ""
		}
		return fmt.Sprintf("s%d-%d", year, endQuarter/2)
	case 4:
		return fmt.Sprintf("y%d", year)
	}
	return ""
}
