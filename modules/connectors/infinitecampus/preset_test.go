package infinitecampus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/connectors/sync"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

func row(values map[string]string, rest ...rowmap.Cell) rowmap.Row {
	if values == nil {
		values = map[string]string{}
	}
	return rowmap.Row{Values: values, Multi: map[string][]string{}, Rest: rest}
}

func TestPreset(t *testing.T) {
	p := Preset()
	assert.Equal(t, "infinite-campus", p.ID)
	assert.Nil(t, p.SectionRequired)
	assert.False(t, p.RequireSectionCourseCode)
	assert.False(t, p.CreateMissingCourses)
	assert.True(t, p.CoursesByTitle)

	// The student table stacks on the shared one; both header spellings
	// must map.
	mapper := rowmap.NewMapper([]string{"Student Number", "Student ID", "Homeroom Teacher"}, p.StudentColumns)
	mapped := mapper.Map([]string{"4211", "4212", "Smith, Mary"})
	assert.Equal(t, "4211", mapped.Get(sync.FieldStudentNumber))
	assert.Equal(t, "Smith, Mary", mapped.Get(sync.FieldAdvisorFullName))
}

func TestReadStudent(t *testing.T) {
	t.Run("splits the homeroom teacher display name", func(t *testing.T) {
		r := row(map[string]string{sync.FieldAdvisorFullName: "Smith, Mary"})
		readStudent(&r)
		assert.Equal(t, "Smith", r.Get(sync.FieldAdvisorLastName))
		assert.Equal(t, "Mary", r.Get(sync.FieldAdvisorFirstName))
		assert.False(t, r.Has(sync.FieldAdvisorFullName))
	})

	t.Run("tolerates apostrophes and hyphens", func(t *testing.T) {
		r := row(map[string]string{sync.FieldAdvisorFullName: "O'Brien-Lee, Anne"})
		readStudent(&r)
		assert.Equal(t, "O'Brien-Lee", r.Get(sync.FieldAdvisorLastName))
		assert.Equal(t, "Anne", r.Get(sync.FieldAdvisorFirstName))
	})

	t.Run("leaves unrecognized displays alone", func(t *testing.T) {
		r := row(map[string]string{sync.FieldAdvisorFullName: "Mary Smith"})
		readStudent(&r)
		assert.Equal(t, "Mary Smith", r.Get(sync.FieldAdvisorFullName))
		assert.False(t, r.Has(sync.FieldAdvisorLastName))
	})

	t.Run("no-op without a display name", func(t *testing.T) {
		r := row(nil)
		readStudent(&r)
		assert.Empty(t, r.Values)
	})
}

func TestReadSection(t *testing.T) {
	t.Run("picks the teacher up from the overflow column", func(t *testing.T) {
		r := row(nil, rowmap.Cell{Header: "Teacher Display", Value: "Doe, John"})
		readSection(&r)
		assert.Equal(t, "John Doe", r.Get(sync.FieldTeacherFullName))
	})

	t.Run("prefers an already-mapped teacher name", func(t *testing.T) {
		r := row(map[string]string{sync.FieldTeacherFullName: "Roe, Jane"},
			rowmap.Cell{Header: "Teacher Display", Value: "Doe, John"})
		readSection(&r)
		assert.Equal(t, "Jane Roe", r.Get(sync.FieldTeacherFullName))
	})

	t.Run("no-op without a display", func(t *testing.T) {
		r := row(nil)
		readSection(&r)
		assert.False(t, r.Has(sync.FieldTeacherFullName))
	})
}

func TestSecondaryTeacher(t *testing.T) {
	r := row(nil, rowmap.Cell{Header: "Teacher 2 Display", Value: "Roe, Jane"})
	assert.Equal(t, "Jane Roe", secondaryTeacher(r))

	assert.Empty(t, secondaryTeacher(row(nil)))
	assert.Empty(t, secondaryTeacher(row(nil, rowmap.Cell{Header: "Teacher 2 Display", Value: "staff"})))
}

func TestResolveTermHandle(t *testing.T) {
	master := &term.Term{StartDate: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)}

	cases := []struct {
		name   string
		length string
		end    string
		want   string
	}{
		{"single quarter", "1", "3", "q2026-3"},
		{"first semester", "2", "2", "s2026-1"},
		{"second semester", "2", "4", "s2026-2"},
		{"semester ending mid-term", "2", "3", ""},
		{"full year", "4", "", "y2026"},
		{"unparseable length", "two", "2", ""},
		{"quarter without an end", "1", "", ""},
		{"no term columns", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cells := []rowmap.Cell{}
			if tc.length != "" {
				cells = append(cells, rowmap.Cell{Header: "Terms", Value: tc.length})
			}
			if tc.end != "" {
				cells = append(cells, rowmap.Cell{Header: "Term End", Value: tc.end})
			}
			got := resolveTermHandle(row(nil, cells...), master)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("mapped term column wins over the overflow cell", func(t *testing.T) {
		r := row(map[string]string{sync.FieldTerm: "4"}, rowmap.Cell{Header: "Terms", Value: "1"})
		require.Equal(t, "y2026", resolveTermHandle(r, master))
	})
}
