package sync

import (
	"fmt"

	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
)

// Reason codes for row-level reconciliation failures.
const (
	ReasonNotAStudent            = "not-a-student"
	ReasonAdvisorNotByUsername   = "advisor-not-found-by-username"
	ReasonAdvisorNotByForeignKey = "advisor-not-found-by-foreign-key"
	ReasonAdvisorNotByName       = "advisor-not-found-by-name"
	ReasonTeacherNotByUsername   = "teacher-not-found-by-username"
	ReasonTeacherNotByName       = "teacher-not-found-by-name"
	ReasonCourseNotFound         = "course-not-found"
	ReasonTermNotFound           = "term-not-found"
	ReasonTermOutsideMaster      = "term-outside-master"
	ReasonStudentNotFound        = "student-not-found"
	ReasonSectionNotFound        = "section-not-found"
	ReasonOrphanMapping          = "orphan-mapping"
	ReasonMissingRequiredField   = "missing-required-field"
	ReasonMissingStudentNumber   = "missing-student-number"
	ReasonInvalid                = "invalid"

	ReasonStudentSchoolNotSet   = "student-school-not-set"
	ReasonStudentSchoolNotFound = "student-school-not-found"
	ReasonStudentGroupNotFound  = "student-root-group-not-found"
	ReasonStaffSchoolNotSet     = "staff-school-not-set"
	ReasonStaffSchoolNotFound   = "staff-school-not-found"
	ReasonStaffGroupNotFound    = "staff-root-group-not-found"
)

// RemoteRecordInvalid is the typed per-row failure: the row contradicts
// the database or the job's policy in a way the engine cannot repair. It
// is caught by the pass loop, tallied under failed[reason][value], and
// never aborts the batch.
type RemoteRecordInvalid struct {
	Reason  string
	Message string
	Row     rowmap.Row
	Value   string
}

func (e *RemoteRecordInvalid) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Reason, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func invalidRecord(row rowmap.Row, reason, value, format string, args ...any) *RemoteRecordInvalid {
	return &RemoteRecordInvalid{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
		Row:     row,
		Value:   value,
	}
}
