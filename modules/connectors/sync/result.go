package sync

// Result aggregates the per-row outcomes of one pass. It is created empty
// at pass start, mutated row by row, and handed back to the caller at pass
// end; the engine never persists it itself.
type Result struct {
	Analyzed   int `json:"analyzed"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Unmodified int `json:"unmodified"`

	Filtered map[string]int            `json:"filtered,omitempty"`
	Failed   map[string]map[string]int `json:"failed,omitempty"`

	PasswordsUpdated     int            `json:"password-updated,omitempty"`
	AssignedPrimaryEmail int            `json:"assigned-primary-email,omitempty"`
	UpdatedPrimaryEmail  int            `json:"updated-primary-email,omitempty"`
	AddedToGroup         map[string]int `json:"added-to-group,omitempty"`

	EnrollmentsAnalyzed       int `json:"enrollments-analyzed,omitempty"`
	EnrollmentsCreated        int `json:"enrollments-created,omitempty"`
	EnrollmentsUpdated        int `json:"enrollments-updated,omitempty"`
	EnrollmentsRemoved        int `json:"enrollments-removed,omitempty"`
	TeacherEnrollmentsCreated int `json:"teacher-enrollments-created,omitempty"`
	TeacherEnrollmentsUpdated int `json:"teacher-enrollments-updated,omitempty"`
}

func NewResult() *Result {
	return &Result{}
}

// Filter counts a skipped row under the filter's reason.
func (r *Result) Filter(reason string) {
	if reason == "" {
		reason = "no-reason"
	}
	if r.Filtered == nil {
		r.Filtered = map[string]int{}
	}
	r.Filtered[reason]++
}

// Fail counts a row-level failure under failed[reason][value].
func (r *Result) Fail(reason, value string) {
	if value == "" {
		value = "-"
	}
	if r.Failed == nil {
		r.Failed = map[string]map[string]int{}
	}
	if r.Failed[reason] == nil {
		r.Failed[reason] = map[string]int{}
	}
	r.Failed[reason][value]++
}

// AddToGroup counts a new group membership by group name.
func (r *Result) AddToGroup(name string) {
	if r.AddedToGroup == nil {
		r.AddedToGroup = map[string]int{}
	}
	r.AddedToGroup[name]++
}

// FailedTotal sums every failure bucket.
func (r *Result) FailedTotal() int {
	total := 0
	for _, values := range r.Failed {
		for _, n := range values {
			total += n
		}
	}
	return total
}
