// Package mentor models the allocator's mentor pool: the immutable
// Mentor entity and the per-batch mutable State that tracks
// remaining capacity as the allocator commits students.
package mentor

import (
	"fmt"

	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/rs/zerolog"
)

// Mentor lifecycle status tags.
const (
	StatusActive   = "ACTIVE"
	StatusFrozen   = "FROZEN"
	statusRestrict = "RESTRICTED_" // prefix; suffix names the restriction profile
)

// IsRestricted reports whether status is one of the RESTRICTED_*
// profiles.
func IsRestricted(status string) bool {
	return len(status) > len(statusRestrict) && status[:len(statusRestrict)] == statusRestrict
}

// Mentor is one pool entry. It is built once per run and never
// mutated; all per-batch state lives in State.
type Mentor struct {
	MentorID string
	SortKey  normalize.SortKey

	DeclaredCapacity      int
	InitialAllocationsNew int

	MentorStatus string

	// Eligibility holds, for each of the six eligibility stage names
	// (type, group, gender, graduation_status, center, finance), the
	// set of values this mentor accepts. A single-value mentor still
	// populates a length-1 slice. Populated after RESTRICTED_* profile
	// intersection has already been applied (see pool.go).
	Eligibility map[string][]int

	// BoundSchools is the set of school codes this mentor is bound to.
	// Meaningless unless HasSchoolConstraint is true.
	BoundSchools        map[string]bool
	HasSchoolConstraint bool
}

// Accepts reports whether value is in the allowed set for the named
// eligibility field. A mentor with no declared values for a field
// accepts nothing for it.
func (m Mentor) Accepts(field string, value int) bool {
	for _, v := range m.Eligibility[field] {
		if v == value {
			return true
		}
	}
	return false
}

// InitialOccupancyRatio returns allocations_new / declared_capacity,
// with the 0/0 case defined as 0, per spec.md §3.
func InitialOccupancyRatio(allocationsNew, declaredCapacity int) float64 {
	if declaredCapacity <= 0 {
		return 0
	}
	return float64(allocationsNew) / float64(declaredCapacity)
}

// String returns a compact summary suitable for logs.
func (m Mentor) String() string {
	return fmt.Sprintf("mentor{id=%s status=%s capacity=%d}", m.MentorID, m.MentorStatus, m.DeclaredCapacity)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (m Mentor) MarshalZerologObject(e *zerolog.Event) {
	e.Str("mentor_id", m.MentorID).
		Str("mentor_status", m.MentorStatus).
		Int("declared_capacity", m.DeclaredCapacity).
		Int("initial_allocations_new", m.InitialAllocationsNew)
}
