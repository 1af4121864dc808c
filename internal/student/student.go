// Package student models the allocator's input rows. A Student is
// built once from raw tabular data and never mutated afterward,
// matching spec.md §3's "created from input; never mutated".
package student

import (
	"fmt"

	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/rs/zerolog"
)

// Student is one input row: the applicant's identifying fields, the
// six integer join-key values keyed by the policy's declared column
// names, and an optional multi-valued school-code attribute.
type Student struct {
	// RowIndex is the 0-based position of this student in the input
	// batch, carried through to every trace and outcome record.
	RowIndex int

	StudentID string

	// NationalCodeNormalized is empty when the student has no national
	// code on file.
	NationalCodeNormalized string

	// JoinKeys holds the six integer join-key values, keyed by the
	// policy's declared join_keys names. Populated by the normalizer;
	// never mutated afterward.
	JoinKeys map[string]int

	// SchoolCodeRaw is the original, unnormalized school-code
	// attribute (possibly multi-valued, delimiter-separated). Empty
	// when the student has no school binding.
	SchoolCodeRaw string
}

// JoinKey returns the integer value of the named join key and whether
// it was present. Absence here indicates a construction bug upstream
// (the normalizer is expected to populate all six keys or fail the
// row), not a valid runtime state.
func (s Student) JoinKey(name string) (int, bool) {
	v, ok := s.JoinKeys[name]
	return v, ok
}

// String returns a redacted, log-safe summary: national_code_normalized
// never appears, only its one-way hash.
func (s Student) String() string {
	return fmt.Sprintf("student{row=%d id=%s national_code_hash=%s}",
		s.RowIndex, s.StudentID, normalize.NationalCodeHash(s.NationalCodeNormalized))
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler. It never
// writes NationalCodeNormalized; callers that need a correlation handle
// get national_code_hash instead.
func (s Student) MarshalZerologObject(e *zerolog.Event) {
	e.Int("row_index", s.RowIndex).
		Str("student_id", s.StudentID).
		Str("national_code_hash", normalize.NationalCodeHash(s.NationalCodeNormalized)).
		Str("school_code_raw", s.SchoolCodeRaw)
}
