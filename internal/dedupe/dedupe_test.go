package dedupe

import (
	"testing"

	"github.com/rezahh107/matrix2/internal/student"
	"github.com/stretchr/testify/assert"
)

func TestCheck_NewCandidateWhenNoNationalCode(t *testing.T) {
	r := Check(student.Student{RowIndex: 0}, Snapshot{})
	assert.Equal(t, StatusNewCandidate, r.Status)
}

func TestCheck_AlreadyAllocatedWhenPresentInSnapshot(t *testing.T) {
	snap := Snapshot{"0012345678": Record{MentorID: "M1", CenterCode: "C1"}}
	s := student.Student{RowIndex: 0, NationalCodeNormalized: "0012345678"}
	r := Check(s, snap)
	assert.Equal(t, StatusAlreadyAllocated, r.Status)
	assert.Equal(t, reasonPriorAllocation, r.DedupeReason)
	assert.Equal(t, "M1", r.HistoryMentorID)
}

func TestCheck_IsIdempotent(t *testing.T) {
	snap := Snapshot{"0012345678": Record{MentorID: "M1"}}
	s := student.Student{RowIndex: 0, NationalCodeNormalized: "0012345678"}
	assert.Equal(t, Check(s, snap), Check(s, snap))
}

func TestPartition_PreservesOrderWithinGroups(t *testing.T) {
	snap := Snapshot{"dup": Record{MentorID: "M1"}}
	students := []student.Student{
		{RowIndex: 0, StudentID: "A", NationalCodeNormalized: "dup"},
		{RowIndex: 1, StudentID: "B"},
		{RowIndex: 2, StudentID: "C", NationalCodeNormalized: "dup"},
		{RowIndex: 3, StudentID: "D"},
	}
	newC, already, results := Partition(students, snap)

	assert.Equal(t, []string{"B", "D"}, ids(newC))
	assert.Equal(t, []string{"A", "C"}, ids(already))
	assert.Len(t, results, 4)
}

func ids(students []student.Student) []string {
	out := make([]string, len(students))
	for i, s := range students {
		out[i] = s.StudentID
	}
	return out
}
