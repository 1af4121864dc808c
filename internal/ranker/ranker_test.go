package ranker

import (
	"testing"

	"github.com/rezahh107/matrix2/internal/mentor"
	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWith(id string, capacity, allocationsNew int) *mentor.State {
	m := mentor.Mentor{
		MentorID:              id,
		SortKey:               normalize.NaturalSortKey(id),
		DeclaredCapacity:      capacity,
		InitialAllocationsNew: allocationsNew,
	}
	return mentor.NewState(m)
}

func TestRank_PrimarySortIsOccupancyRatio(t *testing.T) {
	a := stateWith("EMP-1", 10, 5) // ratio 0.5
	b := stateWith("EMP-2", 10, 1) // ratio 0.1
	sorted, reason, _ := Rank([]*mentor.State{a, b})
	assert.Equal(t, "EMP-2", sorted[0].Mentor.MentorID)
	assert.Equal(t, ReasonMinOccupancyRatio, reason)
}

func TestRank_TieBrokenByAllocationsNew(t *testing.T) {
	// occupancy_ratio ties at 0.5 (5/10 == 10/20); allocations_new breaks it.
	a := stateWith("EMP-1", 10, 5)
	b := stateWith("EMP-9", 20, 10)
	sorted, reason, _ := Rank([]*mentor.State{a, b})
	assert.Equal(t, "EMP-1", sorted[0].Mentor.MentorID) // fewer allocations_new
	assert.Equal(t, ReasonTieBrokenByAllocationsNew, reason)
}

func TestRank_TieBrokenByNaturalMentorID(t *testing.T) {
	// spec.md §8 S1: M=[EMP-10, EMP-2, EMP-010], all capacity 5, allocations_new 0.
	m10 := stateWith("EMP-10", 5, 0)
	m2 := stateWith("EMP-2", 5, 0)
	m010 := stateWith("EMP-010", 5, 0)
	sorted, reason, _ := Rank([]*mentor.State{m10, m2, m010})
	require.Len(t, sorted, 3)
	assert.Equal(t, "EMP-2", sorted[0].Mentor.MentorID)
	assert.Equal(t, ReasonTieBrokenByMentorID, reason)
}

func TestRank_SingleSurvivorReasonIsMinOccupancyRatio(t *testing.T) {
	a := stateWith("EMP-1", 10, 5)
	sorted, reason, preview := Rank([]*mentor.State{a})
	assert.Len(t, sorted, 1)
	assert.Equal(t, ReasonMinOccupancyRatio, reason)
	assert.Len(t, preview, 1)
}

func TestRank_PreviewCappedAtFive(t *testing.T) {
	states := make([]*mentor.State, 0, 8)
	for i := 0; i < 8; i++ {
		states = append(states, stateWith("EMP-"+string(rune('A'+i)), 10, i))
	}
	_, _, preview := Rank(states)
	assert.Len(t, preview, MaxTieBreakers)
}

func TestCommit_DecrementsCapacityAndBumpsAllocations(t *testing.T) {
	a := stateWith("EMP-1", 10, 0)
	sorted, reason, preview := Rank([]*mentor.State{a})
	assignment, err := Commit(sorted, reason, preview)
	require.NoError(t, err)
	assert.Equal(t, "EMP-1", assignment.MentorID)
	assert.InDelta(t, 0.0, assignment.OccupancyRatioBefore, 1e-9)
	assert.InDelta(t, 0.1, assignment.OccupancyRatioAfter, 1e-9)
	assert.Equal(t, 10, assignment.CapacityBefore)
	assert.Equal(t, 9, assignment.CapacityAfter)
	assert.Equal(t, 1, a.AllocationsNew)
}

func TestCommit_RefusesUnderflow(t *testing.T) {
	a := stateWith("EMP-1", 1, 1) // remaining capacity already 0
	sorted := []*mentor.State{a}
	_, err := Commit(sorted, ReasonMinOccupancyRatio, nil)
	assert.Error(t, err)
}

func TestNoSurvivorsError_DistinguishesCapacityFromEligibility(t *testing.T) {
	err := NoSurvivorsError(0, "S1", "capacity_gate")
	assert.Contains(t, err.Error(), "CAPACITY_FULL")

	err = NoSurvivorsError(0, "S1", "gender")
	assert.Contains(t, err.Error(), "ELIGIBILITY_NO_MATCH")
}
