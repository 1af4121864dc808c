// Package ranker implements the stable three-key comparator and
// committer described in spec.md §4.6: it orders surviving mentor
// candidates by (occupancy_ratio ascending, allocations_new ascending,
// mentor_sort_key ascending), commits the winner, and records which
// rule first discriminated it from the runner-up.
package ranker

import (
	"math"
	"sort"

	"github.com/rezahh107/matrix2/internal/errs"
	"github.com/rezahh107/matrix2/internal/mentor"
)

// epsilon is the float-equality tolerance applied to occupancy_ratio
// comparisons (spec.md §4.6).
const epsilon = 1e-9

// Selection reason tags.
const (
	ReasonMinOccupancyRatio        = "min_occupancy_ratio"
	ReasonTieBrokenByAllocationsNew = "tie_broken_by_allocations_new"
	ReasonTieBrokenByMentorID      = "tie_broken_by_mentor_id"
)

// MaxTieBreakers is the top-k preview cap (k ≤ 5, spec.md §4.6).
const MaxTieBreakers = 5

// TieBreaker is one row of the tie_breakers preview: a candidate's
// ranking-relevant fields at the moment ranking ran.
type TieBreaker struct {
	MentorID       string
	OccupancyRatio float64
	AllocationsNew int
}

// floatEqual reports whether a and b are within the ranking epsilon.
func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// Less reports whether a ranks ahead of b under the three-key order.
// It is a total order: mentor_sort_key is injective over normalized
// mentor IDs, so two distinct states never compare equal.
func Less(a, b *mentor.State) bool {
	if !floatEqual(a.OccupancyRatio, b.OccupancyRatio) {
		return a.OccupancyRatio < b.OccupancyRatio
	}
	if a.AllocationsNew != b.AllocationsNew {
		return a.AllocationsNew < b.AllocationsNew
	}
	return a.Mentor.SortKey.Less(b.Mentor.SortKey)
}

// Rank stable-sorts candidates by the three-key order without mutating
// any of them, and returns the selection reason and a top-k preview
// for the caller to attach to the eventual AllocationOutcome. It does
// not commit anything; call Commit on the result to do that.
func Rank(candidates []*mentor.State) (sorted []*mentor.State, reason string, preview []TieBreaker) {
	sorted = append([]*mentor.State(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })
	return sorted, selectionReason(sorted), tieBreakers(sorted)
}

func selectionReason(sorted []*mentor.State) string {
	if len(sorted) < 2 {
		return ReasonMinOccupancyRatio
	}
	best, second := sorted[0], sorted[1]
	if !floatEqual(best.OccupancyRatio, second.OccupancyRatio) {
		return ReasonMinOccupancyRatio
	}
	if best.AllocationsNew != second.AllocationsNew {
		return ReasonTieBrokenByAllocationsNew
	}
	return ReasonTieBrokenByMentorID
}

func tieBreakers(sorted []*mentor.State) []TieBreaker {
	n := len(sorted)
	if n > MaxTieBreakers {
		n = MaxTieBreakers
	}
	out := make([]TieBreaker, n)
	for i := 0; i < n; i++ {
		out[i] = TieBreaker{
			MentorID:       sorted[i].Mentor.MentorID,
			OccupancyRatio: sorted[i].OccupancyRatio,
			AllocationsNew: sorted[i].AllocationsNew,
		}
	}
	return out
}

// Assignment is the success half of an AllocationOutcome (spec.md §3):
// the committed mentor and the before/after state spec.md requires for
// audit.
type Assignment struct {
	MentorID             string
	OccupancyRatioBefore float64
	OccupancyRatioAfter  float64
	CapacityBefore       int
	CapacityAfter        int
	SelectionReason      string
	TieBreakers          []TieBreaker
}

// Commit picks sorted[0], commits it (decrementing remaining capacity
// and bumping allocations_new), and returns the resulting Assignment.
// sorted must be non-empty and already ranked by Rank; Commit does not
// re-sort. Returns errs.CapacityUnderflow if the winner's remaining
// capacity was already zero — an invariant violation the caller should
// treat as batch-aborting, since the capacity_gate stage is supposed
// to have already excluded such candidates.
func Commit(sorted []*mentor.State, reason string, preview []TieBreaker) (Assignment, error) {
	winner := sorted[0]
	before := winner.OccupancyRatio
	capacityBefore := winner.RemainingCapacity
	if err := winner.Commit(); err != nil {
		return Assignment{}, err
	}
	return Assignment{
		MentorID:             winner.Mentor.MentorID,
		OccupancyRatioBefore: before,
		OccupancyRatioAfter:  winner.OccupancyRatio,
		CapacityBefore:       capacityBefore,
		CapacityAfter:        winner.RemainingCapacity,
		SelectionReason:      reason,
		TieBreakers:          preview,
	}, nil
}

// NoSurvivorsError is a convenience constructor for the case where
// Rank/Commit is never reached because the filter chain eliminated
// every candidate. lastStage names the stage whose after_count first
// reached zero; the caller treats capacity_gate specially since it
// means every eligible mentor was simply full, not ineligible.
func NoSurvivorsError(rowIndex int, studentID, lastStage string) error {
	if lastStage == "capacity_gate" {
		return errs.CapacityFull(rowIndex, studentID)
	}
	return errs.EligibilityNoMatch(rowIndex, studentID, lastStage)
}
