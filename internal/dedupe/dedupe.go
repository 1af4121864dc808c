// Package dedupe implements the history deduplicator: a pure function
// that diverts students whose normalized national code already appears
// in the prior-allocation snapshot out of the allocation queue.
package dedupe

import "github.com/rezahh107/matrix2/internal/student"

// HistoryStatus tags a student's relationship to the history snapshot.
type HistoryStatus string

const (
	StatusAlreadyAllocated HistoryStatus = "already_allocated"
	StatusNewCandidate     HistoryStatus = "new_candidate"
)

// Record is one row of the prior-allocation history snapshot, keyed by
// normalized national code.
type Record struct {
	MentorID         string
	CenterCode       string
	LastAllocationAt string
}

// Snapshot is a read-only map the caller owns; the deduplicator only
// reads it.
type Snapshot map[string]Record

// Result is the per-student outcome of the deduplication check.
type Result struct {
	Status           HistoryStatus
	DedupeReason     string
	HistoryMentorID  string
	HistoryCenter    string
}

const reasonPriorAllocation = "prior_allocation"

// Check tags a single student against the snapshot. It is pure,
// idempotent, and deterministic: calling it twice with the same inputs
// yields the same Result (spec.md §4.3, §8 "Idempotence of dedupe").
func Check(s student.Student, snapshot Snapshot) Result {
	if s.NationalCodeNormalized == "" {
		return Result{Status: StatusNewCandidate}
	}
	record, found := snapshot[s.NationalCodeNormalized]
	if !found {
		return Result{Status: StatusNewCandidate}
	}
	return Result{
		Status:          StatusAlreadyAllocated,
		DedupeReason:    reasonPriorAllocation,
		HistoryMentorID: record.MentorID,
		HistoryCenter:   record.CenterCode,
	}
}

// Partition splits students into (new candidates, already-allocated)
// while preserving each group's relative input order, and returns the
// per-student Result for every student keyed by RowIndex for callers
// that need to attach dedupe metadata to a trace or outcome.
func Partition(students []student.Student, snapshot Snapshot) (newCandidates, alreadyAllocated []student.Student, results map[int]Result) {
	results = make(map[int]Result, len(students))
	for _, s := range students {
		r := Check(s, snapshot)
		results[s.RowIndex] = r
		if r.Status == StatusAlreadyAllocated {
			alreadyAllocated = append(alreadyAllocated, s)
		} else {
			newCandidates = append(newCandidates, s)
		}
	}
	return newCandidates, alreadyAllocated, results
}
