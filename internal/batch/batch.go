// Package batch implements the BatchDriver described in spec.md §4.7:
// it iterates students in input order, wires dedupe → channel →
// filter chain → rank/commit for each one, and produces the
// per-student trace/outcome records plus a run-level Summary. It is
// the only component that mutates mentor.State.
package batch

import (
	"fmt"

	"github.com/rezahh107/matrix2/internal/channel"
	"github.com/rezahh107/matrix2/internal/dedupe"
	"github.com/rezahh107/matrix2/internal/errs"
	"github.com/rezahh107/matrix2/internal/filterchain"
	"github.com/rezahh107/matrix2/internal/mentor"
	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/rezahh107/matrix2/internal/policy"
	"github.com/rezahh107/matrix2/internal/ranker"
	"github.com/rezahh107/matrix2/internal/student"
	"github.com/rs/zerolog"
)

// Outcome statuses.
const (
	StatusSuccess       = "success"
	StatusFailed        = "failed"
	StatusSkippedHistory = "skipped_history"
)

// TraceRecord is the per-student audit trail: the eight eligibility
// stage results plus dedupe/routing metadata (spec.md §3).
type TraceRecord struct {
	RowIndex          int
	StudentID         string
	Stages            []filterchain.StageResult
	AllocationChannel string
	HistoryStatus     string
	DedupeReason      string

	// NationalCodeHash is a one-way blake2b digest of the student's
	// normalized national code, never the code itself — audit events
	// log this instead of the raw PII value.
	NationalCodeHash string
}

// String returns a redacted summary; no stage of this is ever the raw
// national code.
func (t TraceRecord) String() string {
	return fmt.Sprintf("trace{row=%d id=%s channel=%s history=%s}",
		t.RowIndex, t.StudentID, t.AllocationChannel, t.HistoryStatus)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (t TraceRecord) MarshalZerologObject(e *zerolog.Event) {
	e.Int("row_index", t.RowIndex).
		Str("student_id", t.StudentID).
		Str("allocation_channel", t.AllocationChannel).
		Str("history_status", t.HistoryStatus).
		Str("national_code_hash", t.NationalCodeHash)
	if t.DedupeReason != "" {
		e.Str("dedupe_reason", t.DedupeReason)
	}
}

// Outcome is the per-student allocation decision (spec.md §3).
type Outcome struct {
	Status string

	MentorID             string
	OccupancyRatioBefore float64
	OccupancyRatioAfter  float64
	CapacityBefore       int
	CapacityAfter        int
	SelectionReason      string
	TieBreakers          []ranker.TieBreaker

	ErrorKind        string
	DetailedReason   string
	SuggestedActions []string

	// HistoryMentorID is populated only for StatusSkippedHistory: the
	// mentor this student was already allocated to in a prior run.
	HistoryMentorID string
}

// String returns a compact summary suitable for logs.
func (o Outcome) String() string {
	return fmt.Sprintf("outcome{status=%s mentor=%s error=%s}", o.Status, o.MentorID, o.ErrorKind)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (o Outcome) MarshalZerologObject(e *zerolog.Event) {
	e.Str("status", o.Status)
	switch o.Status {
	case StatusSuccess:
		e.Str("mentor_id", o.MentorID).
			Str("selection_reason", o.SelectionReason).
			Float64("occupancy_ratio_after", o.OccupancyRatioAfter).
			Int("capacity_after", o.CapacityAfter)
	case StatusFailed:
		e.Str("error_kind", o.ErrorKind).Str("detailed_reason", o.DetailedReason)
	case StatusSkippedHistory:
		e.Str("history_mentor_id", o.HistoryMentorID)
	}
}

// Record pairs one student's trace and outcome.
type Record struct {
	RowIndex  int
	StudentID string
	Trace     TraceRecord
	Outcome   Outcome
}

// String returns a compact summary suitable for logs.
func (r Record) String() string {
	return fmt.Sprintf("record{row=%d id=%s %s}", r.RowIndex, r.StudentID, r.Outcome.String())
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r Record) MarshalZerologObject(e *zerolog.Event) {
	e.Int("row_index", r.RowIndex).
		Str("student_id", r.StudentID).
		EmbedObject(r.Trace).
		EmbedObject(r.Outcome)
}

// Summary is the run-level report spec.md §4.7/§6 requires.
type Summary struct {
	TotalStudents   int
	SuccessCount    int
	FailedCount     int
	SkippedHistory  int

	ChannelCounts map[string]int
	// StageSurvivalHistogram sums after_count per stage name across
	// every processed student, the "per-stage aggregate survival
	// counts" spec.md §4.7 asks for.
	StageSurvivalHistogram map[string]int
	SameHistoryMentorRatio float64

	// Incomplete is true when the batch was aborted by cancellation
	// before every student was processed.
	Incomplete bool
}

// String returns a compact summary suitable for logs.
func (s Summary) String() string {
	return fmt.Sprintf("summary{total=%d success=%d failed=%d skipped=%d}",
		s.TotalStudents, s.SuccessCount, s.FailedCount, s.SkippedHistory)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (s Summary) MarshalZerologObject(e *zerolog.Event) {
	e.Int("total_students", s.TotalStudents).
		Int("success_count", s.SuccessCount).
		Int("failed_count", s.FailedCount).
		Int("skipped_history", s.SkippedHistory).
		Bool("incomplete", s.Incomplete).
		Float64("same_history_mentor_ratio", s.SameHistoryMentorRatio)
}

// ProgressReporter is invoked between students. It must be
// non-blocking and must never mutate driver state (spec.md §5).
type ProgressReporter func(percent int, message string)

// CancelChecker is polled between students (spec.md §5).
type CancelChecker func() bool

// Driver owns the mutable mentor pool for exactly one batch run and
// is never reused across runs (spec.md §5 "shared-resource policy").
type Driver struct {
	Policy  *policy.PolicyConfig
	Pool    *mentor.Pool
	History dedupe.Snapshot
	Logger  zerolog.Logger
}

// NewDriver builds a Driver. p must already have Validate() called.
func NewDriver(p *policy.PolicyConfig, pool *mentor.Pool, history dedupe.Snapshot, logger zerolog.Logger) *Driver {
	return &Driver{Policy: p, Pool: pool, History: history, Logger: logger}
}

// Run processes students in order, invoking report after each one and
// checking cancelRequested before each one. report and cancelRequested
// may be nil. On cooperative cancellation, Run returns the records
// committed so far, a Summary marked Incomplete, and an
// *errs.AllocationError with code CANCELLED. On an internal invariant
// breach (capacity underflow or a failed post-batch sanity check), Run
// returns similarly but with CodeCapacityUnderflow/CodeInternal.
func (d *Driver) Run(students []student.Student, report ProgressReporter, cancelRequested CancelChecker) ([]Record, Summary, error) {
	records := make([]Record, 0, len(students))
	summary := Summary{
		ChannelCounts:           make(map[string]int),
		StageSurvivalHistogram:  make(map[string]int),
	}

	var historyMatches, historyEligible int

	for i, s := range students {
		if cancelRequested != nil && cancelRequested() {
			summary.TotalStudents = len(records)
			summary.Incomplete = true
			d.finalizeRatio(&summary, historyMatches, historyEligible)
			return records, summary, errs.Cancelled(len(records))
		}

		record := d.processOne(s)
		records = append(records, record)
		summary.ChannelCounts[record.Trace.AllocationChannel]++
		for _, stage := range record.Trace.Stages {
			summary.StageSurvivalHistogram[stage.Name] += stage.AfterCount
		}

		switch record.Outcome.Status {
		case StatusSuccess:
			summary.SuccessCount++
		case StatusFailed:
			summary.FailedCount++
		case StatusSkippedHistory:
			summary.SkippedHistory++
			historyEligible++
			if hist, ok := d.History[s.NationalCodeNormalized]; ok && hist.MentorID == record.Outcome.HistoryMentorID {
				historyMatches++
			}
		}

		if record.Outcome.ErrorKind == string(errs.CodeCapacityUnderflow) {
			d.logRecord(record)
			summary.TotalStudents = len(records)
			summary.Incomplete = true
			d.finalizeRatio(&summary, historyMatches, historyEligible)
			return records, summary, &errs.AllocationError{Code: errs.CodeCapacityUnderflow, Message: record.Outcome.DetailedReason, RowIndex: -1}
		}

		d.logRecord(record)
		if report != nil {
			report(percentComplete(i+1, len(students)), "processed "+record.StudentID)
		}
	}

	summary.TotalStudents = len(records)
	d.finalizeRatio(&summary, historyMatches, historyEligible)

	if err := d.sanityCheck(summary); err != nil {
		summary.Incomplete = true
		return records, summary, err
	}

	return records, summary, nil
}

func (d *Driver) finalizeRatio(summary *Summary, matches, eligible int) {
	if eligible == 0 {
		summary.SameHistoryMentorRatio = 0
		return
	}
	summary.SameHistoryMentorRatio = float64(matches) / float64(eligible)
}

// sanityCheck implements spec.md §4.7's post-batch invariant: the sum
// of allocations_new across mentors must equal the pool's initial
// allocations_new total plus the success count, and
// no mentor's remaining capacity may be negative. Either violation is
// an INTERNAL_ERROR.
func (d *Driver) sanityCheck(summary Summary) error {
	total := d.Pool.TotalAllocationsNew()
	if total != summary.SuccessCount+initialAllocationsNewTotal(d.Pool) {
		return errs.Internal("allocations_new total does not match success count", nil)
	}
	for _, st := range d.Pool.All() {
		if st.RemainingCapacity < 0 {
			return errs.Internal("mentor "+st.Mentor.MentorID+" has negative remaining_capacity", nil)
		}
	}
	return nil
}

func initialAllocationsNewTotal(pool *mentor.Pool) int {
	total := 0
	for _, st := range pool.All() {
		total += st.Mentor.InitialAllocationsNew
	}
	return total
}

func (d *Driver) processOne(s student.Student) Record {
	dres := dedupe.Check(s, d.History)
	trace := TraceRecord{
		RowIndex:         s.RowIndex,
		StudentID:        s.StudentID,
		HistoryStatus:    string(dres.Status),
		DedupeReason:     dres.DedupeReason,
		NationalCodeHash: nationalCodeHash(s),
	}
	d.logSpan(s, "dedupe", 1, boolToCount(dres.Status != dedupe.StatusAlreadyAllocated), string(dres.Status))

	if dres.Status == dedupe.StatusAlreadyAllocated {
		return Record{
			RowIndex:  s.RowIndex,
			StudentID: s.StudentID,
			Trace:     trace,
			Outcome: Outcome{
				Status:          StatusSkippedHistory,
				HistoryMentorID: dres.HistoryMentorID,
			},
		}
	}

	tag, err := channel.Route(s, d.Policy)
	if err != nil {
		// A compiled predicate failing at eval time (anything besides a
		// missing variable, which Route already treats as non-match) is
		// an internal invariant breach, not a per-student failure: the
		// policy was already proven to compile at Validate time.
		tag = policy.ChannelGeneric
	}
	trace.AllocationChannel = tag
	d.logSpan(s, "channel", 1, 1, tag)

	fcResult, err := filterchain.Run(s, d.Pool.All(), d.Policy)
	trace.Stages = fcResult.Stages
	for _, stage := range fcResult.Stages {
		d.logSpan(s, "filter_"+stage.Name, stage.BeforeCount, stage.AfterCount, stage.DropReason)
	}
	if err != nil {
		return Record{RowIndex: s.RowIndex, StudentID: s.StudentID, Trace: trace, Outcome: failureOutcome(err)}
	}

	if len(fcResult.Survivors) == 0 {
		noSurvivorsErr := ranker.NoSurvivorsError(s.RowIndex, s.StudentID, lastZeroStage(fcResult.Stages))
		return Record{RowIndex: s.RowIndex, StudentID: s.StudentID, Trace: trace, Outcome: failureOutcome(noSurvivorsErr)}
	}

	sorted, reason, preview := ranker.Rank(fcResult.Survivors)
	d.logSpan(s, "rank", len(fcResult.Survivors), len(sorted), reason)
	assignment, err := ranker.Commit(sorted, reason, preview)
	if err != nil {
		// CapacityUnderflow: a candidate the capacity_gate stage should
		// already have excluded had zero remaining capacity. Recorded
		// as a failed outcome for this student; Run then aborts the
		// batch with CodeCapacityUnderflow after appending this record.
		d.logSpan(s, "commit", 1, 0, err.Error())
		return Record{RowIndex: s.RowIndex, StudentID: s.StudentID, Trace: trace, Outcome: failureOutcome(err)}
	}
	d.logSpan(s, "commit", 1, 1, assignment.MentorID)

	return Record{
		RowIndex:  s.RowIndex,
		StudentID: s.StudentID,
		Trace:     trace,
		Outcome: Outcome{
			Status:               StatusSuccess,
			MentorID:             assignment.MentorID,
			OccupancyRatioBefore: assignment.OccupancyRatioBefore,
			OccupancyRatioAfter:  assignment.OccupancyRatioAfter,
			CapacityBefore:       assignment.CapacityBefore,
			CapacityAfter:        assignment.CapacityAfter,
			SelectionReason:      assignment.SelectionReason,
			TieBreakers:          assignment.TieBreakers,
		},
	}
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}

// logSpan emits one span-like monitoring event per pipeline stage
// (spec.md §2, SPEC_FULL.md §4.7 tracing), grounded on the teacher's
// internal/infrastructure/monitoring.Observer pattern but carried
// through zerolog instead of a bespoke LogEvent struct.
func (d *Driver) logSpan(s student.Student, event string, beforeCount, afterCount int, detail string) {
	e := d.Logger.Debug().
		EmbedObject(s).
		Str("event", event).
		Int("before_count", beforeCount).
		Int("after_count", afterCount)
	if detail != "" {
		e.Str("detail", detail)
	}
	e.Msg("stage_span")
}

// lastZeroStage returns the name of the first stage whose after_count
// reached zero, used to classify a no-survivors failure (spec.md
// §4.6's "last non-trivial stage that dropped candidates").
func lastZeroStage(stages []filterchain.StageResult) string {
	for _, s := range stages {
		if s.AfterCount == 0 {
			return s.Name
		}
	}
	return ""
}

func failureOutcome(err error) Outcome {
	ae, ok := err.(*errs.AllocationError)
	if !ok {
		return Outcome{Status: StatusFailed, ErrorKind: string(errs.CodeInternal), DetailedReason: err.Error()}
	}
	return Outcome{
		Status:           StatusFailed,
		ErrorKind:        string(ae.Code),
		DetailedReason:   ae.Message,
		SuggestedActions: suggestedActions(ae.Code),
	}
}

func suggestedActions(code errs.Code) []string {
	switch code {
	case errs.CodeJoinKeyDataMissing:
		return []string{"check the student's raw join-key columns for non-numeric or blank values"}
	case errs.CodeEligibilityNoMatch:
		return []string{"review mentor eligibility coverage for this student's join-key combination"}
	case errs.CodeCapacityFull:
		return []string{"increase mentor capacity or add mentors eligible for this student"}
	case errs.CodeInvalidCenter:
		return []string{"verify the student's center code against the declared center list"}
	default:
		return nil
	}
}

func percentComplete(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (done * 100) / total
}

func (d *Driver) logRecord(r Record) {
	event := d.Logger.Info()
	if r.Outcome.Status == StatusFailed {
		event = d.Logger.Warn()
	}
	event.EmbedObject(r).Msg("student_processed")
}

func nationalCodeHash(s student.Student) string {
	if s.NationalCodeNormalized == "" {
		return ""
	}
	return normalize.NationalCodeHash(s.NationalCodeNormalized)
}
