// Package filterchain applies the eight-stage eligibility filter chain
// described in spec.md §4.5, narrowing a mentor candidate set for one
// student and recording a StageResult per stage — the audit trail
// spec.md calls the "8-step trace". It never mutates mentor.State;
// capacity commitment happens later, in the ranker.
package filterchain

import (
	"github.com/rezahh107/matrix2/internal/errs"
	"github.com/rezahh107/matrix2/internal/mentor"
	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/rezahh107/matrix2/internal/policy"
	"github.com/rezahh107/matrix2/internal/student"
)

// StageResult is one trace row: the candidate count before and after a
// stage ran, and the stage's canonical drop reason when it eliminated
// at least one candidate.
type StageResult struct {
	Name        string
	BeforeCount int
	AfterCount  int
	DropReason  string
}

// Result is the outcome of running the full chain for one student.
type Result struct {
	Survivors []*mentor.State
	Stages    []StageResult // always len(policy.StageOrder), in declared order
}

// Run applies stages 1-8 of the eligibility chain, in the order
// p.TraceStages declares, against candidates. candidates is read-only;
// Run returns a new slice at every stage rather than mutating its
// input, matching spec.md §4.5 "must not mutate input rows".
//
// All eight stages always run and are always recorded (invariant I3,
// "stage completeness"), even once the candidate set reaches zero —
// except when the center stage is configured to hard-fail on an
// invalid value, in which case Run returns early with an
// *errs.AllocationError and a partial Stages slice; the batch driver
// treats that the same way it treats JoinKeyDataMissing: a per-student
// failure that never reaches ranking.
func Run(s student.Student, candidates []*mentor.State, p *policy.PolicyConfig) (Result, error) {
	stages := make([]StageResult, 0, len(p.TraceStages))
	current := candidates

	for _, desc := range p.TraceStages {
		before := len(current)
		var (
			next       []*mentor.State
			dropReason string
			noOp       bool
		)

		switch desc.Name {
		case policy.StageType:
			next, dropReason = filterType(s, current, desc, p)
		case policy.StageGroup:
			next, dropReason = filterMembership(s, current, desc, "group")
		case policy.StageGender:
			next, dropReason = filterExactInt(s, current, desc, "gender")
		case policy.StageGraduationStatus:
			next, dropReason = filterExactInt(s, current, desc, "graduation_status")
		case policy.StageCenter:
			var err error
			next, dropReason, noOp, err = filterCenter(s, current, desc, p)
			if err != nil {
				stages = append(stages, StageResult{Name: desc.Name, BeforeCount: before, AfterCount: before, DropReason: ""})
				return Result{Survivors: current, Stages: stages}, err
			}
		case policy.StageFinance:
			next, dropReason = filterExactInt(s, current, desc, "finance")
		case policy.StageSchool:
			next, dropReason = filterSchool(s, current, p)
		case policy.StageCapacityGate:
			next, dropReason = filterCapacity(current, desc)
		default:
			next = current
		}

		after := len(next)
		result := StageResult{Name: desc.Name, BeforeCount: before, AfterCount: after}
		if noOp {
			result.DropReason = ""
		} else if after < before {
			result.DropReason = dropReason
		}
		stages = append(stages, result)
		current = next
	}

	return Result{Survivors: current, Stages: stages}, nil
}

func filterExactInt(s student.Student, candidates []*mentor.State, desc policy.StageDescriptor, field string) ([]*mentor.State, string) {
	value, ok := s.JoinKey(desc.SourceColumn)
	if !ok {
		return nil, desc.DropReason
	}
	out := make([]*mentor.State, 0, len(candidates))
	for _, c := range candidates {
		if c.Mentor.Accepts(field, value) {
			out = append(out, c)
		}
	}
	return out, desc.DropReason
}

func filterMembership(s student.Student, candidates []*mentor.State, desc policy.StageDescriptor, field string) ([]*mentor.State, string) {
	return filterExactInt(s, candidates, desc, field)
}

// filterType implements stage 1: group-code equality against the
// mentor's "type" eligibility field, further restricted by whether the
// student's status-column value belongs to the normal or school status
// set, depending on whether the candidate mentor is school-bound.
func filterType(s student.Student, candidates []*mentor.State, desc policy.StageDescriptor, p *policy.PolicyConfig) ([]*mentor.State, string) {
	groupValue, groupOK := s.JoinKey(desc.SourceColumn)
	statusValue, statusOK := s.JoinKey(desc.StatusColumn)
	if !groupOK || !statusOK {
		return nil, desc.DropReason
	}
	out := make([]*mentor.State, 0, len(candidates))
	for _, c := range candidates {
		if !c.Mentor.Accepts("type", groupValue) {
			continue
		}
		statuses := p.NormalStatuses
		if c.Mentor.HasSchoolConstraint {
			statuses = p.SchoolStatuses
		}
		if !containsInt(statuses, statusValue) {
			continue
		}
		out = append(out, c)
	}
	return out, desc.DropReason
}

// filterCenter implements stage 5: center-code equality, with 0 always
// treated as a wildcard no-op, and negative values routed through the
// policy's InvalidCenterPolicy.
func filterCenter(s student.Student, candidates []*mentor.State, desc policy.StageDescriptor, p *policy.PolicyConfig) (out []*mentor.State, dropReason string, noOp bool, err error) {
	value, ok := s.JoinKey(desc.SourceColumn)
	if !ok {
		return nil, desc.DropReason, false, nil
	}
	if value == 0 {
		return candidates, "", true, nil
	}
	if value < 0 {
		switch p.CenterOnInvalid() {
		case policy.InvalidCenterFail:
			return candidates, "", false, errs.InvalidCenter(s.RowIndex, s.StudentID, value)
		default: // wildcard
			return candidates, "", true, nil
		}
	}
	out = make([]*mentor.State, 0, len(candidates))
	for _, c := range candidates {
		if c.Mentor.Accepts("center", value) {
			out = append(out, c)
		}
	}
	return out, desc.DropReason, false, nil
}

// filterSchool implements stage 7: a mentor with no school constraint
// passes unconditionally; otherwise the student's normalized
// school-code tokens must intersect the mentor's bound set, unless the
// wildcard policy flags apply.
func filterSchool(s student.Student, candidates []*mentor.State, p *policy.PolicyConfig) ([]*mentor.State, string) {
	tokens := normalize.SchoolTokens(s.SchoolCodeRaw)
	if isWildcardSchool(tokens, p.SchoolBinding) {
		return candidates, ""
	}
	out := make([]*mentor.State, 0, len(candidates))
	for _, c := range candidates {
		if !c.Mentor.HasSchoolConstraint {
			out = append(out, c)
			continue
		}
		if intersectsBound(tokens, c.Mentor.BoundSchools) {
			out = append(out, c)
		}
	}
	stage, _ := p.StageByName(policy.StageSchool)
	return out, stage.DropReason
}

func isWildcardSchool(tokens []string, binding policy.SchoolBinding) bool {
	if len(tokens) == 0 {
		return true
	}
	empty := make(map[string]bool, len(binding.EmptyTokens))
	for _, t := range binding.EmptyTokens {
		empty[t] = true
	}
	onlyEmpty := true
	for _, t := range tokens {
		if empty[t] {
			continue
		}
		if binding.ZeroAsWildcard && t == "0" {
			continue
		}
		onlyEmpty = false
		break
	}
	return onlyEmpty
}

func intersectsBound(tokens []string, bound map[string]bool) bool {
	for _, t := range tokens {
		if bound[t] {
			return true
		}
	}
	return false
}

func filterCapacity(candidates []*mentor.State, desc policy.StageDescriptor) ([]*mentor.State, string) {
	out := make([]*mentor.State, 0, len(candidates))
	for _, c := range candidates {
		if c.RemainingCapacity > 0 {
			out = append(out, c)
		}
	}
	return out, desc.DropReason
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
