package mentor

import "github.com/rezahh107/matrix2/internal/errs"

// State is the mutable, per-batch view of one mentor: remaining
// capacity and running allocation count. It is owned exclusively by
// the batch driver (spec.md §5's "shared-resource policy") and never
// shared across concurrent executions.
type State struct {
	Mentor Mentor

	RemainingCapacity int
	AllocationsNew    int
	OccupancyRatio    float64
}

// NewState builds the initial mutable state for m.
func NewState(m Mentor) *State {
	return &State{
		Mentor:            m,
		RemainingCapacity: m.DeclaredCapacity - m.InitialAllocationsNew,
		AllocationsNew:    m.InitialAllocationsNew,
		OccupancyRatio:    InitialOccupancyRatio(m.InitialAllocationsNew, m.DeclaredCapacity),
	}
}

// Commit decrements remaining capacity and bumps allocations_new by
// one, recomputing occupancy_ratio. It refuses to drive
// RemainingCapacity negative (invariant I1), returning
// errs.CapacityUnderflow instead of silently violating it — the batch
// driver treats this as an internal invariant breach and aborts.
func (s *State) Commit() error {
	if s.RemainingCapacity <= 0 {
		return errs.CapacityUnderflow(s.Mentor.MentorID)
	}
	s.RemainingCapacity--
	s.AllocationsNew++
	s.OccupancyRatio = InitialOccupancyRatio(s.AllocationsNew, s.Mentor.DeclaredCapacity)
	return nil
}

// Pool is a per-batch collection of mentor states, keyed by normalized
// mentor ID.
type Pool struct {
	states map[string]*State
	order  []string
}

// NewPool builds a Pool from a built mentor slice (see BuildPool),
// preserving input order for deterministic iteration.
func NewPool(mentors []Mentor) *Pool {
	p := &Pool{states: make(map[string]*State, len(mentors)), order: make([]string, 0, len(mentors))}
	for _, m := range mentors {
		p.states[m.MentorID] = NewState(m)
		p.order = append(p.order, m.MentorID)
	}
	return p
}

// All returns every mentor state, in pool-build order.
func (p *Pool) All() []*State {
	out := make([]*State, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.states[id])
	}
	return out
}

// Get returns the state for a normalized mentor ID, or nil if absent.
func (p *Pool) Get(mentorID string) *State {
	return p.states[mentorID]
}

// TotalAllocationsNew sums allocations_new across every mentor in the
// pool, used by the batch driver's post-run sanity check.
func (p *Pool) TotalAllocationsNew() int {
	total := 0
	for _, s := range p.states {
		total += s.AllocationsNew
	}
	return total
}
