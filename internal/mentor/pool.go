package mentor

import "github.com/rezahh107/matrix2/internal/normalize"

// RawRow is the un-normalized view of one mentor-pool input row.
type RawRow struct {
	MentorID     string
	Capacity     int
	Allocations  int
	MentorStatus string
	Eligibility  map[string][]int // keyed by eligibility field name
	BoundSchools []string
}

// Restriction narrows a RESTRICTED_* mentor's eligibility sets before
// the filter chain runs. A field absent from Restriction is left
// unrestricted.
type Restriction map[string][]int

// BuildPool applies spec.md §4.5's mentor-pool pre-filter: FROZEN
// mentors are dropped entirely, and RESTRICTED_* mentors have their
// eligibility sets intersected with their restriction profile (looked
// up by MentorID in restrictions) before stage 1 ever runs.
func BuildPool(rows []RawRow, restrictions map[string]Restriction) []Mentor {
	pool := make([]Mentor, 0, len(rows))
	for _, row := range rows {
		if row.MentorStatus == StatusFrozen {
			continue
		}

		eligibility := row.Eligibility
		if IsRestricted(row.MentorStatus) {
			if restriction, ok := restrictions[row.MentorID]; ok {
				eligibility = intersectAll(row.Eligibility, restriction)
			}
		}

		normalizedID := normalize.MentorID(row.MentorID)
		boundSchools := make(map[string]bool, len(row.BoundSchools))
		for _, s := range row.BoundSchools {
			boundSchools[s] = true
		}

		pool = append(pool, Mentor{
			MentorID:              normalizedID,
			SortKey:               normalize.NaturalSortKey(normalizedID),
			DeclaredCapacity:      row.Capacity,
			InitialAllocationsNew: row.Allocations,
			MentorStatus:          row.MentorStatus,
			Eligibility:           eligibility,
			BoundSchools:          boundSchools,
			HasSchoolConstraint:   len(row.BoundSchools) > 0,
		})
	}
	return pool
}

// intersectAll returns a copy of base with every field present in
// restriction narrowed to base[field] ∩ restriction[field]. Fields not
// named in restriction pass through unchanged.
func intersectAll(base map[string][]int, restriction Restriction) map[string][]int {
	out := make(map[string][]int, len(base))
	for field, values := range base {
		restricted, ok := restriction[field]
		if !ok {
			out[field] = values
			continue
		}
		allowed := make(map[int]bool, len(restricted))
		for _, v := range restricted {
			allowed[v] = true
		}
		narrowed := make([]int, 0, len(values))
		for _, v := range values {
			if allowed[v] {
				narrowed = append(narrowed, v)
			}
		}
		out[field] = narrowed
	}
	return out
}
