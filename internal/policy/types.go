// Package policy loads and validates the declarative PolicyConfig that
// parameterizes every other component of the allocator: join-key names,
// the eight-stage eligibility trace, the channel-routing rules, and the
// school-binding mode. Nothing downstream embeds a domain constant;
// everything comes from here.
package policy

// Fixed stage names, in the order the specification requires. A valid
// PolicyConfig's TraceStages must list exactly these names, in exactly
// this order.
const (
	StageType              = "type"
	StageGroup             = "group"
	StageGender            = "gender"
	StageGraduationStatus  = "graduation_status"
	StageCenter            = "center"
	StageFinance           = "finance"
	StageSchool            = "school"
	StageCapacityGate      = "capacity_gate"
)

// StageOrder is the fixed, policy-independent sequence of eligibility
// stage names. A PolicyConfig is invalid if TraceStages does not list
// exactly these names in exactly this order.
var StageOrder = []string{
	StageType, StageGroup, StageGender, StageGraduationStatus,
	StageCenter, StageFinance, StageSchool, StageCapacityGate,
}

// Stage comparison kinds.
const (
	KindExactInt       = "exact-int"
	KindMembership     = "membership"
	KindWildcardAware  = "wildcard-aware"
	KindCapacityGate   = "capacity-gate"
)

// Ranking rule tags, in the fixed required order.
const (
	RuleMinOccupancyRatio = "min_occupancy_ratio"
	RuleMinAllocationsNew = "min_allocations_new"
	RuleMinMentorID       = "min_mentor_id"
)

// RankingRuleOrder is the one and only valid ranking_rules sequence.
var RankingRuleOrder = []string{RuleMinOccupancyRatio, RuleMinAllocationsNew, RuleMinMentorID}

// Allocation channel tags.
const (
	ChannelSchool   = "SCHOOL"
	ChannelGolestan = "GOLESTAN"
	ChannelSadra    = "SADRA"
	ChannelGeneric  = "GENERIC"
)

// ValidChannelTags is the closed set allocation_channels rules may
// target (invariant I5).
var ValidChannelTags = map[string]bool{
	ChannelSchool:   true,
	ChannelGolestan: true,
	ChannelSadra:    true,
	ChannelGeneric:  true,
}

// School-binding modes.
const (
	BindingGlobal     = "global"
	BindingRestricted = "restricted"
)

// InvalidCenterPolicy values, governing how the center stage treats an
// out-of-range center value (spec.md §9 Open Question, resolved in
// SPEC_FULL.md: policy-configurable, default "wildcard").
const (
	InvalidCenterWildcard = "wildcard"
	InvalidCenterFail     = "fail"
)

// ExpectedMajorMinor is the major.minor version this build implements.
// version strings in a policy file must share this major.minor; the
// patch component is free to vary.
const ExpectedMajorMinor = "1.0"

// StageDescriptor declares one eligibility stage: which column it reads,
// how it compares, and what reason to attach when it drops a candidate.
type StageDescriptor struct {
	Name         string `json:"name" yaml:"name"`
	SourceColumn string `json:"source_column" yaml:"source_column"`
	Kind         string `json:"kind" yaml:"kind"`
	DropReason   string `json:"drop_reason" yaml:"drop_reason"`

	// OnInvalid governs the center stage's handling of an out-of-range
	// value: "wildcard" (no-op, matches every mentor) or "fail"
	// (per-student INVALID_CENTER failure). Ignored by every other
	// stage. Empty defaults to InvalidCenterWildcard.
	OnInvalid string `json:"on_invalid,omitempty" yaml:"on_invalid,omitempty"`

	// StatusColumn is consulted only by the "type" stage: it names the
	// join key holding the student's enrollment-status code, which is
	// tested for membership in NormalStatuses or SchoolStatuses
	// depending on whether the candidate mentor is school-bound. This
	// is how "type" applies the normal/school status restriction
	// spec.md §4.1 describes in addition to the group-code equality
	// carried on SourceColumn.
	StatusColumn string `json:"status_column,omitempty" yaml:"status_column,omitempty"`
}

// ChannelRule maps one predicate to an allocation_channel tag. Rules
// are evaluated top-down; the first match wins.
type ChannelRule struct {
	Predicate string `json:"predicate" yaml:"predicate"`
	Tag       string `json:"tag" yaml:"tag"`

	compiled *compiledPredicate
}

// SchoolBinding governs how the school eligibility stage treats
// student school-code tokens.
type SchoolBinding struct {
	Mode           string   `json:"mode" yaml:"mode"`
	EmptyTokens    []string `json:"empty_tokens" yaml:"empty_tokens"`
	ZeroAsWildcard bool     `json:"zero_as_wildcard" yaml:"zero_as_wildcard"`
}

// PolicyConfig is the immutable, validated configuration every other
// allocator component is threaded through. Construct one with Load,
// ParseJSON or ParseYAML; never mutate a PolicyConfig after validation succeeds.
type PolicyConfig struct {
	Version            string          `json:"version" yaml:"version"`
	JoinKeys           []string        `json:"join_keys" yaml:"join_keys"`
	NormalStatuses     []int           `json:"normal_statuses" yaml:"normal_statuses"`
	SchoolStatuses     []int           `json:"school_statuses" yaml:"school_statuses"`
	RankingRules       []string        `json:"ranking_rules" yaml:"ranking_rules"`
	TraceStages        []StageDescriptor `json:"trace_stages" yaml:"trace_stages"`
	AllocationChannels []ChannelRule   `json:"allocation_channels" yaml:"allocation_channels"`
	SchoolBinding      SchoolBinding   `json:"school_binding" yaml:"school_binding"`

	validated bool
}

// StageByName returns the stage descriptor for name and true, or the
// zero value and false if no such stage is declared. Callers should
// only use this after Validate has succeeded, at which point exactly
// the eight names in StageOrder are guaranteed present.
func (p *PolicyConfig) StageByName(name string) (StageDescriptor, bool) {
	for _, s := range p.TraceStages {
		if s.Name == name {
			return s, true
		}
	}
	return StageDescriptor{}, false
}

// JoinKeyIndex returns the 0-based position of a join-key name, or -1
// if it is not declared.
func (p *PolicyConfig) JoinKeyIndex(name string) int {
	for i, k := range p.JoinKeys {
		if k == name {
			return i
		}
	}
	return -1
}
