package policy

import (
	"fmt"
	"strings"

	"github.com/rezahh107/matrix2/internal/errs"
)

// Validate checks every rule in spec.md §4.1 and, on success, compiles
// every allocation_channels predicate. It is idempotent: calling it
// twice on an already-valid config recompiles predicates but changes
// nothing observable.
func (p *PolicyConfig) Validate() error {
	if err := validateVersion(p.Version); err != nil {
		return err
	}
	if err := validateJoinKeys(p.JoinKeys); err != nil {
		return err
	}
	if err := validateRankingRules(p.RankingRules); err != nil {
		return err
	}
	if err := validateTraceStages(p.TraceStages); err != nil {
		return err
	}
	if err := validateChannels(p.AllocationChannels); err != nil {
		return err
	}
	if err := validateSchoolBinding(p.SchoolBinding); err != nil {
		return err
	}
	for i := range p.AllocationChannels {
		compiled, err := compilePredicate(p.AllocationChannels[i].Predicate)
		if err != nil {
			return errs.PolicyInvalid(fmt.Sprintf("allocation_channels[%d]: invalid predicate", i), err)
		}
		p.AllocationChannels[i].compiled = compiled
	}
	p.validated = true
	return nil
}

// Validated reports whether Validate has succeeded on this config.
func (p *PolicyConfig) Validated() bool { return p.validated }

func validateVersion(version string) error {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return errs.PolicyInvalid(fmt.Sprintf("version %q must be of the form major.minor[.patch]", version), nil)
	}
	majorMinor := parts[0] + "." + parts[1]
	if majorMinor != ExpectedMajorMinor {
		return errs.PolicyInvalid(
			fmt.Sprintf("version %q has major.minor %q, expected %q", version, majorMinor, ExpectedMajorMinor), nil)
	}
	return nil
}

func validateJoinKeys(keys []string) error {
	if len(keys) != 6 {
		return errs.PolicyInvalid(fmt.Sprintf("join_keys must have exactly 6 entries, got %d", len(keys)), nil)
	}
	seen := make(map[string]bool, 6)
	for i, k := range keys {
		if k == "" {
			return errs.PolicyInvalid(fmt.Sprintf("join_keys[%d] is empty", i), nil)
		}
		if seen[k] {
			return errs.PolicyInvalid(fmt.Sprintf("join_keys contains duplicate name %q", k), nil)
		}
		seen[k] = true
	}
	return nil
}

func validateRankingRules(rules []string) error {
	if len(rules) != len(RankingRuleOrder) {
		return errs.PolicyInvalid(
			fmt.Sprintf("ranking_rules must have exactly %d entries, got %d", len(RankingRuleOrder), len(rules)), nil)
	}
	for i, want := range RankingRuleOrder {
		if rules[i] != want {
			return errs.PolicyInvalid(
				fmt.Sprintf("ranking_rules[%d] = %q, expected %q (exact order required)", i, rules[i], want), nil)
		}
	}
	return nil
}

var validStageKinds = map[string]bool{
	KindExactInt:      true,
	KindMembership:    true,
	KindWildcardAware: true,
	KindCapacityGate:  true,
}

func validateTraceStages(stages []StageDescriptor) error {
	if len(stages) != len(StageOrder) {
		return errs.PolicyInvalid(
			fmt.Sprintf("trace_stages must have exactly %d entries, got %d", len(StageOrder), len(stages)), nil)
	}
	for i, want := range StageOrder {
		s := stages[i]
		if s.Name != want {
			return errs.PolicyInvalid(
				fmt.Sprintf("trace_stages[%d].name = %q, expected %q (exact order required)", i, s.Name, want), nil)
		}
		if s.SourceColumn == "" {
			return errs.PolicyInvalid(fmt.Sprintf("trace_stages[%d] (%s) has no source_column", i, s.Name), nil)
		}
		if !validStageKinds[s.Kind] {
			return errs.PolicyInvalid(fmt.Sprintf("trace_stages[%d] (%s) has unknown kind %q", i, s.Name, s.Kind), nil)
		}
		if s.DropReason == "" {
			return errs.PolicyInvalid(fmt.Sprintf("trace_stages[%d] (%s) has no drop_reason", i, s.Name), nil)
		}
	}
	// The first two stages (type, group) must source from the same
	// join-key column: a deliberate one-to-many mapping, not a bug.
	if stages[0].SourceColumn != stages[1].SourceColumn {
		return errs.PolicyInvalid(
			fmt.Sprintf("trace_stages[0] (type) and trace_stages[1] (group) must share source_column, got %q and %q",
				stages[0].SourceColumn, stages[1].SourceColumn), nil)
	}
	if stages[0].StatusColumn == "" {
		return errs.PolicyInvalid("trace_stages[0] (type) must declare status_column for the normal/school status gate", nil)
	}
	if stages[0].StatusColumn == stages[0].SourceColumn {
		return errs.PolicyInvalid("trace_stages[0] (type) status_column must differ from source_column", nil)
	}
	centerStage := stages[4]
	if centerStage.OnInvalid != "" &&
		centerStage.OnInvalid != InvalidCenterWildcard && centerStage.OnInvalid != InvalidCenterFail {
		return errs.PolicyInvalid(
			fmt.Sprintf("trace_stages[4] (center) on_invalid must be %q or %q, got %q",
				InvalidCenterWildcard, InvalidCenterFail, centerStage.OnInvalid), nil)
	}
	return nil
}

func validateChannels(rules []ChannelRule) error {
	if len(rules) == 0 {
		return errs.PolicyInvalid("allocation_channels must be a non-empty ordered list", nil)
	}
	for i, r := range rules {
		if r.Predicate == "" {
			return errs.PolicyInvalid(fmt.Sprintf("allocation_channels[%d] has no predicate", i), nil)
		}
		if !ValidChannelTags[r.Tag] {
			return errs.PolicyInvalid(fmt.Sprintf("allocation_channels[%d] has unknown tag %q", i, r.Tag), nil)
		}
	}
	return nil
}

func validateSchoolBinding(b SchoolBinding) error {
	if b.Mode != BindingGlobal && b.Mode != BindingRestricted {
		return errs.PolicyInvalid(fmt.Sprintf("school_binding.mode must be %q or %q, got %q",
			BindingGlobal, BindingRestricted, b.Mode), nil)
	}
	return nil
}

// CenterOnInvalid returns the effective InvalidCenterPolicy for the
// center stage, defaulting to "wildcard" when the policy author left
// on_invalid unset.
func (p *PolicyConfig) CenterOnInvalid() string {
	stage, ok := p.StageByName(StageCenter)
	if !ok || stage.OnInvalid == "" {
		return InvalidCenterWildcard
	}
	return stage.OnInvalid
}
