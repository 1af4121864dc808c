// Package channel implements the allocation-channel router: it
// evaluates the policy's ordered predicate→tag rules against a
// student's join keys and picks the first match, defaulting to
// GENERIC. It performs no I/O and never looks up mentors.
package channel

import (
	"fmt"

	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/rezahh107/matrix2/internal/policy"
	"github.com/rezahh107/matrix2/internal/student"
)

// Route evaluates p.AllocationChannels top-down against s and returns
// the first matching tag, or policy.ChannelGeneric if none match
// (spec.md §4.4). p must already have had Validate called successfully
// (its predicates compiled).
func Route(s student.Student, p *policy.PolicyConfig) (string, error) {
	env := buildEnv(s)
	for i, rule := range p.AllocationChannels {
		matched, err := rule.Eval(env)
		if err != nil {
			return "", fmt.Errorf("allocation_channels[%d]: %w", i, err)
		}
		if matched {
			return rule.Tag, nil
		}
	}
	return policy.ChannelGeneric, nil
}

// buildEnv exposes a student's join keys and school tokens to a
// predicate, without ever including the national code.
func buildEnv(s student.Student) map[string]any {
	env := make(map[string]any, len(s.JoinKeys)+2)
	for k, v := range s.JoinKeys {
		env[k] = v
	}
	env["school_codes"] = normalize.SchoolTokens(s.SchoolCodeRaw)
	env["has_national_code"] = s.NationalCodeNormalized != ""
	return env
}
