package channel

import (
	"testing"

	"github.com/rezahh107/matrix2/internal/policy"
	"github.com/rezahh107/matrix2/internal/student"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, rules []policy.ChannelRule) *policy.PolicyConfig {
	t.Helper()
	p := &policy.PolicyConfig{
		Version:      "1.0.0",
		JoinKeys:     []string{"a", "b", "c", "d", "e", "f"},
		RankingRules: []string{policy.RuleMinOccupancyRatio, policy.RuleMinAllocationsNew, policy.RuleMinMentorID},
		TraceStages: []policy.StageDescriptor{
			{Name: policy.StageType, SourceColumn: "a", StatusColumn: "b", Kind: policy.KindExactInt, DropReason: "r"},
			{Name: policy.StageGroup, SourceColumn: "a", Kind: policy.KindMembership, DropReason: "r"},
			{Name: policy.StageGender, SourceColumn: "b", Kind: policy.KindExactInt, DropReason: "r"},
			{Name: policy.StageGraduationStatus, SourceColumn: "c", Kind: policy.KindExactInt, DropReason: "r"},
			{Name: policy.StageCenter, SourceColumn: "d", Kind: policy.KindWildcardAware, DropReason: "r"},
			{Name: policy.StageFinance, SourceColumn: "e", Kind: policy.KindExactInt, DropReason: "r"},
			{Name: policy.StageSchool, SourceColumn: "f", Kind: policy.KindWildcardAware, DropReason: "r"},
			{Name: policy.StageCapacityGate, SourceColumn: "capacity", Kind: policy.KindCapacityGate, DropReason: "r"},
		},
		AllocationChannels: rules,
		SchoolBinding:      policy.SchoolBinding{Mode: policy.BindingGlobal},
	}
	require.NoError(t, p.Validate())
	return p
}

func TestRoute_FirstMatchWins(t *testing.T) {
	p := compile(t, []policy.ChannelRule{
		{Predicate: "d == 10", Tag: policy.ChannelGolestan},
		{Predicate: "d == 20", Tag: policy.ChannelSadra},
		{Predicate: "true", Tag: policy.ChannelGeneric},
	})

	s1 := student.Student{JoinKeys: map[string]int{"d": 10}}
	s2 := student.Student{JoinKeys: map[string]int{"d": 20}}
	s3 := student.Student{JoinKeys: map[string]int{"d": 99}}

	tag, err := Route(s1, p)
	require.NoError(t, err)
	assert.Equal(t, policy.ChannelGolestan, tag)

	tag, err = Route(s2, p)
	require.NoError(t, err)
	assert.Equal(t, policy.ChannelSadra, tag)

	tag, err = Route(s3, p)
	require.NoError(t, err)
	assert.Equal(t, policy.ChannelGeneric, tag)
}

func TestRoute_DefaultsToGenericWhenNoRuleMatches(t *testing.T) {
	p := compile(t, []policy.ChannelRule{
		{Predicate: "d == 10", Tag: policy.ChannelGolestan},
	})
	s := student.Student{JoinKeys: map[string]int{"d": 999}}
	tag, err := Route(s, p)
	require.NoError(t, err)
	assert.Equal(t, policy.ChannelGeneric, tag)
}

func TestRoute_UsesSchoolCodesEnv(t *testing.T) {
	p := compile(t, []policy.ChannelRule{
		{Predicate: `"123" in school_codes`, Tag: policy.ChannelSchool},
		{Predicate: "true", Tag: policy.ChannelGeneric},
	})
	s := student.Student{JoinKeys: map[string]int{"d": 1}, SchoolCodeRaw: "123,456"}
	tag, err := Route(s, p)
	require.NoError(t, err)
	assert.Equal(t, policy.ChannelSchool, tag)
}
