package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onereply/api/internal/atoms"
)

func TestParseManualSituation(t *testing.T) {
	content := "Resident asks about a driveway widening.\nAddress: 100 Main St\nZoning: R-1\n"

	out := ParseManual(content, atoms.TopicSituation)

	assert.Equal(t, []string{"Resident asks about a driveway widening."}, out.Situation.Understanding)
	assert.Equal(t, []atoms.PropertyFact{
		{Key: "Address", Value: "100 Main St"},
		{Key: "Zoning", Value: "R-1"},
	}, out.Situation.PropertyFacts)
}

func TestParseManualGuidance(t *testing.T) {
	content := "Widen within the curb cut limits.\nUse permeable paving.\nRelevant Codes:\n• TDM - Driveway standards\n• Curb cut guide\nplain line"

	out := ParseManual(content, atoms.TopicGuidance)

	assert.Equal(t, []string{"Widen within the curb cut limits.", "Use permeable paving."}, out.Guidance.Recommendations)
	require.Len(t, out.Guidance.Citations, 2)
	assert.Equal(t, atoms.Citation{Code: "TDM", Description: "Driveway standards"}, out.Guidance.Citations[0])
	assert.Equal(t, "Curb cut guide", out.Guidance.Citations[1].Description)
}

func TestParseManualNextSteps(t *testing.T) {
	content := "Follow-ups:\n• What is the lot width?\n• Is there a tree?\nNext Steps:\n1. Submit plans 2. Pay the fee"

	out := ParseManual(content, atoms.TopicNextSteps)

	assert.Equal(t, []string{"What is the lot width?", "Is there a tree?"}, out.NextSteps.Followups)
	assert.Equal(t, []string{"Submit plans", "Pay the fee"}, out.NextSteps.Actions)
}

func TestParseManualUnknownTopicIsEmpty(t *testing.T) {
	assert.True(t, ParseManual("anything", atoms.TopicKey("other")).IsEmpty())
	assert.True(t, ParseManual("", atoms.TopicSituation).IsEmpty())
}
