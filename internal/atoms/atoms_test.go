package atoms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyIsFullyShaped(t *testing.T) {
	data, err := json.Marshal(Empty())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"situation": {"understanding": [], "propertyFacts": []},
		"guidance": {"recommendations": [], "citations": []},
		"nextsteps": {"followups": [], "actions": []}
	}`, string(data))
}

func TestZeroValueMarshalsWithEmptyLists(t *testing.T) {
	data, err := json.Marshal(DraftAtoms{})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
}

func TestUnmarshalFillsMissingLists(t *testing.T) {
	var decoded DraftAtoms
	require.NoError(t, json.Unmarshal([]byte(`{"guidance":{"recommendations":["Apply early"]}}`), &decoded))

	assert.Equal(t, []string{"Apply early"}, decoded.Guidance.Recommendations)
	assert.NotNil(t, decoded.Situation.Understanding)
	assert.NotNil(t, decoded.Situation.PropertyFacts)
	assert.NotNil(t, decoded.Guidance.Citations)
	assert.NotNil(t, decoded.NextSteps.Followups)
	assert.NotNil(t, decoded.NextSteps.Actions)
	assert.False(t, decoded.IsEmpty())
	assert.True(t, Empty().IsEmpty())
}

func TestTopicTitles(t *testing.T) {
	assert.Equal(t, "Situation", TopicSituation.Title())
	assert.Equal(t, "Guidance", TopicGuidance.Title())
	assert.Equal(t, "Next Steps", TopicNextSteps.Title())
	assert.Equal(t, "", TopicKey("appendix").Title())
	assert.False(t, TopicKey("appendix").Valid())
}
