package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"onereply/api/internal/atoms"
)

func TestRenderSituation(t *testing.T) {
	unified := atoms.Empty()
	unified.Situation.Understanding = []string{"First point", "Second point"}
	unified.Situation.PropertyFacts = []atoms.PropertyFact{{Key: "Parcel", Value: "123", Source: "Building, Land Use"}}

	got := Render(atoms.TopicSituation, unified)

	assert.Equal(t, "Understanding:\nFirst point\n\nSecond point\n\nProperty Facts:\n• Parcel: 123 (Building, Land Use)", got)
}

func TestRenderGuidance(t *testing.T) {
	unified := atoms.Empty()
	unified.Guidance.Recommendations = []string{"Apply early"}
	unified.Guidance.Citations = []atoms.Citation{
		{Code: "LUC", Section: "20.20.720", Description: "desc A; desc B", Source: "Land Use"},
		{Code: "LUC", Description: "General rules"},
	}

	got := Render(atoms.TopicGuidance, unified)

	assert.Equal(t, "Recommendations:\n• Apply early\n\nCitations:\n• LUC 20.20.720 - desc A; desc B (Land Use)\n• LUC - General rules", got)
}

func TestRenderNextSteps(t *testing.T) {
	unified := atoms.Empty()
	unified.NextSteps.Followups = []string{"Lot width?"}
	unified.NextSteps.Actions = []string{"1. Submit", "2. Pay"}

	assert.Equal(t, "Follow-ups:\n• Lot width?\n\nActions:\n1. Submit\n2. Pay", Render(atoms.TopicNextSteps, unified))
}

func TestRenderEmptyAndUnknown(t *testing.T) {
	full := atoms.Empty()
	full.Situation.Understanding = []string{"x"}

	assert.Equal(t, "", Render(atoms.TopicGuidance, full))
	assert.Equal(t, "", Render(atoms.TopicKey("appendix"), full))

	rendered := RenderAll(full)
	assert.Len(t, rendered, 3)
	assert.Equal(t, "Understanding:\nx", rendered[atoms.TopicSituation])
}
