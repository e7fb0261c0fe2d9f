package atoms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFactsCaseInsensitiveKeys(t *testing.T) {
	merged := MergeFacts([][]PropertyFact{
		{{Key: "Parcel", Value: "123", Source: "Building"}},
		{{Key: "parcel", Value: "123", Source: "Land Use"}},
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "Parcel", merged[0].Key)
	assert.Equal(t, "123", merged[0].Value)
	assert.Equal(t, []string{"Building", "Land Use"}, merged[0].Sources)
}

func TestMergeFactsJoinsDistinctValues(t *testing.T) {
	merged := MergeFacts([][]PropertyFact{
		{{Key: "ZONING", Value: "R-1", Source: "Land Use"}, {Key: "Lot size", Value: "5,000 sq ft", Source: "Land Use"}},
		{{Key: "zoning", Value: "RS-5", Source: "Building"}, {Key: "Zoning", Value: "R-1", Source: "Building"}},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, MergedFact{Key: "Zoning", Value: "R-1 / RS-5", Sources: []string{"Land Use", "Building"}}, merged[0])
	assert.Equal(t, "Lot size", merged[1].Key)
	assert.Equal(t, "Zoning: R-1 / RS-5 (Land Use, Building)", merged[0].Fact().Key+": "+merged[0].Fact().Value+" ("+merged[0].Fact().Source+")")
}

func TestMergeFactsEmptyInput(t *testing.T) {
	assert.Empty(t, MergeFacts(nil))
	assert.Empty(t, MergeFacts([][]PropertyFact{{}, {}}))
}

func TestMergeCitationsJoinsDescriptions(t *testing.T) {
	merged := MergeCitations([][]Citation{
		{{Code: "LUC", Section: "20.20.720", Description: "desc A", Source: "Land Use"}},
		{{Code: "LUC", Section: "20.20.720", Description: "desc B", Source: "Building"}},
		{{Code: "BCC", Section: "23.10.030", Description: "permits", Source: "Building"}},
		{{Code: "LUC", Section: "20.20.720", Description: "desc A", Source: "Land Use"}},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, MergedCitation{
		Code:        "LUC",
		Section:     "20.20.720",
		Description: "desc A; desc B",
		Sources:     []string{"Land Use", "Building"},
	}, merged[0])
	assert.Equal(t, "BCC", merged[1].Code)
	assert.Equal(t, "Land Use, Building", merged[0].Citation().Source)
}

func TestMergeCitationsSameSectionDifferentCode(t *testing.T) {
	merged := MergeCitations([][]Citation{
		{{Code: "LUC", Section: "1.1", Description: "x"}},
		{{Code: "BCC", Section: "1.1", Description: "y"}},
	})
	assert.Len(t, merged, 2)
	assert.Empty(t, merged[0].Sources)
}
