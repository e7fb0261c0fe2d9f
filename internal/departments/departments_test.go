package departments

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownAndUnknown(t *testing.T) {
	registry := Default()

	assert.Equal(t, "Land Use", registry.Lookup("land_use").Name)
	assert.False(t, registry.Lookup("land_use").IsUnknown())

	unknown := registry.Lookup("parks")
	assert.Equal(t, "parks", unknown.Key)
	assert.Equal(t, UnknownName, unknown.Name)
	assert.True(t, unknown.IsUnknown())
	assert.Equal(t, UnknownName, registry.Name("parks"))
}

func TestSuggest(t *testing.T) {
	registry := Default()

	tests := []struct {
		name    string
		subject string
		body    string
		want    []string
	}{
		{name: "fence permit", subject: "Fence permit", body: "How tall can my fence be?", want: []string{"building"}},
		{name: "multi", subject: "Driveway and water meter", body: "Widening my driveway near the street, the water meter is in the way", want: []string{"transportation", "utilities"}},
		{name: "phrase keyword", subject: "Question", body: "Where is my property line?", want: []string{"land_use"}},
		{name: "word boundary", subject: "Lottery", body: "codes", want: []string{"transportation"}},
		{name: "no match defaults", subject: "Hello", body: "General question", want: []string{"transportation"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, registry.Suggest(tc.subject, tc.body))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "departments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`default: parks
departments:
  - key: parks
    name: Parks
    color: green
    keywords: [tree, playground]
    teamsWebhook: https://example.webhook.office.com/abc
  - key: police
    name: Police
    keywords: [noise]
`), 0o644))

	registry, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Parks", registry.Name("parks"))
	assert.Equal(t, "https://example.webhook.office.com/abc", registry.Lookup("parks").TeamsWebhook)
	assert.Equal(t, []string{"police"}, registry.Suggest("Noise complaint", ""))
	assert.Equal(t, []string{"parks"}, registry.Suggest("", "nothing relevant"))
	assert.Len(t, registry.All(), 2)
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	_, err := New("", []Department{{Key: "a", Name: "A"}, {Key: "a", Name: "B"}})
	require.Error(t, err)

	_, err = New("", []Department{{Key: "", Name: "A"}})
	require.Error(t, err)

	_, err = New("", nil)
	require.Error(t, err)

	registry, err := New("missing", []Department{{Key: "a", Name: "A"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, registry.Suggest("", ""))
}
