package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onereply/api/internal/splitter"
)

func TestToBulletedHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "  \n ", want: ""},
		{name: "single line", in: "Just one line", want: "<p>Just one line</p>"},
		{name: "plain lines", in: "first\nsecond", want: "<ul><li>first</li>\n<li>second</li></ul>"},
		{name: "existing bullets", in: "- first\n* second\nthird", want: "<ul><li>first</li>\n<li>second</li>\n<li>third</li></ul>"},
		{name: "escapes markup", in: "a < b", want: "<p>a &lt; b</p>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToBulletedHTML(tc.in))
		})
	}
}

func TestCoerceShortText(t *testing.T) {
	assert.Equal(t, "<h3>Our understanding</h3><p>Can I build a fence?</p>", CoerceToSectioned("Can I build a fence?"))
	assert.Equal(t, "", CoerceToSectioned("   "))
}

func TestCoerceLongTextDistributesSentences(t *testing.T) {
	text := "The resident's request concerns a new fence along the side yard. " +
		"The property is zoned R-1 and the parcel is a corner lot. " +
		"LUC code section 20.20.400 regulates fence height. " +
		"You should keep the fence under six feet and must avoid the sight triangle. " +
		"We need clarification on whether the fence is solid. " +
		"Next, submit a site plan and apply online."

	out := CoerceToSectioned(text)

	assert.True(t, splitter.IsWellFormed(out))
	for _, heading := range splitter.Headings {
		assert.Contains(t, out, "<h3>"+heading+"</h3>")
	}
	assert.True(t, strings.HasPrefix(out, "<h3>Our understanding</h3>"))

	parts := splitter.Split(out, "building")
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Content, "corner lot")
	assert.Contains(t, parts[1].Content, "sight triangle")
	assert.Contains(t, parts[2].Content, "submit a site plan")
}

func TestContentFormats(t *testing.T) {
	sectioned := "<h3>Our understanding</h3><p>x</p>"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "json html", in: `{"html": "<h3>Our understanding</h3><p>x</p>"}`, want: sectioned},
		{name: "json html with escapes", in: `{"html": "<h3>Guidance</h3>\\n<p>y</p>"}`, want: "<h3>Guidance</h3>\n<p>y</p>"},
		{name: "json inside prose", in: `Here you go: {"html": "<p>z</p>"} thanks`, want: "<p>z</p>"},
		{name: "fenced json", in: "```json\n{\"html\": \"<p>q</p>\"}\n```", want: "<p>q</p>"},
		{name: "fenced html", in: "```html\n<h3>Guidance</h3><p>g</p>\n```", want: "<h3>Guidance</h3><p>g</p>"},
		{name: "already html", in: "  <p>hello</p>  ", want: "<p>hello</p>"},
		{name: "plain text", in: "Short question about a permit", want: "<h3>Our understanding</h3><p>Short question about a permit</p>"},
		{name: "empty", in: "", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Content(tc.in))
		})
	}
}

func TestContentFromAtomsEnvelope(t *testing.T) {
	raw := `{"atoms": {
		"understanding": "You want a wider driveway",
		"propertyFacts": [{"key": "Zoning", "value": "R-1"}, {"key": "Lot", "value": "50 ft"}],
		"guidance": ["Keep the apron within 20 ft", "Use detail T-130"],
		"followups": ["Is there a street tree?"],
		"nextsteps": "Submit a right-of-way permit"
	}}`

	out := Content(raw)

	require.True(t, splitter.IsWellFormed(out))
	parts := splitter.Split(out, "transportation")
	require.Len(t, parts, 3)
	assert.Equal(t, []string{"You want a wider driveway"}, parts[0].Atoms.Situation.Understanding)
	require.Len(t, parts[0].Atoms.Situation.PropertyFacts, 2)
	assert.Equal(t, "Zoning", parts[0].Atoms.Situation.PropertyFacts[0].Key)
	assert.Equal(t, []string{"Keep the apron within 20 ft", "Use detail T-130"}, parts[1].Atoms.Guidance.Recommendations)
	assert.Equal(t, []string{"Is there a street tree?"}, parts[2].Atoms.NextSteps.Followups)
}

func TestContentUnparseableObjectDoesNotLoop(t *testing.T) {
	raw := `{"html": broken, "other": 1}`
	out := Content(raw)
	assert.NotEmpty(t, out)
}
