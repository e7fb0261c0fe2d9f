package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onereply/api/internal/atoms"
)

const sixHeadingDoc = `<h3>Our understanding</h3><p>You want to build a 7 ft fence along the front property line.</p>
<h3>Property facts</h3><ul><li>Parcel: 123-456</li><li>Zoning: R-1</li><li>Corner lot</li></ul>
<h3>Relevant code citations</h3><ul><li>[LUC 20.20.400] - Fence height limits</li><li>Sight triangle rules</li></ul>
<h3>Guidance</h3><ul><li>Keep front fences at or below 42 inches.</li><li>Apply for a variance if taller.</li></ul>
<h3>Follow-up questions</h3><ul><li>Is the lot a corner lot?</li></ul>
<h3>Next steps</h3><ol><li>Submit a site plan.</li><li>Schedule a pre-application meeting.</li></ol>`

func TestIsWellFormed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{name: "all six", doc: sixHeadingDoc, want: true},
		{name: "three headings", doc: "<h3>Our understanding</h3>a<h3>Guidance</h3>b<h3>Next steps</h3>c", want: true},
		{name: "two headings", doc: "<h3>Our understanding</h3>a<h3>Guidance</h3>b", want: false},
		{name: "case and attributes", doc: `<H3 class="x">OUR UNDERSTANDING</H3>a<h3 id=g>guidance</h3>b<h3 >Next Steps</h3>c`, want: true},
		{name: "repeated heading counts once", doc: "<h3>Guidance</h3>a<h3>Guidance</h3>b<h3>Guidance</h3>c", want: false},
		{name: "unknown headings", doc: "<h3>Intro</h3>a<h3>Body</h3>b<h3>Outro</h3>c", want: false},
		{name: "h3x is not a heading", doc: "<h3x>Our understanding</h3x><h3x>Guidance</h3x><h3x>Next steps</h3x>", want: false},
		{name: "empty", doc: "", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsWellFormed(tc.doc))
		})
	}
}

func TestSplitSixHeadingDocument(t *testing.T) {
	parts := Split(sixHeadingDoc, "land_use")

	require.Len(t, parts, 3)
	assert.Equal(t, atoms.TopicSituation, parts[0].TopicKey)
	assert.Equal(t, "Situation", parts[0].Title)
	assert.Equal(t, atoms.TopicGuidance, parts[1].TopicKey)
	assert.Equal(t, "Guidance", parts[1].Title)
	assert.Equal(t, atoms.TopicNextSteps, parts[2].TopicKey)
	assert.Equal(t, "Next Steps", parts[2].Title)

	situation := parts[0].Atoms.Situation
	assert.Equal(t, []string{"You want to build a 7 ft fence along the front property line."}, situation.Understanding)
	assert.Equal(t, []atoms.PropertyFact{
		{Key: "Parcel", Value: "123-456", Source: "land_use"},
		{Key: "Zoning", Value: "R-1", Source: "land_use"},
		{Key: "Corner lot", Value: "", Source: "land_use"},
	}, situation.PropertyFacts)
	assert.Empty(t, parts[0].Atoms.Guidance.Recommendations)

	guidance := parts[1].Atoms.Guidance
	assert.Equal(t, []string{"Keep front fences at or below 42 inches.", "Apply for a variance if taller."}, guidance.Recommendations)
	require.Len(t, guidance.Citations, 2)
	assert.Equal(t, atoms.Citation{Code: "LUC", Section: "20.20.400", Description: "Fence height limits", Source: "land_use"}, guidance.Citations[0])
	assert.Equal(t, atoms.Citation{Code: DefaultCitationCode, Section: "", Description: "Sight triangle rules", Source: "land_use"}, guidance.Citations[1])

	next := parts[2].Atoms.NextSteps
	assert.Equal(t, []string{"Is the lot a corner lot?"}, next.Followups)
	assert.Equal(t, []string{"Submit a site plan.", "Schedule a pre-application meeting."}, next.Actions)
}

func TestSplitContentKeepsCanonicalHeadings(t *testing.T) {
	parts := Split(sixHeadingDoc, "land_use")

	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Content, "<h3>Our understanding</h3><p>You want")
	assert.Contains(t, parts[0].Content, "\n<h3>Property facts</h3><ul>")
	assert.True(t, strings.HasPrefix(parts[1].Content, "<h3>Relevant code citations</h3>"))
	assert.NotContains(t, parts[0].Content, "Guidance")
}

func TestSplitOmitsTopicsWithoutBlocks(t *testing.T) {
	doc := "<h3>Our understanding</h3><p>x</p><h3>Property facts</h3><ul><li>A: b</li></ul><h3>Guidance</h3><ul><li>Do it</li></ul>"

	parts := Split(doc, "building")

	require.Len(t, parts, 2)
	assert.Equal(t, atoms.TopicSituation, parts[0].TopicKey)
	assert.Equal(t, atoms.TopicGuidance, parts[1].TopicKey)
}

func TestSplitFallbackForMalformedDocument(t *testing.T) {
	doc := "<p>Thanks for reaching out, we will follow up.</p>"

	parts := Split(doc, "utilities")

	require.Len(t, parts, 1)
	assert.Equal(t, atoms.TopicSituation, parts[0].TopicKey)
	assert.Equal(t, "Situation", parts[0].Title)
	assert.Equal(t, doc, parts[0].Content)
	assert.True(t, parts[0].Atoms.IsEmpty())
}

func TestSplitFallbackWhenAllBlocksEmpty(t *testing.T) {
	doc := "<h3>Our understanding</h3><h3>Guidance</h3><h3>Next steps</h3>"

	parts := Split(doc, "utilities")

	require.Len(t, parts, 1)
	assert.Equal(t, doc, parts[0].Content)
}

func TestSplitNestedMarkupInListItems(t *testing.T) {
	doc := `<h3>Our understanding</h3><p>a</p>
<h3>Guidance</h3><ul><li><strong>Apply</strong> online <em>today</em></li><li>Outer<ul><li>Inner</li></ul></li></ul>
<h3>Next steps</h3><ul><li>Call us</li></ul>`

	parts := Split(doc, "building")

	require.Len(t, parts, 3)
	assert.Equal(t, []string{"Apply online today", "Outer", "Inner"}, parts[1].Atoms.Guidance.Recommendations)
}

func TestSplitCitationCodesBeyondDefault(t *testing.T) {
	doc := `<h3>Our understanding</h3><p>a</p><h3>Relevant code citations</h3><ul><li>[BCC 23.10.030] Building permits required</li><li>[TDM 2.1.] Driveway width</li></ul><h3>Guidance</h3><p>b</p>`

	parts := Split(doc, "transportation")

	require.Len(t, parts, 2)
	citations := parts[1].Atoms.Guidance.Citations
	require.Len(t, citations, 2)
	assert.Equal(t, "BCC", citations[0].Code)
	assert.Equal(t, "23.10.030", citations[0].Section)
	assert.Equal(t, "Building permits required", citations[0].Description)
	assert.Equal(t, "TDM", citations[1].Code)
	assert.Equal(t, "2.1", citations[1].Section)
}

func TestPlainTextAndListItems(t *testing.T) {
	assert.Equal(t, "Hello world again", PlainText("<p>Hello <b>world</b></p><p>again</p>"))
	assert.Equal(t, []string{"a", "b c"}, ListItems("<ul><li>a</li><li> b <i>c</i> </li><li> </li></ul>"))
	assert.Empty(t, ListItems(""))
}

func TestItemsFallsBackToParagraphs(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, Items("<p>one</p><p>two</p>"))
	assert.Equal(t, []string{"bare text"}, Items(" bare <b>text</b> "))
	assert.Equal(t, []string{"li"}, Items("<p>para</p><ul><li>li</li></ul>"))
	assert.Empty(t, Items(""))
}
