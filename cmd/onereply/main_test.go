package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onereply/api/internal/atoms"
	"onereply/api/internal/store"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	departmentsFile, policyFile = "", ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSimilarityCommand(t *testing.T) {
	out, err := execute(t, "", "similarity", "Apply for a permit", "apply for a permit")
	require.NoError(t, err)
	assert.Equal(t, "1.0000\n", out)
}

func TestGroupCommandReadsStdin(t *testing.T) {
	out, err := execute(t, "Apply for a permit\napply for a permit today\nCall the city\n", "group", "-")
	require.NoError(t, err)

	var groups [][]string
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	assert.Equal(t, [][]string{{"Apply for a permit", "apply for a permit today"}, {"Call the city"}}, groups)
}

func TestSplitCommand(t *testing.T) {
	doc := `<h3>Our understanding</h3><p>a</p><h3>Guidance</h3><ul><li>Apply online</li></ul><h3>Next steps</h3><ul><li>Call us</li></ul>`

	out, err := execute(t, doc, "split", "-", "--department", "building")
	require.NoError(t, err)

	var parts []struct {
		TopicKey atoms.TopicKey `json:"sectionKey"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parts))
	require.Len(t, parts, 3)
	assert.Equal(t, atoms.TopicNextSteps, parts[2].TopicKey)
}

func TestSplitRequiresDepartment(t *testing.T) {
	_, err := execute(t, "", "split", "-")
	assert.Error(t, err)
}

func TestConsolidateCommandRendersText(t *testing.T) {
	sections := []store.Section{
		{ID: "s1", Department: "building", TopicKey: atoms.TopicGuidance, Status: store.SectionApproved, Atoms: atoms.DraftAtoms{
			Guidance: atoms.Guidance{Recommendations: []string{"Apply for a building permit."}},
		}},
		{ID: "s2", Department: "utilities", TopicKey: atoms.TopicGuidance, Status: store.SectionPending, Atoms: atoms.DraftAtoms{
			Guidance: atoms.Guidance{Recommendations: []string{"Schedule a meter inspection."}},
		}},
	}
	raw, err := json.Marshal(sections)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sections.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	out, err := execute(t, "", "consolidate", path, "--text")
	require.NoError(t, err)
	assert.Contains(t, out, "== Guidance ==")
	assert.Contains(t, out, "Apply for a building permit.")
	assert.NotContains(t, out, "meter inspection")
	assert.NotContains(t, out, "== Situation ==")
}
