// Package atoms holds the structured content that a department's reply is
// decomposed into, plus the merge rules used when several departments
// contribute the same facts or citations.
package atoms

import "encoding/json"

// TopicKey names one of the three fixed sections of a reply.
type TopicKey string

const (
	TopicSituation TopicKey = "situation"
	TopicGuidance  TopicKey = "guidance"
	TopicNextSteps TopicKey = "nextsteps"
)

// Topics lists every topic in reply order.
var Topics = []TopicKey{TopicSituation, TopicGuidance, TopicNextSteps}

func (t TopicKey) Valid() bool {
	switch t {
	case TopicSituation, TopicGuidance, TopicNextSteps:
		return true
	default:
		return false
	}
}

// Title is the display heading used for the topic.
func (t TopicKey) Title() string {
	switch t {
	case TopicSituation:
		return "Situation"
	case TopicGuidance:
		return "Guidance"
	case TopicNextSteps:
		return "Next Steps"
	default:
		return ""
	}
}

type PropertyFact struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

type Citation struct {
	Code        string `json:"code"`
	Section     string `json:"section"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type Situation struct {
	Understanding []string       `json:"understanding"`
	PropertyFacts []PropertyFact `json:"propertyFacts"`
}

type Guidance struct {
	Recommendations []string   `json:"recommendations"`
	Citations       []Citation `json:"citations"`
}

type NextSteps struct {
	Followups []string `json:"followups"`
	Actions   []string `json:"actions"`
}

// DraftAtoms is always fully shaped: every list is present even when empty.
// Use Empty to build one and Normalize after decoding foreign input.
type DraftAtoms struct {
	Situation Situation `json:"situation"`
	Guidance  Guidance  `json:"guidance"`
	NextSteps NextSteps `json:"nextsteps"`
}

func Empty() DraftAtoms {
	return DraftAtoms{}.Normalize()
}

// Normalize replaces nil lists with empty ones.
func (a DraftAtoms) Normalize() DraftAtoms {
	if a.Situation.Understanding == nil {
		a.Situation.Understanding = []string{}
	}
	if a.Situation.PropertyFacts == nil {
		a.Situation.PropertyFacts = []PropertyFact{}
	}
	if a.Guidance.Recommendations == nil {
		a.Guidance.Recommendations = []string{}
	}
	if a.Guidance.Citations == nil {
		a.Guidance.Citations = []Citation{}
	}
	if a.NextSteps.Followups == nil {
		a.NextSteps.Followups = []string{}
	}
	if a.NextSteps.Actions == nil {
		a.NextSteps.Actions = []string{}
	}
	return a
}

// IsEmpty reports whether no list carries anything.
func (a DraftAtoms) IsEmpty() bool {
	return len(a.Situation.Understanding) == 0 &&
		len(a.Situation.PropertyFacts) == 0 &&
		len(a.Guidance.Recommendations) == 0 &&
		len(a.Guidance.Citations) == 0 &&
		len(a.NextSteps.Followups) == 0 &&
		len(a.NextSteps.Actions) == 0
}

func (a DraftAtoms) MarshalJSON() ([]byte, error) {
	type plain DraftAtoms
	return json.Marshal(plain(a.Normalize()))
}

func (a *DraftAtoms) UnmarshalJSON(data []byte) error {
	type plain DraftAtoms
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = DraftAtoms(decoded).Normalize()
	return nil
}
