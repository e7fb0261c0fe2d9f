package consolidate

import (
	"fmt"
	"strings"

	"onereply/api/internal/similarity"
)

// Strategy selects how a cluster of similar free-text items is reduced.
type Strategy string

const (
	// StrategyRepresentative keeps only the first member of each cluster.
	StrategyRepresentative Strategy = "representative"
	// StrategyKeepAll keeps every item and skips clustering.
	StrategyKeepAll Strategy = "keep_all"
	// StrategyJoin keeps one entry per cluster with distinct members joined
	// by " / ".
	StrategyJoin Strategy = "join"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyRepresentative, StrategyKeepAll, StrategyJoin:
		return true
	default:
		return false
	}
}

// FieldPolicy configures one free-text field. Limit of zero means unlimited.
type FieldPolicy struct {
	Strategy  Strategy `json:"strategy" yaml:"strategy"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
	Limit     int      `json:"limit" yaml:"limit"`
}

// Policy holds a FieldPolicy per free-text field. Property facts and
// citations always merge losslessly.
type Policy struct {
	Understanding   FieldPolicy `json:"understanding" yaml:"understanding"`
	Recommendations FieldPolicy `json:"recommendations" yaml:"recommendations"`
	Followups       FieldPolicy `json:"followups" yaml:"followups"`
	Actions         FieldPolicy `json:"actions" yaml:"actions"`
}

func DefaultPolicy() Policy {
	return Policy{
		Understanding:   FieldPolicy{Strategy: StrategyRepresentative, Threshold: 0.7, Limit: 3},
		Recommendations: FieldPolicy{Strategy: StrategyRepresentative, Threshold: 0.4},
		Followups:       FieldPolicy{Strategy: StrategyRepresentative, Threshold: 0.5},
		Actions:         FieldPolicy{Strategy: StrategyRepresentative, Threshold: 0.4},
	}
}

func (p Policy) Validate() error {
	fields := []struct {
		name   string
		policy FieldPolicy
	}{
		{"understanding", p.Understanding},
		{"recommendations", p.Recommendations},
		{"followups", p.Followups},
		{"actions", p.Actions},
	}
	for _, field := range fields {
		if !field.policy.Strategy.Valid() {
			return fmt.Errorf("%s: unknown strategy %q", field.name, field.policy.Strategy)
		}
		if field.policy.Threshold < 0 || field.policy.Threshold > 1 {
			return fmt.Errorf("%s: threshold %.2f outside [0,1]", field.name, field.policy.Threshold)
		}
		if field.policy.Limit < 0 {
			return fmt.Errorf("%s: negative limit", field.name)
		}
	}
	return nil
}

func (f FieldPolicy) reduce(items []string) []string {
	var out []string
	switch f.Strategy {
	case StrategyKeepAll:
		out = append([]string{}, items...)
	case StrategyJoin:
		out = make([]string, 0)
		for _, group := range similarity.Group(items, f.Threshold) {
			out = append(out, joinDistinct(group))
		}
	default:
		out = make([]string, 0)
		for _, group := range similarity.Group(items, f.Threshold) {
			out = append(out, group[0])
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func joinDistinct(group []string) string {
	seen := make(map[string]struct{}, len(group))
	distinct := make([]string, 0, len(group))
	for _, item := range group {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		distinct = append(distinct, item)
	}
	return strings.Join(distinct, " / ")
}
