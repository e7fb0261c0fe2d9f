// Package departments is the directory of departments that can contribute to
// a ticket. Lookups never fail: an unknown key resolves to a sentinel
// department named "Unknown Department".
package departments

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const UnknownName = "Unknown Department"

type Department struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Color        string   `yaml:"color" json:"color"`
	Description  string   `yaml:"description" json:"description"`
	Keywords     []string `yaml:"keywords" json:"-"`
	TeamsWebhook string   `yaml:"teamsWebhook" json:"-"`
	Email        string   `yaml:"email" json:"-"`
}

// IsUnknown reports whether d is the sentinel returned for unknown keys.
func (d Department) IsUnknown() bool {
	return d.Name == UnknownName
}

type file struct {
	Default     string       `yaml:"default"`
	Departments []Department `yaml:"departments"`
}

type Registry struct {
	order    []string
	byKey    map[string]Department
	matchers map[string]*regexp.Regexp
	fallback string
}

// Default returns the built-in directory of the four city departments.
func Default() *Registry {
	registry, err := New("transportation", builtin)
	if err != nil {
		panic(err)
	}
	return registry
}

var builtin = []Department{
	{
		Key:         "transportation",
		Name:        "Transportation",
		Color:       "blue",
		Description: "Roads, traffic, parking, and transit infrastructure",
		Keywords:    []string{"road", "street", "traffic", "parking", "sidewalk", "crosswalk", "stop sign", "traffic light", "pothole", "snow removal", "transit", "bus"},
	},
	{
		Key:         "building",
		Name:        "Building",
		Color:       "green",
		Description: "Building permits, inspections, and code compliance",
		Keywords:    []string{"building", "permit", "construction", "renovation", "inspection", "code", "violation", "roof", "fence", "deck", "addition", "demolition"},
	},
	{
		Key:         "utilities",
		Name:        "Utilities",
		Color:       "purple",
		Description: "Water, sewer, electrical, and telecommunications",
		Keywords:    []string{"water", "sewer", "electric", "power", "gas", "internet", "cable", "utility", "outage", "leak", "meter", "connection"},
	},
	{
		Key:         "land_use",
		Name:        "Land Use",
		Color:       "orange",
		Description: "Zoning, planning, and development regulations",
		Keywords:    []string{"zoning", "planning", "development", "variance", "subdivision", "lot", "property line", "setback", "easement", "land use"},
	},
}

func New(fallback string, departments []Department) (*Registry, error) {
	registry := &Registry{
		byKey:    make(map[string]Department, len(departments)),
		matchers: make(map[string]*regexp.Regexp, len(departments)),
		fallback: fallback,
	}
	for _, dept := range departments {
		dept.Key = strings.TrimSpace(dept.Key)
		if dept.Key == "" || dept.Name == "" {
			return nil, fmt.Errorf("department requires key and name")
		}
		if _, dup := registry.byKey[dept.Key]; dup {
			return nil, fmt.Errorf("duplicate department %q", dept.Key)
		}
		registry.order = append(registry.order, dept.Key)
		registry.byKey[dept.Key] = dept
		if len(dept.Keywords) > 0 {
			quoted := make([]string, 0, len(dept.Keywords))
			for _, keyword := range dept.Keywords {
				quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(keyword)))
			}
			registry.matchers[dept.Key] = regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
		}
	}
	if len(registry.order) == 0 {
		return nil, fmt.Errorf("department registry is empty")
	}
	if _, ok := registry.byKey[fallback]; !ok {
		registry.fallback = registry.order[0]
	}
	return registry, nil
}

// LoadFile reads a YAML registry:
//
//	default: transportation
//	departments:
//	  - key: transportation
//	    name: Transportation
//	    keywords: [road, street]
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read departments file: %w", err)
	}
	var parsed file
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse departments file: %w", err)
	}
	registry, err := New(parsed.Default, parsed.Departments)
	if err != nil {
		return nil, fmt.Errorf("load departments file: %w", err)
	}
	return registry, nil
}

// Lookup returns the department for key or the unknown sentinel.
func (r *Registry) Lookup(key string) Department {
	if dept, ok := r.byKey[key]; ok {
		return dept
	}
	return Department{
		Key:         key,
		Name:        UnknownName,
		Color:       "blue",
		Description: "Department information not found",
	}
}

// Name is the display name for key, satisfying consolidate.NameResolver.
func (r *Registry) Name(key string) string {
	return r.Lookup(key).Name
}

func (r *Registry) Has(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

func (r *Registry) All() []Department {
	out := make([]Department, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Suggest matches the ticket text against each department's keywords in
// registry order. With no match the registry default is returned alone.
func (r *Registry) Suggest(subject, body string) []string {
	text := strings.ToLower(subject + " " + body)
	suggested := make([]string, 0)
	for _, key := range r.order {
		if matcher, ok := r.matchers[key]; ok && matcher.MatchString(text) {
			suggested = append(suggested, key)
		}
	}
	if len(suggested) == 0 {
		return []string{r.fallback}
	}
	return suggested
}
