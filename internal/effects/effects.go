// Package effects picks the objects a workflow cares about out of a
// transaction's created-object report.
package effects

import (
	"strings"

	"sponsorrail/internal/apperr"
	"sponsorrail/internal/executor"
)

// Matcher selects created objects whose type contains Contains and none of
// Excludes. On-chain type names are deployment details, so matching is by
// substring.
type Matcher struct {
	Name     string   `json:"name" yaml:"name"`
	Contains string   `json:"contains" yaml:"contains"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
	Required bool     `json:"required" yaml:"required"`
}

func (m Matcher) Match(objectType string) bool {
	if m.Contains == "" || !strings.Contains(objectType, m.Contains) {
		return false
	}
	for _, ex := range m.Excludes {
		if ex != "" && strings.Contains(objectType, ex) {
			return false
		}
	}
	return true
}

// Matches maps a matcher name to the created objects it selected, in the
// order the ledger reported them.
type Matches map[string][]executor.CreatedObject

// First returns the first object selected by the named matcher.
func (m Matches) First(name string) (executor.CreatedObject, bool) {
	objs := m[name]
	if len(objs) == 0 {
		return executor.CreatedObject{}, false
	}
	return objs[0], true
}

// Extract applies matchers to the outcome's created objects. A required
// matcher with no hits fails with ExpectedObjectNotFound.
func Extract(outcome executor.Outcome, matchers ...Matcher) (Matches, error) {
	out := make(Matches, len(matchers))
	for _, m := range matchers {
		for _, obj := range outcome.Created {
			if m.Match(obj.ObjectType) {
				out[m.Name] = append(out[m.Name], obj)
			}
		}
		if m.Required && len(out[m.Name]) == 0 {
			return out, apperr.New(apperr.KindExpectedObjectNotFound, "effects",
				"transaction %s created no object matching %q (%s)", outcome.Digest, m.Contains, m.Name)
		}
	}
	return out, nil
}
