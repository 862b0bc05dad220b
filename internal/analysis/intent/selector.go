package intent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidRules reports a rule table that cannot be used for selection.
var ErrInvalidRules = errors.New("invalid response rules")

// Rule binds a keyword group to a canned response template.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Template string   `yaml:"template" json:"template"`
}

// Table is an immutable, ordered rule list evaluated first-match-wins.
type Table struct {
	rules    []Rule
	fallback string
}

// NewTable validates and copies rules. Keywords are lowercased so matching
// only has to fold the input.
func NewTable(rules []Rule, fallback string) (*Table, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRules)
	}
	if strings.TrimSpace(fallback) == "" {
		return nil, fmt.Errorf("%w: fallback template is empty", ErrInvalidRules)
	}

	copied := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: rule %d has no name", ErrInvalidRules, i)
		}
		if name == FallbackName {
			return nil, fmt.Errorf("%w: rule name %q is reserved", ErrInvalidRules, name)
		}
		if strings.TrimSpace(rule.Template) == "" {
			return nil, fmt.Errorf("%w: rule %q has an empty template", ErrInvalidRules, name)
		}

		keywords := make([]string, 0, len(rule.Keywords))
		for _, kw := range rule.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			keywords = append(keywords, kw)
		}
		if len(keywords) == 0 {
			return nil, fmt.Errorf("%w: rule %q has no keywords", ErrInvalidRules, name)
		}

		copied = append(copied, Rule{Name: name, Keywords: keywords, Template: rule.Template})
	}

	return &Table{rules: copied, fallback: fallback}, nil
}

var defaultTable = sync.OnceValue(func() *Table {
	table, err := NewTable(DefaultRules(), DefaultFallback())
	if err != nil {
		panic(err)
	}
	return table
})

// Default returns the shared built-in table.
func Default() *Table {
	return defaultTable()
}

// Select maps raw user text to a response template.
func (t *Table) Select(text string) string {
	_, template := t.Match(text)
	return template
}

// Match is Select that also reports the matched rule name, or FallbackName.
func (t *Table) Match(text string) (string, string) {
	normalized := strings.ToLower(text)
	for _, rule := range t.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalized, kw) {
				return rule.Name, rule.Template
			}
		}
	}
	return FallbackName, t.fallback
}

// Rules returns a copy of the table in scan order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, rule := range t.rules {
		out[i] = Rule{
			Name:     rule.Name,
			Keywords: append([]string(nil), rule.Keywords...),
			Template: rule.Template,
		}
	}
	return out
}

// Fallback returns the template used when nothing matches.
func (t *Table) Fallback() string {
	return t.fallback
}
