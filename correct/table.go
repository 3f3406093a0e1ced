package correct

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed corrections.yaml
var defaultCorrections []byte

var (
	// ErrEmptyOld is returned for a rule without a search text.
	ErrEmptyOld = errors.New("rule has empty old text")
	// ErrNotIdempotent is returned when a rule's replacement would be
	// rewritten again by a rule of the same table.
	ErrNotIdempotent = errors.New("rule replacement matches another rule")
)

// Rule replaces every occurrence of Old with New. When Regexp is set, Old is
// a regular expression and New may reference its groups.
type Rule struct {
	Name   string `yaml:"name"`
	Old    string `yaml:"old"`
	New    string `yaml:"new"`
	Regexp bool   `yaml:"regexp,omitempty"`

	re *regexp.Regexp
}

func (r *Rule) apply(q string) string {
	if r.re != nil {
		return r.re.ReplaceAllString(q, r.New)
	}
	return strings.ReplaceAll(q, r.Old, r.New)
}

func (r *Rule) matches(s string) bool {
	if r.re != nil {
		return r.re.MatchString(s)
	}
	return strings.Contains(s, r.Old)
}

// Table is an ordered list of rules.
type Table struct {
	rules []Rule
}

// NewTable validates rules and builds a table.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{rules: make([]Rule, len(rules))}
	for i, r := range rules {
		if r.Old == "" {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Name, ErrEmptyOld)
		}
		if r.Name == "" {
			r.Name = r.Old
		}
		if r.Regexp {
			re, err := regexp.Compile(r.Old)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.Name, err)
			}
			r.re = re
		}
		t.rules[i] = r
	}
	if err := checkReplacements(t.rules, t.rules); err != nil {
		return nil, err
	}
	return t, nil
}

// checkReplacements rejects any rule in from whose New would be matched by a
// rule in against.
func checkReplacements(from, against []Rule) error {
	for i := range from {
		if from[i].New == "" {
			continue
		}
		for j := range against {
			if against[j].matches(from[i].New) {
				return fmt.Errorf("%w: %s produces text matched by %s", ErrNotIdempotent, from[i].Name, against[j].Name)
			}
		}
	}
	return nil
}

// MustTable is like NewTable but panics on error.
func MustTable(rules []Rule) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Rules returns a copy of the rules.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

const maxPasses = 8

// Apply runs the rules in order until the text stops changing and returns
// the rewritten text with the names of the rules that changed it.
func (t *Table) Apply(q string) (string, []string) {
	var applied []string
	seen := make(map[string]bool)
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for i := range t.rules {
			r := &t.rules[i]
			out := r.apply(q)
			if out == q {
				continue
			}
			q = out
			changed = true
			if !seen[r.Name] {
				seen[r.Name] = true
				applied = append(applied, r.Name)
			}
		}
		if !changed {
			break
		}
	}
	return q, applied
}

// File is the YAML layout of a corrections file.
type File struct {
	Generic []Rule `yaml:"generic"`
	Schema  []Rule `yaml:"schema"`
}

// ParseTables decodes the generic and schema tables from YAML.
func ParseTables(data []byte) (generic, schema *Table, err error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("decode corrections: %w", err)
	}
	if generic, err = NewTable(f.Generic); err != nil {
		return nil, nil, fmt.Errorf("generic table: %w", err)
	}
	if schema, err = NewTable(f.Schema); err != nil {
		return nil, nil, fmt.Errorf("schema table: %w", err)
	}
	return generic, schema, nil
}

// LoadTables reads the tables from a YAML file.
func LoadTables(path string) (generic, schema *Table, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read corrections %s: %w", path, err)
	}
	return ParseTables(data)
}

// DefaultTables returns the embedded tables for the equestrian ontology.
func DefaultTables() (generic, schema *Table) {
	g, s, err := ParseTables(defaultCorrections)
	if err != nil {
		panic(fmt.Sprintf("correct: embedded corrections are invalid: %v", err))
	}
	return g, s
}
