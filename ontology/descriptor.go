package ontology

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MinExamples is the smallest number of few-shot examples a descriptor may carry.
const MinExamples = 3

//go:embed equestrian.yaml
var equestrianYAML []byte

var (
	// ErrInvalidDescriptor is returned when a descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid ontology descriptor")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// PropertyKind distinguishes object properties (linking two resources) from
// datatype properties (linking a resource to a literal).
type PropertyKind string

const (
	KindObject   PropertyKind = "object"
	KindDatatype PropertyKind = "datatype"
)

// Class is an ontology class.
type Class struct {
	Name        string `yaml:"name" validate:"required"`
	Parent      string `yaml:"parent,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Property is an ontology property with its domain and range.
type Property struct {
	Name        string       `yaml:"name" validate:"required"`
	Domain      string       `yaml:"domain" validate:"required"`
	Range       string       `yaml:"range" validate:"required"`
	Kind        PropertyKind `yaml:"kind" validate:"oneof=object datatype"`
	Description string       `yaml:"description,omitempty"`
}

// Example is a worked question/query pair shown to the model.
type Example struct {
	Question    string   `yaml:"question" validate:"required"`
	Query       string   `yaml:"query" validate:"required"`
	Entities    []string `yaml:"entities"`
	Relations   []string `yaml:"relations"`
	Explanation string   `yaml:"explanation"`
}

// Descriptor describes the target knowledge graph: namespace, vocabulary,
// usage rules and few-shot examples. It is read-only once loaded and can be
// shared by concurrent requests.
type Descriptor struct {
	Name       string            `yaml:"name" validate:"required"`
	Namespace  string            `yaml:"namespace" validate:"required,uri"`
	Prefix     string            `yaml:"prefix" validate:"required,alphanum"`
	Prefixes   map[string]string `yaml:"prefixes" validate:"dive,keys,alphanum,endkeys,uri"`
	Classes    []Class           `yaml:"classes" validate:"required,min=1,dive"`
	Properties []Property        `yaml:"properties" validate:"required,min=1,dive"`
	Rules      []string          `yaml:"rules" validate:"dive,required"`
	Examples   []Example         `yaml:"examples" validate:"min=3,dive"`

	// AnswerHints guide the wording of final answers.
	AnswerHints []string `yaml:"answer_hints" validate:"dive,required"`

	once     sync.Once
	rendered string
}

// Parse decodes and validates a YAML descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode ontology: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads a descriptor from a YAML file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in equestrian ontology.
func Default() *Descriptor {
	d, err := Parse(equestrianYAML)
	if err != nil {
		panic(fmt.Sprintf("ontology: embedded descriptor is invalid: %v", err))
	}
	return d
}

// Validate checks the descriptor's structural constraints.
func (d *Descriptor) Validate() error {
	if len(d.Examples) < MinExamples {
		return fmt.Errorf("%w: need at least %d examples, got %d", ErrInvalidDescriptor, MinExamples, len(d.Examples))
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	classes := make(map[string]bool, len(d.Classes))
	for _, c := range d.Classes {
		classes[c.Name] = true
	}
	for _, c := range d.Classes {
		if c.Parent != "" && !classes[c.Parent] {
			return fmt.Errorf("%w: class %s has unknown parent %s", ErrInvalidDescriptor, c.Name, c.Parent)
		}
	}
	for _, p := range d.Properties {
		if !classes[p.Domain] {
			return fmt.Errorf("%w: property %s has unknown domain %s", ErrInvalidDescriptor, p.Name, p.Domain)
		}
		if p.Kind == KindObject && !classes[p.Range] {
			return fmt.Errorf("%w: object property %s has unknown range %s", ErrInvalidDescriptor, p.Name, p.Range)
		}
	}
	return nil
}

// PrefixDeclarations returns the PREFIX lines for the ontology prefix followed
// by the extra prefixes in name order.
func (d *Descriptor) PrefixDeclarations() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PREFIX %s: <%s>\n", d.Prefix, d.Namespace)
	for _, name := range d.prefixNames() {
		fmt.Fprintf(&sb, "PREFIX %s: <%s>\n", name, d.Prefixes[name])
	}
	return sb.String()
}

func (d *Descriptor) prefixNames() []string {
	names := make([]string, 0, len(d.Prefixes))
	for name := range d.Prefixes {
		if name == d.Prefix {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property looks up a property by local name.
func (d *Descriptor) Property(name string) (Property, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Subclasses returns the names of the direct subclasses of parent.
func (d *Descriptor) Subclasses(parent string) []string {
	var out []string
	for _, c := range d.Classes {
		if c.Parent == parent {
			out = append(out, c.Name)
		}
	}
	return out
}

// Render returns the schema text block embedded into generation prompts.
// The text is built on first use and cached.
func (d *Descriptor) Render() string {
	d.once.Do(func() {
		d.rendered = d.render()
	})
	return d.rendered
}

func (d *Descriptor) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ONTOLOGY: %s\n", d.Name)
	fmt.Fprintf(&sb, "Namespace: %s (prefix %s:)\n\n", d.Namespace, d.Prefix)
	sb.WriteString("PREFIXES:\n")
	sb.WriteString(d.PrefixDeclarations())

	sb.WriteString("\nCLASSES:\n")
	for _, c := range d.Classes {
		fmt.Fprintf(&sb, "- %s:%s", d.Prefix, c.Name)
		if c.Parent != "" {
			fmt.Fprintf(&sb, " (subclass of %s:%s)", d.Prefix, c.Parent)
		}
		if c.Description != "" {
			fmt.Fprintf(&sb, ": %s", c.Description)
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("\nPROPERTIES:\n")
	for _, p := range d.Properties {
		rng := p.Range
		if p.Kind == KindObject {
			rng = d.Prefix + ":" + p.Range
		}
		fmt.Fprintf(&sb, "- %s:%s (%s:%s -> %s)", d.Prefix, p.Name, d.Prefix, p.Domain, rng)
		if p.Description != "" {
			fmt.Fprintf(&sb, ": %s", p.Description)
		}
		sb.WriteByte('\n')
	}

	if len(d.Rules) > 0 {
		sb.WriteString("\nRULES:\n")
		for i, r := range d.Rules {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
		}
	}
	return sb.String()
}
