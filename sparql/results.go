package sparql

import (
	"sort"
)

// ValueType is the RDF term type of a bound value.
type ValueType string

const (
	URI          ValueType = "uri"
	Literal      ValueType = "literal"
	TypedLiteral ValueType = "typed-literal"
	BlankNode    ValueType = "bnode"
)

// Value is one RDF term in a result row.
type Value struct {
	Type     ValueType `json:"type"`
	Value    string    `json:"value"`
	Datatype string    `json:"datatype,omitempty"`
	Lang     string    `json:"xml:lang,omitempty"`
}

// Kind classifies the term. Type is kept as the endpoint sent it; a literal
// carrying a datatype is reported as TypedLiteral.
func (v Value) Kind() ValueType {
	if v.Type == Literal && v.Datatype != "" {
		return TypedLiteral
	}
	return v.Type
}

// IsURI reports whether the value is an IRI.
func (v Value) IsURI() bool {
	return v.Type == URI
}

// String returns the lexical form.
func (v Value) String() string {
	return v.Value
}

// Binding maps variable names to values. Unbound variables are absent.
type Binding map[string]Value

// Vars returns the bound variable names in alphabetical order.
func (b Binding) Vars() []string {
	vars := make([]string, 0, len(b))
	for k := range b {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return vars
}

// Head lists the projected variables.
type Head struct {
	Vars []string `json:"vars"`
	Link []string `json:"link,omitempty"`
}

// ResultSet holds the solution rows.
type ResultSet struct {
	Bindings []Binding `json:"bindings"`
}

// Results is a decoded application/sparql-results+json document. Boolean is
// set for ASK queries only.
type Results struct {
	Head    Head      `json:"head"`
	Results ResultSet `json:"results"`
	Boolean *bool     `json:"boolean,omitempty"`
}

// Bindings returns the solution rows.
func (r *Results) Bindings() []Binding {
	if r == nil {
		return nil
	}
	return r.Results.Bindings
}

// Len returns the number of rows.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Results.Bindings)
}

// Vars returns the projected variables, falling back to the variables bound
// in the rows when the head is empty.
func (r *Results) Vars() []string {
	if r == nil {
		return nil
	}
	if len(r.Head.Vars) > 0 {
		return r.Head.Vars
	}
	seen := make(map[string]bool)
	var vars []string
	for _, b := range r.Results.Bindings {
		for _, v := range b.Vars() {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}
	return vars
}
