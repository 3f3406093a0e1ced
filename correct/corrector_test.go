package correct

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/parser"
)

func newTestCorrector(t *testing.T) *Corrector {
	t.Helper()
	return Default(WithLogger(&log.NoOpLogger{}))
}

func TestGenericTable(t *testing.T) {
	g, _ := DefaultTables()

	tests := []struct {
		name  string
		in    string
		want  string
		rules []string
	}{
		{"escapes inside string literals kept", `SELECT ?n WHERE { ?h horses:hasName ?n . FILTER regex(?n, "a\tb\n") }`, `SELECT ?n WHERE { ?h horses:hasName ?n . FILTER regex(?n, "a\tb\n") }`, nil},
		{"trailing semicolon", "SELECT ?x WHERE { ?x ?p ?o } ;", "SELECT ?x WHERE { ?x ?p ?o }", []string{"trailing-terminator"}},
		{"inner semicolon kept", "SELECT ?x WHERE { ?x ?p ?o ; ?q ?r . }", "SELECT ?x WHERE { ?x ?p ?o ; ?q ?r . }", nil},
		{"terminator then newline", "SELECT ?x WHERE { ?x ?p ?o };\n", "SELECT ?x WHERE { ?x ?p ?o }", []string{"trailing-terminator"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rules := g.Apply(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestSchemaTable(t *testing.T) {
	_, s := DefaultTables()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"event date", "horses:Event_SJ_01 horses:hasDate ?d", "horses:Event_SJ_01 horses:eventDate ?d"},
		{"event location", "?e horses:hasLocation ?l", "?e horses:eventLocation ?l"},
		{"ranking", "?p horses:hasRanking ?r", "?p horses:rank ?r"},
		{"rider direction", "?horse horses:AssociatedWith ?rider .", "?rider horses:AssociatedWith ?horse ."},
		{"sensor direction", "?horse horses:isAttachedTo ?sensor .", "?sensor horses:isAttachedTo ?horse ."},
		{"correct query untouched", "?rider horses:AssociatedWith ?horse .", "?rider horses:AssociatedWith ?horse ."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := s.Apply(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCorrectFlagsResult(t *testing.T) {
	c := newTestCorrector(t)
	in := parser.Result{
		Query:  "SELECT ?d WHERE {\n  horses:Event_SJ_01 horses:hasDate ?d .\n};",
		Parsed: true,
	}

	out := c.Correct(in)

	assert.True(t, out.AutoCorrected)
	assert.Equal(t, []string{"trailing-terminator", "event-date"}, out.Corrections)
	assert.Equal(t, "SELECT ?d WHERE {\n  horses:Event_SJ_01 horses:eventDate ?d .\n}", out.Query)
	assert.True(t, out.Parsed)
	// input untouched
	assert.False(t, in.AutoCorrected)
}

func TestCorrectNoChange(t *testing.T) {
	c := newTestCorrector(t)
	in := parser.Result{Query: "SELECT ?s WHERE { ?s ?p ?o }"}

	out := c.Correct(in)

	assert.False(t, out.AutoCorrected)
	assert.Empty(t, out.Corrections)
	assert.Equal(t, in.Query, out.Query)
}

func TestCorrectIdempotent(t *testing.T) {
	c := newTestCorrector(t)
	queries := []string{
		"SELECT ?x\nWHERE { ?horse horses:AssociatedWith ?rider . ?horse horses:isAttachedTo ?sensor . } ;;",
		"?e horses:hasDate ?d ; horses:hasLocation ?l ; horses:hasRanking ?r",
		"SELECT ?s WHERE { ?s ?p ?o }",
		";",
	}
	for _, q := range queries {
		once := c.Correct(parser.Result{Query: q})
		twice := c.Correct(once)
		assert.Equal(t, once, twice, "query %q", q)
	}
}

func TestCorrectNeverEmptiesQuery(t *testing.T) {
	c := newTestCorrector(t)
	out := c.Correct(parser.Result{Query: " ;"})
	assert.Equal(t, " ;", out.Query)
	assert.False(t, out.AutoCorrected)
}

func TestNewTableRejects(t *testing.T) {
	_, err := NewTable([]Rule{{Name: "empty", Old: "", New: "x"}})
	assert.ErrorIs(t, err, ErrEmptyOld)

	_, err = NewTable([]Rule{
		{Name: "a", Old: "hasDate", New: "eventDate"},
		{Name: "b", Old: "eventDate", New: "date"},
	})
	assert.ErrorIs(t, err, ErrNotIdempotent)

	_, err = NewTable([]Rule{{Name: "self", Old: "ab", New: "abc"}})
	assert.ErrorIs(t, err, ErrNotIdempotent)

	_, err = NewTable([]Rule{{Name: "re", Old: "(", Regexp: true}})
	assert.Error(t, err)
}

func TestNewRejectsCrossTableFeed(t *testing.T) {
	g := MustTable([]Rule{{Name: "g", Old: "foo", New: "bar"}})
	s := MustTable([]Rule{{Name: "s", Old: "bar", New: "baz"}})

	_, err := New(g, s)
	assert.ErrorIs(t, err, ErrNotIdempotent)

	c, err := New(nil, nil)
	require.NoError(t, err)
	out := c.Correct(parser.Result{Query: "foo"})
	assert.Equal(t, "foo", out.Query)
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrections.yaml")
	data := []byte(`
generic:
  - {name: trailing, old: ';\s*$', new: "", regexp: true}
schema:
  - {name: title, old: "lib:name", new: "lib:title"}
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	g, s, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, "title", s.Rules()[0].Name)

	got, _ := s.Apply("?b lib:name ?n")
	assert.Equal(t, "?b lib:title ?n", got)

	_, _, err = LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
