package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/synth"
)

const ns = "http://www.semanticweb.org/noamaadra/ontologies/2024/2/Horses#"

func uri(local string) sparql.Value {
	return sparql.Value{Type: sparql.URI, Value: ns + local}
}

func lit(s string) sparql.Value {
	return sparql.Value{Type: sparql.Literal, Value: s}
}

func results(vars []string, rows ...sparql.Binding) *sparql.Results {
	return &sparql.Results{Head: sparql.Head{Vars: vars}, Results: sparql.ResultSet{Bindings: rows}}
}

func newTestFormatter(lang synth.Language, opts ...Option) *Formatter {
	return New(lang, append([]Option{WithLogger(&log.NoOpLogger{})}, opts...)...)
}

func TestFormatNoData(t *testing.T) {
	for _, c := range Categories() {
		ctx := newTestFormatter(synth.French).Format(results([]string{"x"}), c, "explication")
		assert.Equal(t, "Aucune donnée trouvée dans le graphe de connaissances.", ctx.Text)
		assert.True(t, ctx.Empty())
	}

	ctx := newTestFormatter(synth.English).Format(nil, General, "")
	assert.Equal(t, "No data found in the knowledge graph.", ctx.Text)
}

func TestFormatGeneral(t *testing.T) {
	res := results([]string{"rider", "horse"},
		sparql.Binding{"rider": uri("Rider_Emma"), "horse": lit("Dakota")},
		sparql.Binding{"rider": uri("Rider_Manon")},
	)

	ctx := newTestFormatter(synth.French).Format(res, General, "Cavaliers de Dakota")

	want := "Contexte de la requête: Cavaliers de Dakota\n\n" +
		"Données trouvées (2 résultats):\n\n" +
		"Résultat 1:\n  - rider: Rider_Emma\n  - horse: Dakota\n\n" +
		"Résultat 2:\n  - rider: Rider_Manon\n\n"
	assert.Equal(t, want, ctx.Text)
	assert.Equal(t, 2, ctx.Rows)
	assert.False(t, ctx.Fallback)
	assert.Equal(t, synth.French, ctx.Language)
}

func TestFormatEnglishHeader(t *testing.T) {
	res := results([]string{"n"}, sparql.Binding{"n": lit("Naya")})

	ctx := newTestFormatter(synth.English).Format(res, General, "")

	assert.Equal(t, "Data found (1 results):\n\nResult 1:\n  - n: Naya\n\n", ctx.Text)
}

func TestFormatEntityList(t *testing.T) {
	res := results([]string{"horse", "name", "race", "height"},
		sparql.Binding{"horse": uri("Horse1"), "name": lit("Dakota"), "race": lit("Selle Français"), "height": lit("1.65")},
		sparql.Binding{"horse": uri("Horse2"), "name": lit("Naya")},
	)

	ctx := newTestFormatter(synth.French).Format(res, EntityList, "")

	assert.Contains(t, ctx.Text, "- horse: Horse1, name: Dakota, race: Selle Français\n")
	assert.Contains(t, ctx.Text, "- horse: Horse2, name: Naya\n")
	assert.NotContains(t, ctx.Text, "height")
}

func TestFormatDetails(t *testing.T) {
	res := results([]string{"property", "value"},
		sparql.Binding{"property": uri("eventDate"), "value": sparql.Value{Type: sparql.Literal, Value: "2026-04-12", Datatype: "http://www.w3.org/2001/XMLSchema#date"}},
		sparql.Binding{"property": uri("eventLocation"), "value": sparql.Value{Type: sparql.Literal, Value: "Saumur", Lang: "fr"}},
	)

	ctx := newTestFormatter(synth.French).Format(res, Details, "")

	assert.Contains(t, ctx.Text, "- eventDate: 2026-04-12\n- eventLocation: Saumur\n")
}

func TestFormatRelationships(t *testing.T) {
	res := results([]string{"rider", "horse"},
		sparql.Binding{"rider": uri("Rider_Leo"), "horse": uri("Horse2")},
	)
	ctx := newTestFormatter(synth.French).Format(res, Relationships, "")
	assert.Contains(t, ctx.Text, "- Rider_Leo -> Horse2\n")

	res = results([]string{"subject", "predicate", "object"},
		sparql.Binding{"subject": uri("IMU_Withers_01"), "predicate": uri("isAttachedTo"), "object": uri("Horse1")},
	)
	ctx = newTestFormatter(synth.French).Format(res, Relationships, "")
	assert.Contains(t, ctx.Text, "- IMU_Withers_01 -[isAttachedTo]-> Horse1\n")
}

func TestFormatCount(t *testing.T) {
	res := results([]string{"count"},
		sparql.Binding{"count": sparql.Value{Type: sparql.Literal, Value: "2", Datatype: "http://www.w3.org/2001/XMLSchema#integer"}},
	)

	ctx := newTestFormatter(synth.English).Format(res, Count, "")

	assert.Contains(t, ctx.Text, "count: 2\n")
}

func TestFormatFallsBackOnEmptyLayout(t *testing.T) {
	// Details needs two variables
	res := results([]string{"name"}, sparql.Binding{"name": lit("Dakota")})

	ctx := newTestFormatter(synth.French).Format(res, Details, "")

	assert.True(t, ctx.Fallback)
	assert.Equal(t, Details, ctx.Category)
	assert.Contains(t, ctx.Text, "Résultat 1:\n  - name: Dakota\n")
}

func TestFormatFallsBackOnPanic(t *testing.T) {
	boom := func([]string, []sparql.Binding) string { panic("boom") }
	res := results([]string{"name"}, sparql.Binding{"name": lit("Naya")})

	ctx := newTestFormatter(synth.French, WithStrategy(EntityList, boom)).Format(res, EntityList, "")

	assert.True(t, ctx.Fallback)
	assert.Contains(t, ctx.Text, "name: Naya")
}

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"general":       General,
		"entity-list":   EntityList,
		"Entity List":   EntityList,
		"list":          EntityList,
		"details":       Details,
		"relationships": Relationships,
		"COUNT":         Count,
		"":              General,
		"unknown":       General,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCategory(in), in)
	}
	assert.Equal(t, "entity_list", EntityList.String())
	assert.Equal(t, "general", Category(42).String())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "Horse1", Display(uri("Horse1")))
	assert.Equal(t, "Rider_Emma", Display(sparql.Value{Type: sparql.URI, Value: "http://example.org/people/Rider_Emma"}))
	assert.Equal(t, "http://example.org/", Display(sparql.Value{Type: sparql.URI, Value: "http://example.org/"}))
	assert.Equal(t, "_:b0", Display(sparql.Value{Type: sparql.BlankNode, Value: "b0"}))
	assert.Equal(t, "200Hz", Display(lit("200Hz")))
}
