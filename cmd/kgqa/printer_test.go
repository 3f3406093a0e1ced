package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smallnest/kgqa/answer"
	"github.com/smallnest/kgqa/config"
	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/parser"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/synth"
)

func nodeEnd(node string, s *pipeline.State) *graph.TraceSpan {
	return &graph.TraceSpan{Event: graph.TraceEventNodeEnd, NodeName: node, State: s}
}

func TestStepPrinterRun(t *testing.T) {
	var buf bytes.Buffer
	p := newStepPrinter(&buf, config.DisplayConfig{Verbose: true, ShowSPARQL: true, ShowContext: true}, false)
	ctx := context.Background()

	s := &pipeline.State{
		Result: parser.Result{
			Query:       "SELECT ?h WHERE {\n  ?h a horses:Horse .\n}",
			Entities:    []string{"horses:Horse"},
			Explanation: "Lists horses",
			Corrections: []string{"horses:Cheval -> horses:Horse"},
		},
		Results: &sparql.Results{Results: sparql.ResultSet{Bindings: []sparql.Binding{{}, {}}}},
		Context: format.Context{Text: "Dakota, Tornado"},
		Answer:  answer.Result{Text: "Deux chevaux."},
	}

	p.begin(synth.French, "Quels chevaux?")
	p.OnEvent(ctx, &graph.TraceSpan{Event: graph.TraceEventNodeStart, NodeName: pipeline.NodeSynthesize})
	p.OnEvent(ctx, nodeEnd(pipeline.NodeCorrect, s))
	p.OnEvent(ctx, nodeEnd(pipeline.NodeExecute, s))
	p.OnEvent(ctx, nodeEnd(pipeline.NodeFormat, s))
	p.OnEvent(ctx, nodeEnd(pipeline.NodeAnswer, s))
	p.OnEvent(ctx, &graph.TraceSpan{Event: graph.TraceEventGraphEnd, State: s})

	out := buf.String()
	assert.Contains(t, out, "QUESTION: Quels chevaux?")
	assert.Contains(t, out, "ÉTAPE 1: Génération de la requête SPARQL...")
	assert.Contains(t, out, "Entités utilisées: horses:Horse")
	assert.Contains(t, out, "Relations utilisées: N/A")
	assert.Contains(t, out, "Explication: Lists horses")
	assert.Contains(t, out, "Corrections appliquées: horses:Cheval -> horses:Horse")
	assert.Contains(t, out, "  ?h a horses:Horse .")
	assert.Contains(t, out, "2 résultat(s) trouvé(s)!")
	assert.Contains(t, out, "Contexte créé (15 caractères)")
	assert.Contains(t, out, "Aperçu du contexte:")
	assert.Contains(t, out, "Réponse générée!")
}

func TestStepPrinterEnglishAndDegraded(t *testing.T) {
	var buf bytes.Buffer
	p := newStepPrinter(&buf, config.DisplayConfig{Verbose: true}, false)
	ctx := context.Background()

	s := &pipeline.State{Answer: answer.Result{Degraded: true}}
	p.begin(synth.English, "How many horses?")
	p.OnEvent(ctx, &graph.TraceSpan{Event: graph.TraceEventNodeStart, NodeName: pipeline.NodeExecute})
	p.OnEvent(ctx, nodeEnd(pipeline.NodeCorrect, s))
	p.OnEvent(ctx, nodeEnd(pipeline.NodeExecute, s))
	p.OnEvent(ctx, nodeEnd(pipeline.NodeAnswer, s))

	out := buf.String()
	assert.Contains(t, out, "STEP 2: Running the query against the graph...")
	assert.Contains(t, out, "The graph returned no results")
	assert.Contains(t, out, "Fallback answer")
	assert.NotContains(t, out, "SPARQL query:")
}

func TestStepPrinterFailure(t *testing.T) {
	var buf bytes.Buffer
	p := newStepPrinter(&buf, config.DisplayConfig{Verbose: true}, false)
	ctx := context.Background()

	s := &pipeline.State{Err: &pipeline.StageError{Stage: pipeline.Executing, Err: errors.New("connection refused")}}
	p.OnEvent(ctx, nodeEnd(pipeline.NodeExecute, s))
	out := buf.String()
	assert.Contains(t, out, "Erreur: executing: connection refused")
	assert.Contains(t, out, "Vérifiez que le namespace correspond à celui du graphe")

	buf.Reset()
	s.Err = &pipeline.StageError{Stage: pipeline.Synthesizing, Err: errors.New("model down")}
	p.OnEvent(ctx, nodeEnd(pipeline.NodeSynthesize, s))
	assert.Contains(t, buf.String(), "synthesizing: model down")
	assert.NotContains(t, buf.String(), "Vérifiez")

	buf.Reset()
	p.OnEvent(ctx, &graph.TraceSpan{Event: graph.TraceEventNodeError, NodeName: pipeline.NodeFormat, Error: errors.New("panic")})
	assert.Contains(t, buf.String(), "Erreur: panic")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abc", 5))
	assert.Equal(t, "éé...", preview("ééé", 2))
	assert.Equal(t, "N/A", joinOr(nil, "N/A"))
	assert.Equal(t, "a, b", joinOr([]string{"a", "b"}, "N/A"))
	assert.Equal(t, strings.Repeat("-", ruleWidth), rule())
}
