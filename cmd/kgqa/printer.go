package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/kgqa/config"
	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/synth"
)

const (
	ruleWidth      = 80
	contextPreview = 500
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stepStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type messages struct {
	question, finalAnswer, entities, relations, explanation, query string
	steps                                                          map[string]string
	generated, noRows, rows, contextBuilt, contextPreview          string
	answered, degraded, corrected, failed, none                    string
	suggestions                                                    []string
}

var catalog = map[synth.Language]messages{
	synth.French: {
		question:    "QUESTION",
		finalAnswer: "RÉPONSE FINALE",
		entities:    "Entités utilisées",
		relations:   "Relations utilisées",
		explanation: "Explication",
		query:       "Requête SPARQL",
		steps: map[string]string{
			pipeline.NodeSynthesize: "ÉTAPE 1: Génération de la requête SPARQL...",
			pipeline.NodeExecute:    "ÉTAPE 2: Exécution de la requête sur le graphe...",
			pipeline.NodeFormat:     "ÉTAPE 3: Construction du contexte...",
			pipeline.NodeAnswer:     "ÉTAPE 4: Génération de la réponse...",
		},
		generated:      "Requête générée!",
		noRows:         "Aucun résultat retourné par le graphe",
		rows:           "%d résultat(s) trouvé(s)!",
		contextBuilt:   "Contexte créé (%d caractères)",
		contextPreview: "Aperçu du contexte:",
		answered:       "Réponse générée!",
		degraded:       "Réponse de secours (le modèle n'a pas répondu)",
		corrected:      "Corrections appliquées",
		failed:         "Erreur",
		none:           "N/A",
		suggestions: []string{
			"Vérifiez que la requête SPARQL est syntaxiquement correcte",
			"Vérifiez que le namespace correspond à celui du graphe",
			"Testez la requête manuellement dans l'interface du triplestore",
		},
	},
	synth.English: {
		question:    "QUESTION",
		finalAnswer: "FINAL ANSWER",
		entities:    "Entities used",
		relations:   "Relations used",
		explanation: "Explanation",
		query:       "SPARQL query",
		steps: map[string]string{
			pipeline.NodeSynthesize: "STEP 1: Generating the SPARQL query...",
			pipeline.NodeExecute:    "STEP 2: Running the query against the graph...",
			pipeline.NodeFormat:     "STEP 3: Building the context...",
			pipeline.NodeAnswer:     "STEP 4: Generating the answer...",
		},
		generated:      "Query generated!",
		noRows:         "The graph returned no results",
		rows:           "%d result(s) found!",
		contextBuilt:   "Context built (%d characters)",
		contextPreview: "Context preview:",
		answered:       "Answer generated!",
		degraded:       "Fallback answer (the model did not respond)",
		corrected:      "Applied corrections",
		failed:         "Error",
		none:           "N/A",
		suggestions: []string{
			"Check that the SPARQL query is syntactically valid",
			"Check that the namespace matches the one in the graph",
			"Run the query manually in the triplestore web interface",
		},
	},
}

func messagesFor(lang synth.Language) messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[synth.DefaultLanguage]
}

// stepPrinter reports pipeline progress on a terminal. It is a
// graph.TraceHook fed by the pipeline tracer and follows one question at a
// time.
type stepPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	display config.DisplayConfig
	debug   bool
	lang    synth.Language
}

var _ graph.TraceHook = (*stepPrinter)(nil)

func newStepPrinter(out io.Writer, display config.DisplayConfig, debug bool) *stepPrinter {
	return &stepPrinter{out: out, display: display, debug: debug, lang: synth.DefaultLanguage}
}

// begin prints the question banner and selects the message language.
func (p *stepPrinter) begin(lang synth.Language, question string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lang.Valid() {
		p.lang = lang
	}
	m := messagesFor(p.lang)
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(p.out, titleStyle.Render(fmt.Sprintf("%s: %s", m.question, question)))
	fmt.Fprintln(p.out, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(p.out)
}

func (p *stepPrinter) OnEvent(_ context.Context, span *graph.TraceSpan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := messagesFor(p.lang)

	switch span.Event {
	case graph.TraceEventNodeStart:
		if step, ok := m.steps[span.NodeName]; ok {
			fmt.Fprintln(p.out, stepStyle.Render(step))
		}
		return
	case graph.TraceEventNodeEnd, graph.TraceEventNodeError:
	default:
		return
	}

	if span.Error != nil {
		fmt.Fprintln(p.out, errStyle.Render(fmt.Sprintf("%s: %v", m.failed, span.Error)))
		return
	}
	s, ok := span.State.(*pipeline.State)
	if !ok || s == nil {
		return
	}
	if s.Err != nil {
		p.printFailure(m, s)
		return
	}

	switch span.NodeName {
	case pipeline.NodeSynthesize:
		if p.debug {
			fmt.Fprintln(p.out, dimStyle.Render(s.Raw))
		}
	case pipeline.NodeCorrect:
		p.printQuery(m, s)
	case pipeline.NodeExecute:
		if n := s.Results.Len(); n == 0 {
			fmt.Fprintln(p.out, warnStyle.Render(m.noRows))
		} else {
			fmt.Fprintln(p.out, okStyle.Render(fmt.Sprintf(m.rows, n)))
		}
		fmt.Fprintln(p.out)
	case pipeline.NodeFormat:
		fmt.Fprintln(p.out, okStyle.Render(fmt.Sprintf(m.contextBuilt, len([]rune(s.Context.Text)))))
		if p.display.ShowContext {
			fmt.Fprintln(p.out, m.contextPreview)
			fmt.Fprintln(p.out, dimStyle.Render(rule()))
			fmt.Fprintln(p.out, preview(s.Context.Text, contextPreview))
			fmt.Fprintln(p.out, dimStyle.Render(rule()))
		}
		fmt.Fprintln(p.out)
	case pipeline.NodeAnswer:
		if s.Answer.Degraded {
			fmt.Fprintln(p.out, warnStyle.Render(m.degraded))
		} else {
			fmt.Fprintln(p.out, okStyle.Render(m.answered))
		}
		fmt.Fprintln(p.out)
	}
}

func (p *stepPrinter) printQuery(m messages, s *pipeline.State) {
	r := s.Result
	fmt.Fprintln(p.out, okStyle.Render(m.generated))
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "%s: %s\n", m.entities, joinOr(r.Entities, m.none))
	fmt.Fprintf(p.out, "%s: %s\n", m.relations, joinOr(r.Relations, m.none))
	if r.Explanation != "" {
		fmt.Fprintf(p.out, "%s: %s\n", m.explanation, r.Explanation)
	}
	if len(r.Corrections) > 0 {
		fmt.Fprintf(p.out, "%s: %s\n", m.corrected, strings.Join(r.Corrections, ", "))
	}
	fmt.Fprintln(p.out)

	if p.display.ShowSPARQL {
		fmt.Fprintln(p.out, m.query+":")
		fmt.Fprintln(p.out, dimStyle.Render(rule()))
		for _, line := range strings.Split(r.Query, "\n") {
			fmt.Fprintf(p.out, "  %s\n", line)
		}
		fmt.Fprintln(p.out, dimStyle.Render(rule()))
		fmt.Fprintln(p.out)
	}
}

func (p *stepPrinter) printFailure(m messages, s *pipeline.State) {
	fmt.Fprintln(p.out, errStyle.Render(fmt.Sprintf("%s: %v", m.failed, s.Err)))
	if s.Err.Stage == pipeline.Executing {
		for _, hint := range m.suggestions {
			fmt.Fprintf(p.out, "   - %s\n", hint)
		}
	}
	fmt.Fprintln(p.out)
}

func rule() string {
	return strings.Repeat("-", ruleWidth)
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
