package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/smallnest/kgqa/ontology"
)

// DefaultTemplate is the query generation prompt. It is a Go text/template
// over the variables persona, ontology, examples, prefixes, language and
// question.
const DefaultTemplate = `{{.persona}}

{{.ontology}}
===============================================================
EXAMPLES
===============================================================
{{.examples}}
===============================================================

Now write a SPARQL query for this question: "{{.question}}"

Think about which classes, properties and relation directions are needed, and which filters apply.

Answer ONLY with one valid JSON object, with no text before or after it and no Markdown fences:

{
  "sparql_query": "{{.prefixes}}\n\nSELECT ?variable\nWHERE {\n  ...\n}",
  "entities_used": ["ClassName"],
  "relations_used": ["propertyName"],
  "explanation": "short explanation in {{.language}} of what the query does"
}

JSON rules:
- Output only the JSON object.
- Escape line breaks in the query as \n.
- Always declare every prefix the query uses.
- Never use a GRAPH clause.
`

const defaultPersona = "You translate questions about a knowledge graph into SPARQL 1.1 SELECT queries."

var templateVars = []string{"persona", "ontology", "examples", "prefixes", "language", "question"}

func newTemplate(text string) (prompts.PromptTemplate, error) {
	tmpl := prompts.NewPromptTemplate(text, templateVars)
	if _, err := tmpl.Format(map[string]any{
		"persona": "", "ontology": "", "examples": "", "prefixes": "", "language": "", "question": "",
	}); err != nil {
		return prompts.PromptTemplate{}, fmt.Errorf("invalid prompt template: %w", err)
	}
	return tmpl, nil
}

type envelope struct {
	Query       string   `json:"sparql_query"`
	Entities    []string `json:"entities_used"`
	Relations   []string `json:"relations_used"`
	Explanation string   `json:"explanation"`
}

// renderExamples writes each example as a question followed by the exact
// JSON the model is expected to produce.
func renderExamples(examples []ontology.Example) (string, error) {
	var sb strings.Builder
	for i, ex := range examples {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		err := enc.Encode(envelope{
			Query:       strings.TrimSpace(ex.Query),
			Entities:    nonNil(ex.Entities),
			Relations:   nonNil(ex.Relations),
			Explanation: ex.Explanation,
		})
		if err != nil {
			return "", fmt.Errorf("encode example %d: %w", i+1, err)
		}
		fmt.Fprintf(&sb, "\nExample %d\nQuestion: %q\nOutput:\n%s", i+1, ex.Question, buf.String())
	}
	return sb.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// prefixLine returns the prefix block with escaped line breaks, as it must
// appear inside the JSON string.
func prefixLine(desc *ontology.Descriptor) string {
	return strings.ReplaceAll(strings.TrimSpace(desc.PrefixDeclarations()), "\n", `\n`)
}
