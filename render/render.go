package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/synth"
)

//go:embed templates/*.html
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// MaxTableRows bounds the result table of a report.
const MaxTableRows = 50

type labels struct {
	answer, query, corrections, results, failure, rows string
}

var headings = map[synth.Language]labels{
	synth.French: {
		answer:      "Réponse",
		query:       "Requête SPARQL",
		corrections: "Corrections appliquées",
		results:     "Résultats",
		failure:     "Échec",
		rows:        "%d résultat(s)",
	},
	synth.English: {
		answer:      "Answer",
		query:       "SPARQL query",
		corrections: "Applied corrections",
		results:     "Results",
		failure:     "Failure",
		rows:        "%d result(s)",
	},
}

func headingsFor(lang synth.Language) labels {
	if l, ok := headings[lang]; ok {
		return l
	}
	return headings[synth.DefaultLanguage]
}

// Markdown renders the record as a Markdown report: the answer, the executed
// query, the applied corrections and, when the record kept them, the rows.
func Markdown(rec *pipeline.AnswerRecord) string {
	l := headingsFor(rec.Language)
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", rec.Question)

	if rec.Success {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", l.answer, strings.TrimSpace(rec.Answer))
	} else {
		fmt.Fprintf(&sb, "## %s\n\n%s: %s\n\n", l.failure, rec.FailedStage, rec.Error)
	}

	if rec.Query != "" {
		fmt.Fprintf(&sb, "## %s\n\n```sparql\n%s\n```\n\n", l.query, strings.TrimSpace(rec.Query))
	}

	if len(rec.Corrections) > 0 {
		fmt.Fprintf(&sb, "## %s\n\n", l.corrections)
		for _, c := range rec.Corrections {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}

	if rec.Success {
		fmt.Fprintf(&sb, "## %s\n\n", l.results)
		fmt.Fprintf(&sb, l.rows+"\n\n", rec.ResultCount)
		writeTable(&sb, rec)
	}
	return sb.String()
}

func writeTable(sb *strings.Builder, rec *pipeline.AnswerRecord) {
	res := rec.RawResults
	vars := res.Vars()
	if res.Len() == 0 || len(vars) == 0 {
		return
	}

	sb.WriteString("|")
	for _, v := range vars {
		fmt.Fprintf(sb, " %s |", cell(v))
	}
	sb.WriteString("\n|")
	for range vars {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")

	for i, b := range res.Bindings() {
		if i == MaxTableRows {
			break
		}
		sb.WriteString("|")
		for _, v := range vars {
			fmt.Fprintf(sb, " %s |", cell(b[v].String()))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func cell(s string) string {
	return cellReplacer.Replace(s)
}

// HTML converts Markdown to sanitized HTML.
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)

	return bluemonday.UGCPolicy().SanitizeBytes(out)
}

// Page writes a standalone HTML page for the record.
func Page(w io.Writer, rec *pipeline.AnswerRecord) error {
	data := struct {
		Lang     string
		Title    string
		Success  bool
		Degraded bool
		Body     template.HTML
	}{
		Lang:     rec.Language.String(),
		Title:    rec.Question,
		Success:  rec.Success,
		Degraded: rec.AnswerDegraded || (rec.Query != "" && !rec.Parsed),
		Body:     template.HTML(HTML(Markdown(rec))), // #nosec G203 -- sanitized by bluemonday
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
