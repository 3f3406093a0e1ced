package format

import (
	"fmt"
	"strings"

	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/synth"
)

// Context is the text handed to the answer model.
type Context struct {
	Text     string         `json:"text"`
	Category Category       `json:"category"`
	Rows     int            `json:"rows"`
	Language synth.Language `json:"language"`
	// Fallback is set when the category layout failed and the general
	// layout was used instead.
	Fallback bool `json:"fallback,omitempty"`
}

// Empty reports whether the context was built from zero rows.
func (c Context) Empty() bool {
	return c.Rows == 0
}

// Strategy lays out rows. vars is the projection order. An empty return
// value means the layout does not fit the rows.
type Strategy func(vars []string, rows []sparql.Binding) string

// Formatter turns result rows into context text in one language. It is safe
// for concurrent use.
type Formatter struct {
	lang       synth.Language
	msgs       Messages
	strategies map[Category]Strategy
	logger     log.Logger
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithStrategy replaces the layout of a category.
func WithStrategy(c Category, s Strategy) Option {
	return func(f *Formatter) {
		f.strategies[c] = s
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(f *Formatter) {
		f.logger = l
	}
}

// New creates a formatter for lang.
func New(lang synth.Language, opts ...Option) *Formatter {
	if !lang.Valid() {
		lang = synth.DefaultLanguage
	}
	f := &Formatter{
		lang: lang,
		msgs: MessagesFor(lang),
		strategies: map[Category]Strategy{
			EntityList:    entityList,
			Details:       details,
			Relationships: relationships,
			Count:         count,
		},
	}
	f.strategies[General] = f.general
	for _, opt := range opts {
		opt(f)
	}
	f.logger = log.OrDefault(f.logger)
	return f
}

// Language returns the formatter language.
func (f *Formatter) Language() synth.Language {
	return f.lang
}

// Format renders res in the layout of category, headed by the explanation
// when there is one. Zero rows yield the no-data message.
func (f *Formatter) Format(res *sparql.Results, category Category, explanation string) Context {
	ctx := Context{Category: category, Rows: res.Len(), Language: f.lang}
	if res.Len() == 0 {
		ctx.Text = f.msgs.NoData
		return ctx
	}

	vars := res.Vars()
	rows := res.Bindings()

	body, err := f.apply(category, vars, rows)
	if err != nil {
		f.logger.Warn("%v, using general layout", err)
		body = f.general(vars, rows)
		ctx.Fallback = true
	}

	var sb strings.Builder
	if explanation = strings.TrimSpace(explanation); explanation != "" {
		fmt.Fprintf(&sb, f.msgs.QueryContext, explanation)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, f.msgs.DataFound, len(rows))
	sb.WriteString("\n\n")
	sb.WriteString(body)
	ctx.Text = sb.String()
	return ctx
}

// FormattingError reports a layout that panicked or produced nothing.
type FormattingError struct {
	Category Category
	Cause    any
}

func (e *FormattingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("format %s: %v", e.Category, e.Cause)
	}
	return fmt.Sprintf("format %s: empty output", e.Category)
}

func (f *Formatter) apply(category Category, vars []string, rows []sparql.Binding) (out string, err error) {
	s, ok := f.strategies[category]
	if !ok {
		s = f.general
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = "", &FormattingError{Category: category, Cause: r}
		}
	}()
	out = s(vars, rows)
	if strings.TrimSpace(out) == "" {
		return "", &FormattingError{Category: category}
	}
	return out, nil
}

func (f *Formatter) general(vars []string, rows []sparql.Binding) string {
	var sb strings.Builder
	for i, row := range rows {
		fmt.Fprintf(&sb, f.msgs.Result, i+1)
		sb.WriteByte('\n')
		for _, v := range orderedVars(vars, row) {
			fmt.Fprintf(&sb, "  - %s: %s\n", v, Display(row[v]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func entityList(vars []string, rows []sparql.Binding) string {
	var sb strings.Builder
	for _, row := range rows {
		var fields []string
		for _, v := range orderedVars(vars, row) {
			if len(fields) == 3 {
				break
			}
			fields = append(fields, v+": "+Display(row[v]))
		}
		if len(fields) > 0 {
			sb.WriteString("- " + strings.Join(fields, ", ") + "\n")
		}
	}
	return sb.String()
}

func details(vars []string, rows []sparql.Binding) string {
	prop, val := pick(vars, []string{"property", "predicate", "p"}, []string{"value", "object", "o"})
	var sb strings.Builder
	for _, row := range rows {
		p, okP := row[prop]
		v, okV := row[val]
		if !okP || !okV {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", Display(p), Display(v))
	}
	return sb.String()
}

func relationships(vars []string, rows []sparql.Binding) string {
	subj, obj := pick(vars, []string{"subject", "s"}, []string{"object", "o"})
	label := ""
	for _, v := range vars {
		if v != subj && v != obj {
			label = v
			break
		}
	}
	var sb strings.Builder
	for _, row := range rows {
		s, okS := row[subj]
		o, okO := row[obj]
		if !okS || !okO {
			continue
		}
		if p, ok := row[label]; ok && label != "" {
			fmt.Fprintf(&sb, "- %s -[%s]-> %s\n", Display(s), Display(p), Display(o))
		} else {
			fmt.Fprintf(&sb, "- %s -> %s\n", Display(s), Display(o))
		}
	}
	return sb.String()
}

func count(vars []string, rows []sparql.Binding) string {
	row := rows[0]
	var sb strings.Builder
	for _, v := range orderedVars(vars, row) {
		fmt.Fprintf(&sb, "%s: %s\n", v, Display(row[v]))
	}
	return sb.String()
}

// pick returns the first variable named in first and in second, or the
// first two projected variables when the names are absent.
func pick(vars, first, second []string) (string, string) {
	a, b := lookup(vars, first), lookup(vars, second)
	if a != "" && b != "" {
		return a, b
	}
	if len(vars) < 2 {
		return "", ""
	}
	return vars[0], vars[1]
}

func lookup(vars, names []string) string {
	for _, n := range names {
		for _, v := range vars {
			if v == n {
				return v
			}
		}
	}
	return ""
}

// orderedVars returns the variables bound in row, in projection order, then
// any others alphabetically.
func orderedVars(vars []string, row sparql.Binding) []string {
	out := make([]string, 0, len(row))
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if _, ok := row[v]; ok && !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	for _, v := range row.Vars() {
		if !seen[v] {
			out = append(out, v)
		}
	}
	return out
}

// Display returns the human-readable form of a value: URIs are cut after
// their last '#' or '/', blank nodes get the _: prefix, literals keep their
// lexical form.
func Display(v sparql.Value) string {
	switch v.Kind() {
	case sparql.URI:
		return ShortenURI(v.Value)
	case sparql.BlankNode:
		return "_:" + v.Value
	default:
		return v.Value
	}
}

// ShortenURI returns the local name of uri.
func ShortenURI(uri string) string {
	s := uri
	if i := strings.LastIndex(s, "#"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return uri
	}
	return s
}
