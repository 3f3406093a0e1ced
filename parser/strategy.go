package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Strategy extracts a query from raw model output. Extract reports false
// when the strategy does not apply.
type Strategy interface {
	Name() string
	Extract(raw string) (Result, bool)
}

const (
	StrategyJSON         = "json"
	StrategyPrefixSelect = "regex_prefix_select"
	StrategySelect       = "regex_select"
	StrategyFallback     = "fallback"
)

// DefaultFallbackQuery lists a handful of triples.
const DefaultFallbackQuery = "SELECT ?subject ?predicate ?object WHERE { ?subject ?predicate ?object . } LIMIT 10"

var (
	fencePattern = regexp.MustCompile("(?s)```[A-Za-z]*[ \\t]*\\r?\\n?(.*?)```")

	// Only the query is checked; optional fields are coerced by envelopeFields.
	envelopeSchema = gojsonschema.NewGoLoader(map[string]any{
		"type":     "object",
		"required": []any{"sparql_query"},
		"properties": map[string]any{
			"sparql_query": map[string]any{"type": "string"},
		},
	})
	compiledSchema = mustSchema(envelopeSchema)
)

func mustSchema(l gojsonschema.JSONLoader) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(l)
	if err != nil {
		panic(fmt.Sprintf("parser: invalid envelope schema: %v", err))
	}
	return s
}

// JSONStrategy decodes the first JSON object found in the response, inside a
// fenced block if there is one, and validates it against the envelope schema.
type JSONStrategy struct{}

func (JSONStrategy) Name() string { return StrategyJSON }

func (JSONStrategy) Extract(raw string) (Result, bool) {
	for _, c := range candidates(raw) {
		doc, ok := decodeObject(c)
		if !ok {
			continue
		}
		if r, ok := decodeEnvelope(doc); ok {
			return r, true
		}
	}
	return Result{}, false
}

// EnvelopeMetadata returns the optional envelope fields of the first JSON
// object in raw, whether or not it carries a usable query.
func EnvelopeMetadata(raw string) (Result, bool) {
	for _, c := range candidates(raw) {
		if doc, ok := decodeObject(c); ok {
			return envelopeFields(doc), true
		}
	}
	return Result{}, false
}

// candidates lists the texts to search for an object, the fenced block first.
func candidates(raw string) []string {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return []string{strings.TrimSpace(m[1]), text}
	}
	return []string{text}
}

func decodeObject(text string) (map[string]any, bool) {
	obj, ok := firstObject(text)
	if !ok {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// ValidateEnvelope checks a decoded JSON document against the envelope schema
// and returns the violations.
func ValidateEnvelope(doc any) []string {
	res, err := compiledSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []string{err.Error()}
	}
	if res.Valid() {
		return nil
	}
	out := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		out = append(out, e.String())
	}
	return out
}

func decodeEnvelope(doc map[string]any) (Result, bool) {
	if errs := ValidateEnvelope(doc); len(errs) > 0 {
		return Result{}, false
	}
	r := envelopeFields(doc)
	q, _ := doc["sparql_query"].(string)
	r.Query = strings.TrimSpace(unescape(q))
	if r.Query == "" {
		return Result{}, false
	}
	r.Parsed = true
	r.Strategy = StrategyJSON
	return r, true
}

// envelopeFields reads entities_used, relations_used and explanation. A bare
// string becomes a one-element list; values of any other type are dropped.
func envelopeFields(doc map[string]any) Result {
	r := Result{
		Entities:  stringList(doc["entities_used"]),
		Relations: stringList(doc["relations_used"]),
	}
	if e, ok := doc["explanation"].(string); ok {
		r.Explanation = e
	}
	return r
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			return []string{t}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// firstObject returns the first brace-balanced object starting at the first
// '{', skipping braces inside JSON string literals.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r")

func unescape(q string) string {
	return escapes.Replace(q)
}

// RegexStrategy extracts the first match of a SELECT pattern from the raw
// response. A WHERE block cut short by the lazy match is extended to its
// closing brace, or closed when the response ends first.
type RegexStrategy struct {
	name    string
	pattern *regexp.Regexp
}

// NewRegexStrategy compiles pattern; the first capture group is the query.
func NewRegexStrategy(name, pattern string) (*RegexStrategy, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %s has no capture group", name)
	}
	return &RegexStrategy{name: name, pattern: re}, nil
}

// PrefixSelectStrategy matches a query that starts with PREFIX declarations.
func PrefixSelectStrategy() *RegexStrategy {
	return &RegexStrategy{name: StrategyPrefixSelect, pattern: regexp.MustCompile(`(?is)(PREFIX.*?SELECT.*?WHERE\s*\{.*?\})`)}
}

// SelectStrategy matches a bare SELECT query.
func SelectStrategy() *RegexStrategy {
	return &RegexStrategy{name: StrategySelect, pattern: regexp.MustCompile(`(?is)(SELECT.*?WHERE\s*\{.*?\})`)}
}

func (s *RegexStrategy) Name() string { return s.name }

func (s *RegexStrategy) Extract(raw string) (Result, bool) {
	loc := s.pattern.FindStringSubmatchIndex(raw)
	if loc == nil || loc[2] < 0 {
		return Result{}, false
	}
	query := closeBlock(raw, loc[2], loc[3])
	query = strings.ReplaceAll(unescape(query), `\"`, `"`)
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, false
	}
	return Result{Query: query, Strategy: s.name}, true
}

// closeBlock returns raw[start:end] extended until the braces opened inside it
// are balanced. When raw ends first the missing braces are appended.
func closeBlock(raw string, start, end int) string {
	depth := 0
	inString := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if c == '\\' {
				i++
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '\\':
			i++
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth <= 0 && i+1 >= end {
				return raw[start : i+1]
			}
		}
	}
	match := raw[start:end]
	open := strings.Count(match, "{") - strings.Count(match, "}")
	if open > 0 {
		match += strings.Repeat(" }", open)
	}
	return match
}

// FallbackStrategy always succeeds with a fixed exploratory query.
type FallbackStrategy struct {
	Query string
}

func (FallbackStrategy) Name() string { return StrategyFallback }

func (s FallbackStrategy) Extract(string) (Result, bool) {
	q := s.Query
	if strings.TrimSpace(q) == "" {
		q = DefaultFallbackQuery
	}
	return Result{Query: q, Strategy: StrategyFallback}, true
}
