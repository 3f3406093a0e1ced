package answer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/prompts"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/llms/chat"
	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/synth"
)

const rawPreviewRunes = 200

const withRowsTemplate = `Question: {{.question}}

Knowledge graph context ({{.count}} results found):
{{.context}}

Answer the question in {{.language}} using only this context.
Be precise, informative and natural. Start with a short introductory sentence and use a numbered or bulleted list when there are several items.
If the information is not in the context, say so clearly. Never invent information.{{.hints}}`

const noRowsTemplate = `Question: {{.question}}

Context: {{.context}}

Answer politely in {{.language}} that you found no information to answer this question, and suggest that the data may not exist in the knowledge graph yet. Do not invent any data.`

var (
	withRowsPrompt = prompts.NewPromptTemplate(withRowsTemplate, []string{"question", "count", "context", "language", "hints"})
	noRowsPrompt   = prompts.NewPromptTemplate(noRowsTemplate, []string{"question", "context", "language"})
)

// Result is the final answer.
type Result struct {
	Text string `json:"text"`
	// Degraded is set when the model failed and Text is the templated
	// fallback.
	Degraded bool `json:"degraded"`
}

// AnswerSynthesisError reports a failed answer generation. It accompanies a
// usable fallback Result.
type AnswerSynthesisError struct {
	Question string
	Err      error
}

func (e *AnswerSynthesisError) Error() string {
	return fmt.Sprintf("answer synthesis failed: %v", e.Err)
}

func (e *AnswerSynthesisError) Unwrap() error {
	return e.Err
}

// Synthesizer phrases the final answer from the formatted context.
type Synthesizer struct {
	client  synth.Completer
	profile chat.Profile
	hints   []string
	logger  log.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithProfile sets the generation profile.
func WithProfile(p chat.Profile) Option {
	return func(s *Synthesizer) {
		s.profile = p
	}
}

// WithHints adds wording guidance to prompts built from rows.
func WithHints(hints ...string) Option {
	return func(s *Synthesizer) {
		s.hints = append(s.hints, hints...)
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = l
	}
}

// New creates an answer synthesizer.
func New(client synth.Completer, opts ...Option) (*Synthesizer, error) {
	if client == nil {
		return nil, chat.ErrNoModel
	}
	s := &Synthesizer{client: client, profile: chat.AnswerProfile("")}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger)
	return s, nil
}

// Prompt returns the prompt for question and the formatted context.
func (s *Synthesizer) Prompt(question string, c format.Context) (string, error) {
	lang := c.Language
	if !lang.Valid() {
		lang = synth.DefaultLanguage
	}
	if c.Empty() {
		return noRowsPrompt.Format(map[string]any{
			"question": question,
			"context":  format.NoDataMessage(lang),
			"language": lang.Name(),
		})
	}

	var hints string
	if len(s.hints) > 0 {
		hints = "\n\nWording:\n- " + strings.Join(s.hints, "\n- ")
	}
	return withRowsPrompt.Format(map[string]any{
		"question": question,
		"count":    c.Rows,
		"context":  c.Text,
		"language": lang.Name(),
		"hints":    hints,
	})
}

// Answer asks the model for the final answer. When generation fails it
// returns the fallback text with Degraded set, together with an
// *AnswerSynthesisError for the caller to log.
func (s *Synthesizer) Answer(ctx context.Context, question string, c format.Context) (Result, error) {
	prompt, err := s.Prompt(question, c)
	if err == nil {
		s.logger.Debug("answer prompt (%d chars):\n%s", len(prompt), prompt)
		var text string
		text, err = s.client.Complete(ctx, s.profile, prompt)
		if err == nil {
			return Result{Text: text}, nil
		}
	}
	s.logger.Warn("answer generation failed, using fallback: %v", err)
	return Result{Text: Fallback(c), Degraded: true}, &AnswerSynthesisError{Question: question, Err: err}
}

var fallbacks = map[synth.Language]struct{ rows, none string }{
	synth.French: {
		rows: "J'ai trouvé %d résultat(s), mais je n'ai pas pu générer une réponse naturelle. Voici les données brutes: %s...",
		none: "Je n'ai pas trouvé de résultats pour cette question.",
	},
	synth.English: {
		rows: "I found %d result(s) but could not phrase an answer. Raw data: %s...",
		none: "I found no results for this question.",
	},
}

// Fallback returns the answer used when the model cannot be reached.
func Fallback(c format.Context) string {
	f, ok := fallbacks[c.Language]
	if !ok {
		f = fallbacks[synth.DefaultLanguage]
	}
	if c.Empty() {
		return f.none
	}
	return fmt.Sprintf(f.rows, c.Rows, preview(c.Text, rawPreviewRunes))
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
