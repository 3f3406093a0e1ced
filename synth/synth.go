package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/smallnest/kgqa/llms/chat"
	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/ontology"
)

var ErrEmptyQuestion = errors.New("empty question")

// Request is one question to translate.
type Request struct {
	Question string
	Language Language
}

// SynthesisError reports a failed query generation. No default query is
// produced when it occurs.
type SynthesisError struct {
	Question string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("query synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Completer sends one prompt under a profile.
type Completer interface {
	Complete(ctx context.Context, p chat.Profile, prompt string) (string, error)
}

// Synthesizer builds the query generation prompt from an ontology descriptor
// and asks the model once.
type Synthesizer struct {
	desc     *ontology.Descriptor
	client   Completer
	profile  chat.Profile
	tmpl     prompts.PromptTemplate
	examples string
	persona  string
	logger   log.Logger
}

// Option configures a Synthesizer.
type Option func(*options)

type options struct {
	profile  chat.Profile
	template string
	persona  string
	logger   log.Logger
}

// WithProfile sets the generation profile.
func WithProfile(p chat.Profile) Option {
	return func(o *options) {
		o.profile = p
	}
}

// WithTemplate replaces the prompt template.
func WithTemplate(text string) Option {
	return func(o *options) {
		o.template = text
	}
}

// WithPersona replaces the opening line of the prompt.
func WithPersona(p string) Option {
	return func(o *options) {
		o.persona = p
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a synthesizer. The examples are rendered once here.
func New(desc *ontology.Descriptor, client Completer, opts ...Option) (*Synthesizer, error) {
	if desc == nil {
		return nil, errors.New("ontology descriptor is required")
	}
	if client == nil {
		return nil, chat.ErrNoModel
	}
	o := &options{
		profile:  chat.QueryProfile(""),
		template: DefaultTemplate,
		persona:  defaultPersona,
	}
	for _, opt := range opts {
		opt(o)
	}

	tmpl, err := newTemplate(o.template)
	if err != nil {
		return nil, err
	}
	examples, err := renderExamples(desc.Examples)
	if err != nil {
		return nil, err
	}

	return &Synthesizer{
		desc:     desc,
		client:   client,
		profile:  o.profile,
		tmpl:     tmpl,
		examples: examples,
		persona:  o.persona,
		logger:   log.OrDefault(o.logger),
	}, nil
}

// Descriptor returns the ontology descriptor.
func (s *Synthesizer) Descriptor() *ontology.Descriptor {
	return s.desc
}

// Prompt returns the full prompt for req.
func (s *Synthesizer) Prompt(req Request) (string, error) {
	question, lang, err := validate(req)
	if err != nil {
		return "", err
	}
	return s.tmpl.Format(map[string]any{
		"persona":  s.persona,
		"ontology": s.desc.Render(),
		"examples": s.examples,
		"prefixes": prefixLine(s.desc),
		"language": lang.Name(),
		"question": question,
	})
}

// Synthesize asks the model for a query and returns its raw response. Any
// failure is returned as *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	prompt, err := s.Prompt(req)
	if err != nil {
		return "", &SynthesisError{Question: req.Question, Err: err}
	}
	s.logger.Debug("query prompt (%d chars):\n%s", len(prompt), prompt)

	raw, err := s.client.Complete(ctx, s.profile, prompt)
	if err != nil {
		return "", &SynthesisError{Question: req.Question, Err: err}
	}
	s.logger.Debug("raw model response:\n%s", raw)
	return raw, nil
}

func validate(req Request) (string, Language, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", "", ErrEmptyQuestion
	}
	lang := req.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if !lang.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, string(lang))
	}
	return question, lang, nil
}
