package parser

import (
	"github.com/smallnest/kgqa/log"
)

// Parser runs an ordered chain of strategies over a model response and keeps
// the first success. The chain always ends with a fallback, so Parse never
// fails.
type Parser struct {
	strategies []Strategy
	fallback   FallbackStrategy
	logger     log.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithStrategies replaces the default extraction chain. The fallback strategy
// is always appended.
func WithStrategies(s ...Strategy) Option {
	return func(p *Parser) {
		p.strategies = s
	}
}

// WithFallbackQuery sets the query used when nothing can be extracted.
func WithFallbackQuery(q string) Option {
	return func(p *Parser) {
		p.fallback.Query = q
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(p *Parser) {
		p.logger = l
	}
}

// New creates a parser with the JSON, PREFIX...SELECT and SELECT strategies.
func New(opts ...Option) *Parser {
	p := &Parser{
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.OrDefault(p.logger)
	return p
}

// DefaultStrategies returns the default extraction chain without the fallback.
func DefaultStrategies() []Strategy {
	return []Strategy{JSONStrategy{}, PrefixSelectStrategy(), SelectStrategy()}
}

// Parse extracts a query from raw.
func (p *Parser) Parse(raw string) Result {
	for _, s := range p.strategies {
		if r, ok := p.try(s, raw); ok {
			if !r.Parsed {
				p.logger.Warn("response is not a valid JSON envelope, query recovered by %s", s.Name())
				withMetadata(&r, raw)
			}
			return r
		}
	}
	p.logger.Warn("no query found in response, using fallback query")
	r, _ := p.fallback.Extract(raw)
	withMetadata(&r, raw)
	r.normalize()
	return r
}

// withMetadata fills the empty descriptive fields of r from a JSON object in
// raw that had no usable query.
func withMetadata(r *Result, raw string) {
	meta, ok := EnvelopeMetadata(raw)
	if !ok {
		return
	}
	if len(r.Entities) == 0 && len(meta.Entities) > 0 {
		r.Entities = meta.Entities
	}
	if len(r.Relations) == 0 && len(meta.Relations) > 0 {
		r.Relations = meta.Relations
	}
	if r.Explanation == "" {
		r.Explanation = meta.Explanation
	}
}

func (p *Parser) try(s Strategy, raw string) (r Result, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("strategy %s panicked: %v", s.Name(), rec)
			r, ok = Result{}, false
		}
	}()
	r, ok = s.Extract(raw)
	if !ok || r.Query == "" {
		return Result{}, false
	}
	if r.Strategy == "" {
		r.Strategy = s.Name()
	}
	r.normalize()
	return r, true
}
