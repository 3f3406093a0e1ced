package correct

import (
	"fmt"

	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/parser"
)

// Corrector rewrites known mistakes in generated queries. The generic table
// runs first, then the schema table.
type Corrector struct {
	generic *Table
	schema  *Table
	logger  log.Logger
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Corrector) {
		c.logger = l
	}
}

// New creates a corrector from two tables. A nil table is treated as empty.
// It fails when a rule of one table would feed a rule of the other.
func New(generic, schema *Table, opts ...Option) (*Corrector, error) {
	if generic == nil {
		generic = &Table{}
	}
	if schema == nil {
		schema = &Table{}
	}
	if err := checkReplacements(generic.rules, schema.rules); err != nil {
		return nil, fmt.Errorf("generic table feeds schema table: %w", err)
	}
	if err := checkReplacements(schema.rules, generic.rules); err != nil {
		return nil, fmt.Errorf("schema table feeds generic table: %w", err)
	}
	c := &Corrector{generic: generic, schema: schema}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger)
	return c, nil
}

// Default returns a corrector using the embedded tables.
func Default(opts ...Option) *Corrector {
	g, s := DefaultTables()
	c, err := New(g, s, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Correct applies both tables to r.Query. Correct is idempotent.
func (c *Corrector) Correct(r parser.Result) parser.Result {
	q, generic := c.generic.Apply(r.Query)
	q, schema := c.schema.Apply(q)
	if len(generic)+len(schema) == 0 {
		return r
	}
	if q == "" {
		// never hand an empty query downstream
		c.logger.Warn("corrections emptied the query, keeping original")
		return r
	}

	r.Query = q
	r.AutoCorrected = true
	r.Corrections = append(append([]string(nil), r.Corrections...), generic...)
	r.Corrections = append(r.Corrections, schema...)
	c.logger.Info("query auto-corrected: %v", r.Corrections)
	return r
}
