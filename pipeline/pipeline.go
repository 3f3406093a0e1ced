package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smallnest/kgqa/answer"
	"github.com/smallnest/kgqa/correct"
	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/parser"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/synth"
)

// Node names of the compiled state machine.
const (
	NodeSynthesize = "synthesize"
	NodeParse      = "parse"
	NodeCorrect    = "correct"
	NodeExecute    = "execute"
	NodeFormat     = "format"
	NodeAnswer     = "answer"
)

// DefaultConcurrency bounds AskAll when no limit is given.
const DefaultConcurrency = 4

// Executor runs a SPARQL query. *sparql.Client implements it.
type Executor interface {
	Query(ctx context.Context, query string) (*sparql.Results, error)
}

// State is carried from node to node during one run.
type State struct {
	Question Question
	Raw      string
	Result   parser.Result
	Results  *sparql.Results
	Context  format.Context
	Answer   answer.Result
	Stage    Stage
	Err      *StageError
}

// Failure returns the stage error of a failed run, or nil.
func (s *State) Failure() error {
	if s == nil || s.Err == nil {
		return nil
	}
	return s.Err
}

func (s *State) fail(stage Stage, err error) *State {
	s.Err = &StageError{Stage: stage, Err: err}
	s.Stage = Failed
	return s
}

// Pipeline answers questions by running the synthesize, parse, correct,
// execute, format and answer stages in order. It keeps no per-question state
// and is safe for concurrent use.
type Pipeline struct {
	synth      *synth.Synthesizer
	parser     *parser.Parser
	corrector  *correct.Corrector
	executor   Executor
	answerer   *answer.Synthesizer
	formatters map[synth.Language]*format.Formatter

	language    synth.Language
	category    format.Category
	keepResults bool
	store       store.RecordStore
	saveTimeout time.Duration
	logger      log.Logger

	graph    *graph.StateGraph[*State]
	runnable *graph.StateRunnable[*State]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParser replaces the default response parser.
func WithParser(p *parser.Parser) Option {
	return func(pl *Pipeline) {
		pl.parser = p
	}
}

// WithCorrector replaces the default query corrector.
func WithCorrector(c *correct.Corrector) Option {
	return func(pl *Pipeline) {
		pl.corrector = c
	}
}

// WithFormatter sets the formatter used for its language.
func WithFormatter(f *format.Formatter) Option {
	return func(pl *Pipeline) {
		pl.formatters[f.Language()] = f
	}
}

// WithDefaultLanguage sets the language used when a question has none.
func WithDefaultLanguage(lang synth.Language) Option {
	return func(pl *Pipeline) {
		if lang.Valid() {
			pl.language = lang
		}
	}
}

// WithDefaultCategory sets the category used when a question has none.
func WithDefaultCategory(c format.Category) Option {
	return func(pl *Pipeline) {
		pl.category = c
	}
}

// WithRawResults keeps the raw result set on the record.
func WithRawResults(keep bool) Option {
	return func(pl *Pipeline) {
		pl.keepResults = keep
	}
}

// WithStore saves every record after Ask.
func WithStore(s store.RecordStore) Option {
	return func(pl *Pipeline) {
		pl.store = s
	}
}

// WithTracer attaches trace hooks to every run.
func WithTracer(t *graph.Tracer) Option {
	return func(pl *Pipeline) {
		if pl.runnable != nil {
			pl.runnable.SetTracer(t)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(pl *Pipeline) {
		pl.logger = l
	}
}

// New compiles the pipeline.
func New(s *synth.Synthesizer, executor Executor, a *answer.Synthesizer, opts ...Option) (*Pipeline, error) {
	if s == nil || executor == nil || a == nil {
		return nil, errors.New("synthesizer, executor and answerer are required")
	}

	p := &Pipeline{
		synth:       s,
		executor:    executor,
		answerer:    a,
		formatters:  make(map[synth.Language]*format.Formatter),
		language:    synth.DefaultLanguage,
		saveTimeout: 5 * time.Second,
	}

	// The runnable must exist before options so WithTracer can reach it.
	p.graph = p.buildGraph()
	runnable, err := p.graph.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile pipeline: %w", err)
	}
	p.runnable = runnable

	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.OrDefault(p.logger)

	if p.parser == nil {
		fallback := s.Descriptor().PrefixDeclarations() + parser.DefaultFallbackQuery
		p.parser = parser.New(parser.WithFallbackQuery(fallback), parser.WithLogger(p.logger))
	}
	if p.corrector == nil {
		p.corrector = correct.Default(correct.WithLogger(p.logger))
	}
	for _, lang := range synth.Languages() {
		if _, ok := p.formatters[lang]; !ok {
			p.formatters[lang] = format.New(lang, format.WithLogger(p.logger))
		}
	}
	return p, nil
}

func (p *Pipeline) buildGraph() *graph.StateGraph[*State] {
	g := graph.NewStateGraph[*State]()
	g.AddNode(NodeSynthesize, "Generate a SPARQL query with the query model", p.synthesize)
	g.AddNode(NodeParse, "Extract the query from the model response", p.parse)
	g.AddNode(NodeCorrect, "Apply generic and schema corrections", p.correct)
	g.AddNode(NodeExecute, "Run the query against the SPARQL endpoint", p.execute)
	g.AddNode(NodeFormat, "Build the answer context from result rows", p.format)
	g.AddNode(NodeAnswer, "Phrase the answer with the answer model", p.answer)

	chain := []string{NodeSynthesize, NodeParse, NodeCorrect, NodeExecute, NodeFormat, NodeAnswer}
	for i, from := range chain {
		next := graph.END
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		g.AddConditionalEdge(from, continueOrEnd(next), next, graph.END)
	}
	g.SetEntryPoint(NodeSynthesize)
	return g
}

func continueOrEnd(next string) func(context.Context, *State) string {
	return func(_ context.Context, s *State) string {
		if s.Err != nil {
			return graph.END
		}
		return next
	}
}

func (p *Pipeline) synthesize(ctx context.Context, s *State) (*State, error) {
	s.Stage = Synthesizing
	raw, err := p.synth.Synthesize(ctx, synth.Request{Question: s.Question.Text, Language: s.Question.Language})
	if err != nil {
		return s.fail(Synthesizing, err), nil
	}
	s.Raw = raw
	return s, nil
}

func (p *Pipeline) parse(_ context.Context, s *State) (*State, error) {
	s.Stage = Parsing
	s.Result = p.parser.Parse(s.Raw)
	return s, nil
}

func (p *Pipeline) correct(_ context.Context, s *State) (*State, error) {
	s.Stage = Correcting
	s.Result = p.corrector.Correct(s.Result)
	return s, nil
}

func (p *Pipeline) execute(ctx context.Context, s *State) (*State, error) {
	s.Stage = Executing
	p.logger.Debug("executing query:\n%s", s.Result.Query)
	res, err := p.executor.Query(ctx, s.Result.Query)
	if err != nil {
		return s.fail(Executing, err), nil
	}
	s.Results = res
	return s, nil
}

func (p *Pipeline) format(_ context.Context, s *State) (*State, error) {
	s.Stage = Formatting
	f := p.formatters[s.Question.Language]
	s.Context = f.Format(s.Results, s.Question.Category, s.Result.Explanation)
	return s, nil
}

func (p *Pipeline) answer(ctx context.Context, s *State) (*State, error) {
	s.Stage = Answering
	res, err := p.answerer.Answer(ctx, s.Question.Text, s.Context)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail(Answering, ctx.Err()), nil
		}
		p.logger.Warn("%v", err)
	}
	s.Answer = res
	s.Stage = Done
	return s, nil
}

// Graph returns the state graph the pipeline runs, for diagrams.
func (p *Pipeline) Graph() *graph.StateGraph[*State] {
	return p.graph
}

// DefaultLanguage returns the language used when a question has none.
func (p *Pipeline) DefaultLanguage() synth.Language {
	return p.language
}

// Ask answers one question. It never returns nil and never fails: errors are
// reported on the record.
func (p *Pipeline) Ask(ctx context.Context, q Question) *AnswerRecord {
	start := time.Now()
	if !q.Language.Valid() {
		q.Language = p.language
	}
	if q.Category == format.General {
		q.Category = p.category
	}
	q.Text = strings.TrimSpace(q.Text)

	state := &State{Question: q, Stage: Idle}
	final, err := p.runnable.Invoke(ctx, state)
	if final == nil {
		final = state
	}
	if err != nil && final.Err == nil {
		stage := final.Stage
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancelled between nodes: the stage that was about to run fails.
			stage = nextStage(stage)
		}
		final.fail(stage, err)
	}

	rec := p.record(final, start)
	if rec.Success {
		p.logger.Info("answered %q with %d result(s) in %s", q.Text, rec.ResultCount, rec.Duration.Round(time.Millisecond))
	} else {
		p.logger.Error("question %q failed at %s", q.Text, rec.Error)
	}
	p.save(ctx, rec)
	return rec
}

func nextStage(s Stage) Stage {
	if s < Answering {
		return s + 1
	}
	return s
}

func (p *Pipeline) record(s *State, start time.Time) *AnswerRecord {
	r := s.Result
	rec := &AnswerRecord{
		ID:            uuid.NewString(),
		Question:      s.Question.Text,
		Language:      s.Question.Language,
		Category:      s.Question.Category,
		Query:         r.Query,
		Entities:      nonNil(r.Entities),
		Relations:     nonNil(r.Relations),
		Explanation:   r.Explanation,
		Parsed:        r.Parsed,
		Strategy:      r.Strategy,
		AutoCorrected: r.AutoCorrected,
		Corrections:   r.Corrections,
		StartedAt:     start.UTC(),
		Duration:      time.Since(start),
	}
	if s.Results != nil {
		rec.ResultCount = s.Results.Len()
		if p.keepResults {
			rec.RawResults = s.Results
		}
	}

	if s.Err != nil {
		rec.Stage = Failed
		rec.FailedStage = s.Err.Stage
		rec.Error = s.Err.Error()
		return rec
	}

	rec.Success = true
	rec.Stage = Done
	rec.Context = s.Context.Text
	rec.Answer = s.Answer.Text
	rec.AnswerDegraded = s.Answer.Degraded
	return rec
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (p *Pipeline) save(ctx context.Context, rec *AnswerRecord) {
	if p.store == nil {
		return
	}
	env, err := rec.Envelope()
	if err != nil {
		p.logger.Warn("record %s not saved: %v", rec.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.saveTimeout)
	defer cancel()
	if err := p.store.Save(ctx, env); err != nil {
		p.logger.Warn("record %s not saved: %v", rec.ID, err)
	}
}

// AskAll answers questions with at most concurrency runs in flight and
// returns the records in input order.
func (p *Pipeline) AskAll(ctx context.Context, questions []Question, concurrency int) []*AnswerRecord {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	records := make([]*AnswerRecord, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, q := range questions {
		g.Go(func() error {
			records[i] = p.Ask(gctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return records
}
