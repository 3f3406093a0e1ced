package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/metrics"
	"github.com/smallnest/kgqa/ontology"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/synth"
)

const (
	serverName = "kgqa"

	// ToolAsk answers a natural-language question.
	ToolAsk = "ask_knowledge_graph"
	// ToolRecord returns a saved answer record.
	ToolRecord = "get_answer_record"
	// OntologyURI is the resource carrying the rendered ontology.
	OntologyURI = "kgqa://ontology"
)

// Asker answers one question. *pipeline.Pipeline implements it.
type Asker interface {
	Ask(ctx context.Context, q pipeline.Question) *pipeline.AnswerRecord
}

// AskInput is the argument of the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"Question about the knowledge graph, in French or English"`
	Language string `json:"language,omitempty" jsonschema:"Answer language: fr or en (default fr)"`
	Category string `json:"category,omitempty" jsonschema:"Result layout: general, entity_list, details, relationships or count"`
}

// AskOutput is the structured result of the ask tool.
type AskOutput struct {
	ID          string   `json:"id"`
	Success     bool     `json:"success"`
	Question    string   `json:"question"`
	Language    string   `json:"language"`
	Query       string   `json:"sparql_query,omitempty"`
	Entities    []string `json:"entities_used"`
	Relations   []string `json:"relations_used"`
	Corrections []string `json:"corrections,omitempty"`
	ResultCount int      `json:"results_count"`
	Answer      string   `json:"answer,omitempty"`
	Degraded    bool     `json:"degraded"`
	FailedStage string   `json:"failed_stage,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// RecordInput is the argument of the record tool.
type RecordInput struct {
	ID string `json:"id" jsonschema:"Identifier of a previous answer"`
}

// Adapter exposes the pipeline as an MCP server.
type Adapter struct {
	asker     Asker
	store     store.RecordStore
	desc      *ontology.Descriptor
	collector *metrics.Collector
	version   string
	logger    log.Logger
	server    *mcpsdk.Server
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithStore registers the record lookup tool.
func WithStore(s store.RecordStore) Option {
	return func(a *Adapter) {
		a.store = s
	}
}

// WithOntology publishes the rendered ontology as a resource.
func WithOntology(d *ontology.Descriptor) Option {
	return func(a *Adapter) {
		a.desc = d
	}
}

// WithMetrics observes every answered question.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Adapter) {
		a.collector = c
	}
}

// WithVersion sets the advertised server version.
func WithVersion(v string) Option {
	return func(a *Adapter) {
		a.version = v
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// New creates the MCP server and registers its tools.
func New(asker Asker, opts ...Option) (*Adapter, error) {
	if asker == nil {
		return nil, errors.New("mcp adapter requires an asker")
	}
	a := &Adapter{asker: asker, version: "dev"}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.OrDefault(a.logger)

	a.server = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    serverName,
		Version: a.version,
	}, nil)

	mcpsdk.AddTool(a.server, &mcpsdk.Tool{
		Name:        ToolAsk,
		Description: "Answer a natural-language question by generating a SPARQL query, running it against the knowledge graph and summarizing the rows",
	}, a.ask)

	if a.store != nil {
		mcpsdk.AddTool(a.server, &mcpsdk.Tool{
			Name:        ToolRecord,
			Description: "Return a previously saved answer record, including the executed SPARQL query",
		}, a.record)
	}

	if a.desc != nil {
		a.server.AddResource(&mcpsdk.Resource{
			URI:         OntologyURI,
			Name:        "ontology",
			Description: "Classes, properties and usage rules of the knowledge graph",
			MIMEType:    "text/plain",
		}, a.readOntology)
	}
	return a, nil
}

// Server returns the underlying MCP server.
func (a *Adapter) Server() *mcpsdk.Server {
	return a.server
}

// RunStdio serves over standard input and output until ctx is done.
func (a *Adapter) RunStdio(ctx context.Context) error {
	return a.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// HTTPHandler returns a streamable HTTP handler for the server.
func (a *Adapter) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return a.server
	}, nil)
}

func (a *Adapter) ask(ctx context.Context, _ *mcpsdk.CallToolRequest, in AskInput) (*mcpsdk.CallToolResult, AskOutput, error) {
	text := strings.TrimSpace(in.Question)
	if text == "" {
		return toolError("question is required"), emptyOutput(in.Question), nil
	}
	q := pipeline.Question{Text: text}
	if in.Language != "" {
		lang, err := synth.ParseLanguage(in.Language)
		if err != nil {
			return toolError("%v", err), emptyOutput(in.Question), nil
		}
		q.Language = lang
	}
	if in.Category != "" {
		q.Category = format.ParseCategory(in.Category)
	}

	a.logger.Debug("mcp %s: %q", ToolAsk, text)
	rec := a.asker.Ask(ctx, q)
	if a.collector != nil {
		a.collector.ObserveRecord(rec)
	}

	out := output(rec)
	if !rec.Success {
		return toolError("%s failed: %s", rec.FailedStage, rec.Error), out, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: rec.Answer}},
	}, out, nil
}

func (a *Adapter) record(ctx context.Context, _ *mcpsdk.CallToolRequest, in RecordInput) (*mcpsdk.CallToolResult, any, error) {
	env, err := a.store.Load(ctx, in.ID)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	rec, err := pipeline.FromEnvelope(env)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return toolError("failed to marshal record: %v", err), nil, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}

func (a *Adapter) readOntology(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	if req.Params.URI != OntologyURI {
		return nil, mcpsdk.ResourceNotFoundError(req.Params.URI)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      OntologyURI,
			MIMEType: "text/plain",
			Text:     a.desc.PrefixDeclarations() + "\n" + a.desc.Render(),
		}},
	}, nil
}

func emptyOutput(question string) AskOutput {
	return AskOutput{Question: question, Entities: []string{}, Relations: []string{}}
}

func output(rec *pipeline.AnswerRecord) AskOutput {
	out := AskOutput{
		ID:          rec.ID,
		Success:     rec.Success,
		Question:    rec.Question,
		Language:    rec.Language.String(),
		Query:       rec.Query,
		Entities:    rec.Entities,
		Relations:   rec.Relations,
		Corrections: rec.Corrections,
		ResultCount: rec.ResultCount,
		Answer:      rec.Answer,
		Degraded:    rec.AnswerDegraded || (rec.Query != "" && !rec.Parsed),
		Error:       rec.Error,
	}
	if out.Entities == nil {
		out.Entities = []string{}
	}
	if out.Relations == nil {
		out.Relations = []string{}
	}
	if !rec.Success {
		out.FailedStage = rec.FailedStage.String()
	}
	return out
}

func toolError(msg string, args ...any) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf(msg, args...)}},
		IsError: true,
	}
}
