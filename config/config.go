package config

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Backends accepted by llm.backend.
const (
	BackendLocal  = "local"
	BackendOpenAI = "openai"
)

// Store drivers accepted by store.driver. Empty disables persistence.
const (
	StoreNone     = ""
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSqlite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is built once at start-up and handed to constructors.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	SPARQL   SPARQLConfig   `mapstructure:"sparql"`
	Ontology OntologyConfig `mapstructure:"ontology"`
	Display  DisplayConfig  `mapstructure:"display"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Tracing  TracingConfig  `mapstructure:"tracing"`

	Language       string `mapstructure:"language" validate:"oneof=fr en"`
	MaxRetries     int    `mapstructure:"max_retries" validate:"min=1,max=10"`
	RequestTimeout int    `mapstructure:"request_timeout" validate:"min=1"` // seconds
	Concurrency    int    `mapstructure:"concurrency" validate:"min=1,max=64"`
}

// LLMConfig selects the generation backend and models.
type LLMConfig struct {
	Backend  string `mapstructure:"backend" validate:"omitempty,oneof=local openai"`
	UseLocal bool   `mapstructure:"use_local"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`

	// OpenAIModel is used with the openai backend when Model is unset.
	OpenAIModel string `mapstructure:"openai_model"`
	SPARQLModel string `mapstructure:"sparql_model"`
	AnswerModel string `mapstructure:"answer_model"`
	MaxTokens   int    `mapstructure:"max_tokens" validate:"min=0"`
}

// SPARQLConfig locates the graph store.
type SPARQLConfig struct {
	Endpoint       string `mapstructure:"endpoint" validate:"required,url"`
	OntologyGraph  string `mapstructure:"ontology_graph" validate:"omitempty,uri"`
	InstancesGraph string `mapstructure:"instances_graph" validate:"omitempty,uri"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
}

// OntologyConfig points at optional descriptor and correction files; empty
// paths select the embedded defaults.
type OntologyConfig struct {
	File        string `mapstructure:"file"`
	Corrections string `mapstructure:"corrections"`
	Namespace   string `mapstructure:"namespace" validate:"omitempty,uri"`
}

// DisplayConfig holds the CLI toggles.
type DisplayConfig struct {
	Verbose     bool `mapstructure:"verbose"`
	ShowSPARQL  bool `mapstructure:"show_sparql"`
	ShowContext bool `mapstructure:"show_context"`
}

// LogConfig configures the package logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error none"`
	File  string `mapstructure:"file"`
}

// StoreConfig selects where answer records are kept.
type StoreConfig struct {
	Driver string        `mapstructure:"driver" validate:"omitempty,oneof=memory file redis sqlite postgres"`
	DSN    string        `mapstructure:"dsn"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr" validate:"required"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// TracingConfig configures OpenTelemetry export. An empty endpoint keeps
// spans in-process.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// DefaultGraphs returns the configured named graphs to query.
func (c *Config) DefaultGraphs() []string {
	var graphs []string
	for _, g := range []string{c.SPARQL.OntologyGraph, c.SPARQL.InstancesGraph} {
		if g != "" {
			graphs = append(graphs, g)
		}
	}
	return graphs
}

// QueryModel returns the model for query generation.
func (c *Config) QueryModel() string {
	if c.LLM.SPARQLModel != "" {
		return c.LLM.SPARQLModel
	}
	return c.LLM.Model
}

// AnswerModel returns the model for answer generation.
func (c *Config) AnswerModel() string {
	if c.LLM.AnswerModel != "" {
		return c.LLM.AnswerModel
	}
	return c.LLM.Model
}

// SpecializedModels reports whether query and answer use different models.
func (c *Config) SpecializedModels() bool {
	return c.QueryModel() != c.AnswerModel()
}

// Print writes a human-readable summary with secrets masked.
func (c *Config) Print(w io.Writer) {
	row := func(k string, v any) { fmt.Fprintf(w, "  %-18s %v\n", k, v) }

	fmt.Fprintln(w, "LLM")
	row("backend", c.LLM.Backend)
	if c.LLM.Backend == BackendLocal {
		row("endpoint", c.LLM.Endpoint)
	}
	if c.SpecializedModels() {
		row("sparql model", c.QueryModel())
		row("answer model", c.AnswerModel())
	} else {
		row("model", c.QueryModel())
	}
	if c.LLM.APIKey != "" {
		row("api key", mask(c.LLM.APIKey))
	}

	fmt.Fprintln(w, "SPARQL")
	row("endpoint", c.SPARQL.Endpoint)
	if graphs := c.DefaultGraphs(); len(graphs) > 0 {
		row("graphs", strings.Join(graphs, ", "))
	}

	fmt.Fprintln(w, "Pipeline")
	row("language", c.Language)
	row("max retries", c.MaxRetries)
	row("timeout", c.Timeout())
	row("store", storeLabel(c.Store.Driver))
	row("log level", c.Log.Level)
	if c.Tracing.Enabled {
		row("otlp endpoint", c.Tracing.OTLPEndpoint)
	}
}

func storeLabel(driver string) string {
	if driver == StoreNone {
		return "none"
	}
	return driver
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
