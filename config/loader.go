package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvFiles are loaded before the environment is read, first match wins per
// variable. Missing files are ignored and real environment variables are
// never overridden.
var EnvFiles = []string{".env.local", ".env"}

// envBindings maps configuration keys to the environment variables that
// override them.
var envBindings = map[string][]string{
	"llm.backend":            {"LLM_BACKEND"},
	"llm.use_local":          {"USE_LOCAL_LLM"},
	"llm.endpoint":           {"LOCAL_LLM_ENDPOINT"},
	"llm.model":              {"LOCAL_LLM_MODEL"},
	"llm.api_key":            {"OPENAI_API_KEY"},
	"llm.openai_model":       {"OPENAI_MODEL"},
	"llm.sparql_model":       {"SPARQL_LLM_MODEL"},
	"llm.answer_model":       {"ANSWER_LLM_MODEL"},
	"llm.max_tokens":         {"LLM_MAX_TOKENS"},
	"sparql.endpoint":        {"GRAPHDB_ENDPOINT", "SPARQL_ENDPOINT"},
	"sparql.ontology_graph":  {"ONTOLOGY_GRAPH"},
	"sparql.instances_graph": {"INSTANCES_GRAPH"},
	"sparql.username":        {"SPARQL_USERNAME"},
	"sparql.password":        {"SPARQL_PASSWORD"},
	"ontology.file":          {"ONTOLOGY_FILE"},
	"ontology.corrections":   {"CORRECTIONS_FILE"},
	"ontology.namespace":     {"ONTOLOGY_NAMESPACE"},
	"display.verbose":        {"VERBOSE"},
	"display.show_sparql":    {"SHOW_SPARQL"},
	"display.show_context":   {"SHOW_CONTEXT"},
	"log.level":              {"LOG_LEVEL"},
	"log.file":               {"LOG_FILE"},
	"store.driver":           {"STORE_DRIVER"},
	"store.dsn":              {"STORE_DSN"},
	"store.ttl":              {"STORE_TTL"},
	"server.addr":            {"KGQA_ADDR"},
	"server.cors_origins":    {"CORS_ORIGINS"},
	"tracing.enabled":        {"OTEL_ENABLED"},
	"tracing.otlp_endpoint":  {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"tracing.service_name":   {"OTEL_SERVICE_NAME"},
	"tracing.sample_rate":    {"OTEL_SAMPLE_RATE"},
	"language":               {"DEFAULT_LANGUAGE"},
	"max_retries":            {"MAX_RETRIES"},
	"request_timeout":        {"REQUEST_TIMEOUT"},
	"concurrency":            {"KGQA_CONCURRENCY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.use_local", true)
	v.SetDefault("llm.endpoint", "http://localhost:1234/v1")
	v.SetDefault("llm.openai_model", "gpt-4")
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("sparql.endpoint", "http://localhost:7200/repositories/equestrian-kg")
	v.SetDefault("display.verbose", true)
	v.SetDefault("display.show_sparql", true)
	v.SetDefault("display.show_context", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", StoreNone)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("tracing.service_name", "kgqa")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("language", "fr")
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", 30)
	v.SetDefault("concurrency", 4)
}

// DefaultLocalModel is used with the local backend when no model is configured.
const DefaultLocalModel = "Qwen2.5-Coder-14B-Instruct"

// LoadEnvFiles loads the dotenv files from dir.
func LoadEnvFiles(dir string) {
	for _, name := range EnvFiles {
		_ = godotenv.Load(filepath.Join(dir, name))
	}
}

// Load reads the configuration. path names an optional YAML file; when empty,
// kgqa.yaml is looked up in the working directory and ./configs. Environment
// variables override file values, which override defaults.
func Load(path string) (*Config, error) {
	LoadEnvFiles(".")
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("kgqa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LLM.Backend = strings.ToLower(strings.TrimSpace(c.LLM.Backend))
	if c.LLM.Backend == "" {
		c.LLM.Backend = BackendLocal
		if !c.LLM.UseLocal {
			c.LLM.Backend = BackendOpenAI
		}
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLocalModel
		if c.LLM.Backend == BackendOpenAI {
			c.LLM.Model = c.LLM.OpenAIModel
		}
	}
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if len(c.Server.CORSOrigins) == 1 && strings.Contains(c.Server.CORSOrigins[0], ",") {
		c.Server.CORSOrigins = strings.Split(c.Server.CORSOrigins[0], ",")
	}
	for i, o := range c.Server.CORSOrigins {
		c.Server.CORSOrigins[i] = strings.TrimSpace(o)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	switch c.LLM.Backend {
	case BackendLocal:
		if c.LLM.Endpoint == "" {
			return errors.New("llm.endpoint (LOCAL_LLM_ENDPOINT) is required for the local backend")
		}
	case BackendOpenAI:
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key (OPENAI_API_KEY) is required for the openai backend")
		}
	}

	switch c.Store.Driver {
	case StoreNone, StoreMemory:
	default:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn (STORE_DSN) is required for the %s store", c.Store.Driver)
		}
	}
	return nil
}
