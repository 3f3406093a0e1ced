package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/smallnest/kgqa/answer"
	"github.com/smallnest/kgqa/config"
	"github.com/smallnest/kgqa/correct"
	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/llms/chat"
	"github.com/smallnest/kgqa/log"
	"github.com/smallnest/kgqa/metrics"
	"github.com/smallnest/kgqa/ontology"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/sparql"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/store/file"
	"github.com/smallnest/kgqa/store/memory"
	"github.com/smallnest/kgqa/store/postgres"
	"github.com/smallnest/kgqa/store/redis"
	"github.com/smallnest/kgqa/store/sqlite"
	"github.com/smallnest/kgqa/synth"
	"github.com/smallnest/kgqa/tracing"
)

// app holds everything built from the configuration.
type app struct {
	cfg       *config.Config
	logger    log.Logger
	desc      *ontology.Descriptor
	sparql    *sparql.Client
	pipeline  *pipeline.Pipeline
	store     store.RecordStore
	registry  *prometheus.Registry
	collector *metrics.Collector
	tp        *sdktrace.TracerProvider

	closers []io.Closer
}

type appOptions struct {
	hooks      []graph.TraceHook
	keepRows   bool
	withStore  bool
	withTraces bool
}

// loadConfig reads the configuration and applies the command-line overrides.
func loadConfig(f *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	if f.lang != "" {
		lang, err := synth.ParseLanguage(f.lang)
		if err != nil {
			return nil, err
		}
		cfg.Language = lang.String()
	}
	return cfg, nil
}

// setupLogger installs the default logger for cfg.
func setupLogger(cfg *config.Config) (log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.File == "" {
		l := log.NewWriter(os.Stderr, level)
		log.SetDefaultLogger(l)
		return l, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := log.NewWriter(f, level)
	log.SetDefaultLogger(l)
	return l, f, nil
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logger, logFile, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	if logFile != nil {
		a.closers = append(a.closers, logFile)
	}

	a.desc = ontology.Default()
	if cfg.Ontology.File != "" {
		if a.desc, err = ontology.Load(cfg.Ontology.File); err != nil {
			return nil, err
		}
	}
	if ns := cfg.Ontology.Namespace; ns != "" && ns != a.desc.Namespace {
		logger.Warn("configured namespace %s differs from the ontology namespace %s; queries use the ontology namespace", ns, a.desc.Namespace)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.collector = metrics.New(a.registry)

	httpClient := &http.Client{}
	if opts.withTraces {
		a.tp, err = tracing.NewProvider(ctx, tracing.Options{
			Enabled:        cfg.Tracing.Enabled,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			SampleRate:     cfg.Tracing.SampleRate,
		})
		if err != nil {
			return nil, err
		}
		httpClient = tracing.HTTPClient(httpClient, a.tp)
	}

	retry := graph.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries

	a.sparql, err = sparql.New(cfg.SPARQL.Endpoint,
		sparql.WithHTTPClient(httpClient),
		sparql.WithTimeout(cfg.Timeout()),
		sparql.WithRetry(retry),
		sparql.WithDefaultGraphs(cfg.DefaultGraphs()...),
		sparql.WithBasicAuth(cfg.SPARQL.Username, cfg.SPARQL.Password),
		sparql.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	model, err := chat.NewModel(chat.BackendConfig{
		Kind:       cfg.LLM.Backend,
		BaseURL:    backendURL(cfg),
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	client, err := chat.New(model,
		chat.WithDefaultModel(cfg.LLM.Model),
		chat.WithTimeout(cfg.Timeout()),
		chat.WithRetry(retry),
		chat.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	queryProfile := chat.QueryProfile(cfg.QueryModel())
	answerProfile := chat.AnswerProfile(cfg.AnswerModel())
	if cfg.LLM.MaxTokens > 0 {
		answerProfile.MaxTokens = cfg.LLM.MaxTokens
	}

	s, err := synth.New(a.desc, client, synth.WithProfile(queryProfile), synth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	ans, err := answer.New(client,
		answer.WithProfile(answerProfile),
		answer.WithHints(a.desc.AnswerHints...),
		answer.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	lang, err := synth.ParseLanguage(cfg.Language)
	if err != nil {
		return nil, err
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithDefaultLanguage(lang),
		pipeline.WithRawResults(opts.keepRows),
		pipeline.WithLogger(logger),
	}
	if cfg.Ontology.Corrections != "" {
		generic, schema, err := correct.LoadTables(cfg.Ontology.Corrections)
		if err != nil {
			return nil, err
		}
		c, err := correct.New(generic, schema, correct.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		pipeOpts = append(pipeOpts, pipeline.WithCorrector(c))
	}
	if opts.withStore {
		if a.store, err = openStore(ctx, cfg.Store); err != nil {
			return nil, err
		}
		if a.store != nil {
			a.closers = append(a.closers, a.store)
			pipeOpts = append(pipeOpts, pipeline.WithStore(a.store))
		}
	}

	hooks := append([]graph.TraceHook{a.collector}, opts.hooks...)
	if a.tp != nil {
		hooks = append(hooks, tracing.NewHook(a.tp))
	}
	pipeOpts = append(pipeOpts, pipeline.WithTracer(graph.NewTracer(hooks...)))

	a.pipeline, err = pipeline.New(s, a.sparql, ans, pipeOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func backendURL(cfg *config.Config) string {
	if cfg.LLM.Backend == config.BackendLocal {
		return cfg.LLM.Endpoint
	}
	return ""
}

// ask runs one question and feeds the metrics collector.
func (a *app) ask(ctx context.Context, q pipeline.Question) *pipeline.AnswerRecord {
	rec := a.pipeline.Ask(ctx, q)
	a.collector.ObserveRecord(rec)
	return rec
}

// Close releases the store, the log file and flushes the tracer provider.
func (a *app) Close() error {
	var errs []error
	if a.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.tp.Shutdown(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore opens the record store selected by cfg. It returns nil when
// persistence is disabled.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.RecordStore, error) {
	switch cfg.Driver {
	case config.StoreNone:
		return nil, nil
	case config.StoreMemory:
		return memory.NewMemoryRecordStore(), nil
	case config.StoreFile:
		return file.NewFileRecordStore(cfg.DSN)
	case config.StoreRedis:
		return redis.NewRedisRecordStoreFromURL(cfg.DSN, "", cfg.TTL)
	case config.StoreSqlite:
		return sqlite.NewSqliteRecordStore(sqlite.SqliteOptions{Path: cfg.DSN})
	case config.StorePostgres:
		return postgres.NewPostgresRecordStore(ctx, postgres.PostgresOptions{ConnString: cfg.DSN})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
