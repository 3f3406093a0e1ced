package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	mcpadapter "github.com/smallnest/kgqa/adapter/mcp"
	"github.com/smallnest/kgqa/server"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var addr string
	var withMCP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{keepRows: true, withStore: true, withTraces: true})
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []server.Option{
				server.WithPinger(a.sparql),
				server.WithMetrics(a.collector, a.registry),
				server.WithCORSOrigins(cfg.Server.CORSOrigins...),
				// Three external calls per question, each retried.
				server.WithRequestTimeout(time.Duration(3*cfg.MaxRetries) * cfg.Timeout()),
				server.WithLogger(a.logger),
			}
			if a.store != nil {
				opts = append(opts, server.WithStore(a.store))
			}
			if a.tp != nil {
				opts = append(opts, server.WithTracerProvider(a.tp))
			}
			if withMCP {
				h, err := mcpHandler(a)
				if err != nil {
					return err
				}
				opts = append(opts, server.WithMCP(h))
			}

			srv := server.New(a.pipeline, opts...)
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides KGQA_ADDR)")
	cmd.Flags().BoolVar(&withMCP, "mcp", true, "Mount the MCP streamable HTTP endpoint on /mcp")
	return cmd
}

func newMCPCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			adapter, err := newMCPAdapter(a)
			if err != nil {
				return err
			}
			if err := adapter.RunStdio(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newMCPAdapter(a *app) (*mcpadapter.Adapter, error) {
	opts := []mcpadapter.Option{
		mcpadapter.WithOntology(a.desc),
		mcpadapter.WithMetrics(a.collector),
		mcpadapter.WithVersion(version),
		mcpadapter.WithLogger(a.logger),
	}
	if a.store != nil {
		opts = append(opts, mcpadapter.WithStore(a.store))
	}
	return mcpadapter.New(a.pipeline, opts...)
}

func mcpHandler(a *app) (http.Handler, error) {
	adapter, err := newMCPAdapter(a)
	if err != nil {
		return nil, err
	}
	return adapter.HTTPHandler(), nil
}
