package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/synth"
)

const shutdownTimeout = 10 * time.Second

// errFailed reports a failed non-interactive run; the record has already
// been printed.
var errFailed = errors.New("question failed")

type rootFlags struct {
	configPath string
	question   string
	quiet      bool
	debug      bool
	lang       string
	category   string
	format     string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "kgqa",
		Short: "Ask questions about a knowledge graph in natural language",
		Long: `kgqa turns a natural-language question into a SPARQL query with a language
model, runs it against a SPARQL endpoint and phrases the answer from the rows.

Without --question it starts an interactive session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoot(cmd, f)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Path to a kgqa.yaml configuration file")
	pf.BoolVar(&f.debug, "debug", false, "Log debug output, including prompts and raw model replies")
	pf.StringVarP(&f.lang, "lang", "l", "", "Answer language: fr or en (overrides DEFAULT_LANGUAGE)")

	fl := cmd.Flags()
	fl.StringVarP(&f.question, "question", "q", "", "Ask a single question and exit")
	fl.BoolVar(&f.quiet, "quiet", false, "Print only the answer")
	fl.StringVar(&f.category, "category", "", "Result layout: general, entity_list, details, relationships or count")
	fl.StringVarP(&f.format, "format", "f", formatText, "Output format: text, json, html or markdown")

	cmd.AddCommand(
		newServeCmd(f),
		newMCPCmd(f),
		newBatchCmd(f),
		newRecordsCmd(f),
		newGraphCmd(f),
		newConfigCmd(f),
		newVersionCmd(),
	)
	return cmd
}

func runRoot(cmd *cobra.Command, f *rootFlags) error {
	if err := validFormat(f.format); err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var printer *stepPrinter
	var hooks []graph.TraceHook
	if !f.quiet && cfg.Display.Verbose && f.format == formatText {
		printer = newStepPrinter(cmd.ErrOrStderr(), cfg.Display, f.debug)
		hooks = append(hooks, printer)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{hooks: hooks, keepRows: f.format != formatText, withStore: true, withTraces: true})
	if err != nil {
		return err
	}
	defer a.Close()

	category := format.General
	if f.category != "" {
		category = format.ParseCategory(f.category)
	}

	if f.question != "" {
		rec := askOne(ctx, a, printer, pipeline.Question{Text: f.question, Category: category})
		if err := writeRecord(out, rec, f.format); err != nil {
			return err
		}
		if !rec.Success {
			return errFailed
		}
		return nil
	}

	session := &interactive{
		app:      a,
		in:       cmd.InOrStdin(),
		out:      out,
		printer:  printer,
		format:   f.format,
		category: category,
	}
	return session.run(ctx)
}

// askOne runs q and prints progress when printer is set.
func askOne(ctx context.Context, a *app, printer *stepPrinter, q pipeline.Question) *pipeline.AnswerRecord {
	if printer != nil {
		printer.begin(languageOf(q, a.pipeline.DefaultLanguage()), q.Text)
	}
	return a.ask(ctx, q)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newConfigCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			cfg.Print(cmd.OutOrStdout())
			return nil
		},
	}
}

func newGraphCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline state machine as a Mermaid diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return printMermaid(cmd.OutOrStdout(), a.pipeline)
		},
	}
}

func printMermaid(out io.Writer, p *pipeline.Pipeline) error {
	_, err := io.WriteString(out, graph.NewExporter(p.Graph()).DrawMermaid())
	return err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, errFailed) {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
	}
	return 1
}

// languageOf resolves the language a record will be answered in.
func languageOf(q pipeline.Question, fallback synth.Language) synth.Language {
	if q.Language.Valid() {
		return q.Language
	}
	return fallback
}
