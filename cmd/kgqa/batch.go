package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/synth"
)

type batchEntry struct {
	Question string `yaml:"question" json:"question"`
	Language string `yaml:"language" json:"language"`
	Category string `yaml:"category" json:"category"`
}

// readBatch reads questions from path. YAML and JSON files hold a list of
// entries (or bare strings); any other file holds one question per line,
// with blank lines and lines starting with # ignored.
func readBatch(path string) ([]pipeline.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return parseBatchList(data)
	default:
		return parseBatchLines(bytes.NewReader(data))
	}
}

func parseBatchLines(r io.Reader) ([]pipeline.Question, error) {
	var qs []pipeline.Question
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		qs = append(qs, pipeline.Question{Text: line})
	}
	return qs, sc.Err()
}

func parseBatchList(data []byte) ([]pipeline.Question, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}

	qs := make([]pipeline.Question, 0, len(nodes))
	for i, n := range nodes {
		var e batchEntry
		if n.Kind == yaml.ScalarNode {
			e.Question = n.Value
		} else if err := n.Decode(&e); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i+1, err)
		}
		e.Question = strings.TrimSpace(e.Question)
		if e.Question == "" {
			return nil, fmt.Errorf("batch entry %d: empty question", i+1)
		}

		q := pipeline.Question{Text: e.Question}
		if e.Language != "" {
			lang, err := synth.ParseLanguage(e.Language)
			if err != nil {
				return nil, fmt.Errorf("batch entry %d: %w", i+1, err)
			}
			q.Language = lang
		}
		if e.Category != "" {
			q.Category = format.ParseCategory(e.Category)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func newBatchCmd(f *rootFlags) *cobra.Command {
	var outPath string
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Answer every question of a file and print one JSON record per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := readBatch(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if concurrency <= 0 {
				concurrency = cfg.Concurrency
			}

			a, err := newApp(cmd.Context(), cfg, appOptions{withStore: true, withTraces: true})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if outPath != "" {
				file, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				out = file
			}

			start := time.Now()
			records := a.pipeline.AskAll(cmd.Context(), questions, concurrency)
			enc := json.NewEncoder(out)
			failed := 0
			for _, rec := range records {
				a.collector.ObserveRecord(rec)
				if !rec.Success {
					failed++
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d answered in %s\n",
				len(records)-failed, len(records), time.Since(start).Round(time.Millisecond))
			if failed > 0 {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write records to this file instead of stdout")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Questions answered in parallel (default from config)")
	return cmd
}
