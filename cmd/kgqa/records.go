package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/smallnest/kgqa/config"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/store"
)

func newRecordsCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List, show and delete saved answer records",
	}

	var limit int
	var onlyFailed, onlySuccess bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), f, func(s store.RecordStore) error {
				opts := store.ListOptions{Limit: limit}
				switch {
				case onlyFailed && onlySuccess:
					return errors.New("--failed and --success are exclusive")
				case onlyFailed:
					v := false
					opts.Success = &v
				case onlySuccess:
					v := true
					opts.Success = &v
				}
				records, err := s.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tSTAGE\tQUESTION")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Stage, preview(r.Question, 60))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")
	list.Flags().BoolVar(&onlyFailed, "failed", false, "Only failed records")
	list.Flags().BoolVar(&onlySuccess, "success", false, "Only successful records")

	var showFormat string
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(showFormat); err != nil {
				return err
			}
			return withStore(cmd.Context(), f, func(s store.RecordStore) error {
				env, err := s.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rec, err := pipeline.FromEnvelope(env)
				if err != nil {
					return err
				}
				return writeRecord(cmd.OutOrStdout(), rec, showFormat)
			})
		},
	}
	show.Flags().StringVarP(&showFormat, "format", "f", formatJSON, "Output format: text, json, html or markdown")

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete saved records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), f, func(s store.RecordStore) error {
				for _, id := range args {
					if err := s.Delete(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), f, func(s store.RecordStore) error {
				return s.Clear(cmd.Context())
			})
		},
	}

	cmd.AddCommand(list, show, del, clearCmd)
	return cmd
}

// withStore opens the configured record store for fn.
func withStore(ctx context.Context, f *rootFlags, fn func(store.RecordStore) error) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.StoreNone {
		return errors.New("no record store configured (set STORE_DRIVER)")
	}
	if cfg.Store.Driver == config.StoreMemory {
		return errors.New("the memory store does not outlive a process; use file, redis, sqlite or postgres")
	}
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
