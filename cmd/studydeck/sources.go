package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/sync"
)

func newSyncCmd(a *app) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import cards from every registered source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				opts := []sync.Option{sync.WithLogger(a.log)}
				if !quiet {
					opts = append(opts, sync.WithProgress(cmd.ErrOrStderr()))
				}
				report, err := sync.New(db, &a.cfg.SRS, a.cfg.ReposDir, opts...).Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%d sources (%d failed): %d cards parsed, %d added, %d removed, %d parse errors\n",
					report.Sources, report.Failed, report.Parsed, report.Inserted, report.Deleted, report.ParseErrors)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide git transfer progress")
	return cmd
}

func newSourcesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage deck sources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path-or-git-url>",
		Short: "Register a local directory or git remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				source, err := sync.AddSource(ctx, db, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "added %s source %d: %s\n", source.Type, source.ID, source.Path)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				sources, err := db.ListSources(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tLAST SCANNED\tPATH")
				for _, s := range sources {
					scanned := "never"
					if s.LastScanned != nil {
						scanned = s.LastScanned.Local().Format(time.DateTime)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Type, scanned, s.Path)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a source and its cards",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				if err := db.DeleteSource(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "removed source %d\n", id)
				return nil
			})
		},
	})

	return cmd
}
