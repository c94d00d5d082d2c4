package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/history"
	"github.com/conorfennell/studydeck/internal/render"
	"github.com/conorfennell/studydeck/internal/storage"
)

func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Keep versioned notes",
	}
	cmd.AddCommand(newDocsSaveCmd(a), newDocsListCmd(a), newDocsHistoryCmd(a))
	return cmd
}

func newDocsSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <title> <file>",
		Short: "Save a file as the next version of the document with this title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := args[0]
			body, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				svc := history.New(db, time.Now)
				doc, err := findByTitle(ctx, svc, title)
				if errors.Is(err, storage.ErrNotFound) {
					doc, _, err := svc.Create(ctx, title, string(body))
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "created %q (%s) at version 1\n", doc.Title, doc.ID)
					return nil
				}
				if err != nil {
					return err
				}

				v, created, err := svc.Save(ctx, doc.ID, string(body))
				if err != nil {
					return err
				}
				if !created {
					fmt.Fprintf(a.out, "%q unchanged at version %d\n", doc.Title, v.Number)
					return nil
				}
				cmp, err := svc.Compare(ctx, doc.ID, v.Number-1, v.Number)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "saved %q version %d: %s\n", doc.Title, v.Number, render.Summary(cmp.Counts))
				return nil
			})
		},
	}
}

// findByTitle returns the most recently updated document with this title.
func findByTitle(ctx context.Context, svc *history.Service, title string) (domain.Document, error) {
	docs, err := svc.Documents(ctx)
	if err != nil {
		return domain.Document{}, err
	}
	for _, d := range docs {
		if d.Title == title {
			return d, nil
		}
	}
	return domain.Document{}, storage.ErrNotFound
}

func newDocsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				docs, err := history.New(db, time.Now).Documents(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUPDATED\tTITLE")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.UpdatedAt.Local().Format(time.DateTime), d.Title)
				}
				return tw.Flush()
			})
		},
	}
}

func newDocsHistoryCmd(a *app) *cobra.Command {
	var from, to int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List a document's versions, or diff two of them",
		Long:  "Without --to, list every version. With --to, print the diff from --from (default: the version before) to --to (0 for the latest).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q: %w", args[0], err)
			}
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				svc := history.New(db, time.Now)
				if cmd.Flags().Changed("to") {
					cmp, err := svc.Compare(ctx, id, from, to)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "version %d -> %d\n", cmp.From, cmp.To)
					return render.NewPrinter(a.out).Diff(cmp.Lines)
				}

				versions, err := svc.Versions(ctx, id)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSAVED\tCHANGES")
				prev := ""
				for _, v := range versions {
					changes := "initial"
					if v.Number > 1 {
						changes = render.Summary(history.CompareText(prev, v.Body).Counts)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", v.Number, v.CreatedAt.Local().Format(time.DateTime), changes)
					prev = v.Body
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "base version (default: the one before --to)")
	cmd.Flags().IntVar(&to, "to", 0, "target version (0 for the latest)")
	return cmd
}
