package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studydeck/internal/render"
	"github.com/conorfennell/studydeck/internal/storage"
	"github.com/conorfennell/studydeck/internal/study"
)

var errAmbiguousID = errors.New("ambiguous card id")

func newDueCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show deck statistics and the cards due for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				svc := study.New(db, &a.cfg.SRS, time.Now, a.log)
				stats, err := svc.Stats(ctx)
				if err != nil {
					return err
				}
				due, err := svc.Due(ctx)
				if err != nil {
					return err
				}

				p := render.NewPrinter(a.out)
				if err := p.Stats(stats); err != nil {
					return err
				}
				if limit > 0 && len(due) > limit {
					due = due[:limit]
				}
				for _, c := range due {
					fmt.Fprintln(a.out)
					if err := p.Card(c, svc.Now()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "show at most this many cards (0 for all)")
	return cmd
}

func newReviewCmd(a *app) *cobra.Command {
	var correct, incorrect bool
	cmd := &cobra.Command{
		Use:   "review <card-id>",
		Short: "Record a review outcome for a card",
		Long:  "Record whether you answered a card correctly. The card id may be any unique prefix, as printed by due.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				id, err := resolveCardID(ctx, db, args[0])
				if err != nil {
					return err
				}
				svc := study.New(db, &a.cfg.SRS, time.Now, a.log)
				card, err := svc.Answer(ctx, id, correct)
				if err != nil {
					return err
				}
				return render.NewPrinter(a.out).Card(card, svc.Now())
			})
		},
	}
	cmd.Flags().BoolVar(&correct, "correct", false, "the answer was right")
	cmd.Flags().BoolVar(&incorrect, "incorrect", false, "the answer was wrong")
	cmd.MarkFlagsMutuallyExclusive("correct", "incorrect")
	cmd.MarkFlagsOneRequired("correct", "incorrect")
	return cmd
}

// resolveCardID expands a unique prefix to a full card id.
func resolveCardID(ctx context.Context, db *storage.DB, prefix string) (string, error) {
	if ok, err := db.CardExists(ctx, prefix); err != nil || ok {
		return prefix, err
	}
	cards, err := db.ListCards(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, c := range cards {
		if !strings.HasPrefix(c.ID, prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %q", errAmbiguousID, prefix)
		}
		match = c.ID
	}
	if match == "" {
		return "", fmt.Errorf("card %q: %w", prefix, storage.ErrNotFound)
	}
	return match, nil
}
