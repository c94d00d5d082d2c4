package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studydeck/internal/config"
	"github.com/conorfennell/studydeck/internal/storage"
)

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg *config.Config
	log *slog.Logger
	out io.Writer
}

func (a *app) openDB() (*storage.DB, error) {
	db, err := storage.Open(a.cfg.DB)
	if err != nil {
		return nil, err
	}
	a.log.Debug("database opened", "path", a.cfg.DB)
	return db, nil
}

// withDB opens the database for the duration of fn.
func (a *app) withDB(ctx context.Context, fn func(ctx context.Context, db *storage.DB) error) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "studydeck",
		Short:         "Personal flashcards and versioned notes",
		Long:          "studydeck imports markdown flashcard decks, schedules reviews with spaced repetition and keeps versioned notes you can diff.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{
				Flags:  cmd.Flags(),
				DotEnv: []string{".env", filepath.Join(config.DataDir(), ".env")},
			})
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			a.out = cmd.OutOrStdout()
			slog.SetDefault(a.log)
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(a),
		newSyncCmd(a),
		newSourcesCmd(a),
		newDueCmd(a),
		newReviewCmd(a),
		newDiffCmd(),
		newDocsCmd(a),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studydeck %s (commit: %s)\n", version, commit)
		},
	}
}
