package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studydeck/internal/diff"
	"github.com/conorfennell/studydeck/internal/render"
)

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <fileA> <fileB>",
		Short: "Compare two text files line by line",
		Args:  cobra.ExactArgs(2),
		// Needs no configuration or database.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading old file: %w", err)
			}
			b, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading new file: %w", err)
			}
			return render.NewPrinter(cmd.OutOrStdout()).Diff(diff.Compute(string(a), string(b)))
		},
	}
}
