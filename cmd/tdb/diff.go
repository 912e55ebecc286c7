package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/vcs"
)

var (
	diffFrom string
	diffTo   string
)

var diffCmd = &cobra.Command{
	Use:   "diff <slug> <path>",
	Short: "Show the unified diff of one file between two revisions",
	Long:  `Diffs a file between two commits. An empty --from or --to side resolves to the registry's current content.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		engine := vcs.New(store, nil)
		out, err := engine.Diff(rootCtx, p.ID, args[1], diffFrom, diffTo)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffFrom, "from", "", "Old commit hash (default: current)")
	diffCmd.Flags().StringVar(&diffTo, "to", "", "New commit hash (default: current)")
	rootCmd.AddCommand(diffCmd)
}
