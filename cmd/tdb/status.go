package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/types"
	"github.com/templedb/templedb/internal/workingstate"
)

var statusBranch string

var statusCmd = &cobra.Command{
	Use:   "status <slug> <dir>",
	Short: "Detect and show workspace changes against the registry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, b, err := resolveProjectBranch(args[0], statusBranch)
		if err != nil {
			return err
		}
		detector := workingstate.New(store, nil)
		result, err := detector.Detect(rootCtx, p.ID, b.ID, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		if !result.Changed() {
			fmt.Printf("Clean: %d files unmodified on %s/%s\n", result.Unmodified, p.Slug, b.Name)
			return nil
		}
		marks := map[types.WorkingFileState]string{
			types.StateAdded:    "A",
			types.StateModified: "M",
			types.StateDeleted:  "D",
		}
		for _, entry := range result.Entries {
			mark, ok := marks[entry.State]
			if !ok {
				continue
			}
			staged := " "
			if entry.Staged {
				staged = "*"
			}
			fmt.Printf("%s%s %s\n", mark, staged, entry.Path)
		}
		fmt.Printf("%d added, %d modified, %d deleted, %d unmodified\n",
			result.Added, result.Modified, result.Deleted, result.Unmodified)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusBranch, "branch", "", "Branch name (default: project default)")
	rootCmd.AddCommand(statusCmd)
}
