package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/vcs"
)

var (
	stageBranch   string
	unstageBranch string
)

var stageCmd = &cobra.Command{
	Use:   "stage <slug> [pattern...]",
	Short: "Stage changed files for the next commit",
	Long:  `Marks changed files matching the glob patterns for the next staged commit. With no patterns, every changed file is staged.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, b, err := resolveProjectBranch(args[0], stageBranch)
		if err != nil {
			return err
		}
		engine := vcs.New(store, nil)
		n, err := engine.Stage(rootCtx, p.ID, b.ID, args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Staged %d file(s) on %s/%s\n", n, p.Slug, b.Name)
		return nil
	},
}

var unstageCmd = &cobra.Command{
	Use:   "unstage <slug> [pattern...]",
	Short: "Remove files from the staging index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, b, err := resolveProjectBranch(args[0], unstageBranch)
		if err != nil {
			return err
		}
		engine := vcs.New(store, nil)
		n, err := engine.Unstage(rootCtx, p.ID, b.ID, args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Unstaged %d file(s) on %s/%s\n", n, p.Slug, b.Name)
		return nil
	},
}

func init() {
	stageCmd.Flags().StringVar(&stageBranch, "branch", "", "Branch name (default: project default)")
	unstageCmd.Flags().StringVar(&unstageBranch, "branch", "", "Branch name (default: project default)")
	rootCmd.AddCommand(stageCmd, unstageCmd)
}
