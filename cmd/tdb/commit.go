package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/commit"
	"github.com/templedb/templedb/internal/config"
	"github.com/templedb/templedb/internal/vcs"
)

var (
	commitMessage  string
	commitAuthor   string
	commitBranch   string
	commitForce    bool
	commitStrategy string
	commitStaged   bool
)

var commitCmd = &cobra.Command{
	Use:   "commit <slug> <dir>",
	Short: "Commit workspace changes",
	Long: `Commits changes from a workspace directory.

By default the directory must be a recorded checkout; the commit engine
rescans it, detects version conflicts against other writers, and
persists all changes atomically. With --staged the commit instead
captures exactly the files staged via 'tdb stage'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		author := commitAuthor
		if author == "" {
			author = config.Author()
		}

		if commitStaged {
			p, b, err := resolveProjectBranch(args[0], commitBranch)
			if err != nil {
				return err
			}
			engine := vcs.New(store, nil)
			result, err := engine.CreateCommit(rootCtx, p, b, author, commitMessage, args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(result)
				return nil
			}
			fmt.Printf("[%s] %s: %d added, %d modified, %d deleted\n",
				result.Commit.Hash, commitMessage, result.Added, result.Modified, result.Deleted)
			return nil
		}

		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		engine := commit.New(store, nil)
		result, err := engine.Commit(rootCtx, p, args[1], commit.Options{
			Author:   author,
			Message:  commitMessage,
			Force:    commitForce,
			Strategy: commit.Strategy(commitStrategy),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("[%s] %s: %d added, %d modified, %d deleted\n",
			result.Commit.Hash, commitMessage, result.Added, result.Modified, result.Deleted)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message (required)")
	commitCmd.Flags().StringVar(&commitAuthor, "author", "", "Commit author (default: configured author)")
	commitCmd.Flags().StringVar(&commitBranch, "branch", "", "Branch name for --staged commits (default: project default)")
	commitCmd.Flags().BoolVar(&commitForce, "force", false, "Overwrite conflicting registry versions")
	commitCmd.Flags().StringVar(&commitStrategy, "strategy", "", "Conflict strategy: abort|force|rebase (default abort)")
	commitCmd.Flags().BoolVar(&commitStaged, "staged", false, "Commit the staging index instead of a checkout workspace")
	_ = commitCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(commitCmd)
}
