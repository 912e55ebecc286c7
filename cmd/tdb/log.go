package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/vcs"
)

var (
	logBranch string
	logLimit  int
)

var logCmd = &cobra.Command{
	Use:   "log <slug>",
	Short: "Show commit history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		engine := vcs.New(store, nil)
		commits, err := engine.History(rootCtx, p.ID, logBranch, logLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(commits)
			return nil
		}
		for _, c := range commits {
			fmt.Printf("%s  %s  %-12s %s\n",
				c.Hash, c.CreatedAt.Format("2006-01-02 15:04"), c.Author, c.Message)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logBranch, "branch", "", "Limit to one branch")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Maximum commits to show (0 = all)")
	rootCmd.AddCommand(logCmd)
}
