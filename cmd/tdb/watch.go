package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/workingstate"
)

var (
	watchBranch   string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <slug> <dir>",
	Short: "Continuously re-detect workspace changes",
	Long:  `Watches a workspace directory and re-runs change detection on every edit, debounced. Runs until interrupted.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, b, err := resolveProjectBranch(args[0], watchBranch)
		if err != nil {
			return err
		}
		detector := workingstate.New(store, nil)
		w, err := workingstate.Watch(rootCtx, detector, p.ID, b.ID, args[1], watchDebounce)
		if err != nil {
			return err
		}
		defer w.Close()

		fmt.Printf("Watching %s for %s/%s (Ctrl-C to stop)\n", args[1], p.Slug, b.Name)
		for {
			select {
			case result, ok := <-w.Results():
				if !ok {
					return nil
				}
				if jsonOutput {
					outputJSON(result)
					continue
				}
				fmt.Printf("%s  %d added, %d modified, %d deleted\n",
					time.Now().Format("15:04:05"), result.Added, result.Modified, result.Deleted)
			case err := <-w.Errors():
				fmt.Printf("watch error: %v\n", err)
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchBranch, "branch", "", "Branch name (default: project default)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before re-detecting")
	rootCmd.AddCommand(watchCmd)
}
