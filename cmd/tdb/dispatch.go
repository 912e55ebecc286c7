package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/coordinator"
)

var (
	dispatchProject  string
	dispatchPriority string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Assign pending work items to agents in priority order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var projectID *int64
		if dispatchProject != "" {
			p, err := store.GetProject(rootCtx, dispatchProject)
			if err != nil {
				return err
			}
			projectID = &p.ID
		}
		priority, err := parsePriority(dispatchPriority)
		if err != nil {
			return err
		}

		coord := coordinator.New(store)
		n, err := coord.DispatchPending(rootCtx, projectID, priority)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"dispatched": n})
			return nil
		}
		fmt.Printf("Dispatched %d work item(s)\n", n)
		return nil
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchProject, "project", "", "Limit to one project slug")
	dispatchCmd.Flags().StringVar(&dispatchPriority, "priority", "", "Only dispatch this priority")
	rootCmd.AddCommand(dispatchCmd)
}
