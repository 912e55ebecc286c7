package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/coordinator"
)

var (
	assignSession string
	assignAuto    bool
)

var assignCmd = &cobra.Command{
	Use:   "assign <item-id>",
	Short: "Assign a pending work item to an agent session",
	Long:  `Assigns a pending work item to the given session, or with --auto to the least busy active agent accepting work. The agent is notified through its mailbox.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := coordinator.New(store)
		item, err := coord.Assign(rootCtx, args[0], assignSession, assignAuto)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(item)
			return nil
		}
		fmt.Printf("Assigned %s to %s\n", item.ID, *item.AssignedSessionID)
		return nil
	},
}

func init() {
	assignCmd.Flags().StringVar(&assignSession, "session", "", "Target session id")
	assignCmd.Flags().BoolVar(&assignAuto, "auto", false, "Auto-select the least busy agent")
	rootCmd.AddCommand(assignCmd)
}
