package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/coordinator"
)

var (
	agentsProject   string
	registerProject string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show agent sessions and coordination metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var projectID *int64
		if agentsProject != "" {
			p, err := store.GetProject(rootCtx, agentsProject)
			if err != nil {
				return err
			}
			projectID = &p.ID
		}
		coord := coordinator.New(store)
		workloads, err := coord.AvailableAgents(rootCtx, projectID)
		if err != nil {
			return err
		}
		metrics, err := coord.Metrics(rootCtx, projectID)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"agents": workloads, "metrics": metrics})
			return nil
		}
		for _, w := range workloads {
			accepting := " "
			if w.Session.AcceptingWork {
				accepting = "+"
			}
			fmt.Printf("%s%-38s %-12s %-8s %d active, %d unread\n",
				accepting, w.Session.ID, w.Session.AgentName, w.Session.Status,
				w.ActiveWorkCount, w.UnreadMessages)
		}
		fmt.Printf("%d active agents, %d busy, utilization %.0f%%\n",
			metrics.ActiveAgents, metrics.BusyAgents, metrics.AgentUtilization*100)
		return nil
	},
}

var agentsRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a new agent session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var projectID *int64
		if registerProject != "" {
			p, err := store.GetProject(rootCtx, registerProject)
			if err != nil {
				return err
			}
			projectID = &p.ID
		}
		coord := coordinator.New(store)
		session, err := coord.RegisterAgent(rootCtx, projectID, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(session)
			return nil
		}
		fmt.Printf("Registered %s as %s\n", session.AgentName, session.ID)
		return nil
	},
}

var agentsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End an agent session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.EndSession(rootCtx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Ended session %s\n", args[0])
		return nil
	},
}

func init() {
	agentsCmd.Flags().StringVar(&agentsProject, "project", "", "Limit to one project slug")
	agentsRegisterCmd.Flags().StringVar(&registerProject, "project", "", "Scope the session to a project")
	agentsCmd.AddCommand(agentsRegisterCmd, agentsEndCmd)
	rootCmd.AddCommand(agentsCmd)
}
