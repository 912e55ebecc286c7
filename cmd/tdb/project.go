package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/project"
)

var (
	initName   string
	initBranch string
)

var initCmd = &cobra.Command{
	Use:   "init <slug>",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := project.New(store, nil)
		p, err := svc.Create(rootCtx, args[0], initName, initBranch)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(p)
			return nil
		}
		fmt.Printf("Created project %s (default branch %s)\n", p.Slug, p.DefaultBranch)
		return nil
	},
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := store.ListProjects(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(projects)
			return nil
		}
		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%-20s %-30s %s\n", p.Slug, p.Name, p.DefaultBranch)
		}
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a project and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := project.New(store, nil)
		if err := svc.Delete(rootCtx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted project %s\n", args[0])
		return nil
	},
}

var projectStatsCmd = &cobra.Command{
	Use:   "stats <slug>",
	Short: "Show project statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		stats, err := store.GetProjectStatistics(rootCtx, p.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(stats)
			return nil
		}
		fmt.Printf("%s: %d files (%d active), %d commits on %d branches, %d work items, %d bytes\n",
			p.Slug, stats.Files, stats.ActiveFiles, stats.Commits, stats.Branches,
			stats.WorkItems, stats.TotalBytes)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "Project display name (default: slug)")
	initCmd.Flags().StringVar(&initBranch, "branch", "", "Default branch name (default: configured default-branch)")
	projectCmd.AddCommand(projectListCmd, projectDeleteCmd, projectStatsCmd)
	rootCmd.AddCommand(initCmd, projectCmd)
}
