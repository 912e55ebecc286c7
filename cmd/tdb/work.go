package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/storage"
	"github.com/templedb/templedb/internal/types"
	"github.com/templedb/templedb/internal/workitem"
)

var (
	workCreateType     string
	workCreatePriority string
	workCreateDesc     string
	workCreateParent   string

	workListProject  string
	workListStatus   string
	workListPriority string

	workSession string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Manage work items",
}

var workCreateCmd = &cobra.Command{
	Use:   "create <slug> <title>",
	Short: "Create a work item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		svc := workitem.New(store)
		item, err := svc.Create(rootCtx, workitem.CreateOptions{
			ProjectID:   p.ID,
			Title:       args[1],
			Description: workCreateDesc,
			ItemType:    types.WorkItemType(workCreateType),
			Priority:    types.Priority(workCreatePriority),
			ParentID:    optional(workCreateParent),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(item)
			return nil
		}
		fmt.Printf("Created %s: %s [%s/%s]\n", item.ID, item.Title, item.ItemType, item.Priority)
		return nil
	},
}

var workListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.WorkItemFilter{}
		if workListProject != "" {
			p, err := store.GetProject(rootCtx, workListProject)
			if err != nil {
				return err
			}
			filter.ProjectID = &p.ID
		}
		if workListStatus != "" {
			status := types.WorkItemStatus(workListStatus)
			if !status.IsValid() {
				return fmt.Errorf("invalid status %q: %w", workListStatus, storage.ErrInvalidInput)
			}
			filter.Status = &status
		}
		priority, err := parsePriority(workListPriority)
		if err != nil {
			return err
		}
		filter.Priority = priority

		svc := workitem.New(store)
		items, err := svc.List(rootCtx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(items)
			return nil
		}
		for _, item := range items {
			session := "-"
			if item.AssignedSessionID != nil {
				session = *item.AssignedSessionID
			}
			fmt.Printf("%-10s %-12s %-9s %-38s %s\n",
				item.ID, item.Status, item.Priority, session, item.Title)
		}
		return nil
	},
}

var workShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a work item and its transition history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := workitem.New(store)
		item, err := svc.Get(rootCtx, args[0])
		if err != nil {
			return err
		}
		transitions, err := svc.Transitions(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"item": item, "transitions": transitions})
			return nil
		}
		fmt.Printf("%s: %s\n", item.ID, item.Title)
		fmt.Printf("  status: %s  priority: %s  type: %s\n", item.Status, item.Priority, item.ItemType)
		if item.Description != "" {
			fmt.Printf("  %s\n", item.Description)
		}
		if item.AssignedSessionID != nil {
			fmt.Printf("  assigned to: %s\n", *item.AssignedSessionID)
		}
		for _, tr := range transitions {
			fmt.Printf("  %s  %s -> %s\n",
				tr.CreatedAt.Format("2006-01-02 15:04"), tr.FromStatus, tr.ToStatus)
		}
		return nil
	},
}

// transitionCommand builds one state-machine verb command.
func transitionCommand(verb, short string, fn func(svc *workitem.Service, id string, session *string) (*types.WorkItem, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := workitem.New(store)
			item, err := fn(svc, args[0], optional(workSession))
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(item)
				return nil
			}
			fmt.Printf("%s is now %s\n", item.ID, item.Status)
			return nil
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func init() {
	workCreateCmd.Flags().StringVar(&workCreateType, "type", "", "Item type: task|bug|feature|chore|review (default task)")
	workCreateCmd.Flags().StringVar(&workCreatePriority, "priority", "", "Priority: critical|high|medium|low (default medium)")
	workCreateCmd.Flags().StringVarP(&workCreateDesc, "description", "d", "", "Description")
	workCreateCmd.Flags().StringVar(&workCreateParent, "parent", "", "Parent work item id")

	workListCmd.Flags().StringVar(&workListProject, "project", "", "Filter by project slug")
	workListCmd.Flags().StringVar(&workListStatus, "status", "", "Filter by status")
	workListCmd.Flags().StringVar(&workListPriority, "priority", "", "Filter by priority")

	workCmd.PersistentFlags().StringVar(&workSession, "session", "", "Acting session id for the audit trail")

	workCmd.AddCommand(
		workCreateCmd,
		workListCmd,
		workShowCmd,
		transitionCommand("start", "Move an assigned item to in_progress",
			func(svc *workitem.Service, id string, session *string) (*types.WorkItem, error) {
				return svc.Start(rootCtx, id, session)
			}),
		transitionCommand("complete", "Complete an in-progress item",
			func(svc *workitem.Service, id string, session *string) (*types.WorkItem, error) {
				return svc.Complete(rootCtx, id, session)
			}),
		transitionCommand("block", "Block an assigned or in-progress item",
			func(svc *workitem.Service, id string, session *string) (*types.WorkItem, error) {
				return svc.Block(rootCtx, id, session)
			}),
		transitionCommand("unblock", "Return a blocked item to in_progress",
			func(svc *workitem.Service, id string, session *string) (*types.WorkItem, error) {
				return svc.Unblock(rootCtx, id, session)
			}),
		transitionCommand("cancel", "Cancel a pending item",
			func(svc *workitem.Service, id string, session *string) (*types.WorkItem, error) {
				return svc.Cancel(rootCtx, id, session)
			}),
	)
	rootCmd.AddCommand(workCmd)
}
