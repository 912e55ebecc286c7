package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/coordinator"
	"github.com/templedb/templedb/internal/storage"
)

var (
	convoyDesc       string
	convoyAutoAssign bool
)

var convoyCmd = &cobra.Command{
	Use:   "convoy",
	Short: "Manage convoys (ordered work item bundles)",
}

var convoyCreateCmd = &cobra.Command{
	Use:   "create <slug> <name> <item-id>...",
	Short: "Create a convoy from existing work items",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		coord := coordinator.New(store)
		convoy, err := coord.Convoy(rootCtx, p.ID, args[1], convoyDesc, args[2:])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(convoy)
			return nil
		}
		fmt.Printf("Created convoy %d (%s) with %d item(s)\n", convoy.ID, convoy.Name, len(args)-2)
		return nil
	},
}

var convoyStartCmd = &cobra.Command{
	Use:   "start <convoy-id>",
	Short: "Activate a convoy, optionally auto-assigning its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid convoy id %q: %w", args[0], storage.ErrInvalidInput)
		}
		coord := coordinator.New(store)
		assigned, err := coord.StartConvoy(rootCtx, id, convoyAutoAssign)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"assigned": assigned})
			return nil
		}
		fmt.Printf("Convoy %d active, %d item(s) assigned\n", id, assigned)
		return nil
	},
}

func init() {
	convoyCreateCmd.Flags().StringVarP(&convoyDesc, "description", "d", "", "Convoy description")
	convoyStartCmd.Flags().BoolVar(&convoyAutoAssign, "assign", false, "Auto-assign still-pending items least-busy-first")
	convoyCmd.AddCommand(convoyCreateCmd, convoyStartCmd)
	rootCmd.AddCommand(convoyCmd)
}
