package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/checkout"
)

var (
	checkoutBranch string
	checkoutForce  bool
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <slug> <dir>",
	Short: "Materialize the project's current files into a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, b, err := resolveProjectBranch(args[0], checkoutBranch)
		if err != nil {
			return err
		}
		mgr := checkout.New(store)
		result, err := mgr.Checkout(rootCtx, p, b, args[1], checkoutForce)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("Checked out %s/%s: %d files (%d bytes) to %s\n",
			p.Slug, b.Name, result.FilesWritten, result.BytesWritten, result.Checkout.Path)
		return nil
	},
}

func init() {
	checkoutCmd.Flags().StringVar(&checkoutBranch, "branch", "", "Branch name (default: project default)")
	checkoutCmd.Flags().BoolVar(&checkoutForce, "force", false, "Allow checkout into a non-empty directory")
	rootCmd.AddCommand(checkoutCmd)
}
