package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/project"
)

var importTreeCmd = &cobra.Command{
	Use:   "import-tree <slug> <dir>",
	Short: "Import a source tree as the project's initial file set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := store.GetProject(rootCtx, args[0])
		if err != nil {
			return err
		}
		svc := project.New(store, nil)
		result, err := svc.ImportTree(rootCtx, p, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("Imported %d files (%d bytes) into %s\n", result.Files, result.TotalBytes, p.Slug)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importTreeCmd)
}
