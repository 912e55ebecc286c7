package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete content blobs no version chain references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := store.SweepUnreferencedBlobs(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int64{"swept": n})
			return nil
		}
		fmt.Printf("Swept %d unreferenced blob(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
