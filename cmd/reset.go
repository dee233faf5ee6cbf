package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the device back into its application image",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ctrl.Reset(); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		printInfo("reset sent\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
