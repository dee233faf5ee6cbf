package cmd

import (
	"fmt"

	"github.com/robotfw/muriprog/pkg/util"
	"github.com/spf13/cobra"
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Bulk-erase the connected device",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !yesFlag && !util.ConfirmDanger("this will erase the connected device's flash") {
			printInfo("aborted\n")
			return nil
		}
		if err := ctrl.Erase(); err != nil {
			return fmt.Errorf("erase failed: %w", err)
		}
		printInfo("erase complete\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}
