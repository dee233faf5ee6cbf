package cmd

import (
	"fmt"

	"github.com/robotfw/muriprog/pkg/util"
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Erase, program, verify, and sign the device from the loaded HEX image",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !yesFlag && !util.ConfirmDanger("this will erase and reprogram the connected device") {
			printInfo("aborted\n")
			return nil
		}
		if err := ctrl.Write(); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		printInfo("write complete\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
