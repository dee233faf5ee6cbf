package cmd

import (
	"fmt"

	"github.com/robotfw/muriprog/pkg/util"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <file.hex>",
	Short: "Parse an Intel HEX file into the session's image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := ctrl.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		printInfo("%s: %s\n", args[0], outcome)

		if image, ok := ctrl.HexProgramImage(); ok {
			printInfo("program checksum: 0x%08X\n", util.LoadChecksum(image))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
