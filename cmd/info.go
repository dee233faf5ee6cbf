package cmd

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the connection state and cached firmware info",
	RunE: func(cmd *cobra.Command, args []string) error {
		printInfo("connection: %s\n", ctrl.State())
		info := ctrl.FirmwareInfo()
		printInfo("bootloader version:  0x%04X\n", info.BootloaderVersion)
		printInfo("application version: 0x%04X\n", info.ApplicationVersion)
		printInfo("signature address:   0x%08X\n", info.SignatureAddress)
		printInfo("signature value:     0x%04X\n", info.SignatureValue)
		printInfo("erase page size:     0x%08X\n", info.ErasePageSize)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
