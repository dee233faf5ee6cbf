package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Watch connection state transitions until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		printInfo("watching for connection state changes (ctrl-C to stop)\n")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
