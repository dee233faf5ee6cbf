// Package cmd implements all CLI commands for muriprog.
package cmd

import (
	"fmt"
	"os"

	"github.com/robotfw/muriprog/pkg/config"
	"github.com/robotfw/muriprog/pkg/hidproto"
	"github.com/robotfw/muriprog/pkg/hidtransport"
	"github.com/robotfw/muriprog/pkg/memmap"
	"github.com/robotfw/muriprog/pkg/pipeline"
	"github.com/robotfw/muriprog/pkg/session"
	"github.com/spf13/cobra"
)

var (
	cfg  *config.Config
	ctrl *session.Controller

	vidFlag         uint16
	pidFlag         uint16
	writeFlashFlag  bool
	writeEEPROMFlag bool
	quietFlag       bool
	yesFlag         bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "muriprog",
	Short: "muriprog - program a PIC bootloader device over USB HID",
	Long: `muriprog drives a vendor USB HID bootloader: it loads an Intel HEX
image, then erases, programs, verifies, and signs the target device's
flash and EEPROM memory. Configuration memory is not written.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		vid := cfg.VendorID
		if vidFlag != 0 {
			vid = vidFlag
		}
		pid := cfg.ProductID
		if pidFlag != 0 {
			pid = pidFlag
		}

		dev := hidtransport.NewUSBDevice(vid, pid)
		client := hidproto.NewClient(dev).WithBudgets(cfg.SendRetryBudget, cfg.GetRetryBudget, cfg.SyncWait())

		opts := pipeline.Options{WriteFlash: cfg.WriteFlash, WriteEEPROM: cfg.WriteEEPROM}
		if cmd.Flags().Changed("write-flash") {
			opts.WriteFlash = writeFlashFlag
		}
		if cmd.Flags().Changed("write-eeprom") {
			opts.WriteEEPROM = writeEEPROMFlag
		}

		ctrl = session.New(client, memmap.NewDeviceDescriptorMap(), opts)
		ctrl.SetPollInterval(cfg.PollInterval())
		ctrl.Start()
		go logEvents(ctrl)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if ctrl != nil {
			ctrl.Stop()
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called by main.main() exactly once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Uint16Var(&vidFlag, "vid", 0, "USB vendor ID (overrides config)")
	rootCmd.PersistentFlags().Uint16Var(&pidFlag, "pid", 0, "USB product ID (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&writeFlashFlag, "write-flash", true, "include PROGRAM flash in write/verify")
	rootCmd.PersistentFlags().BoolVar(&writeEEPROMFlag, "write-eeprom", false, "include EEPROM in write/verify")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress informational output")
	rootCmd.PersistentFlags().BoolVar(&yesFlag, "yes", false, "skip confirmation prompts for destructive operations")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// logEvents drains the controller's event stream to stdout for the life
// of the process: connection-state transitions, log lines, and pipeline
// progress ticks all arrive on the same channel.
func logEvents(c *session.Controller) {
	for ev := range c.Events {
		if quietFlag {
			continue
		}
		if ev.IsProgress {
			printInfo("[%s] %d%% %s\n", ev.Phase, ev.Percent, ev.Message)
		} else {
			printInfo("%s\n", ev.Message)
		}
	}
}

func printInfo(format string, args ...interface{}) {
	if !quietFlag {
		fmt.Printf(format, args...)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
