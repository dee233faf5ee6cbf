// muriprog - command-line tool for programming a PIC bootloader device
// over USB HID.
//
// It parses an Intel HEX image and drives the erase/program/verify/sign
// write cycle against a connected bootloader.
package main

import (
	"fmt"
	"os"

	"github.com/robotfw/muriprog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
