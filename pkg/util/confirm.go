// Package util collects small operator-facing helpers: confirmation
// prompts, hex dumps, and a load-diagnostics checksum. None of these are
// protocol-critical; they exist to make the CLI legible.
package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Confirm prompts for a y/n confirmation and returns true if confirmed.
func Confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print(prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// ConfirmDanger prompts for a stronger confirmation ahead of a
// destructive operation (erase, write). Only "yes" confirms, ignoring
// case and surrounding whitespace.
func ConfirmDanger(operation string) bool {
	fmt.Printf("\nWARNING: %s\n", operation)
	fmt.Println("This operation cannot be undone.")
	fmt.Print("\nType 'yes' to confirm: ")

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes"
}
