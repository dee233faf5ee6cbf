// Package hidproto implements the vendor HID bootloader wire protocol: a
// fixed-size packet codec, the command table, and a stateful Client that
// drives the connection lifecycle (Disconnected -> Present -> Open ->
// Engaged) over a pkg/hidtransport.Device.
package hidproto

import "time"

// Command identifies a bootloader operation.
type Command byte

const (
	UnlockConfig     Command = 0x03
	EraseDevice      Command = 0x04
	ProgramDevice    Command = 0x05
	ProgramComplete  Command = 0x06
	GetData          Command = 0x07
	ResetDevice      Command = 0x08
	SignFlash        Command = 0x09
	EngageBootloader Command = 0x0A
	FirmwareInfoCmd  Command = 0x0C
)

// Wire geometry, per spec.md §6.
const (
	// OutReportSize is the full size of an outbound HID report,
	// including the leading report-id byte.
	OutReportSize = 65
	// InReportSize is the full size of an inbound HID report (no
	// report-id byte).
	InReportSize = 64
	// DataFieldSize is the size of the right-justified payload field
	// within a packet.
	DataFieldSize = 58

	outReportID = 0x00
)

// VendorID and ProductID identify the bootloader's USB HID interface.
const (
	VendorID  = 0x04D8
	ProductID = 0x003C
)

// Timing and retry budgets, per spec.md §4.3.
const (
	SyncWaitTime    = 40 * time.Second
	SendRetryBudget = 5
	RecvRetryBudget = 3
)
