package hidproto

import (
	"time"

	"github.com/robotfw/muriprog/pkg/hidtransport"
)

// ConnectionState is the client's view of the device lifecycle, per
// spec.md §4.3: a fresh client starts Disconnected, becomes Present once
// enumeration finds the device on the bus, Open once a handle has been
// acquired, and Engaged once ENGAGE_BOOTLOADER has been acknowledged.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Present
	Open
	Engaged
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Present:
		return "present"
	case Open:
		return "open"
	case Engaged:
		return "engaged"
	default:
		return "unknown"
	}
}

// Client drives a hidtransport.Device through the bootloader's command
// set. It holds no knowledge of USB itself; Poll and the command methods
// are the only way its state advances.
type Client struct {
	dev   hidtransport.Device
	state ConnectionState

	sendBudget int
	recvBudget int
	syncWait   time.Duration
}

// NewClient wraps dev with the default retry budgets and sync-wait
// window from spec.md §4.3. Use WithBudgets to override them, typically
// from loaded configuration.
func NewClient(dev hidtransport.Device) *Client {
	return &Client{
		dev:        dev,
		state:      Disconnected,
		sendBudget: SendRetryBudget,
		recvBudget: RecvRetryBudget,
		syncWait:   SyncWaitTime,
	}
}

// WithBudgets overrides the send/receive retry budgets and the sync-wait
// window. It returns c for chaining.
func (c *Client) WithBudgets(sendBudget, recvBudget int, syncWait time.Duration) *Client {
	c.sendBudget = sendBudget
	c.recvBudget = recvBudget
	c.syncWait = syncWait
	return c
}

// State reports the client's current connection state.
func (c *Client) State() ConnectionState { return c.state }

// Poll re-evaluates presence/openness of the underlying device and
// advances or regresses state accordingly. It is the only method that
// moves Disconnected to Present; callers (pkg/session's ~1Hz poller) are
// expected to call it on a timer.
//
// Poll never opens a handle on its own initiative moving past Present;
// opening is driven explicitly by Connect, which pkg/session's poller
// calls as soon as Poll reports Present.
func (c *Client) Poll() ConnectionState {
	present := c.dev.Enumerate()
	switch {
	case !present && c.state != Disconnected:
		if c.dev.IsOpen() {
			_ = c.dev.Close()
		}
		c.state = Disconnected
	case present && c.state == Disconnected:
		c.state = Present
	}
	return c.state
}

// Connect opens the device handle and performs ENGAGE_BOOTLOADER followed
// by a FIRMWARE_INFO confirmation read, the auto-engage-on-connect
// sequence from spec.md §4.5. It requires the client to be Present.
func (c *Client) Connect() (FirmwareInfo, error) {
	if c.state == Disconnected {
		return FirmwareInfo{}, &NotConnectedError{}
	}
	if c.state == Present {
		if err := c.dev.Open(); err != nil {
			return FirmwareInfo{}, &FailError{Op: "open", Err: err}
		}
		c.state = Open
	}

	if _, err := c.transact(OutPacket{Command: EngageBootloader}); err != nil {
		return FirmwareInfo{}, err
	}
	info, err := c.ReadFirmwareInfo()
	if err != nil {
		return FirmwareInfo{}, err
	}
	c.state = Engaged
	return info, nil
}

// Disconnect closes the handle and returns the client to Disconnected,
// regardless of whether the device is still physically present; Poll
// will move it back to Present on its next tick if so.
func (c *Client) Disconnect() error {
	if c.dev.IsOpen() {
		if err := c.dev.Close(); err != nil {
			return &FailError{Op: "close", Err: err}
		}
	}
	c.state = Disconnected
	return nil
}

// ReadFirmwareInfo issues FIRMWARE_INFO and decodes the response. It is
// also used as the completion-poll after ERASE_DEVICE and SIGN_FLASH.
func (c *Client) ReadFirmwareInfo() (FirmwareInfo, error) {
	in, err := c.transact(OutPacket{Command: FirmwareInfoCmd})
	if err != nil {
		return FirmwareInfo{}, err
	}
	var raw [InReportSize]byte
	raw[0] = byte(in.Command)
	raw[1] = byte(in.Address)
	raw[2] = byte(in.Address >> 8)
	raw[3] = byte(in.Address >> 16)
	raw[4] = byte(in.Address >> 24)
	raw[5] = in.Length
	copy(raw[6:], in.Data[:])
	return decodeFirmwareInfo(raw[:])
}

// UnlockConfig issues UNLOCK_CONFIG, required before writes into the
// configuration memory region.
func (c *Client) UnlockConfig() error {
	_, err := c.transact(OutPacket{Command: UnlockConfig})
	return err
}

// Erase issues ERASE_DEVICE and confirms completion with a
// FIRMWARE_INFO round trip, per spec.md §4.4 Phase A.
func (c *Client) Erase() error {
	if _, err := c.transact(OutPacket{Command: EraseDevice}); err != nil {
		return err
	}
	_, err := c.ReadFirmwareInfo()
	return err
}

// Program issues a single PROGRAM_DEVICE packet writing data at address.
// length is the true fragment length carried in the packet's Length
// field, which may be shorter than len(data) when data has been padded
// to a word boundary by the caller. Callers are responsible for
// blank-packet elision, short-packet promotion/padding, and
// PROGRAM_COMPLETE flushing per spec.md §4.4 Phase B; Program itself
// performs no such policy.
func (c *Client) Program(address uint32, data []byte, length byte) error {
	p := OutPacket{Command: ProgramDevice, Address: address, Length: length}
	if err := p.SetPayloadRightJustified(data); err != nil {
		return err
	}
	_, err := c.transact(p)
	return err
}

// ProgramComplete issues PROGRAM_COMPLETE, flushing a pending programming
// window to flash.
func (c *Client) ProgramComplete() error {
	_, err := c.transact(OutPacket{Command: ProgramComplete})
	return err
}

// GetData issues GET_DATA, reading length bytes starting at address back
// from the device for verification.
func (c *Client) GetData(address uint32, length byte) ([]byte, error) {
	p := OutPacket{Command: GetData, Address: address, Length: length}
	in, err := c.transact(p)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, in.Payload())
	return out, nil
}

// SignFlash issues SIGN_FLASH and confirms completion with a
// FIRMWARE_INFO round trip, per spec.md §4.4 Phase D.
func (c *Client) SignFlash() error {
	if _, err := c.transact(OutPacket{Command: SignFlash}); err != nil {
		return err
	}
	_, err := c.ReadFirmwareInfo()
	return err
}

// ResetDevice issues RESET_DEVICE. The device is expected to drop off the
// bus and re-enumerate as the application, not the bootloader; the next
// Poll will observe it as Disconnected.
func (c *Client) ResetDevice() error {
	_, err := c.transact(OutPacket{Command: ResetDevice})
	return err
}

// transact sends out and returns the matching response, enforcing that
// commands issued while Disconnected never touch the transport and that
// a response's command byte matches what was sent.
func (c *Client) transact(out OutPacket) (InPacket, error) {
	if c.state == Disconnected {
		return InPacket{}, &NotConnectedError{}
	}

	if err := c.send(out); err != nil {
		return InPacket{}, err
	}
	in, err := c.recv()
	if err != nil {
		return InPacket{}, err
	}
	if in.Command != out.Command {
		return InPacket{}, &IncorrectCommandError{Got: in.Command, Want: out.Command}
	}
	return in, nil
}

// send retries the non-blocking transport write up to sendBudget times,
// spaced evenly across syncWait, per spec.md §4.3.
func (c *Client) send(out OutPacket) error {
	frame := out.Encode()
	interval := c.syncWait / time.Duration(c.sendBudget)
	for attempt := 0; attempt < c.sendBudget; attempt++ {
		n, err := c.dev.Write(frame[:])
		if err != nil {
			_ = c.dev.Close()
			c.state = Disconnected
			return &FailError{Op: "send", Err: err}
		}
		if n > 0 {
			return nil
		}
		time.Sleep(interval)
	}
	return &TimeoutError{Op: "send"}
}

// recv retries the non-blocking transport read up to recvBudget times,
// spaced evenly across syncWait, per spec.md §4.3.
func (c *Client) recv() (InPacket, error) {
	var raw [InReportSize]byte
	interval := c.syncWait / time.Duration(c.recvBudget)
	for attempt := 0; attempt < c.recvBudget; attempt++ {
		n, err := c.dev.Read(raw[:])
		if err != nil {
			_ = c.dev.Close()
			c.state = Disconnected
			return InPacket{}, &FailError{Op: "recv", Err: err}
		}
		if n > 0 {
			return DecodeInPacket(raw[:])
		}
		time.Sleep(interval)
	}
	return InPacket{}, &TimeoutError{Op: "recv"}
}
