package hidproto

import (
	"errors"
	"testing"
	"time"
)

// scriptedDevice is a minimal hidtransport.Device fake that echoes back a
// response built by a per-command handler. It lets client tests exercise
// the state machine and transact loop without a real transport.
type scriptedDevice struct {
	present bool
	open    bool

	handle func(out []byte) []byte // nil => no response ready yet
	pending []byte
	writeErr error
	readErr  error
}

func (d *scriptedDevice) Enumerate() bool { return d.present }

func (d *scriptedDevice) Open() error {
	d.open = true
	return nil
}

func (d *scriptedDevice) Close() error {
	d.open = false
	return nil
}

func (d *scriptedDevice) IsOpen() bool { return d.open }

func (d *scriptedDevice) Write(report []byte) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	if d.handle != nil {
		d.pending = d.handle(report)
	}
	return len(report), nil
}

func (d *scriptedDevice) Read(buf []byte) (int, error) {
	if d.readErr != nil {
		return 0, d.readErr
	}
	if d.pending == nil {
		return 0, nil
	}
	n := copy(buf, d.pending)
	d.pending = nil
	return n, nil
}

func echoCommand(cmd Command, extra func(in, out []byte)) func([]byte) []byte {
	return func(out []byte) []byte {
		in := make([]byte, InReportSize)
		in[0] = byte(cmd)
		if extra != nil {
			extra(in, out)
		}
		return in
	}
}

func fastBudgets(c *Client) *Client {
	return c.WithBudgets(SendRetryBudget, RecvRetryBudget, 30*time.Millisecond)
}

func TestCommandWhileDisconnectedReturnsNotConnectedWithoutIO(t *testing.T) {
	dev := &scriptedDevice{present: false}
	c := fastBudgets(NewClient(dev))

	_, err := c.ReadFirmwareInfo()
	var nce *NotConnectedError
	if !errors.As(err, &nce) {
		t.Fatalf("ReadFirmwareInfo() error = %v, want *NotConnectedError", err)
	}
	if dev.open {
		t.Fatalf("device was opened despite being Disconnected")
	}
}

func TestConnectEngagesAndReadsFirmwareInfo(t *testing.T) {
	dev := &scriptedDevice{present: true}
	dev.handle = func(out []byte) []byte {
		cmd := Command(out[1])
		switch cmd {
		case EngageBootloader:
			return echoCommand(EngageBootloader, nil)(out)
		case FirmwareInfoCmd:
			return echoCommand(FirmwareInfoCmd, func(in, out []byte) {
				in[1], in[2] = 0x01, 0x00 // bootloader version 1
				in[3], in[4] = 0x02, 0x00 // application version 2
			})(out)
		default:
			t.Fatalf("unexpected command 0x%02X", byte(cmd))
			return nil
		}
	}

	c := fastBudgets(NewClient(dev))
	if got := c.Poll(); got != Present {
		t.Fatalf("Poll() = %v, want Present", got)
	}

	info, err := c.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if c.State() != Engaged {
		t.Fatalf("State() = %v, want Engaged", c.State())
	}
	if info.BootloaderVersion != 1 || info.ApplicationVersion != 2 {
		t.Fatalf("info = %+v, want bootloader=1 application=2", info)
	}
}

func TestTransactTimeoutExhaustsRecvBudget(t *testing.T) {
	dev := &scriptedDevice{present: true}
	// handle leaves dev.pending nil forever, so recv never finds data.
	dev.handle = func(out []byte) []byte { return nil }

	c := fastBudgets(NewClient(dev))
	c.Poll()
	if err := dev.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	c.state = Open

	_, err := c.ReadFirmwareInfo()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("ReadFirmwareInfo() error = %v, want *TimeoutError", err)
	}
	if te.Op != "recv" {
		t.Fatalf("TimeoutError.Op = %q, want %q", te.Op, "recv")
	}
}

func TestTransactRejectsMismatchedResponseCommand(t *testing.T) {
	dev := &scriptedDevice{present: true, open: true}
	dev.handle = func(out []byte) []byte {
		// Always answer with the wrong command byte.
		return echoCommand(ResetDevice, nil)(out)
	}

	c := fastBudgets(NewClient(dev))
	c.state = Open

	_, err := c.ReadFirmwareInfo()
	var ice *IncorrectCommandError
	if !errors.As(err, &ice) {
		t.Fatalf("ReadFirmwareInfo() error = %v, want *IncorrectCommandError", err)
	}
	if ice.Want != FirmwareInfoCmd || ice.Got != ResetDevice {
		t.Fatalf("IncorrectCommandError = %+v", ice)
	}
}

func TestPollDropsToDisconnectedWhenDeviceVanishes(t *testing.T) {
	dev := &scriptedDevice{present: true, open: true}
	c := fastBudgets(NewClient(dev))
	c.state = Engaged

	dev.present = false
	if got := c.Poll(); got != Disconnected {
		t.Fatalf("Poll() = %v, want Disconnected", got)
	}
	if dev.open {
		t.Fatalf("device handle left open after disappearance")
	}
}

func TestWriteErrorClosesHandleAndReportsFail(t *testing.T) {
	dev := &scriptedDevice{present: true, open: true, writeErr: errors.New("usb: device disconnected")}
	c := fastBudgets(NewClient(dev))
	c.state = Open

	_, err := c.ReadFirmwareInfo()
	var fe *FailError
	if !errors.As(err, &fe) {
		t.Fatalf("ReadFirmwareInfo() error = %v, want *FailError", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("State() = %v, want Disconnected after transport failure", c.State())
	}
}
