package hidtransport

import "fmt"

// Loopback is an in-memory Device fake driven entirely by a Responder
// function, for use in tests (such as pkg/session's) that need a
// deterministic stand-in for a physical bootloader.
type Loopback struct {
	// Responder, given the raw outbound report, returns the raw inbound
	// report that should be delivered on the next Read, or nil to
	// simulate "no response ready yet" (the caller's retry loop will
	// poll again).
	Responder func(out []byte) []byte

	present bool
	open    bool
	pending []byte
}

// NewLoopback returns a Loopback that reports as present but not yet
// open, mirroring a freshly enumerated device.
func NewLoopback(responder func(out []byte) []byte) *Loopback {
	return &Loopback{Responder: responder, present: true}
}

// SetPresent controls what Enumerate reports, letting tests simulate a
// device disappearing mid-session.
func (l *Loopback) SetPresent(present bool) { l.present = present }

func (l *Loopback) Enumerate() bool { return l.present }

func (l *Loopback) Open() error {
	if !l.present {
		return fmt.Errorf("hidtransport: loopback device not present")
	}
	l.open = true
	return nil
}

func (l *Loopback) Close() error {
	l.open = false
	return nil
}

func (l *Loopback) IsOpen() bool { return l.open }

func (l *Loopback) Write(report []byte) (int, error) {
	if !l.open {
		return 0, fmt.Errorf("hidtransport: write on closed loopback device")
	}
	if l.Responder != nil {
		l.pending = l.Responder(report)
	}
	return len(report), nil
}

func (l *Loopback) Read(buf []byte) (int, error) {
	if !l.open {
		return 0, fmt.Errorf("hidtransport: read on closed loopback device")
	}
	if l.pending == nil {
		return 0, nil
	}
	n := copy(buf, l.pending)
	l.pending = nil
	return n, nil
}
