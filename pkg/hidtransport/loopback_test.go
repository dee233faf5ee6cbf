package hidtransport

import "testing"

func TestLoopbackEnumerateFollowsPresence(t *testing.T) {
	l := NewLoopback(nil)
	if !l.Enumerate() {
		t.Fatalf("Enumerate() = false, want true for fresh loopback")
	}
	l.SetPresent(false)
	if l.Enumerate() {
		t.Fatalf("Enumerate() = true after SetPresent(false)")
	}
}

func TestLoopbackWriteRequiresOpen(t *testing.T) {
	l := NewLoopback(nil)
	if _, err := l.Write([]byte{0x01}); err == nil {
		t.Fatalf("Write() on unopened loopback returned nil error")
	}
}

func TestLoopbackRoundTripsResponder(t *testing.T) {
	l := NewLoopback(func(out []byte) []byte {
		reply := make([]byte, 64)
		reply[0] = out[1] // echo the command byte back
		return reply
	})
	if err := l.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	frame := make([]byte, 65)
	frame[1] = 0x0C
	if _, err := l.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 64)
	n, err := l.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 64 || buf[0] != 0x0C {
		t.Fatalf("Read() = (%d, %v), want command byte 0x0C echoed", n, buf[:1])
	}
}

func TestLoopbackReadBeforeWriteNotReady(t *testing.T) {
	l := NewLoopback(nil)
	if err := l.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	buf := make([]byte, 64)
	n, err := l.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("Read() = (%d, %v), want (0, nil) with no pending response", n, err)
	}
}
