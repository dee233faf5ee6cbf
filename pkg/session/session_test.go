package session

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/robotfw/muriprog/pkg/hidproto"
	"github.com/robotfw/muriprog/pkg/hidtransport"
	"github.com/robotfw/muriprog/pkg/memmap"
	"github.com/robotfw/muriprog/pkg/pipeline"
)

func echoResponder(out []byte) []byte {
	raw := make([]byte, hidproto.InReportSize)
	raw[0] = out[1]
	return raw
}

func newTestController(t *testing.T) (*Controller, *hidtransport.Loopback) {
	t.Helper()
	dev := hidtransport.NewLoopback(echoResponder)
	client := hidproto.NewClient(dev).WithBudgets(hidproto.SendRetryBudget, hidproto.RecvRetryBudget, 10*time.Millisecond)
	ctrl := New(client, memmap.NewDeviceDescriptorMap(), pipeline.Options{WriteFlash: true})
	ctrl.SetPollInterval(15 * time.Millisecond)
	return ctrl, dev
}

func waitForState(t *testing.T, ctrl *Controller, want hidproto.ConnectionState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("State() never reached %v, stuck at %v", want, ctrl.State())
}

func TestAutoEngageOnConnectMatchesS6(t *testing.T) {
	ctrl, dev := newTestController(t)
	var mu sync.Mutex
	var sent []hidproto.Command
	dev.Responder = func(out []byte) []byte {
		mu.Lock()
		sent = append(sent, hidproto.Command(out[1]))
		mu.Unlock()
		return echoResponder(out)
	}
	ctrl.Start()
	defer ctrl.Stop()

	waitForState(t, ctrl, hidproto.Engaged, 500*time.Millisecond)

	mu.Lock()
	got := append([]hidproto.Command(nil), sent...)
	mu.Unlock()
	want := []hidproto.Command{hidproto.EngageBootloader, hidproto.FirmwareInfoCmd}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("commands sent on connect = %v, want %v", got, want)
	}

	info := ctrl.FirmwareInfo()
	if info.BootloaderVersion != 0 {
		t.Fatalf("unexpected firmware info from echo responder: %+v", info)
	}
}

func TestDisconnectDropsHexMap(t *testing.T) {
	ctrl, dev := newTestController(t)
	ctrl.Start()
	defer ctrl.Stop()
	waitForState(t, ctrl, hidproto.Engaged, 500*time.Millisecond)

	f, err := os.CreateTemp(t.TempDir(), "*.hex")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	if _, err := f.WriteString(":00000001FF\n"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	f.Close()

	if _, err := ctrl.LoadFile(f.Name()); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if _, ok := ctrl.HexProgramImage(); !ok {
		t.Fatalf("HexProgramImage() ok = false after successful LoadFile")
	}

	dev.SetPresent(false)
	waitForState(t, ctrl, hidproto.Disconnected, 500*time.Millisecond)

	if _, ok := ctrl.HexProgramImage(); ok {
		t.Fatalf("HexProgramImage() still available after disconnect")
	}
}

func TestWriteRequiresLoadedImage(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.Start()
	defer ctrl.Stop()
	waitForState(t, ctrl, hidproto.Engaged, 500*time.Millisecond)

	if err := ctrl.Write(); err != ErrNoHexLoaded {
		t.Fatalf("Write() error = %v, want ErrNoHexLoaded", err)
	}
}

func TestWriteRefusedWhileBusy(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.busy = true
	defer func() { ctrl.busy = false }()

	if err := ctrl.Write(); err != ErrBusy {
		t.Fatalf("Write() error = %v, want ErrBusy", err)
	}
	if err := ctrl.Erase(); err != ErrBusy {
		t.Fatalf("Erase() error = %v, want ErrBusy", err)
	}
	if err := ctrl.Reset(); err != ErrBusy {
		t.Fatalf("Reset() error = %v, want ErrBusy", err)
	}
}
