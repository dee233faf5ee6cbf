// Package session wires the HEX parser, memory map, programming
// pipeline, and HID protocol client into the coarse verbs an operator
// surface drives: LoadFile, Write, Erase, Reset, and connection polling.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robotfw/muriprog/pkg/hexfile"
	"github.com/robotfw/muriprog/pkg/hidproto"
	"github.com/robotfw/muriprog/pkg/memmap"
	"github.com/robotfw/muriprog/pkg/pipeline"
)

// DefaultPollInterval is how often Controller re-checks connection
// presence when no pipeline run is in flight.
const DefaultPollInterval = time.Second

// Event is emitted on the Controller's Events channel: either a
// connection state transition, a pipeline progress tick, or a log line.
type Event struct {
	State   hidproto.ConnectionState
	Phase   pipeline.Phase
	Percent int
	Message string
	// IsProgress distinguishes a pipeline.Event forward from a plain
	// state-transition or log Event, since Percent/Phase are zero
	// values (Erase/0) on the latter.
	IsProgress bool
}

// Controller holds session-long state: the device-side shadow map, the
// most recently loaded HEX image, cached firmware info, write-mode
// flags, and the HID client it drives. device_map persists for the
// controller's lifetime; hex_map is replaced wholesale by LoadFile and
// dropped on disconnect.
type Controller struct {
	mu sync.Mutex

	client    *hidproto.Client
	deviceMap *memmap.DeviceMap
	hexMap    *memmap.DeviceMap
	info      hidproto.FirmwareInfo
	opts      pipeline.Options

	busy bool

	pollInterval time.Duration
	stop         chan struct{}
	stopped      chan struct{}

	Events chan Event
}

// New returns a Controller driving client, with deviceMap as the
// compiled-in device descriptor. The returned Controller is not polling
// until Start is called.
func New(client *hidproto.Client, deviceMap *memmap.DeviceMap, opts pipeline.Options) *Controller {
	return &Controller{
		client:       client,
		deviceMap:    deviceMap,
		opts:         opts,
		pollInterval: DefaultPollInterval,
		Events:       make(chan Event, 16),
	}
}

// SetPollInterval overrides the connection-poll cadence. Call before
// Start.
func (c *Controller) SetPollInterval(d time.Duration) { c.pollInterval = d }

// SetWriteModes updates which memory kinds Write programs and verifies.
func (c *Controller) SetWriteModes(writeFlash, writeEEPROM bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = pipeline.Options{WriteFlash: writeFlash, WriteEEPROM: writeEEPROM}
}

// Start launches the ~1 Hz connection poller in its own goroutine. It is
// paused for the duration of any Write/Erase pipeline run and resumed
// afterward. Stop ends it.
func (c *Controller) Start() {
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.pollLoop()
}

// Stop ends the connection poller and waits for it to exit.
func (c *Controller) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.stopped
}

func (c *Controller) pollLoop() {
	defer close(c.stopped)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.busy {
				c.mu.Unlock()
				continue
			}
			prev := c.client.State()
			cur := c.client.Poll()
			if cur != prev {
				c.onTransition(prev, cur)
			}
			c.mu.Unlock()
		}
	}
}

// onTransition implements the auto-engage-on-connect and
// drop-hex-map-on-disconnect behavior from spec §4.5. c.mu is held by
// the caller.
func (c *Controller) onTransition(prev, cur hidproto.ConnectionState) {
	c.notify(Event{State: cur, Message: fmt.Sprintf("connection: %s -> %s", prev, cur)})

	if cur == hidproto.Present {
		info, err := c.client.Connect()
		if err != nil {
			c.notify(Event{State: c.client.State(), Message: fmt.Sprintf("auto-engage failed: %v", err)})
			return
		}
		c.info = info
		c.notify(Event{State: c.client.State(), Message: "engaged, firmware info refreshed"})
	}

	if cur == hidproto.Disconnected {
		c.hexMap = nil
	}
}

func (c *Controller) notify(ev Event) {
	select {
	case c.Events <- ev:
	default:
		// A full channel means nobody is listening; state transitions
		// are also observable via State(), so dropping the
		// notification here is not a loss of session truth.
	}
}

// State reports the current connection state.
func (c *Controller) State() hidproto.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.State()
}

// Busy reports whether a pipeline run is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// ErrBusy is returned by any verb attempted while a pipeline run is in
// flight.
var ErrBusy = fmt.Errorf("session: a write/erase operation is already in progress")

// ErrNoHexLoaded is returned by Write when no HEX file has been loaded
// since the last disconnect.
var ErrNoHexLoaded = fmt.Errorf("session: no HEX file loaded")

// LoadFile parses filename into a fresh hex_map cloned from the current
// device_map's layout, replacing any previously loaded image.
func (c *Controller) LoadFile(filename string) (hexfile.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, ErrBusy
	}

	candidate := c.deviceMap.Clone()
	outcome, err := hexfile.LoadFile(filename, candidate)
	if err != nil {
		return outcome, err
	}
	c.hexMap = candidate
	return outcome, nil
}

// Write runs the full erase/program/verify/sign/re-verify pipeline
// against the loaded HEX image. It blocks for the duration of the run;
// callers that want progress updates should drain Events concurrently.
// Only one pipeline run may be in flight at a time.
func (c *Controller) Write() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.hexMap == nil {
		c.mu.Unlock()
		return ErrNoHexLoaded
	}
	if c.client.State() != hidproto.Engaged {
		c.mu.Unlock()
		return &hidproto.NotConnectedError{}
	}
	c.busy = true
	client, deviceMap, hexMap, info, opts := c.client, c.deviceMap, c.hexMap, c.info, c.opts
	c.mu.Unlock()

	progress := make(chan pipeline.Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- pipeline.Run(client, deviceMap, hexMap, info, opts, progress)
		close(progress)
	}()
	for ev := range progress {
		c.notify(Event{Phase: ev.Phase, Percent: ev.Percent, Message: ev.Message, IsProgress: true})
	}
	err := <-done

	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	return err
}

// Erase runs ERASE_DEVICE alone, outside the full write pipeline, for an
// operator-initiated bulk erase.
func (c *Controller) Erase() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.client.State() != hidproto.Engaged {
		c.mu.Unlock()
		return &hidproto.NotConnectedError{}
	}
	c.busy = true
	client := c.client
	c.mu.Unlock()

	err := client.Erase()

	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	return err
}

// Reset issues RESET_DEVICE, handing control back to the application
// image. The device is expected to drop off the bus; the next poll tick
// observes Disconnected.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.client.State() == hidproto.Disconnected {
		return &hidproto.NotConnectedError{}
	}
	return c.client.ResetDevice()
}

// FirmwareInfo returns the firmware info cached at the last connect. The
// FIRMWARE_INFO read that confirms a Sign-Flash completion does not
// update this cache.
func (c *Controller) FirmwareInfo() hidproto.FirmwareInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// HexProgramImage returns a copy of the loaded HEX image's PROGRAM
// shadow buffer, or ok=false if no file has been loaded (or it has since
// been dropped by a disconnect).
func (c *Controller) HexProgramImage() (data []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hexMap == nil {
		return nil, false
	}
	r := c.hexMap.FindKind(memmap.Program)
	if r == nil {
		return nil, false
	}
	out := make([]byte, len(r.Buffer))
	copy(out, r.Buffer)
	return out, true
}
