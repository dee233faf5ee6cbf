package hidtransport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// pollTimeout bounds a single Read/Write attempt so that an idle bus
// returns control to the caller's retry loop instead of blocking for the
// full sync-wait window on one attempt.
const pollTimeout = 200 * time.Millisecond

// USBDevice is a hidtransport.Device backed by a real USB HID interface,
// addressed by vendor/product ID, via gousb's libusb bindings. Reports
// are exchanged over the first interrupt IN/OUT endpoint pair found on
// the device's default configuration, matching the bootloader's HID
// report descriptor.
type USBDevice struct {
	vid, pid gousb.ID

	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
}

// NewUSBDevice returns a Device targeting the given vendor/product ID.
// No USB context is opened until Open is called.
func NewUSBDevice(vendorID, productID uint16) *USBDevice {
	return &USBDevice{vid: gousb.ID(vendorID), pid: gousb.ID(productID)}
}

// Enumerate reports whether a device with the configured vendor/product
// ID is present on the bus. It opens and immediately closes a scratch
// USB context; it does not disturb an already-open handle.
func (u *USBDevice) Enumerate() bool {
	if u.IsOpen() {
		return true
	}
	ctx := gousb.NewContext()
	defer ctx.Close()

	found := false
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor == u.vid && desc.Product == u.pid {
			found = true
		}
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	return err == nil && found
}

// Open acquires the device handle, claims its default interface, and
// resolves the interrupt IN/OUT endpoints used for report exchange.
func (u *USBDevice) Open() error {
	if u.IsOpen() {
		return nil
	}
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(u.vid, u.pid)
	if err != nil {
		ctx.Close()
		return fmt.Errorf("hidtransport: open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return fmt.Errorf("hidtransport: device %s:%s not found", u.vid, u.pid)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return fmt.Errorf("hidtransport: select config: %w", err)
	}
	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return fmt.Errorf("hidtransport: claim interface: %w", err)
	}

	var inEP *gousb.InEndpoint
	var outEP *gousb.OutEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionIn && inEP == nil {
			inEP, _ = iface.InEndpoint(epDesc.Number)
		}
		if epDesc.Direction == gousb.EndpointDirectionOut && outEP == nil {
			outEP, _ = iface.OutEndpoint(epDesc.Number)
		}
	}
	if inEP == nil || outEP == nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return fmt.Errorf("hidtransport: device exposes no interrupt IN/OUT endpoint pair")
	}

	u.ctx, u.dev, u.cfg, u.iface, u.in, u.out = ctx, dev, cfg, iface, inEP, outEP
	return nil
}

// Close releases the interface, device, and USB context. Safe to call
// when not open.
func (u *USBDevice) Close() error {
	if !u.IsOpen() {
		return nil
	}
	u.iface.Close()
	u.cfg.Close()
	err := u.dev.Close()
	u.ctx.Close()
	u.iface, u.cfg, u.dev, u.ctx, u.in, u.out = nil, nil, nil, nil, nil, nil
	return err
}

// IsOpen reports whether Open has succeeded and Close has not been
// called since.
func (u *USBDevice) IsOpen() bool { return u.dev != nil }

// Write sends one HID output report over the interrupt OUT endpoint and
// returns the number of bytes transferred. A transfer that does not
// complete within pollTimeout is reported as (0, nil), "not accepted
// yet", so the client's retry loop can try again; any other error is
// returned as a transport failure.
func (u *USBDevice) Write(report []byte) (int, error) {
	if !u.IsOpen() {
		return 0, fmt.Errorf("hidtransport: write on closed device")
	}
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	n, err := u.out.WriteContext(ctx, report)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Read reads one HID input report from the interrupt IN endpoint. A
// transfer that does not complete within pollTimeout is reported as "not
// ready yet" rather than an error, so the client's retry loop can apply
// its own retry-budget and sync-wait accounting on top.
func (u *USBDevice) Read(buf []byte) (int, error) {
	if !u.IsOpen() {
		return 0, fmt.Errorf("hidtransport: read on closed device")
	}
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	n, err := u.in.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
