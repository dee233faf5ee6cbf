// Package pipeline drives the erase/program/verify/sign/re-verify state
// machine that writes a parsed HEX image onto a connected bootloader.
package pipeline

import (
	"github.com/robotfw/muriprog/pkg/hidproto"
	"github.com/robotfw/muriprog/pkg/memmap"
)

// Phase identifies a stage of the write cycle, for progress reporting.
type Phase int

const (
	PhaseErase Phase = iota
	PhaseProgram
	PhaseVerify
	PhaseSign
	PhasePostSignVerify
)

func (p Phase) String() string {
	switch p {
	case PhaseErase:
		return "erase"
	case PhaseProgram:
		return "program"
	case PhaseVerify:
		return "verify"
	case PhaseSign:
		return "sign"
	case PhasePostSignVerify:
		return "post-sign-verify"
	default:
		return "unknown"
	}
}

// Event is emitted on the progress sink as the pipeline advances. Percent
// is cumulative across the whole run, never regressing within a
// successful run.
type Event struct {
	Phase   Phase
	Percent int
	Message string
}

// Options selects which memory kinds Phase B programs and Phase C
// verifies.
type Options struct {
	WriteFlash  bool
	WriteEEPROM bool
}

func (o Options) enabled(k memmap.Kind) bool {
	switch k {
	case memmap.Program:
		return o.WriteFlash
	case memmap.EEPROM:
		return o.WriteEEPROM
	default:
		return false
	}
}

// emit sends ev on events if events is non-nil; events is commonly
// buffered or drained by a concurrent reader, but Run never blocks
// indefinitely on a nil sink.
func emit(events chan<- Event, ev Event) {
	if events != nil {
		events <- ev
	}
}

// scale linearly maps done/total work units into the [lo,hi] percent
// band, clamped to hi.
func scale(done, total, lo, hi int) int {
	if total <= 0 {
		return hi
	}
	pct := lo + (done*(hi-lo))/total
	if pct > hi {
		pct = hi
	}
	if pct < lo {
		pct = lo
	}
	return pct
}

// Run executes the full write cycle against client, using hexMap as the
// source image and deviceMap as the read-back/verify shadow. info is the
// FirmwareInfo read at connect time, supplying the signature coordinates
// and erase page size consumed by Phase E. Any phase failure aborts the
// run and returns a typed error; Percent in the final emitted Event is
// either 100 (success) or frozen at the failing phase's percentage.
func Run(client *hidproto.Client, deviceMap, hexMap *memmap.DeviceMap, info hidproto.FirmwareInfo, opts Options, events chan<- Event) error {
	if err := runErase(client, events); err != nil {
		return err
	}
	if err := runProgram(client, hexMap, opts, events); err != nil {
		return err
	}
	if err := runVerify(client, deviceMap, hexMap, opts, events); err != nil {
		return err
	}
	if err := runSign(client, events); err != nil {
		return err
	}
	if err := runPostSignVerify(client, hexMap, info, events); err != nil {
		return err
	}
	emit(events, Event{Phase: PhasePostSignVerify, Percent: 100, Message: "write complete"})
	return nil
}

// runErase is Phase A: progress 0->32%.
func runErase(client *hidproto.Client, events chan<- Event) error {
	emit(events, Event{Phase: PhaseErase, Percent: 0, Message: "erasing device"})
	if err := client.Erase(); err != nil {
		return &EraseFailedError{Err: err}
	}
	emit(events, Event{Phase: PhaseErase, Percent: 32, Message: "erase complete"})
	return nil
}

// runProgram is Phase B: progress 33->66%.
func runProgram(client *hidproto.Client, hexMap *memmap.DeviceMap, opts Options, events chan<- Event) error {
	var ranges []*memmap.Range
	totalBytes := 0
	for _, r := range hexMap.Ranges() {
		if !opts.enabled(r.Kind) {
			continue
		}
		ranges = append(ranges, r)
		totalBytes += len(r.Buffer)
	}

	done := 0
	emit(events, Event{Phase: PhaseProgram, Percent: 33, Message: "programming"})
	for _, r := range ranges {
		if err := programRange(client, r, events, &done, totalBytes); err != nil {
			return err
		}
	}
	emit(events, Event{Phase: PhaseProgram, Percent: 66, Message: "programming complete"})
	return nil
}

// programRange walks one enabled range in fixed-size windows, applying
// short-packet promotion and all-0xFF elision, per spec §4.4 Phase B.
func programRange(client *hidproto.Client, r *memmap.Range, events chan<- Event, done *int, totalBytes int) error {
	bytesPerWord := int(memmap.BytesPerWord(r.Kind))
	bytesPerAddress := int(memmap.BytesPerAddress(r.Kind))
	nominalPacketBytes := hidproto.DataFieldSize - (hidproto.DataFieldSize % bytesPerWord)

	const noCommand = hidproto.Command(0)
	lastCommandSent := noCommand

	offset := 0
	for offset < len(r.Buffer) {
		remaining := len(r.Buffer) - offset
		windowLen := nominalPacketBytes
		if windowLen > remaining {
			windowLen = remaining
		}
		trueLen := windowLen
		payload := make([]byte, windowLen)
		copy(payload, r.Buffer[offset:offset+windowLen])

		// Short-packet promotion: pad the trailing fragment up to a
		// word multiple with 0xFF, keeping the true fragment length
		// for the packet's Length field.
		if windowLen < nominalPacketBytes && windowLen%bytesPerWord != 0 {
			paddedLen := windowLen + (bytesPerWord - windowLen%bytesPerWord)
			padded := make([]byte, paddedLen)
			copy(padded, payload)
			for i := windowLen; i < paddedLen; i++ {
				padded[i] = 0xFF
			}
			payload = padded
		}

		address := r.Start + uint32(offset/bytesPerAddress)

		if allFF(payload) {
			if lastCommandSent != hidproto.ProgramComplete && lastCommandSent != noCommand {
				if err := client.ProgramComplete(); err != nil {
					return &ProgramFailedError{Address: address, Err: err}
				}
				lastCommandSent = hidproto.ProgramComplete
			}
		} else {
			if err := client.Program(address, payload, byte(trueLen)); err != nil {
				return &ProgramFailedError{Address: address, Err: err}
			}
			lastCommandSent = hidproto.ProgramDevice
		}

		offset += windowLen
		*done += windowLen
		emit(events, Event{Phase: PhaseProgram, Percent: scale(*done, totalBytes, 33, 66), Message: "programming"})
	}

	if lastCommandSent != hidproto.ProgramComplete {
		finalAddress := r.Start + uint32(len(r.Buffer)/bytesPerAddress)
		if err := client.ProgramComplete(); err != nil {
			return &ProgramFailedError{Address: finalAddress, Err: err}
		}
	}
	return nil
}

func allFF(data []byte) bool {
	for _, b := range data {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// runVerify is Phase C: progress 67->100%. A mismatch aborts without
// erasing the device.
func runVerify(client *hidproto.Client, deviceMap, hexMap *memmap.DeviceMap, opts Options, events chan<- Event) error {
	var ranges []*memmap.Range
	totalBytes := 0
	for _, r := range deviceMap.Ranges() {
		if !opts.enabled(r.Kind) {
			continue
		}
		ranges = append(ranges, r)
		totalBytes += len(r.Buffer)
	}

	done := 0
	emit(events, Event{Phase: PhaseVerify, Percent: 67, Message: "verifying"})
	for _, r := range ranges {
		hexRange := hexMap.FindKind(r.Kind)
		bytesPerAddress := int(memmap.BytesPerAddress(r.Kind))

		offset := 0
		for offset < len(r.Buffer) {
			chunk := hidproto.DataFieldSize
			if chunk > len(r.Buffer)-offset {
				chunk = len(r.Buffer) - offset
			}
			address := r.Start + uint32(offset/bytesPerAddress)

			readBack, err := client.GetData(address, byte(chunk))
			if err != nil {
				return err
			}
			copy(r.Buffer[offset:offset+chunk], readBack)

			for i := 0; i < chunk; i++ {
				var expected byte = 0xFF
				if hexRange != nil && offset+i < len(hexRange.Buffer) {
					expected = hexRange.Buffer[offset+i]
				}
				actual := readBack[i]
				if actual != expected {
					return &VerifyFailedError{
						Address:  r.Start + uint32((offset+i)/bytesPerAddress),
						Expected: expected,
						Actual:   actual,
					}
				}
			}

			offset += chunk
			done += chunk
			emit(events, Event{Phase: PhaseVerify, Percent: scale(done, totalBytes, 67, 100), Message: "verifying"})
		}
	}
	return nil
}

// runSign is Phase D: writes the signature word and confirms completion.
func runSign(client *hidproto.Client, events chan<- Event) error {
	emit(events, Event{Phase: PhaseSign, Percent: 100, Message: "signing"})
	if err := client.SignFlash(); err != nil {
		return &SignFailedError{Err: err}
	}
	return nil
}

// runPostSignVerify is Phase E: re-reads the erase page containing the
// signature and compares it against the HEX image with the signature
// bytes substituted in, per spec §4.4 Phase E. On mismatch it forces an
// erase before returning, since a partially-correct signature could
// still make the device boot into a suspect application.
func runPostSignVerify(client *hidproto.Client, hexMap *memmap.DeviceMap, info hidproto.FirmwareInfo, events chan<- Event) error {
	if info.ErasePageSize == 0 {
		return nil
	}
	pageStart := info.SignatureAddress - (info.SignatureAddress % info.ErasePageSize)
	pageLen := info.ErasePageSize

	// A single GET_DATA exchange carries at most DataFieldSize bytes,
	// so an erase page is read in successive windows.
	readBack, err := readPage(client, pageStart, pageLen)
	if err != nil {
		return err
	}

	expected := make([]byte, pageLen)
	for i := range expected {
		expected[i] = 0xFF
	}
	programRange := hexMap.FindKind(memmap.Program)
	if programRange != nil {
		for i := uint32(0); i < pageLen; i++ {
			addr := pageStart + i
			if addr >= programRange.Start && addr < programRange.End {
				expected[i] = programRange.Buffer[addr-programRange.Start]
			}
		}
	}

	sigOffset := info.SignatureAddress - pageStart
	if sigOffset+1 < pageLen {
		expected[sigOffset] = byte(info.SignatureValue)
		expected[sigOffset+1] = byte(info.SignatureValue >> 8)
	}

	for i := uint32(0); i < pageLen; i++ {
		if readBack[i] != expected[i] {
			eraseErr := client.Erase()
			return &PostSignVerifyFailedError{
				Address:  pageStart + i,
				Expected: expected[i],
				Actual:   readBack[i],
				EraseErr: eraseErr,
			}
		}
	}
	return nil
}

// readPage reads an erase page larger than one GET_DATA window in
// DataFieldSize-sized chunks.
func readPage(client *hidproto.Client, start uint32, length uint32) ([]byte, error) {
	out := make([]byte, length)
	offset := uint32(0)
	for offset < length {
		chunk := uint32(hidproto.DataFieldSize)
		if chunk > length-offset {
			chunk = length - offset
		}
		data, err := client.GetData(start+offset, byte(chunk))
		if err != nil {
			return nil, err
		}
		copy(out[offset:], data)
		offset += chunk
	}
	return out, nil
}
