package xmi

import (
	"io"
)

// readDelta reads an XMI delta-time: an additive run of bytes with the high
// bit clear. Unlike SMF's VLQ, each byte's full 7-bit value is *added* to
// the accumulator rather than shifted in. A byte equal to 127 continues the
// run (permitting deltas larger than a single byte); any other byte with
// the high bit clear terminates the run and is included in the sum. A byte
// with the high bit set terminates the run without being consumed — it is
// the next status byte — and the reader is rewound one byte so the caller
// sees it.
func readDelta(r io.ReadSeeker) (uint32, error) {
	var sum uint32
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, ErrTruncatedContainer
		}
		if b[0]&0x80 != 0 {
			if _, err := r.Seek(-1, io.SeekCurrent); err != nil {
				return 0, err
			}
			return sum, nil
		}
		sum += uint32(b[0])
		if b[0] != 127 {
			return sum, nil
		}
	}
}

// readVLQ reads a standard SMF variable-length quantity: 7 bits per byte,
// high bit set means continuation, shifted into the accumulator.
func readVLQ(r io.ReadSeeker) (uint32, error) {
	var v uint32
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, ErrTruncatedContainer
		}
		v = v<<7 | uint32(b[0]&0x7F)
		if b[0]&0x80 == 0 {
			return v, nil
		}
	}
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncatedContainer
	}
	return b[0], nil
}

// eventResult is what parseEvent hands back to the Scheduler: at most one
// command to enqueue immediately, and optionally a Note Off to schedule
// duration ticks after the event's own time (only ever set alongside a
// NoteOn command, per the Note-On-with-duration encoding).
type eventResult struct {
	command         *Command
	scheduleNoteOff bool
	durationTicks   uint32
}

// parseEvent reads one event from r starting at the current position,
// applying running status via lastStatus, and mutating tb in place when a
// Set Tempo or Time Signature meta event is seen.
func parseEvent(r io.ReadSeeker, lastStatus *byte, tb *TimeBase) (eventResult, error) {
	status, err := readByte(r)
	if err != nil {
		return eventResult{}, err
	}
	if status&0x80 == 0 {
		if *lastStatus == 0 {
			return eventResult{}, ErrRunningStatusWithoutPrior
		}
		if _, err := r.Seek(-1, io.SeekCurrent); err != nil {
			return eventResult{}, err
		}
		status = *lastStatus
	} else {
		*lastStatus = status
	}

	eventType := status & 0xF0
	channel := status & 0x0F

	switch {
	case eventType == 0x80:
		key, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		if _, err := readByte(r); err != nil { // velocity, discarded
			return eventResult{}, err
		}
		cmd := NoteOff(channel, key)
		return eventResult{command: &cmd}, nil

	case eventType == 0x90:
		key, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		velocity, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		duration, err := readVLQ(r)
		if err != nil {
			return eventResult{}, err
		}
		if velocity == 0 {
			cmd := NoteOff(channel, key)
			return eventResult{command: &cmd}, nil
		}
		cmd := NoteOn(channel, key, velocity)
		return eventResult{command: &cmd, scheduleNoteOff: true, durationTicks: duration}, nil

	case eventType == 0xA0:
		key, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		value, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		cmd := PolyphonicAftertouch(channel, key, value)
		return eventResult{command: &cmd}, nil

	case eventType == 0xB0:
		controller, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		value, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		cmd := ControllerChange(channel, controller, value)
		return eventResult{command: &cmd}, nil

	case eventType == 0xC0:
		program, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		cmd := ProgramChange(channel, program)
		return eventResult{command: &cmd}, nil

	case eventType == 0xD0:
		value, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		cmd := ChannelAftertouch(channel, value)
		return eventResult{command: &cmd}, nil

	case eventType == 0xE0:
		lsb, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		msb, err := readByte(r)
		if err != nil {
			return eventResult{}, err
		}
		value14 := uint16(lsb) | uint16(msb)<<7
		cmd := PitchBend(channel, value14)
		return eventResult{command: &cmd}, nil
	}

	switch status {
	case 0xFF:
		return eventResult{}, parseMeta(r, tb)
	case 0xF0:
		return eventResult{}, consumeSysEx(r)
	}

	return eventResult{}, recoverUnknownStatus(r, status)
}

// parseMeta reads a meta event's type, VLQ length, and payload. Only Set
// Tempo (0x51) and Time Signature (0x58) affect state; everything else is
// consumed and discarded. XMI has no end-of-track meta.
func parseMeta(r io.ReadSeeker, tb *TimeBase) error {
	metaType, err := readByte(r)
	if err != nil {
		return err
	}
	length, err := readVLQ(r)
	if err != nil {
		return err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ErrTruncatedContainer
	}
	switch metaType {
	case 0x51:
		if len(payload) >= 3 {
			uspq := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
			tb.SetTempo(uspq)
		}
	case 0x58:
		if len(payload) >= 4 {
			tb.SetTimeSignature(payload[0], payload[1])
		}
	}
	return nil
}

// consumeSysEx reads bytes until the 0xF7 terminator and discards them.
func consumeSysEx(r io.ReadSeeker) error {
	for {
		b, err := readByte(r)
		if err != nil {
			return err
		}
		if b == 0xF7 {
			return nil
		}
	}
}

// recoverUnknownStatus skips the operand bytes of an unrecognized status
// within the channel-message ranges (1 byte for 0xCn/0xDn, 2 for
// 0x8n/0x9n/0xAn/0xBn/0xEn) so the stream can continue. Anything outside
// those ranges is fatal.
func recoverUnknownStatus(r io.ReadSeeker, status byte) error {
	nibble := status & 0xF0
	var skip int
	switch nibble {
	case 0xC0, 0xD0:
		skip = 1
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		skip = 2
	default:
		return ErrUnknownStatus
	}
	buf := make([]byte, skip)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ErrTruncatedContainer
	}
	return nil
}
