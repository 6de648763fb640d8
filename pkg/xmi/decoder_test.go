package xmi

import (
	"bytes"
	"testing"
)

func TestReadDeltaAdditive(t *testing.T) {
	tests := []struct {
		name    string
		bytes   []byte
		want    uint32
		remains int // bytes left unread in the stream after the delta
	}{
		{"zero delta", []byte{0x00, 0x90}, 0, 1},
		{"single byte", []byte{0x05, 0x90}, 5, 1},
		{"terminates on status byte without consuming it", []byte{0x90}, 0, 1},
		{"127 continues the run", []byte{127, 5, 0x90}, 132, 1},
		{"two 127 runs", []byte{127, 127, 10, 0x80}, 264, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.bytes)
			got, err := readDelta(r)
			if err != nil {
				t.Fatalf("readDelta() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readDelta() = %d, want %d", got, tt.want)
			}
			if r.Len() != tt.remains {
				t.Errorf("remaining = %d, want %d", r.Len(), tt.remains)
			}
		})
	}
}

func TestReadVLQ(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
		want  uint32
	}{
		{"single byte", []byte{0x60}, 0x60},
		{"two bytes", []byte{0x81, 0x00}, 128},
		{"three bytes", []byte{0xFF, 0xFF, 0x7F}, 0x1FFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readVLQ(bytes.NewReader(tt.bytes))
			if err != nil {
				t.Fatalf("readVLQ() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readVLQ() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseEventNoteOnWithDuration(t *testing.T) {
	// S2-style: 90 3C 40 60 -> Note On C4 vel 64 duration 96 ticks
	data := []byte{0x90, 0x3C, 0x40, 0x60}
	var lastStatus byte
	tb := NewTimeBase()

	result, err := parseEvent(bytes.NewReader(data), &lastStatus, &tb)
	if err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if result.command == nil || result.command.Kind != KindNoteOn {
		t.Fatalf("command = %+v, want NoteOn", result.command)
	}
	if result.command.Key != 0x3C || result.command.Velocity != 0x40 {
		t.Errorf("command = %+v", result.command)
	}
	if !result.scheduleNoteOff || result.durationTicks != 96 {
		t.Errorf("scheduleNoteOff=%v durationTicks=%d, want true 96", result.scheduleNoteOff, result.durationTicks)
	}
	if lastStatus != 0x90 {
		t.Errorf("lastStatus = %#x, want 0x90", lastStatus)
	}
}

func TestParseEventNoteOnZeroVelocityIsNoteOff(t *testing.T) {
	data := []byte{0x90, 0x3C, 0x00, 0x60}
	var lastStatus byte
	tb := NewTimeBase()

	result, err := parseEvent(bytes.NewReader(data), &lastStatus, &tb)
	if err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if result.command == nil || result.command.Kind != KindNoteOff {
		t.Fatalf("command = %+v, want NoteOff", result.command)
	}
	if result.scheduleNoteOff {
		t.Error("velocity-0 note on must not schedule a note off")
	}
}

func TestParseEventRunningStatus(t *testing.T) {
	// S3: one real status then two running-status Note-Ons.
	data := []byte{0x90, 0x3C, 0x40, 0x60, 0x3E, 0x40, 0x60}
	var lastStatus byte
	tb := NewTimeBase()
	r := bytes.NewReader(data)

	for i := 0; i < 2; i++ {
		result, err := parseEvent(r, &lastStatus, &tb)
		if err != nil {
			t.Fatalf("parseEvent() #%d error = %v", i, err)
		}
		if result.command == nil || result.command.Kind != KindNoteOn {
			t.Fatalf("command #%d = %+v, want NoteOn", i, result.command)
		}
	}
}

func TestParseEventRunningStatusWithoutPrior(t *testing.T) {
	data := []byte{0x3C, 0x40, 0x60}
	var lastStatus byte
	tb := NewTimeBase()

	_, err := parseEvent(bytes.NewReader(data), &lastStatus, &tb)
	if err != ErrRunningStatusWithoutPrior {
		t.Errorf("err = %v, want ErrRunningStatusWithoutPrior", err)
	}
}

func TestParseEventChannelMessages(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind CommandKind
	}{
		{"note off", []byte{0x80, 0x3C, 0x40}, KindNoteOff},
		{"poly aftertouch", []byte{0xA0, 0x3C, 0x20}, KindPolyphonicAftertouch},
		{"controller change", []byte{0xB0, 0x07, 0x7F}, KindControllerChange},
		{"program change", []byte{0xC0, 0x05}, KindProgramChange},
		{"channel aftertouch", []byte{0xD0, 0x30}, KindChannelAftertouch},
		{"pitch bend", []byte{0xE0, 0x00, 0x40}, KindPitchBend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lastStatus byte
			tb := NewTimeBase()
			result, err := parseEvent(bytes.NewReader(tt.data), &lastStatus, &tb)
			if err != nil {
				t.Fatalf("parseEvent() error = %v", err)
			}
			if result.command == nil || result.command.Kind != tt.kind {
				t.Fatalf("command = %+v, want kind %v", result.command, tt.kind)
			}
		})
	}
}

func TestParseEventPitchBendValue14(t *testing.T) {
	var lastStatus byte
	tb := NewTimeBase()
	// lsb=0x7F, msb=0x7F -> 0x7F | (0x7F<<7) = 16383
	result, err := parseEvent(bytes.NewReader([]byte{0xE0, 0x7F, 0x7F}), &lastStatus, &tb)
	if err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if result.command.Value14 != 16383 {
		t.Errorf("Value14 = %d, want 16383", result.command.Value14)
	}
}

func TestParseEventSetTempo(t *testing.T) {
	// S4: FF 51 03 0F 42 40 -> microsPerQuarter=1_000_000 -> 60 BPM
	data := []byte{0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40}
	var lastStatus byte
	tb := NewTimeBase()

	result, err := parseEvent(bytes.NewReader(data), &lastStatus, &tb)
	if err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if result.command != nil {
		t.Errorf("meta event should not emit a command, got %+v", result.command)
	}
	if tb.BPM != 60 {
		t.Errorf("BPM = %v, want 60", tb.BPM)
	}
}

func TestParseEventSetTempoNoOp(t *testing.T) {
	// FF 51 03 07 A1 20 -> microsPerQuarter=500000 -> 120 BPM (default, no-op)
	data := []byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}
	var lastStatus byte
	tb := NewTimeBase()

	if _, err := parseEvent(bytes.NewReader(data), &lastStatus, &tb); err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if tb.BPM != 120 {
		t.Errorf("BPM = %v, want 120", tb.BPM)
	}
}

func TestParseEventTimeSignature(t *testing.T) {
	data := []byte{0xFF, 0x58, 0x04, 3, 3, 24, 8} // 3/8
	var lastStatus byte
	tb := NewTimeBase()

	if _, err := parseEvent(bytes.NewReader(data), &lastStatus, &tb); err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if tb.TimeSigNum != 3 || tb.TimeSigDen != 8 {
		t.Errorf("time sig = %d/%d, want 3/8", tb.TimeSigNum, tb.TimeSigDen)
	}
}

func TestParseEventSysExConsumed(t *testing.T) {
	data := []byte{0xF0, 0x41, 0x10, 0x42, 0xF7, 0x90, 0x3C, 0x40, 0x00}
	var lastStatus byte
	tb := NewTimeBase()
	r := bytes.NewReader(data)

	result, err := parseEvent(r, &lastStatus, &tb)
	if err != nil {
		t.Fatalf("parseEvent() error = %v", err)
	}
	if result.command != nil {
		t.Errorf("sysex should not emit a command, got %+v", result.command)
	}
	// The next event should parse cleanly as a Note On.
	next, err := parseEvent(r, &lastStatus, &tb)
	if err != nil {
		t.Fatalf("parseEvent() second call error = %v", err)
	}
	if next.command == nil || next.command.Kind != KindNoteOn {
		t.Errorf("second command = %+v, want NoteOn", next.command)
	}
}

func TestParseEventUnknownStatusFatal(t *testing.T) {
	// 0xF2 (song position pointer in real MIDI) is outside XMI's recognized
	// ranges and its nibble (0xF0) is not in the skip table, so it is fatal.
	var lastStatus byte
	tb := NewTimeBase()
	_, err := parseEvent(bytes.NewReader([]byte{0xF2, 0x00, 0x00}), &lastStatus, &tb)
	if err != ErrUnknownStatus {
		t.Errorf("err = %v, want ErrUnknownStatus", err)
	}
}
