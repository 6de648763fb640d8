// Package sink converts decoded xmi.Command values into validated MIDI wire
// messages (three bytes, or two for program change and channel aftertouch)
// and hands them to whatever consumes raw MIDI output.
package sink

import (
	"fmt"
	"log"

	"gitlab.com/gomidi/midi/v2"

	"github.com/milesxmi/xmiseq/pkg/xmi"
)

// Sink is the opaque consumer of raw wire-format MIDI messages: a real
// driver, a file writer, or (for tests and the CLI) a Logger.
type Sink interface {
	Write(msg []byte) error
}

// Encode converts a Command to its encoded gomidi message and writes it to
// sink. Fields out of MIDI's valid range are dropped and logged rather than
// clamped or silently wrapped, matching the decoder's recovery stance on
// malformed input.
func Encode(cmd xmi.Command, sink Sink, logger *log.Logger) error {
	msg, ok := build(cmd)
	if !ok {
		if logger != nil {
			logger.Printf("sink: dropped out-of-range command %s ch=%d", cmd.Kind, cmd.Channel)
		}
		return nil
	}
	if err := sink.Write(msg); err != nil {
		return fmt.Errorf("sink: write failed: %w", err)
	}
	return nil
}

func build(cmd xmi.Command) (midi.Message, bool) {
	if cmd.Channel > 15 {
		return nil, false
	}
	switch cmd.Kind {
	case xmi.KindNoteOn:
		if cmd.Key > 127 || cmd.Velocity > 127 {
			return nil, false
		}
		return midi.NoteOn(cmd.Channel, cmd.Key, cmd.Velocity), true
	case xmi.KindNoteOff:
		if cmd.Key > 127 {
			return nil, false
		}
		return midi.NoteOff(cmd.Channel, cmd.Key), true
	case xmi.KindProgramChange:
		if cmd.Program > 127 {
			return nil, false
		}
		return midi.ProgramChange(cmd.Channel, cmd.Program), true
	case xmi.KindControllerChange:
		if cmd.Controller > 127 || cmd.Value > 127 {
			return nil, false
		}
		return midi.ControlChange(cmd.Channel, cmd.Controller, cmd.Value), true
	case xmi.KindPitchBend:
		if cmd.Value14 > 16383 {
			return nil, false
		}
		return midi.Pitchbend(cmd.Channel, int16(cmd.Value14)), true
	case xmi.KindPolyphonicAftertouch:
		if cmd.Key > 127 || cmd.Value > 127 {
			return nil, false
		}
		return buildPolyAftertouch(cmd.Channel, cmd.Key, cmd.Value), true
	case xmi.KindChannelAftertouch:
		if cmd.Value > 127 {
			return nil, false
		}
		return buildChannelAftertouch(cmd.Channel, cmd.Value), true
	default:
		return nil, false
	}
}

// buildPolyAftertouch hand-builds the 0xAn key,value message. gomidi/midi/v2
// is only confirmed in this codebase's usage to expose NoteOn/NoteOff/
// ControlChange/ProgramChange/Pitchbend; polyphonic key pressure has no
// confirmed constructor in any referenced usage, so it is built directly
// per the documented byte layout instead of guessing at an API name.
func buildPolyAftertouch(channel, key, value uint8) midi.Message {
	return midi.Message{0xA0 | channel, key & 0x7F, value & 0x7F}
}

// buildChannelAftertouch hand-builds the 0xDn value message, for the same
// reason as buildPolyAftertouch.
func buildChannelAftertouch(channel, value uint8) midi.Message {
	return midi.Message{0xD0 | channel, value & 0x7F}
}

// Logger is a Sink that writes each message as a log line, standing in for
// a real MIDI-out driver in the CLI, TUI, and tests.
type Logger struct {
	L *log.Logger
}

func NewLogger(l *log.Logger) *Logger {
	return &Logger{L: l}
}

func (s *Logger) Write(msg []byte) error {
	s.L.Printf("midi: % X", msg)
	return nil
}
