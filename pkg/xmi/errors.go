// Package xmi implements the XMI (Extended MIDI) container walker, event
// decoder, and real-time scheduler used by the AIL Miles Sound System.
package xmi

import (
	"errors"
	"strconv"
)

// Load-time failures. These are returned to the caller constructing a
// Sequencer or running a Probe; they are never produced mid-stream.
var (
	// ErrNotFound means the backing file is missing or unreadable.
	ErrNotFound = errors.New("xmi: file not found or unreadable")
	// ErrNoEvntChunk means the container walk completed without locating an
	// EVNT chunk.
	ErrNoEvntChunk = errors.New("xmi: no EVNT chunk found")
	// ErrTruncatedContainer means a chunk header or payload claims bytes
	// past EOF. Recovered within catalog branches; fatal at the top level.
	ErrTruncatedContainer = errors.New("xmi: truncated container")
)

// Stream-time failures. These stop playback cleanly by setting the
// Sequencer's loaded flag to false; they are surfaced through the
// Sequencer's Logger rather than returned from Advance, since Advance must
// not suspend or fail the driver's call.
var (
	// ErrRunningStatusWithoutPrior means the first event byte in the
	// stream has its high bit clear (running status) but no prior status
	// byte was ever set.
	ErrRunningStatusWithoutPrior = errors.New("xmi: running status with no prior status byte")
	// ErrUnknownStatus means a status byte was none of the recognized
	// channel messages (0x80..0xEF), SysEx (0xF0), or meta (0xFF).
	ErrUnknownStatus = errors.New("xmi: unknown status byte")
)

// LoadError wraps a load-time failure with the file path that triggered it.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// DecodeError wraps a stream-time failure with the cursor offset at which
// it was detected.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return "xmi: decode error at offset " + strconv.FormatInt(e.Offset, 10) + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
