package xmi

import (
	"io"
	"os"
)

// Result is what the Metadata Probe reports: enough to populate a file
// browser or the JSON API without constructing a full Sequencer or opening
// a Command Queue.
type Result struct {
	Found          bool    `json:"found"`
	DurationSeconds float64 `json:"duration_seconds"`
	BPM            float64 `json:"bpm"`
	TimeSigNum     uint8   `json:"time_sig_num"`
	TimeSigDen     uint8   `json:"time_sig_den"`
	EventCount     int     `json:"event_count"`
	Error          string  `json:"error,omitempty"`
}

// Probe re-runs the Container Walker and Event Decoder over path without a
// Command Sink, tracking the last event's cumulative delta time, the final
// tempo and time signature, and how many events were decoded. It never
// constructs a Sequencer and never allocates a pending buffer.
func Probe(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{Error: ErrNotFound.Error()}
	}
	defer f.Close()
	return probeReader(f)
}

func probeReader(r io.ReadSeeker) Result {
	bounds, err := newWalker(r).locateEvnt()
	if err != nil {
		return Result{Error: err.Error()}
	}

	tb := NewTimeBase()
	var lastStatus byte
	cursor := bounds.start
	songTime := 0.0
	eventCount := 0

	for cursor < bounds.end {
		// The stream is delta-first: read the leading delta-time before the
		// event it precedes, same as Sequencer.primeNextEventTime.
		if _, err := r.Seek(int64(cursor), io.SeekStart); err != nil {
			return Result{Error: err.Error()}
		}
		delta, err := readDelta(r)
		if err != nil {
			return Result{Error: err.Error()}
		}
		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return Result{Error: err.Error()}
		}
		cursor = uint64(pos)

		if cursor >= bounds.end {
			break
		}
		songTime += float64(delta) * tb.SecondsPerTick
		if _, err := r.Seek(int64(cursor), io.SeekStart); err != nil {
			return Result{Error: err.Error()}
		}
		if _, err := parseEvent(r, &lastStatus, &tb); err != nil {
			return Result{Error: err.Error()}
		}
		eventCount++
		pos, err = r.Seek(0, io.SeekCurrent)
		if err != nil {
			return Result{Error: err.Error()}
		}
		cursor = uint64(pos)
	}

	return Result{
		Found:          true,
		DurationSeconds: songTime,
		BPM:            tb.BPM,
		TimeSigNum:     tb.TimeSigNum,
		TimeSigDen:     tb.TimeSigDen,
		EventCount:     eventCount,
	}
}
