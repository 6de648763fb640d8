package xmi

import (
	"io"
	"os"
)

// Warning is a non-fatal diagnostic surfaced during playback — pending
// buffer exhaustion, a recovered unknown status, and the like. It never
// stops the Sequencer; callers that want to observe it supply a Logger.
type Warning struct {
	SongTime float64
	Message  string
}

// Logger receives Warnings emitted during Advance. Sequencer.Logger may be
// left nil, in which case warnings are silently dropped.
type Logger interface {
	Warn(w Warning)
}

// SequencerState is the Sequencer's mutable playback state, addressable
// independently of the open file handle for tests and for the Metadata
// Probe, which recomputes a subset of it without a Command Queue.
type SequencerState struct {
	EvntStart        uint64
	EvntEnd          uint64
	Cursor           uint64
	LastStatus       byte
	SongTime         float64
	NextEventTime    float64
	SamplesProcessed uint64
	SampleRate       uint32
	TimeBase         TimeBase
	LoopEnabled      bool
	ReachedEnd       bool
	Loaded           bool
}

// Sequencer owns a source file, its parsed SequencerState, a fixed-capacity
// pending note-off buffer, and emits Commands to Sink on every Advance.
// RescalePendingOnTempoChange controls Design Note (a): whether tempo
// changes rescale note-offs already scheduled (default false, matching the
// source driver's observed behavior of leaving them at their originally
// computed absolute times).
type Sequencer struct {
	source                      io.ReadSeeker
	closer                      io.Closer
	state                       SequencerState
	pending                     *pendingBuffer
	Sink                        func(Command)
	Logger                      Logger
	RescalePendingOnTempoChange bool
}

// New constructs a Sequencer from a file path. Construction locates the
// EVNT chunk, initializes the timebase, and primes NextEventTime by reading
// the first delta. sink receives every emitted Command; it must not block.
func New(path string, sampleRate uint32, loop bool, sink func(Command)) (*Sequencer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: ErrNotFound}
	}
	seq, err := newFromReader(f, sampleRate, loop, sink)
	if err != nil {
		f.Close()
		return nil, wrapLoadError(path, err)
	}
	seq.closer = f
	return seq, nil
}

func wrapLoadError(path string, err error) error {
	if _, ok := err.(*LoadError); ok {
		return err
	}
	return &LoadError{Path: path, Err: err}
}

// newFromReader builds a Sequencer over an already-open ReadSeeker, used by
// New and by tests that exercise in-memory fixtures.
func newFromReader(r io.ReadSeeker, sampleRate uint32, loop bool, sink func(Command)) (*Sequencer, error) {
	bounds, err := newWalker(r).locateEvnt()
	if err != nil {
		return nil, err
	}
	seq := &Sequencer{
		source:  r,
		pending: newPendingBuffer(defaultPendingCapacity),
		Sink:    sink,
		state: SequencerState{
			EvntStart:  bounds.start,
			EvntEnd:    bounds.end,
			Cursor:     bounds.start,
			TimeBase:   NewTimeBase(),
			SampleRate: sampleRate,
			LoopEnabled: loop,
			Loaded:     true,
		},
	}
	if err := seq.primeNextEventTime(); err != nil {
		return nil, err
	}
	return seq, nil
}

// primeNextEventTime seeks to the current cursor and reads the first delta,
// converting it to an absolute song-time using the current seconds-per-tick.
func (s *Sequencer) primeNextEventTime() error {
	if s.state.Cursor >= s.state.EvntEnd {
		s.state.ReachedEnd = true
		return nil
	}
	if _, err := s.source.Seek(int64(s.state.Cursor), io.SeekStart); err != nil {
		return err
	}
	delta, err := readDelta(s.source)
	if err != nil {
		return err
	}
	pos, err := s.source.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	s.state.Cursor = uint64(pos)
	s.state.NextEventTime = s.state.SongTime + float64(delta)*s.state.TimeBase.SecondsPerTick
	return nil
}

// IsLoaded reports whether the Sequencer currently has a loaded stream.
func (s *Sequencer) IsLoaded() bool { return s.state.Loaded }

// State returns a copy of the current playback state, for inspection by
// callers such as pkg/player and pkg/tui.
func (s *Sequencer) State() SequencerState { return s.state }

// Close releases the underlying file, if Sequencer opened one via New.
func (s *Sequencer) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Reset rewinds playback to the start of the event stream: cursor to
// EvntStart, pending buffer cleared, an All-Notes-Off/All-Sound-Off
// ControllerChange pair enqueued on every channel, SamplesProcessed zeroed,
// and NextEventTime re-primed.
func (s *Sequencer) Reset() error {
	s.pending.clear()
	for ch := uint8(0); ch < 16; ch++ {
		s.emit(ControllerChange(ch, 123, 0))
		s.emit(ControllerChange(ch, 120, 0))
	}
	s.state.Cursor = s.state.EvntStart
	s.state.LastStatus = 0
	s.state.SongTime = 0
	s.state.SamplesProcessed = 0
	s.state.ReachedEnd = false
	s.state.Loaded = true
	return s.primeNextEventTime()
}

func (s *Sequencer) emit(c Command) {
	if s.Sink != nil {
		s.Sink(c)
	}
}

func (s *Sequencer) warn(msg string) {
	if s.Logger != nil {
		s.Logger.Warn(Warning{SongTime: s.state.SongTime, Message: msg})
	}
}

// Advance moves the song clock forward by nSamples at the Sequencer's
// sample rate: drains due note-offs, then parses events while
// NextEventTime <= SongTime. It never performs I/O beyond seeks and reads on
// the already-open source reader and never suspends. The pending buffer is
// fixed-capacity and does not allocate; event decoding may allocate (each
// decoded Command and each meta-event payload).
func (s *Sequencer) Advance(nSamples uint64) {
	if !s.state.Loaded {
		return
	}
	s.state.SamplesProcessed += nSamples
	s.state.SongTime += float64(nSamples) / float64(s.state.SampleRate)

	s.pending.drainDue(s.state.SongTime, func(channel, key uint8) {
		s.emit(NoteOff(channel, key))
	})

	for s.state.Loaded && !s.state.ReachedEnd && s.state.NextEventTime <= s.state.SongTime {
		thisEventTime := s.state.NextEventTime
		s.stepEvent(thisEventTime)
		if !s.state.ReachedEnd {
			if err := s.advanceDelta(); err != nil {
				s.warn(err.Error())
				s.state.ReachedEnd = true
			}
		}
	}

	if s.state.Loaded && s.state.ReachedEnd && s.pending.outstanding() == 0 {
		if s.state.LoopEnabled {
			if err := s.Reset(); err != nil {
				s.warn(err.Error())
				s.state.Loaded = false
			}
		} else {
			s.state.Loaded = false
		}
	}
}

// stepEvent parses one event at the current cursor, anchoring any scheduled
// Note Off at eventTime, and dispatches the resulting command (if any) to
// the sink.
func (s *Sequencer) stepEvent(eventTime float64) {
	if _, err := s.source.Seek(int64(s.state.Cursor), io.SeekStart); err != nil {
		s.warn(err.Error())
		s.state.ReachedEnd = true
		return
	}
	oldSecPerTick := s.state.TimeBase.SecondsPerTick
	result, err := parseEvent(s.source, &s.state.LastStatus, &s.state.TimeBase)
	if err != nil {
		s.warn(err.Error())
		s.state.ReachedEnd = true
		s.state.Loaded = false
		return
	}
	if newSecPerTick := s.state.TimeBase.SecondsPerTick; newSecPerTick != oldSecPerTick {
		s.rescaleOnTempoChange(newSecPerTick / oldSecPerTick)
	}
	pos, err := s.source.Seek(0, io.SeekCurrent)
	if err != nil {
		s.warn(err.Error())
		s.state.ReachedEnd = true
		return
	}
	s.state.Cursor = uint64(pos)

	if result.command != nil {
		cmd := *result.command
		s.emit(cmd)
		if result.scheduleNoteOff {
			dueAt := eventTime + float64(result.durationTicks)*s.state.TimeBase.SecondsPerTick
			s.pending.add(cmd.Channel, cmd.Key, dueAt, func(channel, key uint8) {
				s.warn("pending note-off buffer exhausted, dropping scheduled note-off")
			})
		}
	}
}

// advanceDelta reads the next delta-time and folds it into NextEventTime
// using the current (possibly just-updated) seconds-per-tick, or marks the
// stream ended if the cursor has reached EvntEnd.
func (s *Sequencer) advanceDelta() error {
	if s.state.Cursor >= s.state.EvntEnd {
		s.state.ReachedEnd = true
		return nil
	}
	if _, err := s.source.Seek(int64(s.state.Cursor), io.SeekStart); err != nil {
		return err
	}
	delta, err := readDelta(s.source)
	if err != nil {
		return err
	}
	pos, err := s.source.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	s.state.Cursor = uint64(pos)
	s.state.NextEventTime += float64(delta) * s.state.TimeBase.SecondsPerTick
	return nil
}

// rescaleOnTempoChange, when RescalePendingOnTempoChange is enabled, shifts
// every outstanding pending note-off by ratio = newSecPerTick/oldSecPerTick
// relative to the current SongTime, per Design Note (a)'s optional policy.
func (s *Sequencer) rescaleOnTempoChange(ratio float64) {
	if !s.RescalePendingOnTempoChange {
		return
	}
	s.pending.adjust(s.state.SongTime, ratio)
}
