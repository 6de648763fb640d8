// Package player composes a Sequencer, a Command Queue, and a consumer
// goroutine draining that queue into a Sink: the thin wiring the CLI, TUI,
// and API front ends share.
package player

import (
	"fmt"
	"log"
	"time"

	"github.com/milesxmi/xmiseq/pkg/queue"
	"github.com/milesxmi/xmiseq/pkg/sink"
	"github.com/milesxmi/xmiseq/pkg/xmi"
)

// defaultQueueCapacity bounds the Command Queue; a few hundred entries
// absorbs any single advance's worth of simultaneous events without
// blocking the Scheduler goroutine.
const defaultQueueCapacity = 1024

// Player owns the Sequencer and the goroutine draining its Command Queue
// into a sink.Sink. Tick is the only method meant to be called from the
// audio-producer thread; the consumer goroutine runs independently.
type Player struct {
	Seq    *xmi.Sequencer
	queue  *queue.Ring[xmi.Command]
	sink   sink.Sink
	logger *log.Logger
	stop   chan struct{}
	done   chan struct{}
	drops  uint64
}

// New opens path at sampleRate and wires a Player around it. s receives
// every MIDI message the Sequencer produces, encoded via pkg/sink.
func New(path string, sampleRate uint32, loop bool, s sink.Sink, logger *log.Logger) (*Player, error) {
	p := &Player{
		queue:  queue.NewRing[xmi.Command](defaultQueueCapacity),
		sink:   s,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	seq, err := xmi.New(path, sampleRate, loop, func(c xmi.Command) {
		if !p.queue.Push(c) {
			p.drops++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}
	seq.Logger = sequencerLogger{logger}
	p.Seq = seq
	go p.consume()
	return p, nil
}

// Tick advances the Sequencer by nSamples. Call it from the audio-producer
// thread at the cadence of one audio buffer.
func (p *Player) Tick(nSamples uint64) {
	p.Seq.Advance(nSamples)
}

// Close stops the consumer goroutine and releases the Sequencer's file.
func (p *Player) Close() error {
	close(p.stop)
	<-p.done
	return p.Seq.Close()
}

// Drops reports how many commands were discarded because the queue was
// full when produced — a diagnostic, not a crash, per the buffer's
// degraded-mode design.
func (p *Player) Drops() uint64 { return p.drops }

func (p *Player) consume() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		cmd, ok := p.queue.Pop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if err := sink.Encode(cmd, p.sink, p.logger); err != nil && p.logger != nil {
			p.logger.Printf("player: %v", err)
		}
	}
}

// sequencerLogger adapts a *log.Logger to xmi.Logger.
type sequencerLogger struct {
	l *log.Logger
}

func (s sequencerLogger) Warn(w xmi.Warning) {
	if s.l != nil {
		s.l.Printf("xmi: t=%.3f %s", w.SongTime, w.Message)
	}
}
