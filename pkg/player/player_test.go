package player

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chunk builds a single IFF chunk: 4-byte id, BE32 size, payload, and an
// odd-size pad byte, matching the XMI container's chunk framing.
func chunk(id string, payload []byte) []byte {
	var buf []byte
	buf = append(buf, []byte(id)...)
	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(payload)))
	buf = append(buf, size...)
	buf = append(buf, payload...)
	if len(payload)%2 == 1 {
		buf = append(buf, 0)
	}
	return buf
}

func formXMID(inner []byte) []byte {
	payload := append([]byte("XMID"), inner...)
	return chunk("FORM", payload)
}

func writeXMIFile(t *testing.T, evntPayload []byte) string {
	t.Helper()
	data := formXMID(chunk("EVNT", evntPayload))
	dir := t.TempDir()
	path := filepath.Join(dir, "song.xmi")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

type captureSink struct {
	msgs [][]byte
}

func (c *captureSink) Write(msg []byte) error {
	c.msgs = append(c.msgs, append([]byte(nil), msg...))
	return nil
}

func TestPlayerTickEmitsEncodedCommands(t *testing.T) {
	path := writeXMIFile(t, []byte{0x00, 0x90, 0x3C, 0x40, 0x60})
	cs := &captureSink{}
	p, err := New(path, 44100, false, cs, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	p.Tick(1)

	deadline := time.Now().Add(time.Second)
	for len(cs.msgs) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(cs.msgs) == 0 {
		t.Fatal("expected at least one encoded command after Tick")
	}
}

func TestPlayerDropsZeroInitially(t *testing.T) {
	path := writeXMIFile(t, []byte{0x00, 0x90, 0x3C, 0x40, 0x60})
	cs := &captureSink{}
	p, err := New(path, 44100, false, cs, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if p.Drops() != 0 {
		t.Errorf("Drops() = %d, want 0 initially", p.Drops())
	}
}

func TestPlayerCloseStopsConsumer(t *testing.T) {
	path := writeXMIFile(t, []byte{0x00, 0x90, 0x3C, 0x40, 0x60})
	cs := &captureSink{}
	p, err := New(path, 44100, false, cs, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
