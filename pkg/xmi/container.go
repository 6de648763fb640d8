package xmi

import (
	"encoding/binary"
	"io"
)

// formAsInt is the AIL quirk constant: some XMI files store the outer FORM
// header as "XMID" followed by the big-endian integer 0x464F524D (the ASCII
// bytes "FORM"), rather than the form type id immediately following a
// correctly sized FORM chunk. Walker.descend recognizes and reinterprets it.
const formAsInt uint32 = 0x464F524D

// chunkHeaderSize is the 4-byte id + 4-byte big-endian size every chunk
// opens with, named the way the teacher names fixed binary field widths in
// pkg/converter/devices/td3.go.
const chunkHeaderSize = 8

// evntBounds is the byte range of a located EVNT chunk's payload, expressed
// as absolute offsets into the source.
type evntBounds struct {
	start uint64
	end   uint64
}

// walker descends the FORM/CAT IFF hierarchy of an XMI file to locate the
// first EVNT sub-chunk. It seeks rather than buffers, so catalog offset
// lists never require the whole file in memory.
type walker struct {
	r io.ReadSeeker
}

func newWalker(r io.ReadSeeker) *walker {
	return &walker{r: r}
}

// locateEvnt walks from the current reader position and returns the bounds
// of the first EVNT chunk found.
func (w *walker) locateEvnt() (evntBounds, error) {
	size, err := w.seekSize()
	if err != nil {
		return evntBounds{}, err
	}
	pos, err := w.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return evntBounds{}, err
	}
	return w.descend(uint64(pos), size)
}

// seekSize reports the total size of the reader, used to bound descent.
func (w *walker) seekSize() (uint64, error) {
	cur, err := w.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := w.r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := w.r.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return uint64(end), nil
}

// readID reads a 4-byte ASCII chunk id without advancing past it on error.
func (w *walker) readID() (string, error) {
	var buf [4]byte
	if _, err := io.ReadFull(w.r, buf[:]); err != nil {
		return "", ErrTruncatedContainer
	}
	return string(buf[:]), nil
}

func (w *walker) readBE32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(w.r, buf[:]); err != nil {
		return 0, ErrTruncatedContainer
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (w *walker) readLE32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(w.r, buf[:]); err != nil {
		return 0, ErrTruncatedContainer
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (w *walker) readLE16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(w.r, buf[:]); err != nil {
		return 0, ErrTruncatedContainer
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// descend walks chunks within [pos, limit), returning the first EVNT found.
func (w *walker) descend(pos, limit uint64) (evntBounds, error) {
	for pos+chunkHeaderSize <= limit {
		if _, err := w.r.Seek(int64(pos), io.SeekStart); err != nil {
			return evntBounds{}, ErrTruncatedContainer
		}
		id, err := w.readID()
		if err != nil {
			return evntBounds{}, err
		}
		size, err := w.readBE32()
		if err != nil {
			return evntBounds{}, err
		}

		headerSize := uint64(chunkHeaderSize)
		if id == "XMID" && size == formAsInt {
			// FORM_AS_INT quirk: reinterpret as FORM, read the real size next.
			realSize, err := w.readBE32()
			if err != nil {
				return evntBounds{}, err
			}
			id = "FORM"
			size = realSize
			headerSize += 4
		}

		payloadStart := pos + headerSize
		payloadEnd := payloadStart + uint64(size)
		if payloadEnd > limit {
			return evntBounds{}, ErrTruncatedContainer
		}

		switch id {
		case "EVNT":
			return evntBounds{start: payloadStart, end: payloadEnd}, nil
		case "FORM":
			// skip the 4-byte form-type id, recurse into the remainder
			bounds, err := w.descend(payloadStart+4, payloadEnd)
			if err == nil {
				return bounds, nil
			}
		case "CAT ":
			bounds, err := w.descendCatalog(payloadStart+4, payloadEnd)
			if err == nil {
				return bounds, nil
			}
		}

		pos = payloadEnd
		if size%2 == 1 && pos < limit {
			pos++
		}
	}
	return evntBounds{}, ErrNoEvntChunk
}

// Sniff reports whether r begins with a recognizable XMI top-level header:
// FORM/XMID, CAT , or the XMID+FORM_AS_INT self-wrapped variant. It reads
// at most 12 bytes and does not consume from r beyond what ReadSeeker
// requires, since callers typically Sniff before constructing a Sequencer
// from the same path.
func Sniff(r io.ReadSeeker) bool {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	defer r.Seek(start, io.SeekStart)

	w := newWalker(r)
	id, err := w.readID()
	if err != nil {
		return false
	}
	size, err := w.readBE32()
	if err != nil {
		return false
	}
	switch id {
	case "FORM", "CAT ":
		return true
	case "XMID":
		return size == formAsInt
	}
	return false
}

// descendCatalog handles CAT 's two possible bodies: a nested FORM/XMID
// chunk (recurse normally) or an offset list of absolute file positions.
func (w *walker) descendCatalog(pos, limit uint64) (evntBounds, error) {
	if pos+4 > limit {
		return evntBounds{}, ErrTruncatedContainer
	}
	if _, err := w.r.Seek(int64(pos), io.SeekStart); err != nil {
		return evntBounds{}, ErrTruncatedContainer
	}
	peek, err := w.readID()
	if err != nil {
		return evntBounds{}, err
	}
	if peek == "FORM" || peek == "XMID" || peek == "MROF" {
		return w.descend(pos, limit)
	}

	// Offset-list mode: rewind to pos, read a little-endian 16-bit count
	// followed by that many little-endian 32-bit absolute offsets.
	if _, err := w.r.Seek(int64(pos), io.SeekStart); err != nil {
		return evntBounds{}, ErrTruncatedContainer
	}
	count, err := w.readLE16()
	if err != nil {
		return evntBounds{}, err
	}
	// Two reserved bytes sit between the entry count and the offset list.
	if _, err := w.r.Seek(2, io.SeekCurrent); err != nil {
		return evntBounds{}, ErrTruncatedContainer
	}
	fileSize, err := w.seekSize()
	if err != nil {
		return evntBounds{}, err
	}
	for i := uint16(0); i < count; i++ {
		offset, err := w.readLE32()
		if err != nil {
			return evntBounds{}, ErrTruncatedContainer
		}
		if offset == 0 {
			continue
		}
		resume, err := w.r.Seek(0, io.SeekCurrent)
		if err != nil {
			return evntBounds{}, err
		}
		bounds, walkErr := w.descend(uint64(offset), fileSize)
		if _, seekErr := w.r.Seek(resume, io.SeekStart); seekErr != nil {
			return evntBounds{}, seekErr
		}
		if walkErr == nil {
			return bounds, nil
		}
	}
	return evntBounds{}, ErrNoEvntChunk
}
