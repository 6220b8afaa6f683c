package snapshot

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
)

var errShort = errors.New("unexpected end of snapshot")

// writer wraps io.Writer with position tracking and a running checksum of
// everything written.
type writer struct {
	w      io.Writer
	digest *xxhash.Digest
	offset int64
	err    error
}

func newWriter(w io.Writer) *writer {
	return &writer{w: w, digest: xxhash.New()}
}

// bytes writes b. The first error sticks and later writes are dropped.
func (sw *writer) bytes(b []byte) {
	if sw.err != nil {
		return
	}
	n, err := sw.w.Write(b)
	sw.offset += int64(n)
	_, _ = sw.digest.Write(b[:n])
	sw.err = err
}

// putLE writes val in little-endian byte order.
func putLE[T uint8 | uint16 | uint32 | uint64](sw *writer, val T) {
	var buf [8]byte
	var zero T
	switch any(zero).(type) {
	case uint8:
		buf[0] = byte(val)
		sw.bytes(buf[:1])
	case uint16:
		binary.LittleEndian.PutUint16(buf[:], uint16(val))
		sw.bytes(buf[:2])
	case uint32:
		binary.LittleEndian.PutUint32(buf[:], uint32(val))
		sw.bytes(buf[:4])
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], uint64(val))
		sw.bytes(buf[:8])
	}
}

// reader consumes a snapshot held in memory.
type reader struct {
	b   []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.b)-r.off < n {
		return nil, errShort
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

// getLE reads a little-endian value of type T.
func getLE[T uint8 | uint16 | uint32 | uint64](r *reader) (T, error) {
	var zero T
	var size int
	switch any(zero).(type) {
	case uint8:
		size = 1
	case uint16:
		size = 2
	case uint32:
		size = 4
	case uint64:
		size = 8
	}

	buf, err := r.take(size)
	if err != nil {
		return zero, err
	}

	var val T
	switch any(zero).(type) {
	case uint8:
		val = T(buf[0])
	case uint16:
		val = T(binary.LittleEndian.Uint16(buf))
	case uint32:
		val = T(binary.LittleEndian.Uint32(buf))
	case uint64:
		val = T(binary.LittleEndian.Uint64(buf))
	}
	return val, nil
}

// appendOffsets appends n followed by the delta-encoded offsets.
func appendOffsets(dst []byte, offs []int64) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(offs)))
	var prev int64
	for _, off := range offs {
		dst = binary.AppendUvarint(dst, uint64(off-prev))
		prev = off
	}
	return dst
}

// readOffsets decodes a table written by appendOffsets. Offsets must be
// strictly increasing and below limit.
func readOffsets(r *reader, limit int64) ([]int64, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	// every entry takes at least one byte
	if n > uint64(len(r.b)-r.off) {
		return nil, errors.New("offset count exceeds payload")
	}

	offs := make([]int64, n)
	var prev int64
	for i := range offs {
		d, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		if i > 0 && d == 0 {
			return nil, errors.New("offsets are not strictly increasing")
		}
		if d > uint64(limit) {
			return nil, errors.New("offset beyond document size")
		}
		off := prev + int64(d)
		if off >= limit {
			return nil, errors.New("offset beyond document size")
		}
		offs[i] = off
		prev = off
	}
	return offs, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.off:])
	if n <= 0 {
		return 0, errShort
	}
	r.off += n
	return v, nil
}
