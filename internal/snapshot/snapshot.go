// Package snapshot persists the offset tables of an index so a document
// does not have to be re-scanned when it has not changed.
//
// Layout, little-endian:
//
//	magic "AIDX" | format u8 | codec u8 | document size u64 | document hash u64
//	declared total u64 | version length u8 | version
//	raw length u32 | payload length u32 | payload | checksum u64
//
// The payload holds both offset tables as delta varints, compressed with
// the codec. The checksum is xxhash64 of every byte before it.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/simonhull/audioindex/internal/pool"
	"github.com/simonhull/audioindex/internal/source"
)

// FormatVersion is the snapshot layout version written by Encode.
const FormatVersion = 1

// MaxSize bounds how much Decode reads.
const MaxSize = 256 << 20

var magic = []byte("AIDX")

// ErrStale is returned by Verify when the document changed since the
// snapshot was taken.
var ErrStale = errors.New("document changed since snapshot")

// Snapshot is the persisted form of an index.
type Snapshot struct {
	Codec Codec

	// DocSize and DocHash identify the document the offsets belong to.
	DocSize int64
	DocHash uint64

	Version       string
	DeclaredTotal int

	Files   []int64
	Folders []int64
}

// Encode writes s to w. The codec recorded in the output may be CodecNone
// when s.Codec cannot shrink the payload.
func Encode(w io.Writer, s *Snapshot) error {
	if len(s.Version) > math.MaxUint8 {
		return fmt.Errorf("version string too long: %d bytes", len(s.Version))
	}

	raw := appendOffsets(nil, s.Files)
	raw = appendOffsets(raw, s.Folders)
	payload, codec, err := compress(s.Codec, raw)
	if err != nil {
		return fmt.Errorf("compress offsets: %w", err)
	}
	if uint64(len(raw)) > math.MaxUint32 || uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("offset payload too large: %d bytes", len(raw))
	}

	sw := newWriter(w)
	sw.bytes(magic)
	putLE(sw, uint8(FormatVersion))
	putLE(sw, uint8(codec))
	putLE(sw, uint64(s.DocSize))
	putLE(sw, s.DocHash)
	putLE(sw, uint64(int64(s.DeclaredTotal)))
	putLE(sw, uint8(len(s.Version)))
	sw.bytes([]byte(s.Version))
	putLE(sw, uint32(len(raw)))
	putLE(sw, uint32(len(payload)))
	sw.bytes(payload)
	putLE(sw, sw.digest.Sum64())

	if sw.err != nil {
		return fmt.Errorf("write snapshot at offset %d: %w", sw.offset, sw.err)
	}
	return nil
}

// Decode reads a snapshot written by Encode and checks its integrity.
// It does not check that the snapshot matches any document; see Verify.
func Decode(r io.Reader) (*Snapshot, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(b) > MaxSize {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", MaxSize)
	}
	if len(b) < len(magic)+8 || !bytes.Equal(b[:len(magic)], magic) {
		return nil, errors.New("not a snapshot")
	}

	body := b[:len(b)-8]
	rd := &reader{b: b[len(body):]}
	sum, _ := getLE[uint64](rd)
	if xxhash.Sum64(body) != sum {
		return nil, errors.New("checksum mismatch")
	}

	rd = &reader{b: body, off: len(magic)}
	format, err := getLE[uint8](rd)
	if err != nil {
		return nil, err
	}
	if format != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", format)
	}

	s := &Snapshot{}
	codec, err := getLE[uint8](rd)
	if err != nil {
		return nil, err
	}
	s.Codec = Codec(codec)

	size, err := getLE[uint64](rd)
	if err != nil {
		return nil, err
	}
	if size > math.MaxInt64 {
		return nil, fmt.Errorf("invalid document size %d", size)
	}
	s.DocSize = int64(size)

	if s.DocHash, err = getLE[uint64](rd); err != nil {
		return nil, err
	}

	total, err := getLE[uint64](rd)
	if err != nil {
		return nil, err
	}
	s.DeclaredTotal = int(int64(total))

	vlen, err := getLE[uint8](rd)
	if err != nil {
		return nil, err
	}
	version, err := rd.take(int(vlen))
	if err != nil {
		return nil, err
	}
	s.Version = string(version)

	rawLen, err := getLE[uint32](rd)
	if err != nil {
		return nil, err
	}
	payLen, err := getLE[uint32](rd)
	if err != nil {
		return nil, err
	}
	payload, err := rd.take(int(payLen))
	if err != nil {
		return nil, err
	}
	if rd.off != len(body) {
		return nil, fmt.Errorf("%d trailing bytes", len(body)-rd.off)
	}
	if rawLen > MaxSize {
		return nil, fmt.Errorf("offset payload of %d bytes exceeds limit", rawLen)
	}

	raw, err := decompress(s.Codec, payload, int(rawLen))
	if err != nil {
		return nil, err
	}

	pr := &reader{b: raw}
	if s.Files, err = readOffsets(pr, s.DocSize); err != nil {
		return nil, fmt.Errorf("file offsets: %w", err)
	}
	if s.Folders, err = readOffsets(pr, s.DocSize); err != nil {
		return nil, fmt.Errorf("folder offsets: %w", err)
	}
	if pr.off != len(raw) {
		return nil, fmt.Errorf("%d trailing payload bytes", len(raw)-pr.off)
	}
	return s, nil
}

// Fingerprint hashes the whole document in chunks of window bytes.
func Fingerprint(src *source.Source, window int) (uint64, error) {
	if window <= 0 {
		window = pool.ChunkBufferDefaultSize
	}
	buf := pool.GetChunk(window)
	defer pool.PutChunk(buf)

	d := xxhash.New()
	var off int64
	for off < src.Size() {
		n, err := src.ReadAt(buf.B, off, "fingerprint")
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
		_, _ = d.Write(buf.B[:n])
		off += int64(n)
	}
	return d.Sum64(), nil
}

// Verify reports whether s was taken from the document behind src.
func (s *Snapshot) Verify(src *source.Source, window int) error {
	if src.Size() != s.DocSize {
		return fmt.Errorf("%w: size %d, snapshot has %d", ErrStale, src.Size(), s.DocSize)
	}
	sum, err := Fingerprint(src, window)
	if err != nil {
		return err
	}
	if sum != s.DocHash {
		return fmt.Errorf("%w: fingerprint %016x, snapshot has %016x", ErrStale, sum, s.DocHash)
	}
	return nil
}
