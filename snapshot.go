package audioindex

import (
	"errors"
	"io"
	"time"

	"github.com/simonhull/audioindex/internal/logger"
	"github.com/simonhull/audioindex/internal/snapshot"
	"github.com/simonhull/audioindex/internal/source"
)

// SnapshotCodec selects the compression of a snapshot's offset tables.
type SnapshotCodec = snapshot.Codec

// Snapshot codecs.
const (
	SnapshotNone = snapshot.CodecNone
	SnapshotS2   = snapshot.CodecS2
	SnapshotZstd = snapshot.CodecZstd
	SnapshotLZ4  = snapshot.CodecLZ4
)

// ParseSnapshotCodec maps "none", "s2", "zstd" or "lz4" to a SnapshotCodec.
func ParseSnapshotCodec(name string) (SnapshotCodec, error) {
	return snapshot.ParseCodec(name)
}

// WriteSnapshot persists the offset tables to w so a later LoadSnapshot
// can skip indexing.
//
// The snapshot records the document's size and a hash of its contents,
// computed now. The document must not have changed since Open.
//
// Example:
//
//	f, err := os.Create("index.aidx")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	return idx.WriteSnapshot(f)
func (x *Index) WriteSnapshot(w io.Writer) error {
	src, err := x.open()
	if err != nil {
		return err
	}
	defer src.Close()

	if src.Size() != x.size {
		return &SnapshotError{Path: x.path, Reason: "document changed since indexing"}
	}

	sum, err := snapshot.Fingerprint(src, x.opts.windowSize)
	if err != nil {
		return err
	}

	s := &snapshot.Snapshot{
		Codec:         x.opts.snapshotCodec,
		DocSize:       x.size,
		DocHash:       sum,
		Version:       x.version,
		DeclaredTotal: x.declaredTotal,
		Files:         x.files,
		Folders:       x.folders,
	}
	if err := snapshot.Encode(w, s); err != nil {
		return &SnapshotError{Path: x.path, Reason: "encode", Err: err}
	}

	x.log.Debug().
		Stringer("codec", s.Codec).
		Int("files", len(s.Files)).
		Int("folders", len(s.Folders)).
		Msg("snapshot written")
	return nil
}

// LoadSnapshot restores an Index for the document at path from a snapshot
// written by WriteSnapshot.
//
// The document is hashed and compared with the snapshot, which is rejected
// with *SnapshotError when it is corrupt or the document has changed. The
// caller can then fall back to Open.
//
// Example:
//
//	idx, err := audioindex.LoadSnapshot(path, f)
//	var se *audioindex.SnapshotError
//	if errors.As(err, &se) {
//		idx, err = audioindex.Open(path)
//	}
func LoadSnapshot(path string, r io.Reader, opts ...Option) (*Index, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	log := logger.Document(o.logger, "snapshot", path)

	start := time.Now()
	s, err := snapshot.Decode(r)
	if err != nil {
		return nil, &SnapshotError{Path: path, Reason: "decode", Err: err}
	}

	src, err := source.Open(o.fsys, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if err := s.Verify(src, o.windowSize); err != nil {
		if errors.Is(err, snapshot.ErrStale) {
			log.Info().Err(err).Msg("stale snapshot rejected")
			return nil, &SnapshotError{Path: path, Reason: "stale", Err: err}
		}
		return nil, err
	}
	duration := time.Since(start)

	log.Info().
		Int("files", len(s.Files)).
		Int("folders", len(s.Folders)).
		Dur("duration_ms", duration).
		Msg("index loaded from snapshot")

	return &Index{
		path:          path,
		size:          s.DocSize,
		opts:          o,
		log:           log,
		version:       s.Version,
		declaredTotal: s.DeclaredTotal,
		files:         s.Files,
		folders:       s.Folders,
		stats: Stats{
			BytesRead:     src.BytesRead(),
			BuildDuration: duration,
			FromSnapshot:  true,
		},
	}, nil
}
