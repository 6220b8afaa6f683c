package audioindex

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/simonhull/audioindex/internal/index"
	"github.com/simonhull/audioindex/internal/logger"
	"github.com/simonhull/audioindex/internal/record"
	"github.com/simonhull/audioindex/internal/scan"
	"github.com/simonhull/audioindex/internal/source"
)

// Index is the position index of one library document.
//
// An Index holds only the byte offset of every file and folder record,
// never the record contents. Records are read from the document on demand
// by File and Folder, so memory use is proportional to the number of
// records and independent of their size.
//
// An Index is immutable after Open and safe for concurrent reads. Each
// read opens the document on its own, so no file handle is held between
// calls. Call Close to release the offset tables:
//
//	idx, err := audioindex.Open("/sdcard/ESP32_MUSIC/index.json")
//	if err != nil {
//		return err
//	}
//	defer idx.Close()
type Index struct {
	path string
	size int64
	opts *openOptions
	log  zerolog.Logger

	version       string
	declaredTotal int
	files         []int64
	folders       []int64
	warnings      []Warning
	stats         Stats

	closed atomic.Bool
}

// Stats describes the work done to build an Index.
type Stats struct {
	// ScanCalls counts scanner invocations (key searches, brace matching,
	// array-end checks) made while indexing.
	ScanCalls int64

	// Windows and BytesRead count the reads issued while indexing.
	Windows   int64
	BytesRead int64

	// Malformed counts objects skipped because their braces never closed.
	Malformed int

	BuildDuration time.Duration

	// FromSnapshot is set when the offsets were loaded by LoadSnapshot.
	FromSnapshot bool
}

// Open indexes the document at path.
//
// Open scans the document once for each array, recording the offset of
// every record's opening brace. It fails with *MissingArrayError when the
// document has no file array, and with *IOError when the document cannot
// be read. A missing folder array is not an error: the index then has no
// folders and carries a warning.
//
// Objects whose braces never close are skipped and reported in Warnings,
// unless WithStrictParsing is given.
//
// Example:
//
//	idx, err := audioindex.Open("index.json")
//	if err != nil {
//		return err
//	}
//	defer idx.Close()
//
//	rec, err := idx.File(0)
//	if err != nil {
//		return err
//	}
//	fmt.Printf("%s - %s\n", rec.Artist, rec.Song)
func Open(path string, opts ...Option) (*Index, error) {
	return OpenContext(context.Background(), path, opts...)
}

// OpenContext is like Open but stops indexing when ctx is done.
// Cancellation is checked between records.
func OpenContext(ctx context.Context, path string, opts ...Option) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return build(ctx, path, options)
}

// OpenOrEmpty is like Open but never returns a nil Index.
//
// When the document cannot be indexed, OpenOrEmpty returns a valid index
// with no records together with the error, so callers can keep running
// without a library.
//
// Example:
//
//	idx, err := audioindex.OpenOrEmpty(path)
//	if err != nil {
//		log.Printf("music library unavailable: %v", err)
//	}
//	fmt.Println(idx.FileCount()) // 0 when the index failed
func OpenOrEmpty(path string, opts ...Option) (*Index, error) {
	options, err := applyOptions(opts)
	if err != nil {
		return empty(path, defaultOptions()), err
	}

	idx, err := build(context.Background(), path, options)
	if err != nil {
		return empty(path, options), err
	}
	return idx, nil
}

func empty(path string, o *openOptions) *Index {
	return &Index{
		path:          path,
		opts:          o,
		log:           o.logger,
		declaredTotal: -1,
		files:         []int64{},
		folders:       []int64{},
	}
}

func build(ctx context.Context, path string, o *openOptions) (*Index, error) {
	log := logger.Document(o.logger, "index", path)

	src, err := source.Open(o.fsys, path)
	if err != nil {
		log.Error().Err(err).Msg("open document")
		return nil, err
	}
	defer src.Close()

	log.Debug().
		Int64("size", src.Size()).
		Int("window", o.windowSize).
		Msg("index build started")

	start := time.Now()
	sc := scan.New(src, o.windowSize)
	tbl, err := index.Build(ctx, sc, o.indexConfig(log))
	duration := time.Since(start)

	st := sc.Stats()
	malformed := 0
	if tbl != nil {
		malformed = tbl.Malformed
	}
	o.metrics.RecordBuild(st.Calls, st.BytesRead, malformed, duration)

	if err != nil {
		logger.LogBuild(log, 0, 0, duration, err)
		return nil, err
	}
	logger.LogBuild(log, len(tbl.Files), len(tbl.Folders), duration, nil)

	idx := &Index{
		path:          path,
		size:          src.Size(),
		opts:          o,
		log:           log,
		version:       tbl.Version,
		declaredTotal: tbl.DeclaredTotal,
		files:         tbl.Files,
		folders:       tbl.Folders,
		warnings:      tbl.Warnings,
		stats: Stats{
			ScanCalls:     st.Calls,
			Windows:       st.Windows,
			BytesRead:     st.BytesRead,
			Malformed:     tbl.Malformed,
			BuildDuration: duration,
		},
	}
	if o.ignoreWarnings {
		idx.warnings = nil
	}
	return idx, nil
}

// OpenMany indexes several documents concurrently.
//
// Documents are indexed in parallel using up to runtime.NumCPU() goroutines.
// Results are returned in the same order as the input paths.
//
// If any document fails, all successfully opened indexes are closed
// and an error is returned.
func OpenMany(ctx context.Context, paths []string, opts ...Option) ([]*Index, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	results := make([]*Index, len(paths))

	for i, path := range paths {
		g.Go(func() error {
			idx, err := OpenContext(ctx, path, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			results[i] = idx
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, idx := range results {
			if idx != nil {
				idx.Close()
			}
		}
		return nil, err
	}

	return results, nil
}

// Path returns the document path the index was built from.
func (x *Index) Path() string {
	return x.path
}

// Version returns the document's "version" string, or "" if it has none.
func (x *Index) Version() string {
	return x.version
}

// DeclaredTotal returns the document's "totalFiles" value, or -1 if it has
// none. FileCount is authoritative when the two disagree.
func (x *Index) DeclaredTotal() int {
	return x.declaredTotal
}

// FileCount returns the number of file records found.
func (x *Index) FileCount() int {
	return len(x.files)
}

// FolderCount returns the number of folder records found.
func (x *Index) FolderCount() int {
	return len(x.folders)
}

// FileOffsets returns a copy of the byte offsets of the file records.
func (x *Index) FileOffsets() []int64 {
	return append([]int64(nil), x.files...)
}

// FolderOffsets returns a copy of the byte offsets of the folder records.
func (x *Index) FolderOffsets() []int64 {
	return append([]int64(nil), x.folders...)
}

// Warnings returns the non-fatal problems found while indexing.
func (x *Index) Warnings() []Warning {
	return x.warnings
}

// Stats returns the work done to build the index.
func (x *Index) Stats() Stats {
	return x.stats
}

// Close releases the offset tables. Reads after Close fail with ErrClosed.
// Close must not race with reads in progress.
func (x *Index) Close() error {
	if x.closed.Swap(true) {
		return nil
	}
	x.files = nil
	x.folders = nil
	return nil
}

// open checks the index is usable and opens the document for one read.
func (x *Index) open() (*source.Source, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	return source.Open(x.opts.fsys, x.path)
}

func (x *Index) fileOffset(i int) (int64, error) {
	if x.closed.Load() {
		return 0, ErrClosed
	}
	if i < 0 || i >= len(x.files) {
		return 0, &OutOfRangeError{Kind: "file", Index: i, Count: len(x.files)}
	}
	return x.files[i], nil
}

func (x *Index) folderOffset(i int) (int64, error) {
	if x.closed.Load() {
		return 0, ErrClosed
	}
	if i < 0 || i >= len(x.folders) {
		return 0, &OutOfRangeError{Kind: "folder", Index: i, Count: len(x.folders)}
	}
	return x.folders[i], nil
}

// File reads file record i from the document.
//
// Absent fields take their defaults; string fields longer than their
// capacity are truncated and flagged in FileRecord.Truncated. A FolderIndex
// outside the folder list is reported as NoFolder.
func (x *Index) File(i int) (FileRecord, error) {
	off, err := x.fileOffset(i)
	if err != nil {
		return FileRecord{}, err
	}

	src, err := x.open()
	if err != nil {
		return FileRecord{}, err
	}
	defer src.Close()

	return x.readFile(src, off)
}

func (x *Index) readFile(src *source.Source, off int64) (FileRecord, error) {
	before := src.BytesRead()
	rec, err := record.ReadFile(src, off, x.opts.recordConfig(), len(x.folders))
	x.opts.metrics.RecordRead("file", src.BytesRead()-before, err)
	if err != nil {
		return FileRecord{}, err
	}
	if rec.Truncated != 0 {
		x.log.Debug().
			Int64("offset", off).
			Stringer("fields", rec.Truncated).
			Msg("file record truncated")
	}
	return rec, nil
}

// Folder reads folder record i from the document.
//
// Folder records carry a name, a file count and the index of their first
// file. Records in the legacy shape, with an embedded file list, fail with
// *LegacyFormatError.
func (x *Index) Folder(i int) (FolderRecord, error) {
	off, err := x.folderOffset(i)
	if err != nil {
		return FolderRecord{}, err
	}

	src, err := x.open()
	if err != nil {
		return FolderRecord{}, err
	}
	defer src.Close()

	rec, err := record.ReadFolder(src, off, x.opts.recordConfig())
	x.opts.metrics.RecordRead("folder", src.BytesRead(), err)
	if err != nil {
		return FolderRecord{}, err
	}
	return rec, nil
}

// FolderFiles returns the contiguous range of file indexes of folder i as
// first and count. The range is checked against FileCount.
func (x *Index) FolderFiles(i int) (first, count int, err error) {
	f, err := x.Folder(i)
	if err != nil {
		return 0, 0, err
	}
	if f.FileCount == 0 {
		return 0, 0, nil
	}
	if f.FirstFileIndex < 0 || f.FileCount < 0 {
		return 0, 0, fmt.Errorf("folder %d (%s) has no valid file range", i, f.Name)
	}
	if last := f.FirstFileIndex + f.FileCount - 1; last >= len(x.files) {
		return 0, 0, fmt.Errorf("folder %d (%s): %w", i, f.Name,
			&OutOfRangeError{Kind: "file", Index: last, Count: len(x.files)})
	}
	return f.FirstFileIndex, f.FileCount, nil
}

// Files iterates over all file records in document order.
//
// The document is opened once for the whole iteration. A record that
// cannot be read is yielded with its error and iteration continues unless
// the consumer stops it.
//
// Example:
//
//	for rec, err := range idx.Files() {
//		if err != nil {
//			continue
//		}
//		fmt.Println(rec.Path)
//	}
func (x *Index) Files() iter.Seq2[FileRecord, error] {
	return func(yield func(FileRecord, error) bool) {
		src, err := x.open()
		if err != nil {
			yield(FileRecord{}, err)
			return
		}
		defer src.Close()

		for i := range x.files {
			off, err := x.fileOffset(i)
			if err != nil {
				yield(FileRecord{}, err)
				return
			}
			if !yield(x.readFile(src, off)) {
				return
			}
		}
	}
}

// Lookup finds the file record whose path equals relPath.
//
// Lookup reads records one by one and returns the first match with its
// index. It returns an error wrapping ErrNotFound when no record matches.
func (x *Index) Lookup(relPath string) (int, FileRecord, error) {
	i := 0
	for rec, err := range x.Files() {
		if err != nil {
			var ioErr *IOError
			if errors.Is(err, ErrClosed) || errors.As(err, &ioErr) {
				return -1, FileRecord{}, err
			}
			// unreadable record, keep looking
			i++
			continue
		}
		if rec.Path == relPath {
			return i, rec, nil
		}
		i++
	}
	return -1, FileRecord{}, fmt.Errorf("%s: %w", relPath, ErrNotFound)
}
