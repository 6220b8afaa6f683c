package audioindex

import (
	"fmt"
	"io/fs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/simonhull/audioindex/internal/index"
	"github.com/simonhull/audioindex/internal/logger"
	"github.com/simonhull/audioindex/internal/metrics"
	"github.com/simonhull/audioindex/internal/record"
	"github.com/simonhull/audioindex/internal/scan"
	"github.com/simonhull/audioindex/internal/snapshot"
)

// Option configures how an index document is opened and read.
//
// Options use the functional options pattern for clean, extensible APIs.
//
// Example:
//
//	idx, err := audioindex.Open("index.json",
//	    audioindex.WithStrictParsing(),
//	    audioindex.WithChunkSize(2048),
//	)
type Option func(*openOptions)

// openOptions holds configuration for opening an index.
type openOptions struct {
	windowSize     int   // Fresh bytes per scanner window
	chunkSize      int   // Bytes read per record
	maxChunkSize   int   // Size of the single retry for long records
	maxObjectSpan  int64 // Longest object accepted during discovery
	maxScan        int64 // Bound on the search for each array key (0 = whole document)
	strictParsing  bool  // Fail on the first malformed object
	ignoreWarnings bool  // Discard collected warnings
	fsys           fs.FS // Filesystem to open documents from (nil = OS)
	logger         zerolog.Logger
	registerer     prometheus.Registerer
	snapshotCodec  snapshot.Codec

	metrics *metrics.Metrics
}

// defaultOptions returns the default configuration.
func defaultOptions() *openOptions {
	return &openOptions{
		windowSize:    scan.DefaultCapacity,
		chunkSize:     record.DefaultChunkSize,
		maxChunkSize:  record.DefaultMaxChunkSize,
		maxObjectSpan: index.DefaultMaxObjectSpan,
		logger:        logger.Nop(),
		snapshotCodec: snapshot.CodecS2,
	}
}

// applyOptions builds and validates the configuration for one Open call.
func applyOptions(opts []Option) (*openOptions, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	switch {
	case o.windowSize < len(index.DefaultFoldersKey)+3:
		return nil, fmt.Errorf("window size %d is smaller than the longest key pattern", o.windowSize)
	case o.chunkSize <= 0:
		return nil, fmt.Errorf("chunk size must be positive, got %d", o.chunkSize)
	case o.maxChunkSize < o.chunkSize:
		return nil, fmt.Errorf("max chunk size %d is smaller than chunk size %d", o.maxChunkSize, o.chunkSize)
	case o.maxObjectSpan <= 0:
		return nil, fmt.Errorf("max object span must be positive, got %d", o.maxObjectSpan)
	case o.maxScan < 0:
		return nil, fmt.Errorf("max scan must not be negative, got %d", o.maxScan)
	case o.snapshotCodec > snapshot.CodecLZ4:
		return nil, fmt.Errorf("unknown snapshot codec %s", o.snapshotCodec)
	}

	m, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	o.metrics = m

	return o, nil
}

func (o *openOptions) indexConfig(log zerolog.Logger) index.Config {
	return index.Config{
		MaxObjectSpan: o.maxObjectSpan,
		MaxScan:       o.maxScan,
		Strict:        o.strictParsing,
		Logger:        log,
	}
}

func (o *openOptions) recordConfig() record.Config {
	return record.Config{
		ChunkSize:    o.chunkSize,
		MaxChunkSize: o.maxChunkSize,
	}
}

// WithWindowSize sets how many fresh bytes the scanner reads per window.
//
// Smaller windows use less memory and issue more reads. The window must be
// able to hold the longest key pattern. Default is 512.
func WithWindowSize(n int) Option {
	return func(o *openOptions) {
		o.windowSize = n
	}
}

// WithChunkSize sets how many bytes are read for each record. Default is 1 KiB.
func WithChunkSize(n int) Option {
	return func(o *openOptions) {
		o.chunkSize = n
	}
}

// WithMaxChunkSize sets the size of the single larger read made when a
// record does not close within the first chunk. Default is 4 KiB.
func WithMaxChunkSize(n int) Option {
	return func(o *openOptions) {
		o.maxChunkSize = n
	}
}

// WithMaxObjectSpan bounds how far one object may extend before it is
// treated as malformed. Default is 64 KiB.
func WithMaxObjectSpan(n int64) Option {
	return func(o *openOptions) {
		o.maxObjectSpan = n
	}
}

// WithMaxScan bounds the search for each top-level array key.
// Default is 0, which searches the whole document.
func WithMaxScan(n int64) Option {
	return func(o *openOptions) {
		o.maxScan = n
	}
}

// WithStrictParsing makes Open fail on the first malformed object.
//
// By default, objects whose braces never close are skipped and reported
// in Index.Warnings.
//
// Example:
//
//	idx, err := audioindex.Open("index.json", audioindex.WithStrictParsing())
//	// err is a *MalformedObjectError if any object is broken
func WithStrictParsing() Option {
	return func(o *openOptions) {
		o.strictParsing = true
	}
}

// WithIgnoreWarnings discards warnings collected while indexing.
func WithIgnoreWarnings() Option {
	return func(o *openOptions) {
		o.ignoreWarnings = true
	}
}

// WithFS opens documents from fsys instead of the operating system.
//
// Example:
//
//	idx, err := audioindex.Open("ESP32_MUSIC/index.json",
//	    audioindex.WithFS(os.DirFS("/sdcard")),
//	)
func WithFS(fsys fs.FS) Option {
	return func(o *openOptions) {
		o.fsys = fsys
	}
}

// WithLogger sets the logger for index builds. By default nothing is logged.
func WithLogger(l zerolog.Logger) Option {
	return func(o *openOptions) {
		o.logger = l
	}
}

// WithMetrics registers Prometheus collectors on reg and records builds
// and reads into them.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *openOptions) {
		o.registerer = reg
	}
}

// WithSnapshotCodec selects the compression used by WriteSnapshot.
// Default is S2.
func WithSnapshotCodec(c SnapshotCodec) Option {
	return func(o *openOptions) {
		o.snapshotCodec = c
	}
}
