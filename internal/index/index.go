// Package index discovers the byte offsets of every record in an index
// document without parsing record contents.
//
// The document is expected to hold two top-level arrays of flat objects:
// a file array (required) and a folder array (optional). Arrays are found
// by key, objects by scanning for '{', and the end of an array by checking
// whether a ']' appears before the next '{'.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/simonhull/audioindex/internal/field"
	"github.com/simonhull/audioindex/internal/scan"
	"github.com/simonhull/audioindex/internal/types"
)

// Default keys and limits.
const (
	DefaultFilesKey      = "allFiles"
	DefaultFoldersKey    = "musicFolders"
	DefaultMaxObjectSpan = 64 << 10

	// headerChunk is the number of bytes read at a header key.
	headerChunk = 128
	maxVersion  = 15
)

var (
	openBrace  = []byte("{")
	closeArray = []byte("]")
)

// Config controls discovery.
type Config struct {
	FilesKey   string
	FoldersKey string

	// MaxObjectSpan bounds how far a single object may extend. An object
	// that does not close within it is malformed.
	MaxObjectSpan int64

	// MaxScan bounds the search for each array key. 0 searches the whole document.
	MaxScan int64

	// Strict aborts on the first malformed object instead of skipping it.
	Strict bool

	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.FilesKey == "" {
		c.FilesKey = DefaultFilesKey
	}
	if c.FoldersKey == "" {
		c.FoldersKey = DefaultFoldersKey
	}
	if c.MaxObjectSpan <= 0 {
		c.MaxObjectSpan = DefaultMaxObjectSpan
	}
	return c
}

// Table is the position index of one document.
type Table struct {
	// Version is the document's "version" string, empty if absent.
	Version string

	// DeclaredTotal is the document's "totalFiles" value, -1 if absent.
	DeclaredTotal int

	// Files and Folders hold the offset of each record's opening brace,
	// in document order.
	Files   []int64
	Folders []int64

	// Malformed counts objects skipped during discovery.
	Malformed int

	Warnings []types.Warning
}

// builder carries the state of one Build call.
type builder struct {
	ctx context.Context
	sc  *scan.Scanner
	cfg Config
	tbl *Table
	log zerolog.Logger
}

// Build indexes the document behind sc.
//
// A missing file array is an error; a missing folder array leaves Folders
// empty with a warning. Malformed objects are skipped with a warning unless
// cfg.Strict is set.
func Build(ctx context.Context, sc *scan.Scanner, cfg Config) (*Table, error) {
	cfg = cfg.withDefaults()
	b := &builder{
		ctx: ctx,
		sc:  sc,
		cfg: cfg,
		tbl: &Table{DeclaredTotal: -1},
		log: cfg.Logger,
	}

	filesKey, filesArray, err := b.locate(cfg.FilesKey)
	if err != nil {
		return nil, err
	}

	if err := b.header(filesKey); err != nil {
		return nil, err
	}

	b.tbl.Files, err = b.offsets(cfg.FilesKey, filesArray)
	if err != nil {
		return nil, err
	}

	if b.tbl.DeclaredTotal >= 0 && b.tbl.DeclaredTotal != len(b.tbl.Files) {
		b.warn("header", 0, "totalFiles declares %d files, found %d", b.tbl.DeclaredTotal, len(b.tbl.Files))
	}

	_, foldersArray, err := b.locate(cfg.FoldersKey)
	var missing *types.MissingArrayError
	switch {
	case errors.As(err, &missing):
		b.warn("folders", 0, "no %q array; folder list is empty", cfg.FoldersKey)
		b.tbl.Folders = []int64{}
	case err != nil:
		return nil, err
	default:
		b.tbl.Folders, err = b.offsets(cfg.FoldersKey, foldersArray)
		if err != nil {
			return nil, err
		}
	}

	return b.tbl, nil
}

func (b *builder) warn(stage string, off int64, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.tbl.Warnings = append(b.tbl.Warnings, types.Warning{Stage: stage, Message: msg, Offset: off})
	b.log.Warn().Str("stage", stage).Int64("offset", off).Msg(msg)
}

// locate returns the offsets of "<key>": and of the '[' opening its array.
func (b *builder) locate(key string) (int64, int64, error) {
	pat := []byte(`"` + key + `":`)

	keyOff, err := b.sc.Find(0, pat, b.cfg.MaxScan)
	if errors.Is(err, types.ErrNotFound) {
		return -1, -1, &types.MissingArrayError{Path: b.sc.Source().Path(), Key: key}
	}
	if err != nil {
		return -1, -1, fmt.Errorf("locate %q: %w", key, err)
	}

	open, c, err := b.sc.NextNonSpace(keyOff+int64(len(pat)), b.cfg.MaxObjectSpan)
	if errors.Is(err, types.ErrNotFound) || (err == nil && c != '[') {
		return -1, -1, &types.MissingArrayError{Path: b.sc.Source().Path(), Key: key}
	}
	if err != nil {
		return -1, -1, fmt.Errorf("locate %q: %w", key, err)
	}

	b.log.Debug().Str("key", key).Int64("offset", open).Msg("array located")
	return keyOff, open, nil
}

// header reads "version" and "totalFiles" from the part of the document
// before the file array.
func (b *builder) header(limit int64) error {
	src := b.sc.Source()
	buf := make([]byte, headerChunk)

	read := func(key string) ([]byte, error) {
		off, err := b.sc.Find(0, []byte(`"`+key+`":`), limit)
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read header %q: %w", key, err)
		}
		n, err := src.ReadAt(buf, off, "header "+key)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}

	chunk, err := read("version")
	if err != nil {
		return err
	}
	if v, _, ok := field.String(chunk, "version", maxVersion); ok {
		b.tbl.Version = v
	}

	chunk, err = read("totalFiles")
	if err != nil {
		return err
	}
	if v, ok := field.Int(chunk, "totalFiles"); ok && v >= 0 {
		b.tbl.DeclaredTotal = int(v)
	}

	return nil
}

// offsets counts the objects of the array opening at open, allocates a
// table of exactly that size and walks the array again to fill it.
func (b *builder) offsets(array string, open int64) ([]int64, error) {
	count := 0
	if err := b.walk(array, open, true, func(int64) bool {
		count++
		return true
	}); err != nil {
		return nil, err
	}
	if count == 0 {
		return []int64{}, nil
	}

	table := make([]int64, 0, count)
	if err := b.walk(array, open, false, func(off int64) bool {
		table = append(table, off)
		return len(table) < count
	}); err != nil {
		return nil, err
	}

	if len(table) != count {
		return nil, fmt.Errorf("%s: %q changed during indexing: counted %d objects, recorded %d",
			b.sc.Source().Path(), array, count, len(table))
	}

	b.log.Debug().Str("array", array).Int("objects", count).Msg("array indexed")
	return table, nil
}

// walk visits the offset of every well-formed object in the array opening
// at open, until visit returns false or the array ends. report controls
// whether skipped objects produce warnings, so the two passes over an
// array report each problem once.
func (b *builder) walk(array string, open int64, report bool, visit func(int64) bool) error {
	pos := open + 1
	for {
		if err := b.ctx.Err(); err != nil {
			return err
		}

		obj, err := b.sc.Find(pos, openBrace, 0)
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// The search for ']' covers exactly the gap up to the next object,
		// however large, so distant objects never end the array early.
		if obj > pos {
			_, err := b.sc.Find(pos, closeArray, obj-pos)
			if err == nil {
				return nil
			}
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}

		end, err := b.sc.MatchBrace(obj, b.cfg.MaxObjectSpan)
		var ue *scan.UnbalancedError
		if errors.As(err, &ue) {
			if b.cfg.Strict {
				return &types.MalformedObjectError{
					Path:   b.sc.Source().Path(),
					Array:  array,
					Offset: obj,
					Reason: ue.Reason,
				}
			}
			if report {
				b.tbl.Malformed++
				b.warn(array, obj, "skipping object: %s", ue.Reason)
			}

			// A stray '{' or ']' is already a structural boundary. Otherwise
			// the cut may be mid-value, so move to the next token outside
			// any string before looking for the end of the array again.
			next, _, err := b.sc.NextToken(ue.Resume, ue.InString, 0)
			if errors.Is(err, types.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			pos = next
			continue
		}
		if err != nil {
			return err
		}

		if !visit(obj) {
			return nil
		}
		pos = end + 1
	}
}
