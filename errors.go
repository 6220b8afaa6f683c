package audioindex

import (
	"github.com/simonhull/audioindex/internal/types"
)

// MissingArrayError is returned when the document has no file array.
// Re-exporting from internal/types to maintain public API.
type MissingArrayError = types.MissingArrayError

// MalformedObjectError is returned in strict mode for an object whose
// braces never close.
type MalformedObjectError = types.MalformedObjectError

// OutOfRangeError is returned by File and Folder for an index outside the
// discovered count.
type OutOfRangeError = types.OutOfRangeError

// IOError wraps a failed open, stat or read of the document.
type IOError = types.IOError

// LegacyFormatError is returned for folder records with an embedded file list.
type LegacyFormatError = types.LegacyFormatError

// SnapshotError is returned by LoadSnapshot for an unusable snapshot.
type SnapshotError = types.SnapshotError

// Warning is an alias to types.Warning.
// Re-exporting from internal/types to maintain public API.
type Warning = types.Warning

// ErrClosed is returned by reads on a closed Index.
var ErrClosed = types.ErrClosed

// ErrNotFound is returned by Lookup when no record has the requested path.
var ErrNotFound = types.ErrNotFound
