package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by the scanner when a pattern does not occur
// within the searched span. It is a control-flow signal, not a failure.
var ErrNotFound = errors.New("pattern not found")

// ErrUnbalanced is returned when brace nesting of an object cannot be
// resolved within the allowed span.
var ErrUnbalanced = errors.New("unbalanced braces")

// ErrClosed is returned when reading from an index after Close.
var ErrClosed = errors.New("index closed")

// MissingArrayError is returned when a required top-level array is absent.
type MissingArrayError struct {
	Path string
	Key  string
}

func (e *MissingArrayError) Error() string {
	return fmt.Sprintf("%s: missing array %q", e.Path, e.Key)
}

// MalformedObjectError is returned in strict mode when an object's brace
// nesting cannot be resolved.
type MalformedObjectError struct {
	Path   string
	Array  string
	Offset int64
	Reason string
}

func (e *MalformedObjectError) Error() string {
	return fmt.Sprintf("%s: malformed object in %q at offset %d: %s", e.Path, e.Array, e.Offset, e.Reason)
}

// OutOfRangeError is returned when a record index is outside the discovered count.
type OutOfRangeError struct {
	Kind  string // "file" or "folder"
	Index int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.Kind, e.Index, e.Count)
}

// IOError wraps a failed open, stat or read on the backing storage.
type IOError struct {
	Path   string
	What   string
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: failed to read %s at offset %d: %v", e.Path, e.What, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// LegacyFormatError is returned for records using a document shape that is
// no longer supported, such as folders with an embedded "files" array.
type LegacyFormatError struct {
	Path   string
	Offset int64
	Reason string
}

func (e *LegacyFormatError) Error() string {
	return fmt.Sprintf("%s: legacy format at offset %d: %s", e.Path, e.Offset, e.Reason)
}

// SnapshotError is returned when a persisted offset table cannot be used.
type SnapshotError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: snapshot rejected: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: snapshot rejected: %s", e.Path, e.Reason)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// Warning represents a non-fatal issue encountered while indexing or reading.
//
// Warnings indicate problems that don't prevent the index from being used:
//   - Objects skipped because they do not close as flat objects
//   - A declared totalFiles that disagrees with the discovered count
//   - A missing folder array
type Warning struct {
	// Stage where the warning occurred
	Stage string // "header", "files", "folders", "record"

	// Warning message
	Message string

	// Document offset where the issue occurred (0 if not applicable)
	Offset int64
}

// String returns a human-readable warning message.
func (w Warning) String() string {
	if w.Offset > 0 {
		return fmt.Sprintf("%s (at offset %d): %s", w.Stage, w.Offset, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Stage, w.Message)
}
