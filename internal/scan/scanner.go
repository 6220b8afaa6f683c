// Package scan locates byte patterns and structural JSON bytes in a document
// using a fixed-size sliding window, so memory use does not depend on the
// document size.
package scan

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/simonhull/audioindex/internal/source"
	"github.com/simonhull/audioindex/internal/types"
)

// DefaultCapacity is the default number of fresh bytes read per window.
const DefaultCapacity = 512

// ErrEmptyPattern is returned by Find for a zero-length pattern.
var ErrEmptyPattern = errors.New("scan: empty pattern")

// Stats counts the work done by a Scanner.
type Stats struct {
	Calls     int64 // Find, NextNonSpace, MatchBrace and NextToken invocations
	Windows   int64 // windows read from storage
	BytesRead int64 // bytes read from storage
}

// Scanner searches one document. The scratch window belongs to the Scanner,
// so a Scanner must not be shared between goroutines; create one per session.
type Scanner struct {
	src      *source.Source
	capacity int
	window   []byte
	calls    int64
	windows  int64
	bytes    int64
}

// New creates a Scanner reading capacity fresh bytes per window.
// A capacity <= 0 selects DefaultCapacity.
func New(src *source.Source, capacity int) *Scanner {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Scanner{
		src:      src,
		capacity: capacity,
	}
}

// Capacity returns the number of fresh bytes read per window.
func (s *Scanner) Capacity() int {
	return s.capacity
}

// Source returns the document being scanned.
func (s *Scanner) Source() *source.Source {
	return s.src
}

// Stats returns the work done so far.
func (s *Scanner) Stats() Stats {
	return Stats{Calls: s.calls, Windows: s.windows, BytesRead: s.bytes}
}

// buffer returns the scratch window sized for capacity fresh bytes plus a
// carried suffix of extra bytes.
func (s *Scanner) buffer(extra int) []byte {
	need := s.capacity + extra
	if cap(s.window) < need {
		s.window = make([]byte, need)
	}
	return s.window[:need]
}

// span clamps maxSpan to the bytes available after start. maxSpan <= 0
// means "to the end of the document".
func (s *Scanner) span(start, maxSpan int64) int64 {
	avail := s.src.Size() - start
	if avail < 0 {
		avail = 0
	}
	if maxSpan <= 0 || maxSpan > avail {
		return avail
	}
	return maxSpan
}

func (s *Scanner) read(b []byte, off int64, what string) (int, error) {
	n, err := s.src.ReadAt(b, off, what)
	s.windows++
	s.bytes += int64(n)
	return n, err
}

// Find returns the offset of the first occurrence of pattern at or after
// start. Only matches lying entirely within [start, start+maxSpan) are
// reported; maxSpan <= 0 searches to the end of the document.
//
// A pattern that straddles two windows is still found because the last
// len(pattern)-1 bytes of each window are carried into the next one.
// Returns types.ErrNotFound when there is no match.
func (s *Scanner) Find(start int64, pattern []byte, maxSpan int64) (int64, error) {
	if len(pattern) == 0 {
		return -1, ErrEmptyPattern
	}
	if len(pattern) > s.capacity {
		return -1, fmt.Errorf("scan: pattern of %d bytes exceeds window capacity %d", len(pattern), s.capacity)
	}
	if start < 0 {
		return -1, fmt.Errorf("scan: negative start offset %d", start)
	}
	s.calls++

	limit := s.span(start, maxSpan)
	buf := s.buffer(len(pattern) - 1)

	pos := start
	carry := 0
	var searched int64
	for searched < limit {
		want := s.capacity
		if rem := limit - searched; int64(want) > rem {
			want = int(rem)
		}

		n, err := s.read(buf[carry:carry+want], pos, "scan window")
		if err != nil {
			return -1, err
		}

		total := carry + n
		if i := bytes.Index(buf[:total], pattern); i >= 0 {
			return pos - int64(carry) + int64(i), nil
		}

		if n < want {
			break // end of document
		}

		pos += int64(n)
		searched += int64(n)

		keep := len(pattern) - 1
		if keep > total {
			keep = total
		}
		copy(buf, buf[total-keep:total])
		carry = keep
	}

	return -1, types.ErrNotFound
}

// walk feeds successive windows starting at start to fn until fn returns a
// non-negative in-window index, the span is exhausted or the document ends.
func (s *Scanner) walk(start, maxSpan int64, what string, fn func(chunk []byte) int) (int64, error) {
	limit := s.span(start, maxSpan)
	buf := s.buffer(0)

	pos := start
	var searched int64
	for searched < limit {
		want := s.capacity
		if rem := limit - searched; int64(want) > rem {
			want = int(rem)
		}

		n, err := s.read(buf[:want], pos, what)
		if err != nil {
			return -1, err
		}
		if i := fn(buf[:n]); i >= 0 {
			return pos + int64(i), nil
		}
		if n < want {
			break
		}
		pos += int64(n)
		searched += int64(n)
	}

	return -1, types.ErrNotFound
}

// IsSpace reports whether c is JSON insignificant whitespace.
func IsSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// NextNonSpace returns the offset and value of the first non-whitespace byte
// at or after start, or types.ErrNotFound.
func (s *Scanner) NextNonSpace(start, maxSpan int64) (int64, byte, error) {
	s.calls++

	var found byte
	off, err := s.walk(start, maxSpan, "whitespace", func(chunk []byte) int {
		for i, c := range chunk {
			if !IsSpace(c) {
				found = c
				return i
			}
		}
		return -1
	})
	if err != nil {
		return -1, 0, err
	}
	return off, found, nil
}

// UnbalancedError describes an object that does not close where a flat
// object must.
type UnbalancedError struct {
	Open   int64
	Reason string

	// Resume is where scanning for the next object can continue. It is the
	// stray '{' or ']' when one cut the object short, otherwise the first
	// byte past the examined span.
	Resume int64

	// InString reports whether Resume lies inside a string value.
	InString bool
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("object at offset %d: %s", e.Open, e.Reason)
}

func (e *UnbalancedError) Unwrap() error {
	return types.ErrUnbalanced
}

// MatchBrace returns the offset of the '}' closing the object that opens at
// open. Braces and brackets inside string values are ignored; escape
// sequences are not interpreted.
//
// Records are flat, so a '{' directly inside the object, or a ']' that
// closes no '[' of the object, means the object lost its closing brace.
// Objects are allowed inside arrays held by the object. Such an object,
// one that does not close within maxSpan bytes and one cut off by the end
// of the document are reported as *UnbalancedError.
func (s *Scanner) MatchBrace(open, maxSpan int64) (int64, error) {
	s.calls++

	var (
		depth    int
		brackets int
		inString bool
		first    = true
		notObj   bool
		stray    byte
	)

	off, err := s.walk(open, maxSpan, "object", func(chunk []byte) int {
		for i, c := range chunk {
			if first {
				first = false
				if c != '{' {
					notObj = true
					return i
				}
				depth = 1
				continue
			}
			if inString {
				if c == '"' {
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '[':
				brackets++
			case ']':
				if brackets == 0 {
					stray = c
					return i
				}
				brackets--
			case '{':
				if brackets == 0 {
					stray = c
					return i
				}
				depth++
			case '}':
				depth--
				if depth == 0 {
					return i
				}
			}
		}
		return -1
	})

	switch {
	case errors.Is(err, types.ErrNotFound):
		end := open + s.span(open, maxSpan)
		ue := &UnbalancedError{Open: open, Resume: end, InString: inString}
		if end >= s.src.Size() {
			ue.Reason = "document ends before the object closes"
		} else {
			ue.Reason = fmt.Sprintf("object exceeds %d bytes", maxSpan)
		}
		return -1, ue
	case err != nil:
		return -1, err
	case notObj:
		return -1, fmt.Errorf("no object at offset %d: %w", open, types.ErrUnbalanced)
	case stray != 0:
		return -1, &UnbalancedError{
			Open:   open,
			Reason: fmt.Sprintf("'%c' at offset %d before the object closes", stray, off),
			Resume: off,
		}
	}
	return off, nil
}

// NextToken returns the offset and value of the first '{' or ']' at or
// after start that lies outside a string. inString gives the string state
// at start. Returns types.ErrNotFound when there is none within maxSpan.
func (s *Scanner) NextToken(start int64, inString bool, maxSpan int64) (int64, byte, error) {
	s.calls++

	var found byte
	off, err := s.walk(start, maxSpan, "token", func(chunk []byte) int {
		for i, c := range chunk {
			if inString {
				if c == '"' {
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{', ']':
				found = c
				return i
			}
		}
		return -1
	})
	if err != nil {
		return -1, 0, err
	}
	return off, found, nil
}
