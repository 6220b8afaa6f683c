package scan

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonhull/audioindex/internal/source"
	"github.com/simonhull/audioindex/internal/types"
)

func newScanner(data string, capacity int) *Scanner {
	src := source.New(strings.NewReader(data), int64(len(data)), "test.json")
	return New(src, capacity)
}

// failingReader fails every read after the first failAfter bytes.
type failingReader struct {
	data      []byte
	failAfter int64
}

func (f *failingReader) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > f.failAfter {
		return 0, errors.New("card removed")
	}
	return copy(p, f.data[off:]), nil
}

func TestFind_Basic(t *testing.T) {
	sc := newScanner(`{"a": 1, "allFiles": [], "allFiles": 2}`, 16)

	off, err := sc.Find(0, []byte(`"allFiles":`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), off, "first match wins")

	off, err = sc.Find(off+1, []byte(`"allFiles":`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(25), off)
}

func TestFind_NotFound(t *testing.T) {
	sc := newScanner(strings.Repeat("x", 1000), 64)

	_, err := sc.Find(0, []byte("musicFolders"), 0)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = sc.Find(5000, []byte("x"), 0)
	assert.ErrorIs(t, err, types.ErrNotFound, "start past end of document")
}

func TestFind_EmptyPattern(t *testing.T) {
	sc := newScanner("abc", 8)
	_, err := sc.Find(0, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyPattern)
}

func TestFind_PatternLongerThanWindow(t *testing.T) {
	sc := newScanner("abcdefgh", 4)
	_, err := sc.Find(0, []byte("abcdef"), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrNotFound)
}

func TestFind_StraddlesWindowBoundary(t *testing.T) {
	patterns := []string{"]", "{}", `"name":`, `"allFiles":`, "musicFolders"}

	for capacity := 2; capacity <= 24; capacity++ {
		for _, p := range patterns {
			if len(p) >= capacity {
				continue
			}
			// Planted so the pattern begins on the last byte of the first window.
			data := strings.Repeat(".", capacity-1) + p + strings.Repeat(".", 3*capacity)
			sc := newScanner(data, capacity)

			off, err := sc.Find(0, []byte(p), 0)
			require.NoError(t, err, "capacity=%d pattern=%q", capacity, p)
			assert.Equal(t, int64(capacity-1), off, "capacity=%d pattern=%q", capacity, p)
		}
	}
}

func TestFind_EveryPlantedOffset(t *testing.T) {
	const capacity = 7
	pattern := "abc"
	for at := 0; at < 40; at++ {
		data := strings.Repeat("-", at) + pattern + strings.Repeat("-", 10)
		sc := newScanner(data, capacity)

		off, err := sc.Find(0, []byte(pattern), 0)
		require.NoError(t, err, "at=%d", at)
		assert.Equal(t, int64(at), off)
	}
}

func TestFind_SpanBound(t *testing.T) {
	data := strings.Repeat(".", 100) + "]" + strings.Repeat(".", 100)
	sc := newScanner(data, 16)

	_, err := sc.Find(0, []byte("]"), 100)
	assert.ErrorIs(t, err, types.ErrNotFound, "match just past the span")

	off, err := sc.Find(0, []byte("]"), 101)
	require.NoError(t, err)
	assert.Equal(t, int64(100), off)

	_, err = sc.Find(0, []byte("].."), 102)
	assert.ErrorIs(t, err, types.ErrNotFound, "match must lie entirely in the span")
}

func TestFind_StartOffset(t *testing.T) {
	data := "{ } { } {"
	sc := newScanner(data, 4)

	var offsets []int64
	pos := int64(0)
	for {
		off, err := sc.Find(pos, []byte("{"), 0)
		if errors.Is(err, types.ErrNotFound) {
			break
		}
		require.NoError(t, err)
		offsets = append(offsets, off)
		pos = off + 1
	}
	assert.Equal(t, []int64{0, 4, 8}, offsets)
}

func TestFind_IOErrorIsNotNotFound(t *testing.T) {
	data := bytes.Repeat([]byte("."), 200)
	src := source.New(&failingReader{data: data, failAfter: 64}, int64(len(data)), "flaky.json")
	sc := New(src, 32)

	_, err := sc.Find(0, []byte("x"), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrNotFound)

	var ioErr *types.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "flaky.json", ioErr.Path)
	assert.Contains(t, err.Error(), "card removed")
}

func TestFind_BoundedMemory(t *testing.T) {
	data := strings.Repeat("0123456789", 10_000) + "needle"
	sc := newScanner(data, 128)

	off, err := sc.Find(0, []byte("needle"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), off)
	assert.LessOrEqual(t, cap(sc.window), 128+len("needle"))
}

func TestNextNonSpace(t *testing.T) {
	sc := newScanner("  \n\t\r  [1]", 3)

	off, c, err := sc.NextNonSpace(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), off)
	assert.Equal(t, byte('['), c)

	_, _, err = newScanner("    ", 3).NextNonSpace(0, 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMatchBrace(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		open    int64
		span    int64
		want    int64
		wantErr error
	}{
		{name: "flat", data: `{"a": 1}`, want: 7},
		{name: "objects inside array", data: `{"a": [{"b": {}}, {}], "c": 2} tail`, want: 29},
		{name: "braces in strings", data: `{"a": "}{}}"}`, want: 12},
		{name: "offset start", data: `[ {"x": 1} ]`, open: 2, want: 9},
		{name: "unterminated", data: `{"a": "b", "c": 1`, wantErr: types.ErrUnbalanced},
		{name: "nested object", data: `{"a": {"b": 1}}`, wantErr: types.ErrUnbalanced},
		{name: "span exceeded", data: `{"a": "long value"}`, span: 10, wantErr: types.ErrUnbalanced},
		{name: "not an object", data: `["a"]`, wantErr: types.ErrUnbalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newScanner(tt.data, 4)
			got, err := sc.MatchBrace(tt.open, tt.span)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, byte('}'), tt.data[got])
		})
	}
}

func TestMatchBrace_Unbalanced(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		span     int64
		reason   string
		resume   int64
		inString bool
	}{
		{
			name:   "stray brace",
			data:   `{"a": 1, {"b": 2}`,
			reason: "'{' at offset 9",
			resume: 9,
		},
		{
			name:   "stray bracket",
			data:   `{"a": "x"], "b": []`,
			reason: "']' at offset 9",
			resume: 9,
		},
		{
			name:     "oversized inside string",
			data:     `{"a": "0123456789"} ]`,
			span:     10,
			reason:   "object exceeds 10 bytes",
			resume:   10,
			inString: true,
		},
		{
			name:   "oversized outside string",
			data:   `{"a": 12345678, "b": 1}`,
			span:   10,
			reason: "object exceeds 10 bytes",
			resume: 10,
		},
		{
			name:   "document ends",
			data:   `{"a": "b"`,
			reason: "document ends before the object closes",
			resume: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newScanner(tt.data, 4).MatchBrace(0, tt.span)
			require.ErrorIs(t, err, types.ErrUnbalanced)

			var ue *UnbalancedError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, int64(0), ue.Open)
			assert.Contains(t, ue.Reason, tt.reason)
			assert.Equal(t, tt.resume, ue.Resume)
			assert.Equal(t, tt.inString, ue.InString)
		})
	}
}

func TestNextToken(t *testing.T) {
	data := `, "x]{" ] {`
	sc := newScanner(data, 3)

	off, c, err := sc.NextToken(0, false, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), off)
	assert.Equal(t, byte(']'), c)

	// The string state at start decides what the quotes delimit.
	off, _, err = sc.NextToken(3, true, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), off)

	off, c, err = sc.NextToken(4, false, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), off)
	assert.Equal(t, byte(']'), c)

	off, c, err = sc.NextToken(9, false, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), off)
	assert.Equal(t, byte('{'), c)

	_, _, err = sc.NextToken(0, false, 5)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, _, err = newScanner(`"]{"`, 4).NextToken(0, false, 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStats(t *testing.T) {
	data := strings.Repeat("a", 100) + "b"
	sc := newScanner(data, 10)

	_, err := sc.Find(0, []byte("b"), 0)
	require.NoError(t, err)

	st := sc.Stats()
	assert.Equal(t, int64(1), st.Calls)
	assert.Equal(t, int64(11), st.Windows)
	assert.Equal(t, int64(101), st.BytesRead)
}
