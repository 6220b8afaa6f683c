// Package field extracts named values from a chunk holding one record.
//
// Extraction is a flat substring search for the literal "<key>": inside the
// chunk. There is no JSON grammar here: escape sequences are not decoded and
// nested objects are not distinguished, so a string value that itself
// contains "<key>": can shadow the real key.
package field

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"github.com/simonhull/audioindex/internal/scan"
)

// valueStart returns the index of the first non-whitespace byte after
// "<key>":, or -1 if the key is absent or nothing follows it.
func valueStart(chunk []byte, key string) int {
	pat := make([]byte, 0, len(key)+3)
	pat = append(pat, '"')
	pat = append(pat, key...)
	pat = append(pat, '"', ':')

	i := bytes.Index(chunk, pat)
	if i < 0 {
		return -1
	}
	i += len(pat)
	for i < len(chunk) && scan.IsSpace(chunk[i]) {
		i++
	}
	if i >= len(chunk) {
		return -1
	}
	return i
}

// Has reports whether chunk contains "<key>":.
func Has(chunk []byte, key string) bool {
	return valueStart(chunk, key) >= 0
}

// String extracts the quoted string value of key.
//
// ok is false when the key is absent or its value is not a string. The
// value is cut to at most max bytes without splitting a UTF-8 sequence;
// truncated is set when that happens or when the closing quote is not in
// the chunk, in which case the value runs to the end of the chunk.
func String(chunk []byte, key string, max int) (value string, truncated, ok bool) {
	i := valueStart(chunk, key)
	if i < 0 || chunk[i] != '"' {
		return "", false, false
	}
	i++

	raw := chunk[i:]
	if end := bytes.IndexByte(raw, '"'); end >= 0 {
		raw = raw[:end]
	} else {
		truncated = true
	}

	if max >= 0 && len(raw) > max {
		n := max
		for n > 0 && !utf8.RuneStart(raw[n]) {
			n--
		}
		raw = raw[:n]
		truncated = true
	}

	return string(raw), truncated, true
}

// Int extracts the integer value of key: an optional sign followed by
// decimal digits. ok is false when the key is absent, no digits follow or
// the value overflows int64.
func Int(chunk []byte, key string) (int64, bool) {
	i := valueStart(chunk, key)
	if i < 0 {
		return 0, false
	}

	j := i
	if chunk[j] == '-' || chunk[j] == '+' {
		j++
	}
	digits := j
	for j < len(chunk) && chunk[j] >= '0' && chunk[j] <= '9' {
		j++
	}
	if j == digits {
		return 0, false
	}

	v, err := strconv.ParseInt(string(chunk[i:j]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ObjectEnd returns the index of the '}' that closes the object opening at
// chunk[0], or -1 if chunk does not start with '{' or the object does not
// close inside the chunk. Braces inside strings are ignored.
func ObjectEnd(chunk []byte) int {
	if len(chunk) == 0 || chunk[0] != '{' {
		return -1
	}

	depth := 0
	inString := false
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
