// Package testutil builds index documents and in-memory sources for tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/simonhull/audioindex/internal/source"
)

// SampleIndex is a 3-file, 2-folder document in the supported shape.
const SampleIndex = `{
  "version": "1.1",
  "totalFiles": 3,
  "allFiles": [
    {
      "name": "song1.pcm",
      "path": "Pop/song1.pcm",
      "sampleRate": 44100,
      "bitDepth": 16,
      "channels": 2,
      "folderIndex": 0,
      "song": "Song One",
      "album": "Pop Hits",
      "artist": "Artist A"
    },
    {
      "name": "song2.pcm",
      "path": "Pop/song2.pcm",
      "sampleRate": 48000,
      "bitDepth": 24,
      "channels": 2,
      "folderIndex": 0,
      "song": "Song Two",
      "album": "Pop Hits",
      "artist": "Artist B"
    },
    {
      "name": "song3.pcm",
      "path": "Rock/song3.pcm",
      "sampleRate": 44100,
      "bitDepth": 16,
      "channels": 2,
      "folderIndex": 1,
      "song": "Rock Anthem",
      "album": "Rock Collection",
      "artist": "Artist C"
    }
  ],
  "musicFolders": [
    {
      "name": "Pop",
      "fileCount": 2,
      "firstFileIndex": 0
    },
    {
      "name": "Rock",
      "fileCount": 1,
      "firstFileIndex": 2
    }
  ]
}`

// GenerateIndex builds a pretty-printed document with files spread over
// folders in contiguous runs, the way the indexing tool writes it.
func GenerateIndex(files, folders int) []byte {
	var buf bytes.Buffer
	writeIndex(&buf, files, folders)
	return buf.Bytes()
}

func writeIndex(w io.Writer, files, folders int) {
	perFolder := make([]int, folders)
	for i := 0; i < files && folders > 0; i++ {
		perFolder[i*folders/files]++
	}
	folderOf := func(i int) int {
		seen := 0
		for f, n := range perFolder {
			seen += n
			if i < seen {
				return f
			}
		}
		return -1
	}

	fmt.Fprintf(w, "{\n  \"version\": \"1.1\",\n  \"totalFiles\": %d,\n  \"allFiles\": [\n", files)
	for i := 0; i < files; i++ {
		f := folderOf(i)
		rate, depth := 48000, 24
		if i%2 == 1 {
			rate, depth = 44100, 16
		}
		fmt.Fprintf(w, "    {\n")
		fmt.Fprintf(w, "      \"name\": \"song%d.pcm\",\n", i+1)
		fmt.Fprintf(w, "      \"path\": \"Folder%d/song%d.pcm\",\n", f+1, i+1)
		fmt.Fprintf(w, "      \"song\": \"Generated Song %d\",\n", i+1)
		fmt.Fprintf(w, "      \"album\": \"Generated Album %d\",\n", i%5+1)
		fmt.Fprintf(w, "      \"artist\": \"Generated Artist %d\",\n", i%3+1)
		fmt.Fprintf(w, "      \"sampleRate\": %d,\n", rate)
		fmt.Fprintf(w, "      \"bitDepth\": %d,\n", depth)
		fmt.Fprintf(w, "      \"channels\": 2,\n")
		fmt.Fprintf(w, "      \"folderIndex\": %d\n", f)
		sep := ","
		if i == files-1 {
			sep = ""
		}
		fmt.Fprintf(w, "    }%s\n", sep)
	}
	fmt.Fprintf(w, "  ],\n  \"musicFolders\": [\n")

	first := 0
	for f := 0; f < folders; f++ {
		sep := ","
		if f == folders-1 {
			sep = ""
		}
		fmt.Fprintf(w, "    {\n      \"name\": \"Folder%d\",\n      \"fileCount\": %d,\n      \"firstFileIndex\": %d\n    }%s\n",
			f+1, perFolder[f], first, sep)
		first += perFolder[f]
	}
	fmt.Fprintf(w, "  ]\n}\n")
}

// MemSource returns a Source over data.
func MemSource(data []byte, path string) *source.Source {
	return source.New(bytes.NewReader(data), int64(len(data)), path)
}

// WriteIndex writes data to index.json in a temporary directory and returns its path.
func WriteIndex(tb testing.TB, data []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "index.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatal(err)
	}
	return path
}
