package audioindex_test

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonhull/audioindex"
	"github.com/simonhull/audioindex/internal/testutil"
)

func openSample(t *testing.T, opts ...audioindex.Option) *audioindex.Index {
	t.Helper()

	path := testutil.WriteIndex(t, []byte(testutil.SampleIndex))
	idx, err := audioindex.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestOpen_Sample(t *testing.T) {
	idx := openSample(t)

	assert.Equal(t, 3, idx.FileCount())
	assert.Equal(t, 2, idx.FolderCount())
	assert.Equal(t, "1.1", idx.Version())
	assert.Equal(t, 3, idx.DeclaredTotal())
	assert.Empty(t, idx.Warnings())

	f0, err := idx.File(0)
	require.NoError(t, err)
	assert.Equal(t, "song1.pcm", f0.Name)
	assert.Equal(t, "Pop/song1.pcm", f0.Path)
	assert.Equal(t, uint32(44100), f0.SampleRate)
	assert.Equal(t, 0, f0.FolderIndex)
	assert.Equal(t, "Artist A", f0.Artist)

	f1, err := idx.File(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), f1.SampleRate)
	assert.Equal(t, uint16(24), f1.BitDepth)
	assert.Equal(t, 0, f1.FolderIndex)

	f2, err := idx.File(2)
	require.NoError(t, err)
	assert.Equal(t, 1, f2.FolderIndex)
	assert.Equal(t, "Rock Anthem", f2.Song)
	assert.Equal(t, "Rock Collection", f2.Album)

	d0, err := idx.Folder(0)
	require.NoError(t, err)
	assert.Equal(t, "Pop", d0.Name)
	assert.Equal(t, 2, d0.FileCount)
	assert.Equal(t, 0, d0.FirstFileIndex)

	d1, err := idx.Folder(1)
	require.NoError(t, err)
	assert.Equal(t, "Rock", d1.Name)
	assert.Equal(t, 1, d1.FileCount)
	assert.Equal(t, 2, d1.FirstFileIndex)
}

func TestFile_OutOfRange(t *testing.T) {
	idx := openSample(t)

	for _, i := range []int{-1, idx.FileCount(), 1 << 20} {
		_, err := idx.File(i)
		var oor *audioindex.OutOfRangeError
		require.ErrorAs(t, err, &oor, "index %d", i)
		assert.Equal(t, "file", oor.Kind)
		assert.Equal(t, i, oor.Index)
		assert.Equal(t, 3, oor.Count)
	}

	for _, i := range []int{-1, idx.FolderCount()} {
		_, err := idx.Folder(i)
		var oor *audioindex.OutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, "folder", oor.Kind)
	}
}

func TestOffsets_PointAtBraces(t *testing.T) {
	doc := testutil.GenerateIndex(50, 4)
	path := testutil.WriteIndex(t, doc)

	idx, err := audioindex.Open(path)
	require.NoError(t, err)
	defer idx.Close()

	files := idx.FileOffsets()
	require.Len(t, files, 50)
	for i, off := range files {
		assert.Equal(t, byte('{'), doc[off], "file %d", i)
		if i > 0 {
			assert.Greater(t, off, files[i-1])
		}
	}
	for i, off := range idx.FolderOffsets() {
		assert.Equal(t, byte('{'), doc[off], "folder %d", i)
	}

	// returned slices are copies
	files[0] = -1
	assert.NotEqual(t, int64(-1), idx.FileOffsets()[0])
}

func TestFile_Idempotent(t *testing.T) {
	idx := openSample(t)

	for i := 0; i < idx.FileCount(); i++ {
		a, err := idx.File(i)
		require.NoError(t, err)
		b, err := idx.File(i)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestOpen_LargeDocument(t *testing.T) {
	const files, folders = 2000, 10

	path := testutil.WriteIndex(t, testutil.GenerateIndex(files, folders))
	idx, err := audioindex.Open(path)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, files, idx.FileCount())
	assert.Equal(t, folders, idx.FolderCount())

	// a constant number of scanner calls per record
	st := idx.Stats()
	assert.LessOrEqual(t, st.ScanCalls, int64(6*(files+folders)+16))
	assert.False(t, st.FromSnapshot)

	last, err := idx.File(files - 1)
	require.NoError(t, err)
	assert.Equal(t, "song2000.pcm", last.Name)
	assert.Equal(t, folders-1, last.FolderIndex)

	total := 0
	for i := 0; i < idx.FolderCount(); i++ {
		first, count, err := idx.FolderFiles(i)
		require.NoError(t, err)
		assert.Equal(t, total, first)
		total += count
	}
	assert.Equal(t, files, total)
}

func TestOpen_Errors(t *testing.T) {
	t.Run("missing document", func(t *testing.T) {
		_, err := audioindex.Open("/nonexistent/index.json")
		var ioErr *audioindex.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing file array", func(t *testing.T) {
		path := testutil.WriteIndex(t, []byte(`{"version": "1.1", "musicFolders": []}`))
		_, err := audioindex.Open(path)
		var missing *audioindex.MissingArrayError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "allFiles", missing.Key)
	})

	t.Run("strict malformed", func(t *testing.T) {
		doc := `{"allFiles": [{"name": "a"}, {"name": "b"`
		path := testutil.WriteIndex(t, []byte(doc))
		_, err := audioindex.Open(path, audioindex.WithStrictParsing())
		var malformed *audioindex.MalformedObjectError
		require.ErrorAs(t, err, &malformed)
	})
}

func TestOpen_MissingFolders(t *testing.T) {
	path := testutil.WriteIndex(t, []byte(`{"allFiles": [{"name": "a.pcm", "folderIndex": 0}]}`))
	idx, err := audioindex.Open(path)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 1, idx.FileCount())
	assert.Equal(t, 0, idx.FolderCount())
	require.Len(t, idx.Warnings(), 1)
	assert.Equal(t, "folders", idx.Warnings()[0].Stage)

	// no folders, so any folder index is out of range
	rec, err := idx.File(0)
	require.NoError(t, err)
	assert.Equal(t, audioindex.NoFolder, rec.FolderIndex)
	assert.Equal(t, -1, idx.DeclaredTotal())
}

func TestOpen_IgnoreWarnings(t *testing.T) {
	path := testutil.WriteIndex(t, []byte(`{"allFiles": [{"name": "a.pcm"}]}`))
	idx, err := audioindex.Open(path, audioindex.WithIgnoreWarnings())
	require.NoError(t, err)
	defer idx.Close()
	assert.Empty(t, idx.Warnings())
}

func TestOpen_InvalidOptions(t *testing.T) {
	path := testutil.WriteIndex(t, []byte(testutil.SampleIndex))

	tests := []struct {
		name string
		opt  audioindex.Option
	}{
		{"tiny window", audioindex.WithWindowSize(4)},
		{"zero chunk", audioindex.WithChunkSize(0)},
		{"max below chunk", audioindex.WithMaxChunkSize(10)},
		{"zero object span", audioindex.WithMaxObjectSpan(0)},
		{"negative scan", audioindex.WithMaxScan(-1)},
		{"unknown codec", audioindex.WithSnapshotCodec(audioindex.SnapshotCodec(9))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := audioindex.Open(path, tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestOpen_SmallWindowMatchesDefault(t *testing.T) {
	path := testutil.WriteIndex(t, testutil.GenerateIndex(40, 3))

	a, err := audioindex.Open(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := audioindex.Open(path, audioindex.WithWindowSize(16), audioindex.WithChunkSize(64))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, a.FileOffsets(), b.FileOffsets())
	assert.Equal(t, a.FolderOffsets(), b.FolderOffsets())
	assert.Greater(t, b.Stats().Windows, a.Stats().Windows)

	// a 64 byte chunk is too small for a record; the retry covers it
	ra, err := a.File(7)
	require.NoError(t, err)
	rb, err := b.File(7)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestOpen_FS(t *testing.T) {
	fsys := fstest.MapFS{
		"ESP32_MUSIC/index.json": &fstest.MapFile{Data: []byte(testutil.SampleIndex)},
	}

	idx, err := audioindex.Open("ESP32_MUSIC/index.json", audioindex.WithFS(fsys))
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 3, idx.FileCount())
	rec, err := idx.File(1)
	require.NoError(t, err)
	assert.Equal(t, "Pop/song2.pcm", rec.Path)
}

func TestOpenOrEmpty(t *testing.T) {
	idx, err := audioindex.OpenOrEmpty("/nonexistent/index.json")
	require.Error(t, err)
	require.NotNil(t, idx)

	assert.Equal(t, 0, idx.FileCount())
	assert.Equal(t, 0, idx.FolderCount())
	assert.Empty(t, idx.FileOffsets())

	_, err = idx.File(0)
	var oor *audioindex.OutOfRangeError
	assert.ErrorAs(t, err, &oor)

	for range idx.Files() {
		t.Fatal("empty index yielded a record")
	}
	require.NoError(t, idx.Close())

	path := testutil.WriteIndex(t, []byte(testutil.SampleIndex))
	idx, err = audioindex.OpenOrEmpty(path)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.FileCount())
}

func TestFiles_Iterator(t *testing.T) {
	idx := openSample(t)

	var names []string
	for rec, err := range idx.Files() {
		require.NoError(t, err)
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"song1.pcm", "song2.pcm", "song3.pcm"}, names)

	n := 0
	for range idx.Files() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLookup(t *testing.T) {
	idx := openSample(t)

	i, rec, err := idx.Lookup("Rock/song3.pcm")
	require.NoError(t, err)
	assert.Equal(t, 2, i)
	assert.Equal(t, "Artist C", rec.Artist)

	_, _, err = idx.Lookup("Jazz/none.pcm")
	assert.ErrorIs(t, err, audioindex.ErrNotFound)
}

func TestFolderFiles(t *testing.T) {
	idx := openSample(t)

	first, count, err := idx.FolderFiles(1)
	require.NoError(t, err)
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, count)

	doc := strings.Replace(testutil.SampleIndex, `"fileCount": 1`, `"fileCount": 5`, 1)
	bad, err := audioindex.Open(testutil.WriteIndex(t, []byte(doc)))
	require.NoError(t, err)
	defer bad.Close()

	_, _, err = bad.FolderFiles(1)
	var oor *audioindex.OutOfRangeError
	assert.ErrorAs(t, err, &oor)
}

func TestFolder_LegacyShape(t *testing.T) {
	doc := `{"allFiles": [{"name": "a.pcm"}],
"musicFolders": [{"name": "Pop", "files": [{"name": "a.pcm"}]}]}`
	idx, err := audioindex.Open(testutil.WriteIndex(t, []byte(doc)))
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Folder(0)
	var legacy *audioindex.LegacyFormatError
	assert.ErrorAs(t, err, &legacy)
}

func TestClose(t *testing.T) {
	path := testutil.WriteIndex(t, []byte(testutil.SampleIndex))
	idx, err := audioindex.Open(path)
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.File(0)
	assert.ErrorIs(t, err, audioindex.ErrClosed)
	_, err = idx.Folder(0)
	assert.ErrorIs(t, err, audioindex.ErrClosed)
	_, _, err = idx.Lookup("Pop/song1.pcm")
	assert.ErrorIs(t, err, audioindex.ErrClosed)
	assert.Equal(t, 0, idx.FileCount())
}

func TestFile_DocumentRemoved(t *testing.T) {
	path := testutil.WriteIndex(t, []byte(testutil.SampleIndex))
	idx, err := audioindex.Open(path)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, os.Remove(path))

	_, err = idx.File(0)
	var ioErr *audioindex.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	idx := openSample(t, audioindex.WithMetrics(reg))

	_, err := idx.File(0)
	require.NoError(t, err)
	_, err = idx.Folder(1)
	require.NoError(t, err)
	_, err = idx.File(7)
	require.Error(t, err)

	// a second index reports into the same registry
	openSample(t, audioindex.WithMetrics(reg))

	n, err := promtest.GatherAndCount(reg, "audioindex_build_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := `
# HELP audioindex_records_read_total Total number of on-demand record reads
# TYPE audioindex_records_read_total counter
audioindex_records_read_total{kind="file",status="ok"} 1
audioindex_records_read_total{kind="folder",status="ok"} 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, bytes.NewBufferString(expected), "audioindex_records_read_total"))
}

func TestFullPath(t *testing.T) {
	tests := []struct {
		mount, rel, want string
	}{
		{"/sdcard", "Pop/song1.pcm", "/sdcard/ESP32_MUSIC/Pop/song1.pcm"},
		{"/sdcard/", "/Rock/song3.pcm", "/sdcard/ESP32_MUSIC/Rock/song3.pcm"},
		{"/sdcard", "", "/sdcard/ESP32_MUSIC"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, audioindex.FullPath(tt.mount, tt.rel))
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	idx := openSample(t)
	_, err := idx.File(-1)
	assert.False(t, errors.Is(err, audioindex.ErrNotFound))
	assert.False(t, errors.Is(err, audioindex.ErrClosed))
}
