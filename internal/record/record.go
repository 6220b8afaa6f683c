// Package record materializes one file or folder record from its offset.
package record

import (
	"math"

	"github.com/simonhull/audioindex/internal/field"
	"github.com/simonhull/audioindex/internal/pool"
	"github.com/simonhull/audioindex/internal/source"
	"github.com/simonhull/audioindex/internal/types"
)

// Default chunk sizes.
const (
	DefaultChunkSize    = 1024
	DefaultMaxChunkSize = 4096
)

// Config controls how much of the document is read per record.
type Config struct {
	// ChunkSize is the number of bytes read at the record offset.
	ChunkSize int

	// MaxChunkSize is the size of the single retry made when the record
	// does not close inside the first chunk. Values <= ChunkSize disable it.
	MaxChunkSize int
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// chunk holds the bytes of one record.
type chunk struct {
	buf  *pool.Buffer
	data []byte
}

func (c *chunk) release() {
	pool.PutChunk(c.buf)
}

// readChunk reads the record at off, clipped to its closing brace so the
// following record's keys cannot be picked up.
func readChunk(src *source.Source, off int64, cfg Config, array string) (*chunk, error) {
	cfg = cfg.withDefaults()

	c := &chunk{buf: pool.GetChunk(cfg.ChunkSize)}
	n, err := src.ReadAt(c.buf.B, off, array+" record")
	if err != nil {
		c.release()
		return nil, err
	}
	c.data = c.buf.B[:n]

	if n == 0 || c.data[0] != '{' {
		c.release()
		return nil, &types.MalformedObjectError{
			Path:   src.Path(),
			Array:  array,
			Offset: off,
			Reason: "offset does not point at an object; the document may have changed",
		}
	}

	end := field.ObjectEnd(c.data)
	if end < 0 && n == cfg.ChunkSize && cfg.MaxChunkSize > cfg.ChunkSize {
		n, err = src.ReadAt(c.buf.Grow(cfg.MaxChunkSize), off, array+" record")
		if err != nil {
			c.release()
			return nil, err
		}
		c.data = c.buf.B[:n]
		end = field.ObjectEnd(c.data)
	}

	if end >= 0 {
		c.data = c.data[:end+1]
	}
	return c, nil
}

// ReadFile reads the file record at off. folderCount bounds folderIndex.
//
// Absent or malformed fields take their defaults; they never fail the read.
func ReadFile(src *source.Source, off int64, cfg Config, folderCount int) (types.FileRecord, error) {
	c, err := readChunk(src, off, cfg, "allFiles")
	if err != nil {
		return types.FileRecord{}, err
	}
	defer c.release()

	rec := types.FileRecord{}
	str := func(key string, f types.Field, max int, def string) string {
		v, truncated, ok := field.String(c.data, key, max)
		if !ok {
			return def
		}
		if truncated {
			rec.Truncated |= f
		}
		return v
	}

	rec.Name = str("name", types.FieldName, types.MaxNameLen, types.DefaultName)
	rec.Path = str("path", types.FieldPath, types.MaxPathLen, "")
	rec.Song = str("song", types.FieldSong, types.MaxTagLen, types.DefaultSong)
	rec.Album = str("album", types.FieldAlbum, types.MaxTagLen, types.DefaultAlbum)
	rec.Artist = str("artist", types.FieldArtist, types.MaxTagLen, types.DefaultArtist)

	rec.SampleRate = uint32(positive(c.data, "sampleRate", math.MaxUint32, types.DefaultSampleRate))
	rec.BitDepth = uint16(positive(c.data, "bitDepth", math.MaxUint16, types.DefaultBitDepth))
	rec.Channels = uint16(positive(c.data, "channels", math.MaxUint16, types.DefaultChannels))

	rec.FolderIndex = types.NoFolder
	if v, ok := field.Int(c.data, "folderIndex"); ok && v >= 0 && v < int64(folderCount) {
		rec.FolderIndex = int(v)
	}

	return rec, nil
}

// ReadFolder reads the folder record at off.
//
// Only the name/fileCount/firstFileIndex shape is supported. Folders that
// embed their files in a "files" array are rejected with LegacyFormatError.
func ReadFolder(src *source.Source, off int64, cfg Config) (types.FolderRecord, error) {
	c, err := readChunk(src, off, cfg, "musicFolders")
	if err != nil {
		return types.FolderRecord{}, err
	}
	defer c.release()

	if field.Has(c.data, "files") {
		return types.FolderRecord{}, &types.LegacyFormatError{
			Path:   src.Path(),
			Offset: off,
			Reason: `folder embeds a "files" array; expected "fileCount" and "firstFileIndex"`,
		}
	}

	rec := types.FolderRecord{
		Name:           types.DefaultName,
		FirstFileIndex: -1,
	}
	if v, truncated, ok := field.String(c.data, "name", types.MaxNameLen); ok {
		rec.Name = v
		if truncated {
			rec.Truncated |= types.FieldName
		}
	}
	if v, ok := field.Int(c.data, "fileCount"); ok && v >= 0 && v <= math.MaxInt32 {
		rec.FileCount = int(v)
	}
	if v, ok := field.Int(c.data, "firstFileIndex"); ok && v >= 0 && v <= math.MaxInt32 {
		rec.FirstFileIndex = int(v)
	}

	return rec, nil
}

// positive returns the value of key when it is in (0, max], else def.
func positive(data []byte, key string, max, def int64) int64 {
	v, ok := field.Int(data, key)
	if !ok || v <= 0 || v > max {
		return def
	}
	return v
}
