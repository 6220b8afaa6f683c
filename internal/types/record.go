// Package types provides the records and errors shared by the indexer,
// the on-demand reader and the public API.
package types

import "strings"

// Field identifies a string field of a record. Fields combine as a bit set.
type Field uint16

const (
	FieldName Field = 1 << iota
	FieldPath
	FieldSong
	FieldAlbum
	FieldArtist
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldName, "name"},
	{FieldPath, "path"},
	{FieldSong, "song"},
	{FieldAlbum, "album"},
	{FieldArtist, "artist"},
}

// Has reports whether all fields in o are set in f.
func (f Field) Has(o Field) bool {
	return o != 0 && f&o == o
}

// String returns the set fields joined by "|".
func (f Field) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range fieldNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Maximum stored lengths in bytes. Longer values are truncated.
const (
	MaxNameLen = 255
	MaxPathLen = 255
	MaxTagLen  = 127
)

// Defaults applied when a field is absent or malformed.
const (
	DefaultName       = "unknown"
	DefaultSong       = "Unknown Song"
	DefaultAlbum      = "Unknown Album"
	DefaultArtist     = "Unknown Artist"
	DefaultSampleRate = 44100
	DefaultBitDepth   = 16
	DefaultChannels   = 2
	NoFolder          = -1
)

// FileRecord is one entry of the flat file list, materialized on demand.
type FileRecord struct {
	Name   string
	Path   string
	Song   string
	Album  string
	Artist string

	SampleRate  uint32 // Hz
	BitDepth    uint16 // bits per sample
	Channels    uint16
	FolderIndex int // NoFolder when absent or outside the folder list

	// Truncated marks string fields whose source value exceeded capacity or
	// whose closing quote was not found inside the read chunk.
	Truncated Field
}

// FolderRecord is one entry of the folder list.
type FolderRecord struct {
	Name           string
	FileCount      int
	FirstFileIndex int // -1 when absent

	Truncated Field
}
