package audioindex

import "github.com/simonhull/audioindex/internal/types"

// FileRecord is one audio file entry, materialized on demand.
type FileRecord = types.FileRecord

// FolderRecord is one folder entry, materialized on demand.
type FolderRecord = types.FolderRecord

// Field identifies string fields of a record, used in the Truncated mask.
type Field = types.Field

// String fields of a record.
const (
	FieldName   = types.FieldName
	FieldPath   = types.FieldPath
	FieldSong   = types.FieldSong
	FieldAlbum  = types.FieldAlbum
	FieldArtist = types.FieldArtist
)

// NoFolder is the FolderIndex of a file that belongs to no known folder.
const NoFolder = types.NoFolder
