package audioindex

import (
	"path"
	"strings"
)

// MusicDir is the directory under the mount point that holds the audio
// files and the index document.
const MusicDir = "ESP32_MUSIC"

// FullPath resolves a record's relative path against the storage mount
// point, giving "<mountPoint>/ESP32_MUSIC/<relative>".
//
// Leading slashes on relative are ignored. An empty relative path resolves
// to the music directory itself.
func FullPath(mountPoint, relative string) string {
	relative = strings.TrimLeft(relative, "/")
	return path.Join(mountPoint, MusicDir, relative)
}
