// Package tagcommon is the contract between the scanner and whatever reads
// embedded metadata from audio files. implementations may leave any field
// zero - callers must tolerate partial tags.
package tagcommon

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrUnsupported = errors.New("filetype unsupported")

type Reader interface {
	CanRead(absPath string) bool
	Read(absPath string) (Info, error)
}

type Info interface {
	Title() string
	Artist() string
	Album() string
	Genre() string
	Genres() []string
	Year() int

	Length() int
	Bitrate() int
}

const (
	FallbackAlbum  = "Unknown Album"
	FallbackArtist = "Unknown Artist"
	FallbackGenre  = "Unknown Genre"
)

// the fixed allow-list of audio extensions the engine will consider.
// anything else is ignored during walking.
var audioExtensions = map[string]struct{}{
	"mp3":  {},
	"flac": {},
	"wav":  {},
	"m4a":  {},
	"aac":  {},
	"ogg":  {},
}

func IsAudioPath(absPath string) bool {
	ext := filepath.Ext(absPath)
	if ext == "" {
		return false
	}
	_, ok := audioExtensions[strings.ToLower(ext[1:])]
	return ok
}

func MustAlbum(p Info) string {
	if r := p.Album(); r != "" {
		return r
	}
	return FallbackAlbum
}

func MustGenre(p Info) string {
	if r := p.Genre(); r != "" {
		return r
	}
	return FallbackGenre
}

// IsPlaceholder reports whether a tag value carries no real information for
// the purposes of metadata completeness scoring.
func IsPlaceholder(value string) bool {
	switch value {
	case "", FallbackAlbum, FallbackArtist, FallbackGenre:
		return true
	}
	return false
}
