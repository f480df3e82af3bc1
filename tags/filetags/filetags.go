// Package filetags reads embedded metadata with dhowden/tag. it is the
// production tagcommon.Reader - tests inject their own.
package filetags

import (
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"

	"go.tonearm.xyz/tonearm/tags/tagcommon"
)

type Reader struct{}

var _ tagcommon.Reader = (*Reader)(nil)

func (*Reader) CanRead(absPath string) bool {
	return tagcommon.IsAudioPath(absPath)
}

func (*Reader) Read(absPath string) (tagcommon.Info, error) {
	if !tagcommon.IsAudioPath(absPath) {
		return nil, tagcommon.ErrUnsupported
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	return &info{meta: meta}, nil
}

type info struct {
	meta tag.Metadata
}

func (i *info) Title() string  { return strings.TrimSpace(i.meta.Title()) }
func (i *info) Artist() string { return strings.TrimSpace(i.meta.Artist()) }
func (i *info) Album() string  { return strings.TrimSpace(i.meta.Album()) }
func (i *info) Year() int      { return i.meta.Year() }

func (i *info) Genre() string {
	if genres := i.Genres(); len(genres) > 0 {
		return genres[0]
	}
	return ""
}

func (i *info) Genres() []string {
	var genres []string
	for _, genre := range strings.Split(i.meta.Genre(), ";") {
		if genre = strings.TrimSpace(genre); genre != "" {
			genres = append(genres, genre)
		}
	}
	return genres
}

// dhowden/tag only parses tag frames, not the audio stream, so length and
// bitrate are only known when a frame carries them. zero is fine - the
// matcher and policy treat missing fields as absent.
func (i *info) Length() int  { return 0 }
func (i *info) Bitrate() int { return 0 }
