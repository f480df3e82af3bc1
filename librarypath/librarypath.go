// Package librarypath knows the filesystem layout conventions of a music
// library. it derives an authoritative (artist, album) pair for a file from
// its folder hierarchy, independent of embedded tags, and assigns each path a
// provenance tier used to break replacement ties. users organize folders
// deliberately, so folder-derived values outrank tag values for the current
// artist/album columns.
package librarypath

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Tier is the trust level of the folder a file was discovered in.
type Tier int

const (
	TierUnknown Tier = iota
	TierStaging
	TierLibrary
)

func (t Tier) String() string {
	switch t {
	case TierLibrary:
		return "library"
	case TierStaging:
		return "staging"
	}
	return "unknown"
}

// Layout is the set of path segment names recognized as library roots.
// the segment after a root segment is the artist, the parent of the file is
// the album.
type Layout struct {
	// LibraryNames mark main organized library roots, eg. "music".
	LibraryNames []string
	// StagingNames mark auto-import or staging roots, eg. "organized"
	// under a downloads folder, or a youtube import dump.
	StagingNames []string
}

func DefaultLayout() Layout {
	return Layout{
		LibraryNames: []string{"music", "library"},
		StagingNames: []string{"organized", "youtube", "imports"},
	}
}

// Identity is what the folder hierarchy says about a file.
type Identity struct {
	Artist string
	Album  string
	Tier   Tier
}

// Infer derives folder identity from an absolute path. the zero Identity is
// returned when no recognized root segment is found.
func (l Layout) Infer(absPath string) Identity {
	segments := strings.Split(filepath.ToSlash(filepath.Clean(absPath)), "/")
	root, tier := l.findRoot(segments)
	if tier == TierUnknown {
		return Identity{}
	}

	var identity Identity
	identity.Tier = tier
	if root+1 < len(segments)-1 {
		identity.Artist = segments[root+1]
	}
	// the parent of the file is the album, unless the file sits directly
	// in the artist folder
	if parent := len(segments) - 2; parent > root+1 {
		identity.Album = CleanAlbum(segments[parent], identity.Artist)
	}
	return identity
}

// Tier reports the provenance tier of a path on its own.
func (l Layout) Tier(absPath string) Tier {
	segments := strings.Split(filepath.ToSlash(filepath.Clean(absPath)), "/")
	_, tier := l.findRoot(segments)
	return tier
}

func (l Layout) findRoot(segments []string) (int, Tier) {
	for i, segment := range segments {
		name := strings.ToLower(segment)
		for _, staging := range l.StagingNames {
			if name == staging {
				return i, TierStaging
			}
		}
		for _, library := range l.LibraryNames {
			if name == library {
				return i, TierLibrary
			}
		}
	}
	return -1, TierUnknown
}

var (
	yearPrefixExpr = regexp.MustCompile(`^[\[(]?\d{4}[\])]?(\s*[-._]\s*|\s+)`)
	releaseTagExpr = regexp.MustCompile(`\s*[\[(][^\[\]()]*[\])]\s*$`)
)

// CleanAlbum strips the decorations release folders tend to carry - a
// redundant "Artist - " prefix, a leading year marker, and trailing bracketed
// release tags like "[WEB] [FLAC]" or "(Deluxe Edition)".
func CleanAlbum(album, artist string) string {
	album = strings.TrimSpace(album)
	cleaned := album
	if artist != "" {
		prefix := strings.ToLower(artist) + " - "
		if strings.HasPrefix(strings.ToLower(cleaned), prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
		}
	}
	cleaned = yearPrefixExpr.ReplaceAllString(cleaned, "")
	for {
		stripped := releaseTagExpr.ReplaceAllString(cleaned, "")
		if stripped == cleaned {
			break
		}
		cleaned = stripped
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		// over-eager cleanup, eg. an album actually called "(Deluxe)"
		return album
	}
	return cleaned
}

// Roots is a repeatable flag value holding the configured scan roots.
// a root is either "path" or "kind -> path" where kind is "library" or
// "staging".
type Roots []Root

type Root struct {
	Path string
	Tier Tier
}

const rootSep = "->"

func (r Root) String() string {
	if r.Tier == TierStaging {
		return fmt.Sprintf("staging %s %s", rootSep, r.Path)
	}
	return r.Path
}

func (rs Roots) String() string {
	var strs []string
	for _, root := range rs {
		strs = append(strs, root.String())
	}
	return strings.Join(strs, ", ")
}

func (rs *Roots) Set(value string) error {
	kind, path, ok := strings.Cut(value, rootSep)
	if !ok {
		*rs = append(*rs, Root{
			Path: filepath.Clean(strings.TrimSpace(value)),
			Tier: TierLibrary,
		})
		return nil
	}
	var tier Tier
	switch strings.TrimSpace(strings.ToLower(kind)) {
	case "library":
		tier = TierLibrary
	case "staging":
		tier = TierStaging
	default:
		return fmt.Errorf("unknown root kind %q", kind)
	}
	*rs = append(*rs, Root{
		Path: filepath.Clean(strings.TrimSpace(path)),
		Tier: tier,
	})
	return nil
}

func (rs Roots) Paths() []string {
	var paths []string
	for _, root := range rs {
		paths = append(paths, root.Path)
	}
	return paths
}
