package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
	"go.tonearm.xyz/tonearm/tags/tagcommon"
)

// Outcome is what the replacement policy wants done with a candidate file
// that matched an existing row.
type Outcome int

const (
	// OutcomeKeep retains the existing row unchanged, the candidate is a no-op.
	OutcomeKeep Outcome = iota
	// OutcomeReplace rewrites the existing row in place from the candidate.
	OutcomeReplace
	// OutcomeAddDuplicate inserts the candidate as a new non-primary row.
	OutcomeAddDuplicate
	// OutcomeSkip drops the candidate without touching anything.
	OutcomeSkip
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReplace:
		return "replace"
	case OutcomeAddDuplicate:
		return "add-duplicate"
	case OutcomeSkip:
		return "skip"
	}
	return "keep"
}

// Decision carries the outcome plus enough context to log it.
type Decision struct {
	Outcome Outcome
	// Moved means the existing row's file is gone and the candidate holds
	// the same identity - a relink, not a quality contest.
	Moved  bool
	Reason string
}

// candidate is one discovered file, with folder-derived and tag-derived
// metadata already merged (folder wins for current artist/album).
type candidate struct {
	path  string
	size  int64
	tier  librarypath.Tier
	title string
	artist, album string
	year, duration, bitrate int
	genre string

	// tag values before the folder merge, for the original_* columns
	tagTitle, tagArtist, tagAlbum string
}

// formatRank maps an extension onto the fixed quality order: lossless, then
// high-bitrate lossy containers, then mp3, then everything else.
func formatRank(ext string) int {
	switch strings.ToLower(ext) {
	case "flac", "wav":
		return 3
	case "m4a", "aac", "ogg":
		return 2
	case "mp3":
		return 1
	}
	return 0
}

// completeness counts how many of the seven metadata fields are present and
// non-placeholder.
func completeness(title, artist, album, genre string, year, duration, bitrate int) int {
	var score int
	for _, s := range []string{title, artist, album, genre} {
		if !tagcommon.IsPlaceholder(s) {
			score++
		}
	}
	for _, n := range []int{year, duration, bitrate} {
		if n != 0 {
			score++
		}
	}
	return score
}

// decideReplacement applies the tiebreak ladder from most to least
// authoritative: provenance, format rank, file size, metadata completeness.
// existingMissing short-circuits the whole ladder - a vanished original plus
// a same-identity candidate is a move, not a contest.
func decideReplacement(existing *db.Track, existingTier librarypath.Tier, cand candidate, existingMissing, allowDuplicates bool) Decision {
	if existingMissing {
		return Decision{Outcome: OutcomeReplace, Moved: true, Reason: "original file missing"}
	}

	if existingTier == librarypath.TierStaging && cand.tier == librarypath.TierLibrary {
		return Decision{Outcome: OutcomeReplace, Reason: "candidate is in the organized library"}
	}
	if existingTier == librarypath.TierLibrary && cand.tier == librarypath.TierStaging {
		return Decision{Outcome: OutcomeKeep, Reason: "existing is in the organized library"}
	}

	existingRank := formatRank(existing.Ext())
	candExt := strings.TrimPrefix(filepath.Ext(cand.path), ".")
	candRank := formatRank(candExt)
	if candRank != existingRank {
		if candRank > existingRank {
			return Decision{Outcome: OutcomeReplace, Reason: fmt.Sprintf("format %s outranks %s", candExt, existing.Ext())}
		}
		return Decision{Outcome: OutcomeKeep, Reason: fmt.Sprintf("format %s outranks %s", existing.Ext(), candExt)}
	}

	if cand.size != existing.Size {
		if cand.size > existing.Size {
			return Decision{Outcome: OutcomeReplace, Reason: fmt.Sprintf("candidate is larger (%s > %s)",
				humanize.Bytes(uint64(cand.size)), humanize.Bytes(uint64(existing.Size)))}
		}
		return Decision{Outcome: OutcomeKeep, Reason: fmt.Sprintf("existing is larger (%s > %s)",
			humanize.Bytes(uint64(existing.Size)), humanize.Bytes(uint64(cand.size)))}
	}

	candScore := completeness(cand.title, cand.artist, cand.album, cand.genre, cand.year, cand.duration, cand.bitrate)
	existingScore := completeness(existing.Title, existing.Artist, existing.Album, existing.Genre, existing.Year, existing.Duration, existing.Bitrate)
	if candScore != existingScore {
		if candScore > existingScore {
			return Decision{Outcome: OutcomeReplace, Reason: "candidate has more complete metadata"}
		}
		return Decision{Outcome: OutcomeKeep, Reason: "existing has more complete metadata"}
	}

	if allowDuplicates {
		return Decision{Outcome: OutcomeAddDuplicate, Reason: "exact tie, duplicates allowed"}
	}
	return Decision{Outcome: OutcomeKeep, Reason: "exact tie"}
}
