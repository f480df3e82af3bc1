package scanner

import (
	"testing"

	"github.com/matryer/is"

	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
)

func TestFormatRank(t *testing.T) {
	t.Parallel()
	is := is.New(t)

	is.True(formatRank("flac") > formatRank("m4a"))
	is.True(formatRank("wav") > formatRank("ogg"))
	is.True(formatRank("aac") > formatRank("mp3"))
	is.True(formatRank("mp3") > formatRank("opus"))
	is.Equal(formatRank("FLAC"), formatRank("flac"))
}

func TestDecideReplacement(t *testing.T) {
	t.Parallel()

	existing := func() *db.Track {
		return &db.Track{
			Path:     "/music/a/b/track.mp3",
			Size:     1000,
			Title:    "title",
			Artist:   "artist",
			Album:    "album",
			Genre:    "genre",
			Year:     2001,
			Duration: 100,
			Bitrate:  192,
		}
	}
	base := candidate{
		path:     "/music/a/c/track.mp3",
		size:     1000,
		tier:     librarypath.TierLibrary,
		title:    "title",
		artist:   "artist",
		album:    "album",
		genre:    "genre",
		year:     2001,
		duration: 100,
		bitrate:  192,
	}

	tests := []struct {
		name         string
		existingTier librarypath.Tier
		mutate       func(*candidate)
		missing      bool
		allowDup     bool
		want         Outcome
		wantMoved    bool
	}{
		{
			name:         "missing original short circuits everything",
			existingTier: librarypath.TierLibrary,
			mutate:       func(c *candidate) { c.size = 1; c.path = "/music/a/c/track.opus" },
			missing:      true,
			want:         OutcomeReplace,
			wantMoved:    true,
		},
		{
			name:         "library candidate beats staging incumbent",
			existingTier: librarypath.TierStaging,
			mutate:       func(c *candidate) { c.size = 1 },
			want:         OutcomeReplace,
		},
		{
			name:         "staging candidate never beats library incumbent",
			existingTier: librarypath.TierLibrary,
			mutate:       func(c *candidate) { c.tier = librarypath.TierStaging; c.path = "/dl/track.flac"; c.size = 9000 },
			want:         OutcomeKeep,
		},
		{
			name:         "better format wins within a tier",
			existingTier: librarypath.TierLibrary,
			mutate:       func(c *candidate) { c.path = "/music/a/c/track.flac"; c.size = 1 },
			want:         OutcomeReplace,
		},
		{
			name:         "larger file wins at equal format",
			existingTier: librarypath.TierLibrary,
			mutate:       func(c *candidate) { c.size = 2000 },
			want:         OutcomeReplace,
		},
		{
			name:         "completeness breaks size ties",
			existingTier: librarypath.TierLibrary,
			mutate:       func(c *candidate) { c.genre = ""; c.year = 0 },
			want:         OutcomeKeep,
		},
		{
			name:         "exact tie keeps the incumbent",
			existingTier: librarypath.TierLibrary,
			want:         OutcomeKeep,
		},
		{
			name:         "exact tie adds a duplicate when allowed",
			existingTier: librarypath.TierLibrary,
			allowDup:     true,
			want:         OutcomeAddDuplicate,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			is := is.New(t)

			cand := base
			if test.mutate != nil {
				test.mutate(&cand)
			}
			decision := decideReplacement(existing(), test.existingTier, cand, test.missing, test.allowDup)
			is.Equal(decision.Outcome, test.want)
			is.Equal(decision.Moved, test.wantMoved)
			is.True(decision.Reason != "")
		})
	}
}

func TestCompleteness(t *testing.T) {
	t.Parallel()
	is := is.New(t)

	is.Equal(completeness("t", "a", "al", "g", 2000, 100, 192), 7)
	is.Equal(completeness("t", "Unknown Artist", "al", "", 2000, 0, 192), 4)
	is.Equal(completeness("", "", "", "", 0, 0, 0), 0)
}
