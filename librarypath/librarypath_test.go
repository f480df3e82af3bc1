package librarypath_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.tonearm.xyz/tonearm/librarypath"
)

func TestInfer(t *testing.T) {
	t.Parallel()

	layout := librarypath.DefaultLayout()

	tcases := []struct {
		path   string
		artist string
		album  string
		tier   librarypath.Tier
	}{
		{
			path:   "/home/fr/music/Queen/A Night at the Opera/Bohemian Rhapsody.flac",
			artist: "Queen", album: "A Night at the Opera", tier: librarypath.TierLibrary,
		},
		{
			path:   "/srv/downloads/organized/Queen/Queen - Greatest Hits [WEB] [FLAC]/One Vision.flac",
			artist: "Queen", album: "Greatest Hits", tier: librarypath.TierStaging,
		},
		{
			path:   "/home/fr/music/Queen/loose track.mp3",
			artist: "Queen", album: "", tier: librarypath.TierLibrary,
		},
		{
			path:   "/mnt/backup/stuff/track.mp3",
			artist: "", album: "", tier: librarypath.TierUnknown,
		},
	}

	for _, tcase := range tcases {
		identity := layout.Infer(tcase.path)
		require.Equal(t, tcase.artist, identity.Artist, tcase.path)
		require.Equal(t, tcase.album, identity.Album, tcase.path)
		require.Equal(t, tcase.tier, identity.Tier, tcase.path)
	}
}

func TestCleanAlbum(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		album  string
		artist string
		want   string
	}{
		{"A Night at the Opera", "Queen", "A Night at the Opera"},
		{"Queen - A Night at the Opera", "Queen", "A Night at the Opera"},
		{"1975 - A Night at the Opera", "Queen", "A Night at the Opera"},
		{"(1975) A Night at the Opera", "Queen", "A Night at the Opera"},
		{"A Night at the Opera (Deluxe Edition)", "Queen", "A Night at the Opera"},
		{"A Night at the Opera [WEB] [FLAC]", "Queen", "A Night at the Opera"},
		{"queen - 1975 - A Night at the Opera [24bit]", "Queen", "A Night at the Opera"},
		// don't clean an album away to nothing
		{"(Deluxe)", "Queen", "(Deluxe)"},
		{"1984", "Van Halen", "1984"},
	}

	for _, tcase := range tcases {
		require.Equal(t, tcase.want, librarypath.CleanAlbum(tcase.album, tcase.artist), tcase.album)
	}
}

func TestTier(t *testing.T) {
	t.Parallel()

	layout := librarypath.DefaultLayout()
	require.Equal(t, librarypath.TierLibrary, layout.Tier("/home/fr/music/Queen/x.mp3"))
	require.Equal(t, librarypath.TierStaging, layout.Tier("/srv/downloads/youtube/whatever.mp3"))
	require.Equal(t, librarypath.TierUnknown, layout.Tier("/tmp/x.mp3"))
}

func TestRootsFlag(t *testing.T) {
	t.Parallel()

	var roots librarypath.Roots
	require.NoError(t, roots.Set("/home/fr/music"))
	require.NoError(t, roots.Set("staging -> /srv/downloads/organized"))
	require.Error(t, roots.Set("attic -> /srv/attic"))

	require.Len(t, roots, 2)
	require.Equal(t, librarypath.TierLibrary, roots[0].Tier)
	require.Equal(t, librarypath.TierStaging, roots[1].Tier)
	require.Equal(t, []string{"/home/fr/music", "/srv/downloads/organized"}, roots.Paths())
}
