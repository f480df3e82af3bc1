package playlist_test

import (
	"testing"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/require"

	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/mockfs"
	"go.tonearm.xyz/tonearm/playlist"
)

func TestAddAndListTracks(t *testing.T) {
	t.Parallel()
	m := mockfs.New(t)
	store := playlist.NewStore(m.DB())

	m.AddItems()
	m.ScanAndReconcile()

	var tracks []*db.Track
	require.NoError(t, m.DB().Order("id").Limit(3).Find(&tracks).Error)

	created, err := store.Create("road trip")
	require.NoError(t, err)
	for _, track := range tracks {
		require.NoError(t, store.AddTrack(created.ID, track.ID))
	}

	listed, err := store.Tracks(created.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i := range listed {
		require.Equal(t, tracks[i].ID, listed[i].ID)
	}
}

func TestAddTrackUnknownPlaylist(t *testing.T) {
	t.Parallel()
	m := mockfs.New(t)
	store := playlist.NewStore(m.DB())

	err := store.AddTrack(99, 1)
	require.ErrorIs(t, err, playlist.ErrPlaylistNotFound)
}

func TestReconcileRewritesThroughTombstone(t *testing.T) {
	t.Parallel()
	m := mockfs.New(t)
	store := playlist.NewStore(m.DB())

	const oldPath = "music/artist-0/album-0/track-0.mp3"
	const newPath = "music/artist-0/album-0/track-0.flac"
	m.AddTrack(oldPath)
	m.SetTags(oldPath, func(tags *mockfs.TagInfo) {
		tags.RawArtist = "artist-0"
		tags.RawTitle = "title-0"
	})
	m.ScanAndReconcile()

	var victim db.Track
	require.NoError(t, m.DB().First(&victim).Error)

	created, err := store.Create("favorites")
	require.NoError(t, err)
	require.NoError(t, store.AddTrack(created.ID, victim.ID))

	// the file is re-ripped losslessly. delete the old row the way force
	// cleanup would, then catalog the new file
	m.RemoveAll(oldPath)
	m.DB().WithTx(func(tx *gorm.DB) {
		err = db.DeleteTrack(tx, &victim)
	})
	require.NoError(t, err)

	m.AddTrack(newPath)
	m.SetTags(newPath, func(tags *mockfs.TagInfo) {
		tags.RawArtist = "artist-0"
		tags.RawTitle = "title-0"
	})
	m.ScanAndReconcile()

	repairs, err := store.Reconcile()
	require.NoError(t, err)
	require.Len(t, repairs, 1)
	require.Equal(t, created.ID, repairs[0].PlaylistID)
	require.Equal(t, 1, repairs[0].Rewritten)
	require.Equal(t, 0, repairs[0].Dropped)

	listed, err := store.Tracks(created.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotEqual(t, victim.ID, listed[0].ID)
	require.Equal(t, "title-0", listed[0].Title)
}

func TestReconcileDropsUnmatchable(t *testing.T) {
	t.Parallel()
	m := mockfs.New(t)
	store := playlist.NewStore(m.DB())

	m.AddItems()
	m.ScanAndReconcile()

	var tracks []*db.Track
	require.NoError(t, m.DB().Order("id").Limit(2).Find(&tracks).Error)

	created, err := store.Create("mixed")
	require.NoError(t, err)
	require.NoError(t, store.AddTrack(created.ID, tracks[0].ID))
	require.NoError(t, store.AddTrack(created.ID, tracks[1].ID))

	// delete one row with no tombstone at all, simulating an old catalog
	require.NoError(t, m.DB().Delete(db.Track{}, "id=?", tracks[0].ID).Error)

	repairs, err := store.Reconcile()
	require.NoError(t, err)
	require.Len(t, repairs, 1)
	require.Equal(t, 0, repairs[0].Rewritten)
	require.Equal(t, 1, repairs[0].Dropped)

	// the healthy reference is untouched
	listed, err := store.Tracks(created.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, tracks[1].ID, listed[0].ID)
}

func TestReconcileCleanCatalogIsNoOp(t *testing.T) {
	t.Parallel()
	m := mockfs.New(t)
	store := playlist.NewStore(m.DB())

	m.AddItems()
	m.ScanAndReconcile()

	repairs, err := store.Reconcile()
	require.NoError(t, err)
	require.Empty(t, repairs)
}
