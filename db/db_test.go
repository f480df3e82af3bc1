package db

import (
	"io"
	"log"
	"math/rand"
	"os"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestGetSetting(t *testing.T) {
	t.Parallel()

	key := SettingKey(randKey())
	value := "howdy"

	testDB, err := NewMock()
	require.NoError(t, err)
	require.NoError(t, testDB.Migrate())

	require.NoError(t, testDB.SetSetting(key, value))

	actual, err := testDB.GetSetting(key)
	require.NoError(t, err)
	require.Equal(t, value, actual)

	require.NoError(t, testDB.SetSetting(key, value))
	actual, err = testDB.GetSetting(key)
	require.NoError(t, err)
	require.Equal(t, value, actual)
}

func TestMockDBsAreIsolated(t *testing.T) {
	t.Parallel()

	first, err := NewMock()
	require.NoError(t, err)
	require.NoError(t, first.Migrate())

	second, err := NewMock()
	require.NoError(t, err)
	require.NoError(t, second.Migrate())

	track := Track{
		StableID: "song_0000000000000001",
		Path:     "/lib/music/Nirvana/Nevermind/Come as You Are.flac",
		Artist:   "Nirvana",
		Title:    "Come as You Are",
	}
	require.NoError(t, first.Save(&track).Error)

	var count int
	require.NoError(t, second.Model(Track{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteTrackLeavesTombstone(t *testing.T) {
	t.Parallel()

	testDB, err := NewMock()
	require.NoError(t, err)
	require.NoError(t, testDB.Migrate())

	track := Track{
		StableID: "song_0000000000000000",
		Path:     "/lib/music/Queen/A Night at the Opera/Bohemian Rhapsody.flac",
		Artist:   "Queen",
		Title:    "Bohemian Rhapsody",
		Album:    "A Night at the Opera",
	}
	require.NoError(t, testDB.Save(&track).Error)

	testDB.WithTx(func(tx *gorm.DB) {
		require.NoError(t, DeleteTrack(tx, &track))
	})

	require.Error(t, testDB.First(&Track{}, "id=?", track.ID).Error)

	var tombstone TrackTombstone
	require.NoError(t, testDB.First(&tombstone, "track_id=?", track.ID).Error)
	require.Equal(t, "Queen", tombstone.Artist)
	require.Equal(t, "Bohemian Rhapsody", tombstone.Title)
	require.Equal(t, track.StableID, tombstone.StableID)
}

func randKey() string {
	letters := []rune("abcdef0123456789")
	b := make([]rune, 16)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
