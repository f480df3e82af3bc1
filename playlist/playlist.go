// Package playlist keeps playlists and their track references consistent
// with the catalog. references are repaired independently of each other - one
// unfixable entry never blocks the rest of a playlist.
package playlist

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jinzhu/gorm"

	"go.tonearm.xyz/tonearm/db"
)

var ErrPlaylistNotFound = errors.New("playlist not found")

type Store struct {
	db *db.DB
}

func NewStore(dbc *db.DB) *Store {
	return &Store{db: dbc}
}

func (s *Store) Create(name string) (*db.Playlist, error) {
	playlist := db.Playlist{Name: name}
	if err := s.db.Create(&playlist).Error; err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}
	return &playlist, nil
}

// AddTrack appends a track to the end of a playlist.
func (s *Store) AddTrack(playlistID, trackID int) error {
	var playlist db.Playlist
	err := s.db.First(&playlist, "id=?", playlistID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrPlaylistNotFound
	case err != nil:
		return fmt.Errorf("finding playlist: %w", err)
	}

	var maxPosition struct{ Max int }
	err = s.db.
		Model(db.PlaylistTrack{}).
		Select("coalesce(max(position), 0) max").
		Where("playlist_id=?", playlistID).
		Scan(&maxPosition).
		Error
	if err != nil {
		return fmt.Errorf("finding last position: %w", err)
	}

	entry := db.PlaylistTrack{
		PlaylistID: playlistID,
		TrackID:    trackID,
		Position:   maxPosition.Max + 1,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("adding playlist entry: %w", err)
	}
	return nil
}

func (s *Store) Tracks(playlistID int) ([]*db.Track, error) {
	var tracks []*db.Track
	err := s.db.
		Joins("JOIN playlist_tracks ON playlist_tracks.track_id=tracks.id").
		Where("playlist_tracks.playlist_id=?", playlistID).
		Order("playlist_tracks.position").
		Find(&tracks).
		Error
	if err != nil {
		return nil, fmt.Errorf("listing playlist tracks: %w", err)
	}
	return tracks, nil
}

// Repair is the per-playlist tally of one reconciliation.
type Repair struct {
	PlaylistID int
	Rewritten  int
	Dropped    int
}

// Reconcile finds playlist entries whose track row no longer exists. each is
// repaired on its own: rewritten to a live replacement when the deleted row's
// tombstone identity still matches a cataloged track, dropped otherwise.
func (s *Store) Reconcile() ([]Repair, error) {
	type dangling struct {
		ID         int
		PlaylistID int
		TrackID    int
	}
	var refs []dangling
	err := s.db.
		Table("playlist_tracks").
		Select("playlist_tracks.id, playlist_tracks.playlist_id, playlist_tracks.track_id").
		Joins("LEFT JOIN tracks ON tracks.id=playlist_tracks.track_id").
		Where("tracks.id IS NULL").
		Order("playlist_tracks.playlist_id, playlist_tracks.position").
		Scan(&refs).
		Error
	if err != nil {
		return nil, fmt.Errorf("finding dangling references: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	repairs := map[int]*Repair{}
	var order []int
	for _, ref := range refs {
		repair, ok := repairs[ref.PlaylistID]
		if !ok {
			repair = &Repair{PlaylistID: ref.PlaylistID}
			repairs[ref.PlaylistID] = repair
			order = append(order, ref.PlaylistID)
		}

		replacement, err := s.findReplacement(ref.TrackID)
		if err != nil {
			log.Printf("warning: finding replacement for playlist entry %d: %v", ref.ID, err)
		}
		if replacement == nil {
			if err := s.db.Delete(db.PlaylistTrack{}, "id=?", ref.ID).Error; err != nil {
				return nil, fmt.Errorf("dropping playlist entry: %w", err)
			}
			repair.Dropped++
			continue
		}

		err = s.db.
			Model(db.PlaylistTrack{}).
			Where("id=?", ref.ID).
			Update("track_id", replacement.ID).
			Error
		if err != nil {
			return nil, fmt.Errorf("rewriting playlist entry: %w", err)
		}
		repair.Rewritten++
	}

	results := make([]Repair, 0, len(order))
	for _, id := range order {
		results = append(results, *repairs[id])
	}
	return results, nil
}

// findReplacement resolves a deleted track id to a live row through its
// tombstone. the match is on normalized title and artist, preferring the
// primary copy when several share them.
func (s *Store) findReplacement(trackID int) (*db.Track, error) {
	var tomb db.TrackTombstone
	err := s.db.First(&tomb, "track_id=?", trackID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("finding tombstone: %w", err)
	}

	title := strings.ToLower(strings.TrimSpace(tomb.Title))
	artist := strings.ToLower(strings.TrimSpace(tomb.Artist))
	if title == "" || artist == "" {
		return nil, nil
	}

	var track db.Track
	err = s.db.
		Where("LOWER(TRIM(title))=? AND LOWER(TRIM(artist))=?", title, artist).
		Order("is_primary DESC, id").
		First(&track).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("finding live match: %w", err)
	}
	return &track, nil
}
