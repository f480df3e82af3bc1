// Package relink reattaches catalog rows to files that moved, and records
// suggestions when a human should confirm the move instead. it owns the
// times_relinked / last_relinked_at bookkeeping and the availability flag,
// and never touches a row's stable id or original_* columns.
package relink

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jinzhu/gorm"

	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/librarypath"
	"go.tonearm.xyz/tonearm/tags/tagcommon"
)

var (
	ErrNoSuggestion = errors.New("no suggestion for stable id")
	ErrNoTrack      = errors.New("no track for stable id")
)

// Mode selects what happens when a missing track's file is rediscovered
// somewhere else.
type Mode int

const (
	// ModeAuto rewrites the row's path immediately.
	ModeAuto Mode = iota
	// ModeManual leaves the row alone and records a suggestion for review.
	ModeManual
)

type Relinker struct {
	db     *db.DB
	mode   Mode
	layout librarypath.Layout
	reader tagcommon.Reader
}

func New(dbc *db.DB, mode Mode, layout librarypath.Layout, reader tagcommon.Reader) *Relinker {
	return &Relinker{db: dbc, mode: mode, layout: layout, reader: reader}
}

func (r *Relinker) Mode() Mode { return r.mode }

// Relink points track at newPath. refresh, when given, may update the row's
// current metadata from the new file before saving. original_* columns are
// copied forward untouched.
func (r *Relinker) Relink(tx *gorm.DB, track *db.Track, newPath string, refresh func(*db.Track)) error {
	if refresh != nil {
		refresh(track)
	}
	now := time.Now()
	track.Path = newPath
	track.IsAvailable = true
	track.TimesRelinked++
	track.LastRelinkedAt = &now
	if err := tx.Save(track).Error; err != nil {
		return fmt.Errorf("saving relinked track: %w", err)
	}
	return nil
}

// Suggest upserts the one active suggestion for track's stable id and marks
// the track unavailable. the row's path stays as it was until the suggestion
// is confirmed.
func (r *Relinker) Suggest(tx *gorm.DB, track *db.Track, suggestedPath string, confidence db.Confidence) error {
	suggestion := db.RelinkSuggestion{
		SuggestedPath:  suggestedPath,
		Confidence:     confidence,
		OriginalTitle:  track.Title,
		OriginalArtist: track.Artist,
		OriginalAlbum:  track.Album,
		OriginalPath:   track.Path,
	}
	err := tx.
		Where(db.RelinkSuggestion{StableID: track.StableID}).
		Assign(suggestion).
		FirstOrCreate(&db.RelinkSuggestion{}).
		Error
	if err != nil {
		return fmt.Errorf("upserting suggestion: %w", err)
	}
	if track.IsAvailable {
		track.IsAvailable = false
		if err := tx.Save(track).Error; err != nil {
			return fmt.Errorf("marking track unavailable: %w", err)
		}
	}
	return nil
}

// DropSuggestions removes any active suggestions for the given stable ids,
// eg. after the rows were relinked through other evidence.
func (r *Relinker) DropSuggestions(tx *gorm.DB, stableIDs []string) error {
	if len(stableIDs) == 0 {
		return nil
	}
	return tx.
		Where("stable_id IN (?)", stableIDs).
		Delete(db.RelinkSuggestion{}).
		Error
}

// ConfirmSuggestion promotes the suggestion for stableID into an actual
// relink, refreshing current metadata from the suggested file, then deletes
// the suggestion.
func (r *Relinker) ConfirmSuggestion(stableID string) error {
	var suggestion db.RelinkSuggestion
	err := r.db.First(&suggestion, "stable_id=?", stableID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoSuggestion
	}
	if err != nil {
		return fmt.Errorf("finding suggestion: %w", err)
	}

	var track db.Track
	err = r.db.
		Where("stable_id=?", stableID).
		Order("is_primary DESC, id").
		First(&track).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoTrack
	}
	if err != nil {
		return fmt.Errorf("finding track: %w", err)
	}

	refresh := r.refreshFromFile(suggestion.SuggestedPath)

	// the relink and the suggestion's removal land together or not at all.
	// committing one without the other would let a second confirm relink the
	// same track again
	tx := r.db.Begin()
	if err := r.Relink(tx, &track, suggestion.SuggestedPath, refresh); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&suggestion).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting confirmed suggestion: %w", err)
	}
	return tx.Commit().Error
}

// refreshFromFile builds a best-effort metadata refresh from the file at
// absPath. tag read failures leave the current metadata as is - the relink
// itself must still happen.
func (r *Relinker) refreshFromFile(absPath string) func(*db.Track) {
	info, err := r.reader.Read(absPath)
	if err != nil {
		log.Printf("reading tags for relink %q: %v", absPath, err)
		return nil
	}
	folder := r.layout.Infer(absPath)
	return func(track *db.Track) {
		if artist := firstOf(folder.Artist, info.Artist()); artist != "" {
			track.SetArtist(artist)
		}
		if title := info.Title(); title != "" {
			track.SetTitle(title)
		}
		if album := firstOf(folder.Album, info.Album()); album != "" {
			track.Album = album
		}
		if year := info.Year(); year != 0 {
			track.Year = year
		}
		if genre := info.Genre(); genre != "" {
			track.Genre = genre
		}
		if length := info.Length(); length != 0 {
			track.Duration = length
		}
		if bitrate := info.Bitrate(); bitrate != 0 {
			track.Bitrate = bitrate
		}
		if stat, err := os.Stat(absPath); err == nil {
			track.Size = stat.Size()
		}
	}
}

// CheckAvailability stats every row's path and flips is_available where it
// disagrees. it touches nothing else.
func (r *Relinker) CheckAvailability() (int, error) {
	var tracks []db.Track
	if err := r.db.Select("id, path, is_available").Find(&tracks).Error; err != nil {
		return 0, fmt.Errorf("listing tracks: %w", err)
	}
	var nowAvailable, nowMissing []int64
	for i := range tracks {
		track := &tracks[i]
		_, err := os.Stat(track.Path)
		switch available := err == nil; {
		case available && !track.IsAvailable:
			nowAvailable = append(nowAvailable, int64(track.ID))
		case !available && track.IsAvailable:
			nowMissing = append(nowMissing, int64(track.ID))
		}
	}
	flip := func(ids []int64, available bool) error {
		return r.db.WithTxChunked(ids, func(tx *gorm.DB, chunk []int64) error {
			return tx.
				Model(db.Track{}).
				Where("id IN (?)", chunk).
				Update("is_available", available).
				Error
		})
	}
	if err := flip(nowAvailable, true); err != nil {
		return 0, fmt.Errorf("restoring availability: %w", err)
	}
	if err := flip(nowMissing, false); err != nil {
		return 0, fmt.Errorf("flagging orphans: %w", err)
	}
	return len(nowAvailable) + len(nowMissing), nil
}

// OrphanCount reports how many rows currently have no backing file.
func (r *Relinker) OrphanCount() (int, error) {
	var count int
	err := r.db.
		Model(db.Track{}).
		Where("is_available=?", false).
		Count(&count).
		Error
	return count, err
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
