package scanner

import (
	"errors"
	"fmt"

	"github.com/jinzhu/gorm"

	"go.tonearm.xyz/tonearm/db"
	"go.tonearm.xyz/tonearm/musicid"
)

// Basis says which rule produced a match.
type Basis string

const (
	BasisPath     Basis = "exact-path"
	BasisIdentity Basis = "identity"
	BasisFuzzy    Basis = "fuzzy"
)

// matchTrack finds zero or one existing row for a candidate, in strict
// priority order: exact path, then normalized (artist, title) equality, then
// substring containment on both. no scoring - the first hit wins.
func matchTrack(dbc *db.DB, path, artist, title string) (*db.Track, Basis, error) {
	var track db.Track

	err := dbc.First(&track, "path=?", path).Error
	if err == nil {
		return &track, BasisPath, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("exact path lookup: %w", err)
	}

	normArtist := musicid.Normalize(artist)
	normTitle := musicid.Normalize(title)
	if normArtist == "" || normTitle == "" {
		return nil, "", nil
	}

	err = dbc.
		Where("LOWER(TRIM(artist))=? AND LOWER(TRIM(title))=?", normArtist, normTitle).
		Order("is_primary DESC, id").
		First(&track).
		Error
	if err == nil {
		return &track, BasisIdentity, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("identity lookup: %w", err)
	}

	// guards against partial tag corruption. returns the first hit with no
	// ranking - a known limitation on libraries full of similar titles
	err = dbc.
		Where("LOWER(artist) LIKE ? AND LOWER(title) LIKE ?",
			"%"+normArtist+"%", "%"+normTitle+"%").
		Order("is_primary DESC, id").
		First(&track).
		Error
	if err == nil {
		return &track, BasisFuzzy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("fuzzy lookup: %w", err)
	}
	return nil, "", nil
}
