package db

import (
	"path/filepath"
	"time"

	"github.com/rainycape/unidecode"
)

// Track is one logical audio file, currently or previously known. Rows are
// never deleted by a scan pass - only DeleteTrack (or a force cleanup, which
// goes through the same helper) removes them, leaving a tombstone behind.
type Track struct {
	ID        int `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// StableID is assigned once at insertion and never recomputed. it is
	// not unique - duplicate rows for the same logical song share it, with
	// IsPrimary marking the canonical one.
	StableID string `gorm:"not null;index"`
	Path     string `gorm:"not null;unique_index"`

	Title      string `sql:"default: null"`
	TitleUDec  string `sql:"default: null"`
	Artist     string `sql:"default: null"`
	ArtistUDec string `sql:"default: null"`
	Album      string `sql:"default: null"`
	Year       int    `sql:"default: null"`
	Genre      string `sql:"default: null"`
	Duration   int    `sql:"default: null"`
	Bitrate    int    `sql:"default: null"`
	Size       int64  `sql:"default: null"`

	// the original_* columns are frozen at first insertion. every later
	// update must copy them forward verbatim.
	OriginalTitle  string `sql:"default: null"`
	OriginalArtist string `sql:"default: null"`
	OriginalAlbum  string `sql:"default: null"`
	OriginalPath   string `sql:"default: null"`

	AlbumCover  string `sql:"default: null"`
	ArtistImage string `sql:"default: null"`

	IsAvailable    bool `gorm:"not null"`
	TimesRelinked  int
	LastRelinkedAt *time.Time `sql:"default: null"`
	IsPrimary      bool       `gorm:"not null"`
	PlayCount      int
}

func (t *Track) Ext() string {
	ext := filepath.Ext(t.Path)
	if ext == "" {
		return ""
	}
	return ext[1:]
}

// SetTitle also maintains the latin-decoded column used for searching.
func (t *Track) SetTitle(title string) {
	t.Title = title
	t.TitleUDec = decoded(title)
}

func (t *Track) SetArtist(artist string) {
	t.Artist = artist
	t.ArtistUDec = decoded(artist)
}

// decoded converts a string to its latin equivalent, set only if it differs
// from the original
func decoded(in string) string {
	if u := unidecode.Unidecode(in); u != in {
		return u
	}
	return ""
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// RelinkSuggestion records a proposed reattachment of a missing track to a
// newly discovered file. at most one active suggestion per stable id.
type RelinkSuggestion struct {
	ID        int `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time

	StableID      string     `gorm:"not null;unique_index"`
	SuggestedPath string     `gorm:"not null"`
	Confidence    Confidence `gorm:"not null"`

	// snapshot of the track at suggestion time
	OriginalTitle  string `sql:"default: null"`
	OriginalArtist string `sql:"default: null"`
	OriginalAlbum  string `sql:"default: null"`
	OriginalPath   string `sql:"default: null"`
}

type Playlist struct {
	ID        int `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Name      string `gorm:"not null"`
	Comment   string `sql:"default: null"`
}

// PlaylistTrack must always resolve to a live Track. only the playlist
// reconciler may rewrite or delete rows after the fact.
type PlaylistTrack struct {
	ID         int `gorm:"primary_key"`
	PlaylistID int `gorm:"not null;index"`
	TrackID    int `gorm:"not null"`
	Position   int `gorm:"not null"`
}

// TrackTombstone snapshots identity fields of a deleted track so that
// dangling playlist references can be matched against live rows later.
type TrackTombstone struct {
	ID        int `gorm:"primary_key"`
	CreatedAt time.Time

	TrackID  int    `gorm:"not null;index"`
	StableID string `sql:"default: null"`
	Title    string `sql:"default: null"`
	Artist   string `sql:"default: null"`
	Album    string `sql:"default: null"`
	Path     string `sql:"default: null"`
}

type Setting struct {
	Key   SettingKey `gorm:"not null;primary_key;auto_increment:false"`
	Value string
}

type SettingKey string

const (
	LastScanTime SettingKey = "last_scan_time"
)
