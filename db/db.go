package db

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/jinzhu/gorm"
	"github.com/mattn/go-sqlite3"
)

var dbMaxOpenConns = 1

func DefaultOptions() url.Values {
	return url.Values{
		// with this, multiple connections share a single data and schema cache.
		// see https://www.sqlite.org/sharedcache.html
		"cache": {"shared"},
		// with this, the db sleeps for a little while when locked. can prevent
		// a SQLITE_BUSY. see https://www.sqlite.org/c3ref/busy_timeout.html
		"_busy_timeout": {"30000"},
		"_journal_mode": {"WAL"},
		"_foreign_keys": {"true"},
	}
}

type DB struct {
	*gorm.DB
}

func New(path string, options url.Values) (*DB, error) {
	// https://github.com/mattn/go-sqlite3#connection-string
	url := url.URL{
		Scheme: "file",
		Opaque: path,
	}
	url.RawQuery = options.Encode()
	db, err := gorm.Open("sqlite3", url.String())
	if err != nil {
		return nil, fmt.Errorf("with gorm: %w", err)
	}
	db.SetLogger(log.New(os.Stdout, "gorm ", 0))
	db.DB().SetMaxOpenConns(dbMaxOpenConns)
	return &DB{DB: db}, nil
}

func NewMock() (*DB, error) {
	// mocks get a private in-memory database. in particular no cache=shared,
	// which would make every mock in the process one database
	return New(":memory:", url.Values{})
}

func (db *DB) GetSetting(key SettingKey) (string, error) {
	var setting Setting
	err := db.Where("key=?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (db *DB) SetSetting(key SettingKey, value string) error {
	return db.
		Where(Setting{Key: key}).
		Assign(Setting{Key: key, Value: value}).
		FirstOrCreate(&Setting{}).
		Error
}

func (db *DB) WithTx(cb func(*gorm.DB)) {
	tx := db.Begin()
	defer tx.Commit()
	cb(tx)
}

type ChunkFunc func(*gorm.DB, []int64) error

func (db *DB) WithTxChunked(data []int64, cb ChunkFunc) error {
	// https://sqlite.org/limits.html
	const size = 999
	tx := db.Begin()
	defer tx.Commit()
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		if err := cb(tx, data[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// IsUniqueConstraintErr reports whether err is sqlite telling us that an
// insert collided with an existing row, eg. on tracks.path.
func IsUniqueConstraintErr(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// DeleteTrack is the only way a track row leaves the catalog. it snapshots
// the row's identity into a tombstone first so playlist references can be
// repaired afterwards.
func DeleteTrack(tx *gorm.DB, track *Track) error {
	tombstone := TrackTombstone{
		TrackID:  track.ID,
		StableID: track.StableID,
		Title:    track.Title,
		Artist:   track.Artist,
		Album:    track.Album,
		Path:     track.Path,
	}
	if err := tx.Save(&tombstone).Error; err != nil {
		return fmt.Errorf("writing tombstone: %w", err)
	}
	if err := tx.Delete(track).Error; err != nil {
		return fmt.Errorf("deleting track: %w", err)
	}
	return nil
}

func (db *DB) IncrementPlayCount(trackID int) error {
	return db.
		Model(Track{}).
		Where("id=?", trackID).
		Update("play_count", gorm.Expr("play_count+1")).
		Error
}
