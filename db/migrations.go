package db

import (
	"fmt"
	"log"

	"github.com/jinzhu/gorm"
	"gopkg.in/gormigrate.v1"
)

func (db *DB) Migrate() error {
	options := &gormigrate.Options{
		TableName:      "migrations",
		IDColumnName:   "id",
		IDColumnSize:   255,
		UseTransaction: false,
	}

	// $ date '+%Y%m%d%H%M'
	migrations := []*gormigrate.Migration{
		construct("202505101431", migrateInitSchema),
		construct("202506021918", migrateTombstones),
		construct("202507240910", migratePlayCount),
	}

	return gormigrate.
		New(db.DB, options, migrations).
		Migrate()
}

func construct(id string, f func(*gorm.DB) error) *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: id,
		Migrate: func(db *gorm.DB) error {
			tx := db.Begin()
			defer tx.Commit()
			if err := f(tx); err != nil {
				return fmt.Errorf("%q: %w", id, err)
			}
			log.Printf("migration '%s' finished", id)
			return nil
		},
		Rollback: func(*gorm.DB) error {
			return nil
		},
	}
}

func migrateInitSchema(tx *gorm.DB) error {
	return tx.AutoMigrate(
		Track{},
		RelinkSuggestion{},
		Playlist{},
		PlaylistTrack{},
		Setting{},
	).Error
}

func migrateTombstones(tx *gorm.DB) error {
	return tx.AutoMigrate(
		TrackTombstone{},
	).Error
}

func migratePlayCount(tx *gorm.DB) error {
	return tx.AutoMigrate(
		Track{},
	).Error
}
