/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		// Media library
		&models.MediaItem{},
		&models.MediaVersion{},
		&models.MediaChapter{},

		// Collections
		&models.Collection{},
		&models.CollectionItem{},
		&models.MultiCollection{},
		&models.MultiCollectionItem{},
		&models.SmartCollection{},
		&models.Playlist{},
		&models.PlaylistItem{},

		// Schedules
		&models.Channel{},
		&models.FillerPreset{},
		&models.ProgramSchedule{},
		&models.ProgramScheduleItem{},

		// Playouts
		&models.Playout{},
		&models.PlayoutTemplate{},
		&models.PlayoutItem{},
		&models.PlayoutAnchor{},
		&models.PlayoutScheduleAnchor{},

		// Notifications
		&models.WebhookTarget{},
		&models.WebhookLog{},
	}
}

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(Models()...); err != nil {
		return err
	}

	if err := applyPostgresPlayoutItemGuard(database); err != nil {
		return err
	}
	if err := normalizeLegacyFillerKinds(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresPlayoutItemGuard rejects playout items that end before they start.
func applyPostgresPlayoutItemGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
ALTER TABLE playout_items DROP CONSTRAINT IF EXISTS chk_playout_items_interval;
ALTER TABLE playout_items ADD CONSTRAINT chk_playout_items_interval CHECK (finish >= start);
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres playout item guard: %w", err)
	}

	return nil
}

// normalizeLegacyFillerKinds fills rows written before filler kinds were
// required.
func normalizeLegacyFillerKinds(database *gorm.DB) error {
	err := database.Model(&models.PlayoutItem{}).
		Where("filler_kind IS NULL OR filler_kind = ''").
		Update("filler_kind", models.FillerKindNone).Error
	if err != nil {
		return fmt.Errorf("normalize legacy filler kinds: %w", err)
	}
	return nil
}
