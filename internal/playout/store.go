/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

// ErrPlayoutNotFound is returned by Load for an unknown playout.
var ErrPlayoutNotFound = errors.New("playout not found")

const saveBatchSize = 500

var fillerAssociations = []string{
	"PreRollFiller", "MidRollFiller", "PostRollFiller", "TailFiller", "FallbackFiller",
}

// Store persists playout aggregates.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a Store.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "playout_store").Logger(),
	}
}

func byIndex(db *gorm.DB) *gorm.DB { return db.Order("item_index") }

func preloadSchedule(q *gorm.DB, prefix string) *gorm.DB {
	q = q.Preload(prefix).Preload(prefix+".Items", byIndex)
	for _, f := range fillerAssociations {
		q = q.Preload(prefix + ".Items." + f)
	}
	return q
}

// Load returns the playout with its schedules, items and anchors.
func (s *Store) Load(ctx context.Context, playoutID int) (*models.Playout, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Store.Load")
	defer span.End()

	q := s.db.WithContext(ctx).
		Preload("Channel").
		Preload("Anchor").
		Preload("ScheduleAnchors").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("start") }).
		Preload("Templates", func(db *gorm.DB) *gorm.DB { return db.Order("template_index") })
	q = preloadSchedule(q, "ProgramSchedule")
	q = preloadSchedule(q, "Templates.ProgramSchedule")

	var p models.Playout
	err := q.First(&p, playoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("playout %d: %w", playoutID, ErrPlayoutNotFound)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load playout %d: %w", playoutID, err)
	}
	return &p, nil
}

// ListIDs returns the id of every playout.
func (s *Store) ListIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := s.db.WithContext(ctx).Model(&models.Playout{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list playouts: %w", err)
	}
	return ids, nil
}

// ChannelID returns the channel a playout feeds.
func (s *Store) ChannelID(ctx context.Context, playoutID int) (int, error) {
	var p models.Playout
	err := s.db.WithContext(ctx).Select("id", "channel_id").First(&p, playoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("playout %d: %w", playoutID, ErrPlayoutNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("load playout %d: %w", playoutID, err)
	}
	return p.ChannelID, nil
}

// IDsForSchedule returns the playouts that use scheduleID directly or
// through an alternate schedule.
func (s *Store) IDsForSchedule(ctx context.Context, scheduleID int) ([]int, error) {
	db := s.db.WithContext(ctx)
	var ids []int
	err := db.Model(&models.Playout{}).
		Where("program_schedule_id = ?", scheduleID).
		Or("id IN (?)", db.Model(&models.PlayoutTemplate{}).Select("playout_id").Where("program_schedule_id = ?", scheduleID)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list playouts for schedule %d: %w", scheduleID, err)
	}
	return ids, nil
}

// Save replaces the items and anchors of p in one transaction. Row ids of
// replaced rows are not preserved.
func (s *Store) Save(ctx context.Context, p *models.Playout) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Store.Save")
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playout_id = ?", p.ID).Delete(&models.PlayoutItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if len(p.Items) > 0 {
			for i := range p.Items {
				p.Items[i].ID = 0
				p.Items[i].PlayoutID = p.ID
			}
			if err := tx.CreateInBatches(&p.Items, saveBatchSize).Error; err != nil {
				return fmt.Errorf("create items: %w", err)
			}
		}

		if err := tx.Where("playout_id = ?", p.ID).Delete(&models.PlayoutAnchor{}).Error; err != nil {
			return fmt.Errorf("delete anchor: %w", err)
		}
		if p.Anchor != nil {
			p.Anchor.ID = 0
			p.Anchor.PlayoutID = p.ID
			if err := tx.Create(p.Anchor).Error; err != nil {
				return fmt.Errorf("create anchor: %w", err)
			}
		}

		if err := tx.Where("playout_id = ?", p.ID).Delete(&models.PlayoutScheduleAnchor{}).Error; err != nil {
			return fmt.Errorf("delete schedule anchors: %w", err)
		}
		if len(p.ScheduleAnchors) > 0 {
			for i := range p.ScheduleAnchors {
				p.ScheduleAnchors[i].ID = 0
				p.ScheduleAnchors[i].PlayoutID = p.ID
			}
			if err := tx.Create(&p.ScheduleAnchors).Error; err != nil {
				return fmt.Errorf("create schedule anchors: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("save playout %d: %w", p.ID, err)
	}

	s.logger.Debug().
		Int("playout_id", p.ID).
		Int("items", len(p.Items)).
		Int("schedule_anchors", len(p.ScheduleAnchors)).
		Msg("playout saved")
	return nil
}
