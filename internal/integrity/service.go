/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package integrity finds and repairs dangling references in playout data.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

type FindingType string

const (
	FindingOrphanPlayout              FindingType = "orphan_playout"
	FindingPlayoutMissingSchedule     FindingType = "playout_missing_schedule"
	FindingPlayoutItemMissingMedia    FindingType = "playout_item_missing_media"
	FindingOverlappingPlayoutItems    FindingType = "overlapping_playout_items"
	FindingScheduleItemMissingContent FindingType = "schedule_item_missing_content"
	FindingScheduleItemMissingFiller  FindingType = "schedule_item_missing_filler"
)

type Finding struct {
	ID         string         `json:"id"`
	Type       FindingType    `json:"type"`
	Severity   string         `json:"severity"`
	Summary    string         `json:"summary"`
	PlayoutID  *int           `json:"playout_id,omitempty"`
	ResourceID int            `json:"resource_id"`
	Repairable bool           `json:"repairable"`
	Details    map[string]any `json:"details,omitempty"`
}

type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Total       int                 `json:"total"`
	ByType      map[FindingType]int `json:"by_type"`
	Findings    []Finding           `json:"findings"`
}

type RepairInput struct {
	Type       FindingType `json:"type"`
	ResourceID int         `json:"resource_id"`
}

type RepairResult struct {
	Changed bool           `json:"changed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// contentTables maps schedulable collection kinds to the table holding
// them. Shows and artists are groupings of media items, not rows.
var contentTables = map[models.CollectionKind]string{
	models.CollectionKindCollection:      "collections",
	models.CollectionKindMultiCollection: "multi_collections",
	models.CollectionKindSmartCollection: "smart_collections",
	models.CollectionKindPlaylist:        "playlists",
	models.CollectionKindMediaItem:       "media_items",
}

var fillerColumns = []string{
	"pre_roll_filler_id",
	"mid_roll_filler_id",
	"post_roll_filler_id",
	"tail_filler_id",
	"fallback_filler_id",
}

type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "integrity").Logger(),
	}
}

// Scan runs every check and returns the combined report.
func (s *Service) Scan(ctx context.Context) (*Report, error) {
	checks := []func(context.Context) ([]Finding, error){
		s.scanOrphanPlayouts,
		s.scanPlayoutsMissingSchedule,
		s.scanPlayoutItemsMissingMedia,
		s.scanOverlappingPlayoutItems,
		s.scanScheduleItemsMissingContent,
		s.scanScheduleItemsMissingFiller,
	}

	findings := make([]Finding, 0, 32)
	for _, check := range checks {
		added, err := check(ctx)
		if err != nil {
			return nil, err
		}
		findings = append(findings, added...)
	}

	byType := make(map[FindingType]int)
	for _, f := range findings {
		byType[f.Type]++
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Total:       len(findings),
		ByType:      byType,
		Findings:    findings,
	}

	if report.Total > 0 {
		s.logger.Warn().Int("total_findings", report.Total).Interface("by_type", byType).Msg("integrity scan completed with findings")
	} else {
		s.logger.Info().Msg("integrity scan completed with no findings")
	}

	return report, nil
}

// Repair fixes a single finding. Repairs re-check the condition first, so
// running one twice is harmless.
func (s *Service) Repair(ctx context.Context, input RepairInput) (RepairResult, error) {
	switch input.Type {
	case FindingOrphanPlayout:
		return s.repairOrphanPlayout(ctx, input)
	case FindingPlayoutItemMissingMedia:
		return s.repairPlayoutItemMissingMedia(ctx, input)
	case FindingScheduleItemMissingFiller:
		return s.repairScheduleItemMissingFiller(ctx, input)
	case FindingPlayoutMissingSchedule, FindingOverlappingPlayoutItems, FindingScheduleItemMissingContent:
		return RepairResult{}, fmt.Errorf("finding type %s needs manual repair", input.Type)
	default:
		return RepairResult{}, fmt.Errorf("unsupported finding type: %s", input.Type)
	}
}

func (s *Service) scanOrphanPlayouts(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID        int
		ChannelID int
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("playouts p").
		Select("p.id, p.channel_id").
		Joins("LEFT JOIN channels c ON c.id = p.channel_id").
		Where("c.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		playoutID := r.ID
		findings = append(findings, Finding{
			ID:         findingID(FindingOrphanPlayout, r.ID),
			Type:       FindingOrphanPlayout,
			Severity:   "high",
			Summary:    "Playout references a deleted channel",
			PlayoutID:  &playoutID,
			ResourceID: r.ID,
			Repairable: true,
			Details:    map[string]any{"channel_id": r.ChannelID},
		})
	}
	return findings, nil
}

func (s *Service) scanPlayoutsMissingSchedule(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID                int
		ProgramScheduleID int
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("playouts p").
		Select("p.id, p.program_schedule_id").
		Joins("LEFT JOIN program_schedules ps ON ps.id = p.program_schedule_id").
		Where("ps.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		playoutID := r.ID
		findings = append(findings, Finding{
			ID:         findingID(FindingPlayoutMissingSchedule, r.ID),
			Type:       FindingPlayoutMissingSchedule,
			Severity:   "high",
			Summary:    "Playout references a deleted program schedule; builds will fail",
			PlayoutID:  &playoutID,
			ResourceID: r.ID,
			Details:    map[string]any{"program_schedule_id": r.ProgramScheduleID},
		})
	}
	return findings, nil
}

func (s *Service) scanPlayoutItemsMissingMedia(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID          int
		PlayoutID   int
		MediaItemID int
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("playout_items pi").
		Select("pi.id, pi.playout_id, pi.media_item_id").
		Joins("LEFT JOIN media_items m ON m.id = pi.media_item_id").
		Where("m.id IS NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		playoutID := r.PlayoutID
		findings = append(findings, Finding{
			ID:         findingID(FindingPlayoutItemMissingMedia, r.ID),
			Type:       FindingPlayoutItemMissingMedia,
			Severity:   "medium",
			Summary:    "Playout item references a deleted media item",
			PlayoutID:  &playoutID,
			ResourceID: r.ID,
			Repairable: true,
			Details:    map[string]any{"media_item_id": r.MediaItemID},
		})
	}
	return findings, nil
}

// scanOverlappingPlayoutItems walks each playout's items in start order and
// flags any item that begins before its predecessor finished.
func (s *Service) scanOverlappingPlayoutItems(ctx context.Context) ([]Finding, error) {
	var items []models.PlayoutItem
	if err := s.db.WithContext(ctx).
		Select("id", "playout_id", "start", "finish").
		Order("playout_id, start, id").
		Find(&items).Error; err != nil {
		return nil, err
	}

	var findings []Finding
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if prev.PlayoutID != cur.PlayoutID || !cur.Start.Before(prev.Finish) {
			continue
		}
		playoutID := cur.PlayoutID
		findings = append(findings, Finding{
			ID:         findingID(FindingOverlappingPlayoutItems, cur.ID),
			Type:       FindingOverlappingPlayoutItems,
			Severity:   "medium",
			Summary:    "Playout item overlaps the previous item; rebuild the playout with reset",
			PlayoutID:  &playoutID,
			ResourceID: cur.ID,
			Details: map[string]any{
				"previous_item_id": prev.ID,
				"previous_finish":  prev.Finish.UTC(),
				"start":            cur.Start.UTC(),
			},
		})
	}
	return findings, nil
}

func (s *Service) scanScheduleItemsMissingContent(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID                int
		ProgramScheduleID int
		CollectionRefID   int
	}

	var findings []Finding
	for _, kind := range sortedKinds() {
		var rows []row
		if err := s.db.WithContext(ctx).
			Table("program_schedule_items psi").
			Select("psi.id, psi.program_schedule_id, psi.collection_ref_id").
			Joins("LEFT JOIN "+contentTables[kind]+" c ON c.id = psi.collection_ref_id").
			Where("psi.collection_kind = ? AND c.id IS NULL", kind).
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			findings = append(findings, Finding{
				ID:         findingID(FindingScheduleItemMissingContent, r.ID),
				Type:       FindingScheduleItemMissingContent,
				Severity:   "high",
				Summary:    fmt.Sprintf("Schedule item references a deleted %s", kind),
				ResourceID: r.ID,
				Details: map[string]any{
					"program_schedule_id": r.ProgramScheduleID,
					"collection_kind":     string(kind),
					"collection_ref_id":   r.CollectionRefID,
				},
			})
		}
	}
	return findings, nil
}

func (s *Service) scanScheduleItemsMissingFiller(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID                int
		ProgramScheduleID int
		FillerID          int
	}

	byItem := map[int]*Finding{}
	var order []int
	for _, col := range fillerColumns {
		var rows []row
		if err := s.db.WithContext(ctx).
			Table("program_schedule_items psi").
			Select("psi.id, psi.program_schedule_id, psi." + col + " AS filler_id").
			Joins("LEFT JOIN filler_presets f ON f.id = psi." + col).
			Where("psi." + col + " IS NOT NULL AND f.id IS NULL").
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			f, ok := byItem[r.ID]
			if !ok {
				f = &Finding{
					ID:         findingID(FindingScheduleItemMissingFiller, r.ID),
					Type:       FindingScheduleItemMissingFiller,
					Severity:   "low",
					Summary:    "Schedule item references a deleted filler preset",
					ResourceID: r.ID,
					Repairable: true,
					Details:    map[string]any{"program_schedule_id": r.ProgramScheduleID},
				}
				byItem[r.ID] = f
				order = append(order, r.ID)
			}
			f.Details[col] = r.FillerID
		}
	}

	findings := make([]Finding, 0, len(order))
	for _, id := range order {
		findings = append(findings, *byItem[id])
	}
	return findings, nil
}

func (s *Service) repairOrphanPlayout(ctx context.Context, input RepairInput) (RepairResult, error) {
	var playout models.Playout
	if err := s.db.WithContext(ctx).First(&playout, input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "playout already removed"}, nil
		}
		return RepairResult{}, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Channel{}).Where("id = ?", playout.ChannelID).Count(&count).Error; err != nil {
		return RepairResult{}, err
	}
	if count > 0 {
		return RepairResult{Changed: false, Message: "channel exists; finding already resolved"}, nil
	}

	var removedItems int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("playout_id = ?", playout.ID).Delete(&models.PlayoutItem{})
		if res.Error != nil {
			return res.Error
		}
		removedItems = res.RowsAffected
		for _, child := range []any{&models.PlayoutAnchor{}, &models.PlayoutScheduleAnchor{}, &models.PlayoutTemplate{}} {
			if err := tx.Where("playout_id = ?", playout.ID).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&playout).Error
	})
	if err != nil {
		return RepairResult{}, err
	}

	s.logger.Info().Int("playout_id", playout.ID).Int64("items", removedItems).Msg("deleted orphan playout")
	return RepairResult{
		Changed: true,
		Message: "deleted orphan playout",
		Details: map[string]any{"items_removed": removedItems},
	}, nil
}

func (s *Service) repairPlayoutItemMissingMedia(ctx context.Context, input RepairInput) (RepairResult, error) {
	var item models.PlayoutItem
	if err := s.db.WithContext(ctx).First(&item, input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "playout item already removed"}, nil
		}
		return RepairResult{}, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.MediaItem{}).Where("id = ?", item.MediaItemID).Count(&count).Error; err != nil {
		return RepairResult{}, err
	}
	if count > 0 {
		return RepairResult{Changed: false, Message: "media item exists; finding already resolved"}, nil
	}

	if err := s.db.WithContext(ctx).Delete(&item).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{Changed: true, Message: "deleted playout item"}, nil
}

func (s *Service) repairScheduleItemMissingFiller(ctx context.Context, input RepairInput) (RepairResult, error) {
	var item models.ProgramScheduleItem
	if err := s.db.WithContext(ctx).First(&item, input.ResourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RepairResult{Changed: false, Message: "schedule item already removed"}, nil
		}
		return RepairResult{}, err
	}

	slots := map[string]*int{
		"pre_roll_filler_id":  item.PreRollFillerID,
		"mid_roll_filler_id":  item.MidRollFillerID,
		"post_roll_filler_id": item.PostRollFillerID,
		"tail_filler_id":      item.TailFillerID,
		"fallback_filler_id":  item.FallbackFillerID,
	}
	cleared := map[string]any{}
	for _, col := range fillerColumns {
		id := slots[col]
		if id == nil {
			continue
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.FillerPreset{}).Where("id = ?", *id).Count(&count).Error; err != nil {
			return RepairResult{}, err
		}
		if count == 0 {
			cleared[col] = nil
		}
	}
	if len(cleared) == 0 {
		return RepairResult{Changed: false, Message: "filler presets exist; finding already resolved"}, nil
	}

	if err := s.db.WithContext(ctx).Model(&item).Updates(cleared).Error; err != nil {
		return RepairResult{}, err
	}
	return RepairResult{
		Changed: true,
		Message: "cleared missing filler references",
		Details: map[string]any{"columns": len(cleared)},
	}, nil
}

func sortedKinds() []models.CollectionKind {
	return []models.CollectionKind{
		models.CollectionKindCollection,
		models.CollectionKindMultiCollection,
		models.CollectionKindSmartCollection,
		models.CollectionKindPlaylist,
		models.CollectionKindMediaItem,
	}
}

func findingID(t FindingType, resourceID int) string {
	return fmt.Sprintf("%s|%d", t, resourceID)
}
