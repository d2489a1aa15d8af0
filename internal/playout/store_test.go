/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Channel{}, &models.FillerPreset{},
		&models.ProgramSchedule{}, &models.ProgramScheduleItem{},
		&models.Playout{}, &models.PlayoutTemplate{}, &models.PlayoutItem{},
		&models.PlayoutAnchor{}, &models.PlayoutScheduleAnchor{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return NewStore(db, zerolog.Nop()), db
}

func seedPlayout(t *testing.T, db *gorm.DB) *models.Playout {
	t.Helper()

	channel := models.Channel{Number: "1", Name: "One", Timezone: "UTC"}
	if err := db.Create(&channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}
	filler := models.FillerPreset{
		Name: "bumpers", FillerKind: models.FillerKindPostRoll, FillerMode: models.FillerModeNone,
		CollectionKind: models.CollectionKindCollection, CollectionRefID: 9,
	}
	if err := db.Create(&filler).Error; err != nil {
		t.Fatalf("create filler: %v", err)
	}
	main := models.ProgramSchedule{Name: "main", Items: []models.ProgramScheduleItem{
		{Index: 2, PlayoutMode: models.PlayoutModeOne, CollectionKind: models.CollectionKindCollection, CollectionRefID: 2},
		{Index: 1, PlayoutMode: models.PlayoutModeFlood, CollectionKind: models.CollectionKindCollection, CollectionRefID: 1, PostRollFillerID: &filler.ID},
	}}
	weekend := models.ProgramSchedule{Name: "weekend", Items: []models.ProgramScheduleItem{
		{Index: 0, PlayoutMode: models.PlayoutModeFlood, CollectionKind: models.CollectionKindCollection, CollectionRefID: 3},
	}}
	for _, s := range []*models.ProgramSchedule{&main, &weekend} {
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("create schedule: %v", err)
		}
	}

	p := models.Playout{ChannelID: channel.ID, ProgramScheduleID: main.ID}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create playout: %v", err)
	}
	tmpl := models.PlayoutTemplate{
		PlayoutID: p.ID, ProgramScheduleID: weekend.ID,
		DaysOfWeek: []int{0, 6},
	}
	if err := db.Create(&tmpl).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	return &p
}

func TestStoreLoad(t *testing.T) {
	store, db := newTestStore(t)
	seeded := seedPlayout(t, db)

	p, err := store.Load(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Channel == nil || p.Channel.Timezone != "UTC" {
		t.Errorf("channel not loaded: %+v", p.Channel)
	}
	if p.ProgramSchedule == nil || len(p.ProgramSchedule.Items) != 2 {
		t.Fatalf("schedule not loaded: %+v", p.ProgramSchedule)
	}
	first := p.ProgramSchedule.Items[0]
	if first.Index != 1 {
		t.Errorf("schedule items not ordered by index: first index %d", first.Index)
	}
	if first.PostRollFiller == nil || first.PostRollFiller.Name != "bumpers" {
		t.Errorf("filler preset not loaded: %+v", first.PostRollFiller)
	}
	if len(p.Templates) != 1 || p.Templates[0].ProgramSchedule == nil || p.Templates[0].ProgramSchedule.Name != "weekend" {
		t.Fatalf("template schedule not loaded: %+v", p.Templates)
	}
	if got := p.Templates[0].DaysOfWeek; len(got) != 2 || got[0] != 0 || got[1] != 6 {
		t.Errorf("days of week = %v", got)
	}
}

func TestStoreLoadNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Load(context.Background(), 42); !errors.Is(err, ErrPlayoutNotFound) {
		t.Errorf("err = %v, want ErrPlayoutNotFound", err)
	}
}

func TestStoreSaveReplacesBuildState(t *testing.T) {
	store, db := newTestStore(t)
	p := seedPlayout(t, db)
	ctx := context.Background()

	day := t0.Add(24 * time.Hour)
	p.Items = []models.PlayoutItem{
		{MediaItemID: 2, Start: t0.Add(time.Hour), Finish: t0.Add(2 * time.Hour), GuideGroup: 2},
		{MediaItemID: 1, Start: t0, Finish: t0.Add(time.Hour), GuideGroup: 1},
	}
	p.Anchor = &models.PlayoutAnchor{NextScheduleItemID: 1, NextStart: t0.Add(2 * time.Hour), NextGuideGroup: 3}
	p.ScheduleAnchors = []models.PlayoutScheduleAnchor{
		{ProgramScheduleID: p.ProgramScheduleID, CollectionKind: models.CollectionKindCollection, CollectionRefID: 1, Seed: 7, Index: 2, AnchorDate: &day},
		{ProgramScheduleID: p.ProgramScheduleID, CollectionKind: models.CollectionKindCollection, CollectionRefID: 1, Seed: 7, Index: 3},
	}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Items) != 2 || loaded.Items[0].MediaItemID != 1 {
		t.Errorf("items not ordered by start: %+v", loaded.Items)
	}
	if loaded.Anchor == nil || loaded.Anchor.NextGuideGroup != 3 || !loaded.Anchor.NextStart.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("anchor = %+v", loaded.Anchor)
	}
	if len(loaded.ScheduleAnchors) != 2 {
		t.Fatalf("schedule anchors = %d, want 2", len(loaded.ScheduleAnchors))
	}

	// a second save replaces rather than appends
	loaded.Items = loaded.Items[:1]
	loaded.Anchor.NextStart = t0.Add(time.Hour)
	loaded.ScheduleAnchors = nil
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var items, anchors, scheduleAnchors int64
	db.Model(&models.PlayoutItem{}).Count(&items)
	db.Model(&models.PlayoutAnchor{}).Count(&anchors)
	db.Model(&models.PlayoutScheduleAnchor{}).Count(&scheduleAnchors)
	if items != 1 || anchors != 1 || scheduleAnchors != 0 {
		t.Errorf("rows = %d items, %d anchors, %d schedule anchors; want 1, 1, 0", items, anchors, scheduleAnchors)
	}
}

func TestStoreListIDs(t *testing.T) {
	store, db := newTestStore(t)
	p := seedPlayout(t, db)

	ids, err := store.ListIDs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != p.ID {
		t.Errorf("ids = %v, want [%d]", ids, p.ID)
	}
}

func TestStoreLookups(t *testing.T) {
	store, db := newTestStore(t)
	p := seedPlayout(t, db)
	ctx := context.Background()

	channelID, err := store.ChannelID(ctx, p.ID)
	if err != nil || channelID != p.ChannelID {
		t.Fatalf("ChannelID = %d, %v; want %d", channelID, err, p.ChannelID)
	}
	if _, err := store.ChannelID(ctx, 999); !errors.Is(err, ErrPlayoutNotFound) {
		t.Errorf("ChannelID(999) err = %v", err)
	}

	loaded, err := store.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, scheduleID := range []int{loaded.ProgramScheduleID, loaded.Templates[0].ProgramScheduleID} {
		ids, err := store.IDsForSchedule(ctx, scheduleID)
		if err != nil {
			t.Fatalf("IDsForSchedule(%d): %v", scheduleID, err)
		}
		if len(ids) != 1 || ids[0] != p.ID {
			t.Errorf("IDsForSchedule(%d) = %v", scheduleID, ids)
		}
	}
	if ids, _ := store.IDsForSchedule(ctx, 999); len(ids) != 0 {
		t.Errorf("IDsForSchedule(999) = %v", ids)
	}
}
