/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

var guideStart = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return guideStart.Add(time.Duration(minutes) * time.Minute) }

func playoutItem(mediaID, from, to, group int, kind models.FillerKind) models.PlayoutItem {
	return models.PlayoutItem{
		MediaItemID: mediaID,
		Start:       at(from),
		Finish:      at(to),
		GuideGroup:  group,
		FillerKind:  kind,
	}
}

func TestGuideEntries(t *testing.T) {
	finish := at(60)
	block := playoutItem(3, 35, 50, 3, models.FillerKindNone)
	block.GuideFinish = &finish
	custom := playoutItem(5, 70, 80, 5, models.FillerKindNone)
	custom.CustomTitle = "Movie Night"

	items := []models.PlayoutItem{
		playoutItem(10, 0, 2, 1, models.FillerKindPreRoll),
		playoutItem(1, 2, 30, 1, models.FillerKindNone),
		playoutItem(11, 30, 35, 1, models.FillerKindPostRoll),
		block,
		playoutItem(12, 50, 60, 3, models.FillerKindTail),
		playoutItem(4, 60, 70, 4, models.FillerKindGuideMode),
		custom,
		playoutItem(13, 80, 90, 6, models.FillerKindFallback),
	}
	titles := map[int]string{1: "Pilot", 3: "Cartoons"}

	got := GuideEntries(items, titles)
	want := []GuideEntry{
		{GuideGroup: 1, MediaItemID: 1, Title: "Pilot", Start: at(0), Finish: at(35)},
		{GuideGroup: 3, MediaItemID: 3, Title: "Cartoons", Start: at(35), Finish: at(60)},
		{GuideGroup: 5, MediaItemID: 5, Title: "Movie Night", Start: at(70), Finish: at(80)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.GuideGroup != w.GuideGroup || g.MediaItemID != w.MediaItemID || g.Title != w.Title ||
			!g.Start.Equal(w.Start) || !g.Finish.Equal(w.Finish) {
			t.Errorf("entry %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestGuideEntriesChapterTitles(t *testing.T) {
	item := playoutItem(1, 0, 10, 1, models.FillerKindNone)
	item.ChapterTitle = "Act One"
	got := GuideEntries([]models.PlayoutItem{item}, nil)
	if len(got) != 1 || got[0].Title != "Media 1 - Act One" {
		t.Errorf("entries = %+v", got)
	}
}

func TestRenderICal(t *testing.T) {
	entries := []GuideEntry{{GuideGroup: 1, MediaItemID: 1, Title: "News, Weather; Sports", Start: at(0), Finish: at(30)}}
	out := string(RenderICal("Channel One", 7, entries, guideStart))

	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"X-WR-CALNAME:Channel One\r\n",
		"DTSTART:20240301T180000Z\r\n",
		"DTEND:20240301T183000Z\r\n",
		"SUMMARY:News\\, Weather\\; Sports\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 1 {
		t.Errorf("got %d events, want 1", n)
	}
}

func TestExportToICal(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.Playout{}, &models.PlayoutItem{}, &models.MediaItem{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	channel := models.Channel{Number: "2", Name: "Retro TV"}
	db.Create(&channel)
	p := models.Playout{ChannelID: channel.ID}
	db.Create(&p)
	db.Create(&models.MediaItem{ID: 1, Kind: models.MediaKindMovie, Title: "Metropolis"})
	items := []models.PlayoutItem{
		playoutItem(1, 0, 120, 1, models.FillerKindNone),
		playoutItem(1, 24*60, 24*60+120, 2, models.FillerKindNone),
	}
	for i := range items {
		items[i].PlayoutID = p.ID
	}
	db.Create(&items)

	svc := NewExportService(db, zerolog.Nop())
	res, err := svc.ExportToICal(context.Background(), p.ID, guideStart, guideStart.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Entries != 1 {
		t.Errorf("entries = %d, want 1", res.Entries)
	}
	if !strings.Contains(string(res.Data), "SUMMARY:Metropolis") {
		t.Errorf("missing title:\n%s", res.Data)
	}
	if res.Filename != "retro-tv-guide-2024-03-01-to-2024-03-02.ics" {
		t.Errorf("filename = %q", res.Filename)
	}

	if _, err := svc.ExportToICal(context.Background(), 99, guideStart, guideStart.Add(time.Hour)); !errors.Is(err, ErrPlayoutNotFound) {
		t.Errorf("err = %v, want ErrPlayoutNotFound", err)
	}
}
