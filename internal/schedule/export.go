/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// ErrPlayoutNotFound is returned when exporting an unknown playout.
var ErrPlayoutNotFound = errors.New("playout not found")

// GuideEntry is one program guide listing. Filler sharing the guide group of
// a program is folded into that program's entry.
type GuideEntry struct {
	GuideGroup  int
	MediaItemID int
	Title       string
	Start       time.Time
	Finish      time.Time
}

// GuideEntries folds playout items into guide listings. titles maps media item
// ids to display titles. Items hidden from the guide never open an entry.
func GuideEntries(items []models.PlayoutItem, titles map[int]string) []GuideEntry {
	sorted := make([]models.PlayoutItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var (
		entries []GuideEntry
		current *GuideEntry
	)
	for _, item := range sorted {
		finish := item.Finish
		if item.GuideFinish != nil && item.GuideFinish.After(finish) {
			finish = *item.GuideFinish
		}

		if current != nil && current.GuideGroup == item.GuideGroup {
			if current.MediaItemID == 0 && item.FillerKind == models.FillerKindNone {
				current.MediaItemID = item.MediaItemID
				current.Title = itemTitle(item, titles)
			}
			if finish.After(current.Finish) {
				current.Finish = finish
			}
			continue
		}

		if current != nil {
			entries = append(entries, *current)
			current = nil
		}
		if item.FillerKind == models.FillerKindGuideMode {
			continue
		}

		current = &GuideEntry{GuideGroup: item.GuideGroup, Start: item.Start, Finish: finish}
		if item.FillerKind == models.FillerKindNone {
			current.MediaItemID = item.MediaItemID
			current.Title = itemTitle(item, titles)
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}

	// groups made only of filler have nothing to list
	out := entries[:0]
	for _, e := range entries {
		if e.MediaItemID != 0 {
			out = append(out, e)
		}
	}
	return out
}

func itemTitle(item models.PlayoutItem, titles map[int]string) string {
	if item.CustomTitle != "" {
		return item.CustomTitle
	}
	title := titles[item.MediaItemID]
	if title == "" {
		title = fmt.Sprintf("Media %d", item.MediaItemID)
	}
	if item.ChapterTitle != "" {
		title += " - " + item.ChapterTitle
	}
	return title
}

// ExportService renders built playouts as program guides.
type ExportService struct {
	db     *gorm.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewExportService creates a new export service.
func NewExportService(db *gorm.DB, logger zerolog.Logger) *ExportService {
	return &ExportService{
		db:     db,
		logger: logger.With().Str("component", "guide_export").Logger(),
		now:    time.Now,
	}
}

// ExportICalResult contains the iCal export data.
type ExportICalResult struct {
	Data        []byte
	Filename    string
	ContentType string
	Entries     int
}

// ExportToICal exports the guide of a playout between start and end.
func (s *ExportService) ExportToICal(ctx context.Context, playoutID int, start, end time.Time) (*ExportICalResult, error) {
	var p models.Playout
	err := s.db.WithContext(ctx).Preload("Channel").First(&p, playoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("playout %d: %w", playoutID, ErrPlayoutNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load playout %d: %w", playoutID, err)
	}

	var items []models.PlayoutItem
	if err := s.db.WithContext(ctx).
		Where("playout_id = ? AND finish > ? AND start < ?", playoutID, start, end).
		Order("start ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch playout items: %w", err)
	}

	ids := make([]int, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MediaItemID)
	}
	var media []models.MediaItem
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Select("id", "title").Where("id IN ?", ids).Find(&media).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch media titles: %w", err)
		}
	}
	titles := make(map[int]string, len(media))
	for _, m := range media {
		titles[m.ID] = m.Title
	}

	name := fmt.Sprintf("Playout %d", playoutID)
	if p.Channel != nil && p.Channel.Name != "" {
		name = p.Channel.Name
	}
	entries := GuideEntries(items, titles)
	data := RenderICal(name, playoutID, entries, s.now())

	s.logger.Info().
		Int("playout_id", playoutID).
		Int("entries", len(entries)).
		Msg("guide exported")

	return &ExportICalResult{
		Data: data,
		Filename: fmt.Sprintf("%s-guide-%s-to-%s.ics",
			slugify(name),
			start.Format("2006-01-02"),
			end.Format("2006-01-02")),
		ContentType: "text/calendar; charset=utf-8",
		Entries:     len(entries),
	}, nil
}

// RenderICal writes entries as an iCalendar document.
func RenderICal(calendarName string, playoutID int, entries []GuideEntry, stamp time.Time) []byte {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Grimnir Playout//Program Guide//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:%s\r\n", escapeICalText(calendarName)))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, e := range entries {
		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%d-%d@grimnir-playout\r\n", playoutID, e.Start.Unix()))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(stamp)))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(e.Start)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(e.Finish)))
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(e.Title)))
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return buf.Bytes()
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
