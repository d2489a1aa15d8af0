/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package yamlschedule loads lineup files describing channels, schedules,
// filler presets, collections and media into the database.
package yamlschedule

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/grimnir_playout/internal/events"
	"github.com/friendsincode/grimnir_playout/internal/models"
)

// Lineup is the root document of a lineup file. Entities reference each
// other by name; media items are referenced by their lineup-local key.
type Lineup struct {
	Media            []MediaEntry      `yaml:"media"`
	Collections      []CollectionEntry `yaml:"collections"`
	SmartCollections []SmartEntry      `yaml:"smart_collections"`
	MultiCollections []MultiEntry      `yaml:"multi_collections"`
	Playlists        []PlaylistEntry   `yaml:"playlists"`
	Filler           []FillerEntry     `yaml:"filler"`
	Schedules        []ScheduleEntry   `yaml:"schedules"`
	Channels         []ChannelEntry    `yaml:"channels"`
	Webhooks         []WebhookEntry    `yaml:"webhooks"`
}

// MediaEntry is a media item plus the key other entries use to refer to it.
type MediaEntry struct {
	Key              string `yaml:"key"`
	models.MediaItem `yaml:",inline"`
}

type CollectionEntry struct {
	Name        string   `yaml:"name"`
	CustomOrder bool     `yaml:"custom_order"`
	Items       []string `yaml:"items"`
}

type SmartEntry struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

type MultiEntry struct {
	Name  string      `yaml:"name"`
	Items []MultiItem `yaml:"items"`
}

type MultiItem struct {
	Content         ContentRef           `yaml:"content"`
	ScheduleAsGroup bool                 `yaml:"schedule_as_group"`
	Order           models.PlaybackOrder `yaml:"order"`
}

type PlaylistEntry struct {
	Name    string         `yaml:"name"`
	Shuffle bool           `yaml:"shuffle"`
	Items   []PlaylistItem `yaml:"items"`
}

type PlaylistItem struct {
	Content ContentRef           `yaml:"content"`
	Order   models.PlaybackOrder `yaml:"order"`
	PlayAll bool                 `yaml:"play_all"`
	// Guide defaults to true when omitted.
	Guide *bool `yaml:"guide"`
}

// ContentRef points at a collection of any kind. Shows and artists have no
// table of their own and are referenced by ID.
type ContentRef struct {
	Kind models.CollectionKind `yaml:"kind"`
	Name string                `yaml:"name"`
	ID   int                   `yaml:"id"`
}

func (c ContentRef) String() string {
	if c.Name != "" {
		return string(c.Kind) + ":" + c.Name
	}
	return string(c.Kind) + ":" + strconv.Itoa(c.ID)
}

type FillerEntry struct {
	Name               string            `yaml:"name"`
	Kind               models.FillerKind `yaml:"kind"`
	Mode               models.FillerMode `yaml:"mode"`
	Duration           *time.Duration    `yaml:"duration"`
	Count              *int              `yaml:"count"`
	CountExpression    string            `yaml:"count_expression"`
	PadToNearestMinute *int              `yaml:"pad_to_nearest_minute"`
	ChapterExpression  string            `yaml:"chapter_expression"`
	Content            ContentRef        `yaml:"content"`
}

type ScheduleEntry struct {
	Name                          string         `yaml:"name"`
	ShuffleItems                  bool           `yaml:"shuffle_items"`
	KeepMultiPartEpisodesTogether bool           `yaml:"keep_multi_part_episodes_together"`
	TreatCollectionsAsShows       bool           `yaml:"treat_collections_as_shows"`
	RandomStartPoint              bool           `yaml:"random_start_point"`
	Items                         []ScheduleItem `yaml:"items"`
}

// ScheduleItem is one block of a schedule. A non-empty Start makes the
// item fixed-start at that time of day.
type ScheduleItem struct {
	Start        string               `yaml:"start"`
	Mode         models.PlayoutMode   `yaml:"mode"`
	Count        int                  `yaml:"count"`
	MultipleMode models.MultipleMode  `yaml:"multiple_mode"`
	Duration     time.Duration        `yaml:"duration"`
	TailMode     models.TailMode      `yaml:"tail_mode"`
	GuideMode    models.GuideMode     `yaml:"guide_mode"`
	Content      ContentRef           `yaml:"content"`
	Order        models.PlaybackOrder `yaml:"order"`
	Title        string               `yaml:"title"`
	Filler       FillerRefs           `yaml:"filler"`
}

// FillerRefs names filler presets by slot.
type FillerRefs struct {
	PreRoll  string `yaml:"pre_roll"`
	MidRoll  string `yaml:"mid_roll"`
	PostRoll string `yaml:"post_roll"`
	Tail     string `yaml:"tail"`
	Fallback string `yaml:"fallback"`
}

type ChannelEntry struct {
	Number    string          `yaml:"number"`
	Name      string          `yaml:"name"`
	Timezone  string          `yaml:"timezone"`
	Schedule  string          `yaml:"schedule"`
	Templates []TemplateEntry `yaml:"templates"`
}

// TemplateEntry selects an alternate schedule on matching days. Dates in
// the range are written MM-DD or YYYY-MM-DD.
type TemplateEntry struct {
	Schedule     string `yaml:"schedule"`
	DaysOfWeek   []int  `yaml:"days_of_week"`
	DaysOfMonth  []int  `yaml:"days_of_month"`
	MonthsOfYear []int  `yaml:"months_of_year"`
	From         string `yaml:"from"`
	To           string `yaml:"to"`
}

// WebhookEntry registers a build notification endpoint. An empty Channel
// subscribes to every channel; empty Events to every build event.
type WebhookEntry struct {
	URL     string   `yaml:"url"`
	Channel string   `yaml:"channel"`
	Events  []string `yaml:"events"`
	Secret  string   `yaml:"secret"`
}

// Parse decodes a lineup document. Unknown fields are rejected.
func Parse(r io.Reader) (*Lineup, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var l Lineup
	if err := dec.Decode(&l); err != nil {
		if err == io.EOF {
			return &l, nil
		}
		return nil, fmt.Errorf("decode lineup: %w", err)
	}
	return &l, nil
}

// ValidationError represents a validation error with details.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the lineup for structural errors and dangling
// references. Names already present in the database are resolved later
// and are not visible here, so refs to them are accepted as-is.
func (l *Lineup) Validate() error {
	v := &validator{}

	mediaKeys := map[string]bool{}
	for i, m := range l.Media {
		field := fmt.Sprintf("media[%d]", i)
		switch {
		case m.Key == "":
			v.add(field+".key", "required")
		case mediaKeys[m.Key]:
			v.add(field+".key", "duplicate key %q", m.Key)
		}
		mediaKeys[m.Key] = true
		if !m.Kind.Valid() {
			v.add(field+".kind", "unknown media kind %q", m.Kind)
		}
		if m.Title == "" {
			v.add(field+".title", "required")
		}
		switch m.State {
		case "", models.MediaStateNormal, models.MediaStateFileNotFound, models.MediaStateUnavailable:
		default:
			v.add(field+".state", "unknown state %q", m.State)
		}
		for j, ver := range m.Versions {
			if ver.Duration < 0 {
				v.add(fmt.Sprintf("%s.versions[%d].duration", field, j), "must not be negative")
			}
			for k, ch := range ver.Chapters {
				if ch.EndTime < ch.StartTime {
					v.add(fmt.Sprintf("%s.versions[%d].chapters[%d]", field, j, k), "ends before it starts")
				}
			}
		}
	}

	for i, c := range l.Collections {
		field := fmt.Sprintf("collections[%d]", i)
		if c.Name == "" {
			v.add(field+".name", "required")
		}
		seen := map[string]bool{}
		for j, key := range c.Items {
			switch {
			case !mediaKeys[key]:
				v.add(fmt.Sprintf("%s.items[%d]", field, j), "unknown media key %q", key)
			case seen[key]:
				v.add(fmt.Sprintf("%s.items[%d]", field, j), "duplicate media key %q", key)
			}
			seen[key] = true
		}
	}
	for i, s := range l.SmartCollections {
		if s.Name == "" {
			v.add(fmt.Sprintf("smart_collections[%d].name", i), "required")
		}
	}
	for i, m := range l.MultiCollections {
		field := fmt.Sprintf("multi_collections[%d]", i)
		if m.Name == "" {
			v.add(field+".name", "required")
		}
		for j, item := range m.Items {
			f := fmt.Sprintf("%s.items[%d]", field, j)
			switch item.Content.Kind {
			case models.CollectionKindCollection, models.CollectionKindSmartCollection:
			default:
				v.add(f+".content.kind", "multi collections hold collections or smart collections, got %q", item.Content.Kind)
			}
			v.ref(f+".content", item.Content, mediaKeys)
			v.order(f+".order", item.Order, true)
		}
	}
	for i, p := range l.Playlists {
		field := fmt.Sprintf("playlists[%d]", i)
		if p.Name == "" {
			v.add(field+".name", "required")
		}
		for j, item := range p.Items {
			f := fmt.Sprintf("%s.items[%d]", field, j)
			if item.Content.Kind == models.CollectionKindPlaylist {
				v.add(f+".content.kind", "playlists cannot nest")
			}
			v.ref(f+".content", item.Content, mediaKeys)
			v.order(f+".order", item.Order, true)
		}
	}

	fillers := map[string]bool{}
	for i, f := range l.Filler {
		field := fmt.Sprintf("filler[%d]", i)
		if f.Name == "" {
			v.add(field+".name", "required")
		}
		fillers[f.Name] = true
		switch f.Kind {
		case models.FillerKindPreRoll, models.FillerKindMidRoll, models.FillerKindPostRoll,
			models.FillerKindTail, models.FillerKindFallback:
		default:
			v.add(field+".kind", "unknown filler kind %q", f.Kind)
		}
		switch f.Mode {
		case "", models.FillerModeNone:
		case models.FillerModeDuration:
			if f.Duration == nil || *f.Duration <= 0 {
				v.add(field+".duration", "required for duration mode")
			}
		case models.FillerModeCount:
			if f.Count == nil && f.CountExpression == "" {
				v.add(field+".count", "count or count_expression required for count mode")
			}
		case models.FillerModePad:
			if f.PadToNearestMinute == nil || *f.PadToNearestMinute <= 0 {
				v.add(field+".pad_to_nearest_minute", "required for pad mode")
			}
		default:
			v.add(field+".mode", "unknown filler mode %q", f.Mode)
		}
		v.ref(field+".content", f.Content, mediaKeys)
	}

	schedules := map[string]bool{}
	for i, s := range l.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		if s.Name == "" {
			v.add(field+".name", "required")
		}
		schedules[s.Name] = true
		for j, item := range s.Items {
			v.scheduleItem(fmt.Sprintf("%s.items[%d]", field, j), item, mediaKeys)
		}
	}

	numbers := map[string]bool{}
	for i, c := range l.Channels {
		field := fmt.Sprintf("channels[%d]", i)
		switch {
		case c.Number == "":
			v.add(field+".number", "required")
		case numbers[c.Number]:
			v.add(field+".number", "duplicate channel number %q", c.Number)
		}
		numbers[c.Number] = true
		if c.Timezone != "" {
			if _, err := time.LoadLocation(c.Timezone); err != nil {
				v.add(field+".timezone", "%v", err)
			}
		}
		if c.Schedule == "" && len(c.Templates) > 0 {
			v.add(field+".schedule", "required when templates are set")
		}
		for j, t := range c.Templates {
			f := fmt.Sprintf("%s.templates[%d]", field, j)
			if t.Schedule == "" {
				v.add(f+".schedule", "required")
			}
			v.ints(f+".days_of_week", t.DaysOfWeek, 0, 6)
			v.ints(f+".days_of_month", t.DaysOfMonth, 1, 31)
			v.ints(f+".months_of_year", t.MonthsOfYear, 1, 12)
			if (t.From == "") != (t.To == "") {
				v.add(f, "from and to must be set together")
			} else if t.From != "" {
				from, err1 := parseDay(t.From)
				to, err2 := parseDay(t.To)
				if err1 != nil {
					v.add(f+".from", "%v", err1)
				}
				if err2 != nil {
					v.add(f+".to", "%v", err2)
				}
				if err1 == nil && err2 == nil && (from.year == nil) != (to.year == nil) {
					v.add(f, "from and to must both carry a year or neither")
				}
			}
		}
	}

	for i, wh := range l.Webhooks {
		field := fmt.Sprintf("webhooks[%d]", i)
		if u, err := url.Parse(wh.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.add(field+".url", "must be an absolute http(s) URL")
		}
		for _, e := range wh.Events {
			switch events.EventType(e) {
			case events.EventPlayoutBuilt, events.EventPlayoutBuildFailed:
			default:
				v.add(field+".events", "unknown event %q", e)
			}
		}
	}

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

func (v *validator) scheduleItem(field string, item ScheduleItem, mediaKeys map[string]bool) {
	if item.Start != "" {
		if _, err := parseTimeOfDay(item.Start); err != nil {
			v.add(field+".start", "%v", err)
		}
	}
	switch item.Mode {
	case models.PlayoutModeOne, models.PlayoutModeFlood:
	case models.PlayoutModeMultiple:
		switch item.MultipleMode {
		case "", models.MultipleModeCount:
			if item.Count < 0 {
				v.add(field+".count", "must not be negative")
			}
		case models.MultipleModeCollectionSize, models.MultipleModePlaylistItemSize,
			models.MultipleModeMultiEpisodeGroupSize:
		default:
			v.add(field+".multiple_mode", "unknown multiple mode %q", item.MultipleMode)
		}
	case models.PlayoutModeDuration:
		if item.Duration <= 0 {
			v.add(field+".duration", "required for duration mode")
		}
		switch item.TailMode {
		case "", models.TailModeNone, models.TailModeOffline, models.TailModeFiller:
		default:
			v.add(field+".tail_mode", "unknown tail mode %q", item.TailMode)
		}
	default:
		v.add(field+".mode", "unknown playout mode %q", item.Mode)
	}
	switch item.GuideMode {
	case "", models.GuideModeNormal, models.GuideModeFiller:
	default:
		v.add(field+".guide_mode", "unknown guide mode %q", item.GuideMode)
	}
	v.ref(field+".content", item.Content, mediaKeys)
	v.order(field+".order", item.Order, item.Content.Kind == models.CollectionKindMultiCollection ||
		item.Content.Kind == models.CollectionKindPlaylist)
}

func (v *validator) ref(field string, ref ContentRef, mediaKeys map[string]bool) {
	switch ref.Kind {
	case models.CollectionKindCollection, models.CollectionKindMultiCollection,
		models.CollectionKindSmartCollection, models.CollectionKindPlaylist:
		if ref.Name == "" {
			v.add(field+".name", "required for %s", ref.Kind)
		}
	case models.CollectionKindShow, models.CollectionKindArtist:
		if ref.ID <= 0 {
			v.add(field+".id", "required for %s", ref.Kind)
		}
	case models.CollectionKindMediaItem:
		if !mediaKeys[ref.Name] {
			v.add(field+".name", "unknown media key %q", ref.Name)
		}
	case "":
		v.add(field+".kind", "required")
	default:
		v.add(field+".kind", "unknown collection kind %q", ref.Kind)
	}
}

func (v *validator) order(field string, order models.PlaybackOrder, optional bool) {
	switch order {
	case "":
		if !optional {
			v.add(field, "required")
		}
	case models.PlaybackOrderChronological, models.PlaybackOrderRandom, models.PlaybackOrderShuffle,
		models.PlaybackOrderShuffleInOrder, models.PlaybackOrderSeasonEpisode,
		models.PlaybackOrderRandomRotation, models.PlaybackOrderLatest:
	default:
		v.add(field, "unknown playback order %q", order)
	}
}

func (v *validator) ints(field string, values []int, lo, hi int) {
	for _, n := range values {
		if n < lo || n > hi {
			v.add(field, "%d out of range %d-%d", n, lo, hi)
			return
		}
	}
}

// parseTimeOfDay accepts HH:MM or HH:MM:SS.
func parseTimeOfDay(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

type day struct {
	year       *int
	month, day int
}

// parseDay accepts MM-DD or YYYY-MM-DD.
func parseDay(s string) (day, error) {
	parts := strings.Split(s, "-")
	var d day
	var err error
	switch len(parts) {
	case 2:
		d.month, d.day, err = monthDay(parts[0], parts[1])
	case 3:
		var y int
		if y, err = strconv.Atoi(parts[0]); err == nil {
			d.year = &y
			d.month, d.day, err = monthDay(parts[1], parts[2])
		}
	default:
		err = fmt.Errorf("invalid date %q", s)
	}
	if err != nil {
		return day{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

func monthDay(ms, ds string) (int, int, error) {
	m, err := strconv.Atoi(ms)
	if err != nil || m < 1 || m > 12 {
		return 0, 0, fmt.Errorf("bad month")
	}
	d, err := strconv.Atoi(ds)
	if err != nil || d < 1 || d > 31 {
		return 0, 0, fmt.Errorf("bad day")
	}
	return m, d, nil
}
