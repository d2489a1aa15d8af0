/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package yamlschedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
)

// ErrUnknownReference is returned when a name in the lineup matches
// nothing in the file or the database.
var ErrUnknownReference = errors.New("unknown reference")

var errDryRun = errors.New("dry run")

// Options controls an import.
type Options struct {
	// DryRun performs the whole import inside a transaction and rolls it back.
	DryRun bool
}

// Result summarises an import.
type Result struct {
	MediaItemsImported   int            `json:"media_items_imported"`
	CollectionsCreated   int            `json:"collections_created"`
	PlaylistsCreated     int            `json:"playlists_created"`
	FillerPresetsCreated int            `json:"filler_presets_created"`
	SchedulesCreated     int            `json:"schedules_created"`
	ChannelsCreated      int            `json:"channels_created"`
	PlayoutsCreated      int            `json:"playouts_created"`
	WebhooksCreated      int            `json:"webhooks_created"`
	Skipped              map[string]int `json:"skipped,omitempty"`
	Warnings             []string       `json:"warnings,omitempty"`
	DryRun               bool           `json:"dry_run"`
	DurationSeconds      float64        `json:"duration_seconds"`
	CreatedPlayoutIDs    []int          `json:"created_playout_ids,omitempty"`
}

func (r *Result) skip(kind string) {
	if r.Skipped == nil {
		r.Skipped = map[string]int{}
	}
	r.Skipped[kind]++
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Importer writes lineups into the database.
type Importer struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewImporter creates an importer.
func NewImporter(db *gorm.DB, logger zerolog.Logger) *Importer {
	return &Importer{
		db:     db,
		logger: logger.With().Str("component", "yamlschedule").Logger(),
	}
}

// Import parses, validates and stores the lineup read from r. Entities that
// already exist by name (channels by number) are left untouched and later
// entries resolve references to them.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	lineup, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if err := lineup.Validate(); err != nil {
		return nil, err
	}
	return i.ImportLineup(ctx, lineup, opts)
}

// ImportLineup stores an already parsed lineup.
func (i *Importer) ImportLineup(ctx context.Context, lineup *Lineup, opts Options) (*Result, error) {
	started := time.Now()
	result := &Result{DryRun: opts.DryRun}

	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w := &writer{tx: tx, result: result, refs: newRefs(tx)}
		steps := []func(*Lineup) error{
			w.media,
			w.collections,
			w.smartCollections,
			w.multiCollections,
			w.playlists,
			w.filler,
			w.schedules,
			w.channels,
			w.webhooks,
		}
		for _, step := range steps {
			if err := step(lineup); err != nil {
				return err
			}
		}
		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, fmt.Errorf("import lineup: %w", err)
	}

	result.DurationSeconds = time.Since(started).Seconds()
	if opts.DryRun {
		result.CreatedPlayoutIDs = nil
	}
	for _, warn := range result.Warnings {
		i.logger.Warn().Msg(warn)
	}
	i.logger.Info().
		Bool("dry_run", opts.DryRun).
		Int("media", result.MediaItemsImported).
		Int("collections", result.CollectionsCreated).
		Int("schedules", result.SchedulesCreated).
		Int("channels", result.ChannelsCreated).
		Int("playouts", result.PlayoutsCreated).
		Int("webhooks", result.WebhooksCreated).
		Msg("lineup imported")
	return result, nil
}

// refs maps lineup names to row IDs, falling back to the database.
type refs struct {
	tx        *gorm.DB
	media     map[string]int
	names     map[models.CollectionKind]map[string]int
	filler    map[string]int
	schedules map[string]int
}

func newRefs(tx *gorm.DB) *refs {
	return &refs{
		tx:        tx,
		media:     map[string]int{},
		names:     map[models.CollectionKind]map[string]int{},
		filler:    map[string]int{},
		schedules: map[string]int{},
	}
}

func (r *refs) setName(kind models.CollectionKind, name string, id int) {
	if r.names[kind] == nil {
		r.names[kind] = map[string]int{}
	}
	r.names[kind][name] = id
}

func (r *refs) content(ref ContentRef) (int, error) {
	switch ref.Kind {
	case models.CollectionKindShow, models.CollectionKindArtist:
		return ref.ID, nil
	case models.CollectionKindMediaItem:
		if id, ok := r.media[ref.Name]; ok {
			return id, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	if id, ok := r.names[ref.Kind][ref.Name]; ok {
		return id, nil
	}

	var model any
	switch ref.Kind {
	case models.CollectionKindCollection:
		model = &models.Collection{}
	case models.CollectionKindMultiCollection:
		model = &models.MultiCollection{}
	case models.CollectionKindSmartCollection:
		model = &models.SmartCollection{}
	case models.CollectionKindPlaylist:
		model = &models.Playlist{}
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	id, found, err := findID(r.tx, model, "name", ref.Name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}
	r.setName(ref.Kind, ref.Name, id)
	return id, nil
}

func (r *refs) fillerID(name string) (*int, error) {
	if name == "" {
		return nil, nil
	}
	id, ok := r.filler[name]
	if !ok {
		var found bool
		var err error
		id, found, err = findID(r.tx, &models.FillerPreset{}, "name", name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: filler %s", ErrUnknownReference, name)
		}
		r.filler[name] = id
	}
	return &id, nil
}

func (r *refs) scheduleID(name string) (int, error) {
	if id, ok := r.schedules[name]; ok {
		return id, nil
	}
	id, found, err := findID(r.tx, &models.ProgramSchedule{}, "name", name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: schedule %s", ErrUnknownReference, name)
	}
	r.schedules[name] = id
	return id, nil
}

func findID(tx *gorm.DB, model any, column, value string) (int, bool, error) {
	var ids []int
	if err := tx.Model(model).Where(column+" = ?", value).Limit(1).Pluck("id", &ids).Error; err != nil {
		return 0, false, fmt.Errorf("lookup %s: %w", value, err)
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

type writer struct {
	tx     *gorm.DB
	result *Result
	refs   *refs
}

// media inserts items, reusing rows that match on identity fields.
func (w *writer) media(l *Lineup) error {
	for _, entry := range l.Media {
		item := entry.MediaItem
		var ids []int
		err := w.tx.Model(&models.MediaItem{}).
			Where(map[string]any{
				"kind":           item.Kind,
				"title":          item.Title,
				"show_id":        item.ShowID,
				"season_number":  item.SeasonNumber,
				"episode_number": item.EpisodeNumber,
				"artist_id":      item.ArtistID,
			}).
			Limit(1).Pluck("id", &ids).Error
		if err != nil {
			return fmt.Errorf("lookup media %s: %w", entry.Key, err)
		}
		if len(ids) > 0 {
			w.refs.media[entry.Key] = ids[0]
			w.result.skip("media")
			continue
		}

		item.ID = 0
		if item.State == "" {
			item.State = models.MediaStateNormal
		}
		if len(item.Versions) == 0 && item.Kind != models.MediaKindRemoteStream {
			w.result.warn("media %s has no versions and will never be scheduled", entry.Key)
		}
		if err := w.tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create media %s: %w", entry.Key, err)
		}
		w.refs.media[entry.Key] = item.ID
		w.result.MediaItemsImported++
	}
	return nil
}

// exists records the ID of a named row that is already stored.
func (w *writer) exists(model any, kind models.CollectionKind, name string) (bool, error) {
	id, found, err := findID(w.tx, model, "name", name)
	if err != nil || !found {
		return false, err
	}
	w.refs.setName(kind, name, id)
	w.result.skip(string(kind))
	return true, nil
}

func (w *writer) collections(l *Lineup) error {
	for _, entry := range l.Collections {
		found, err := w.exists(&models.Collection{}, models.CollectionKindCollection, entry.Name)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		row := models.Collection{Name: entry.Name, UseCustomPlaybackOrder: entry.CustomOrder}
		for idx, key := range entry.Items {
			row.Items = append(row.Items, models.CollectionItem{MediaItemID: w.refs.media[key], CustomIndex: idx})
		}
		if len(row.Items) == 0 {
			w.result.warn("collection %s is empty", entry.Name)
		}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create collection %s: %w", entry.Name, err)
		}
		w.refs.setName(models.CollectionKindCollection, entry.Name, row.ID)
		w.result.CollectionsCreated++
	}
	return nil
}

func (w *writer) smartCollections(l *Lineup) error {
	for _, entry := range l.SmartCollections {
		found, err := w.exists(&models.SmartCollection{}, models.CollectionKindSmartCollection, entry.Name)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		row := models.SmartCollection{Name: entry.Name, Query: entry.Query}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create smart collection %s: %w", entry.Name, err)
		}
		w.refs.setName(models.CollectionKindSmartCollection, entry.Name, row.ID)
		w.result.CollectionsCreated++
	}
	return nil
}

func (w *writer) multiCollections(l *Lineup) error {
	for _, entry := range l.MultiCollections {
		found, err := w.exists(&models.MultiCollection{}, models.CollectionKindMultiCollection, entry.Name)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		row := models.MultiCollection{Name: entry.Name}
		for _, item := range entry.Items {
			id, err := w.refs.content(item.Content)
			if err != nil {
				return fmt.Errorf("multi collection %s: %w", entry.Name, err)
			}
			row.Items = append(row.Items, models.MultiCollectionItem{
				CollectionKind:  item.Content.Kind,
				CollectionRefID: id,
				ScheduleAsGroup: item.ScheduleAsGroup,
				PlaybackOrder:   item.Order,
			})
		}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create multi collection %s: %w", entry.Name, err)
		}
		w.refs.setName(models.CollectionKindMultiCollection, entry.Name, row.ID)
		w.result.CollectionsCreated++
	}
	return nil
}

func (w *writer) playlists(l *Lineup) error {
	for _, entry := range l.Playlists {
		found, err := w.exists(&models.Playlist{}, models.CollectionKindPlaylist, entry.Name)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		row := models.Playlist{Name: entry.Name, ShuffleItems: entry.Shuffle}
		for idx, item := range entry.Items {
			id, err := w.refs.content(item.Content)
			if err != nil {
				return fmt.Errorf("playlist %s: %w", entry.Name, err)
			}
			guide := true
			if item.Guide != nil {
				guide = *item.Guide
			}
			order := item.Order
			if order == "" {
				order = models.PlaybackOrderChronological
			}
			row.Items = append(row.Items, models.PlaylistItem{
				Index:                 idx,
				CollectionKind:        item.Content.Kind,
				CollectionRefID:       id,
				PlaybackOrder:         order,
				PlayAll:               item.PlayAll,
				IncludeInProgramGuide: guide,
			})
		}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create playlist %s: %w", entry.Name, err)
		}
		w.refs.setName(models.CollectionKindPlaylist, entry.Name, row.ID)
		w.result.PlaylistsCreated++
	}
	return nil
}

func (w *writer) filler(l *Lineup) error {
	for _, entry := range l.Filler {
		id, found, err := findID(w.tx, &models.FillerPreset{}, "name", entry.Name)
		if err != nil {
			return err
		}
		if found {
			w.refs.filler[entry.Name] = id
			w.result.skip("filler")
			continue
		}
		contentID, err := w.refs.content(entry.Content)
		if err != nil {
			return fmt.Errorf("filler %s: %w", entry.Name, err)
		}
		mode := entry.Mode
		if mode == "" {
			mode = models.FillerModeNone
		}
		row := models.FillerPreset{
			Name:               entry.Name,
			FillerKind:         entry.Kind,
			FillerMode:         mode,
			Duration:           entry.Duration,
			Count:              entry.Count,
			CountExpression:    entry.CountExpression,
			PadToNearestMinute: entry.PadToNearestMinute,
			ChapterExpression:  entry.ChapterExpression,
			CollectionKind:     entry.Content.Kind,
			CollectionRefID:    contentID,
		}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create filler %s: %w", entry.Name, err)
		}
		w.refs.filler[entry.Name] = row.ID
		w.result.FillerPresetsCreated++
	}
	return nil
}

func (w *writer) schedules(l *Lineup) error {
	for _, entry := range l.Schedules {
		id, found, err := findID(w.tx, &models.ProgramSchedule{}, "name", entry.Name)
		if err != nil {
			return err
		}
		if found {
			w.refs.schedules[entry.Name] = id
			w.result.skip("schedule")
			continue
		}
		row := models.ProgramSchedule{
			Name:                          entry.Name,
			ShuffleScheduleItems:          entry.ShuffleItems,
			KeepMultiPartEpisodesTogether: entry.KeepMultiPartEpisodesTogether,
			TreatCollectionsAsShows:       entry.TreatCollectionsAsShows,
			RandomStartPoint:              entry.RandomStartPoint,
		}
		for idx, item := range entry.Items {
			si, err := w.scheduleItem(idx, item)
			if err != nil {
				return fmt.Errorf("schedule %s item %d: %w", entry.Name, idx, err)
			}
			row.Items = append(row.Items, si)
		}
		if len(row.Items) == 0 {
			w.result.warn("schedule %s has no items", entry.Name)
		}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create schedule %s: %w", entry.Name, err)
		}
		w.refs.schedules[entry.Name] = row.ID
		w.result.SchedulesCreated++
	}
	return nil
}

func (w *writer) scheduleItem(idx int, item ScheduleItem) (models.ProgramScheduleItem, error) {
	contentID, err := w.refs.content(item.Content)
	if err != nil {
		return models.ProgramScheduleItem{}, err
	}
	row := models.ProgramScheduleItem{
		Index:           idx,
		StartType:       models.StartTypeDynamic,
		PlayoutMode:     item.Mode,
		MultipleCount:   item.Count,
		MultipleMode:    item.MultipleMode,
		PlayoutDuration: item.Duration,
		TailMode:        item.TailMode,
		GuideMode:       item.GuideMode,
		CollectionKind:  item.Content.Kind,
		CollectionRefID: contentID,
		PlaybackOrder:   item.Order,
		CustomTitle:     item.Title,
	}
	if item.Start != "" {
		start, err := parseTimeOfDay(item.Start)
		if err != nil {
			return row, err
		}
		row.StartType = models.StartTypeFixed
		row.StartTime = &start
	}
	if row.PlayoutMode == models.PlayoutModeMultiple && row.MultipleMode == "" {
		row.MultipleMode = models.MultipleModeCount
	}
	if row.PlayoutMode == models.PlayoutModeDuration && row.TailMode == "" {
		row.TailMode = models.TailModeNone
	}
	if row.GuideMode == "" {
		row.GuideMode = models.GuideModeNormal
	}
	if row.PlaybackOrder == "" {
		row.PlaybackOrder = models.PlaybackOrderChronological
	}

	slots := []struct {
		name string
		dst  **int
	}{
		{item.Filler.PreRoll, &row.PreRollFillerID},
		{item.Filler.MidRoll, &row.MidRollFillerID},
		{item.Filler.PostRoll, &row.PostRollFillerID},
		{item.Filler.Tail, &row.TailFillerID},
		{item.Filler.Fallback, &row.FallbackFillerID},
	}
	for _, slot := range slots {
		id, err := w.refs.fillerID(slot.name)
		if err != nil {
			return row, err
		}
		*slot.dst = id
	}
	return row, nil
}

func (w *writer) channels(l *Lineup) error {
	for _, entry := range l.Channels {
		_, found, err := findID(w.tx, &models.Channel{}, "number", entry.Number)
		if err != nil {
			return err
		}
		if found {
			w.result.skip("channel")
			continue
		}
		tz := entry.Timezone
		if tz == "" {
			tz = "UTC"
		}
		channel := models.Channel{Number: entry.Number, Name: entry.Name, Timezone: tz}
		if err := w.tx.Create(&channel).Error; err != nil {
			return fmt.Errorf("create channel %s: %w", entry.Number, err)
		}
		w.result.ChannelsCreated++

		if entry.Schedule == "" {
			w.result.warn("channel %s has no schedule; no playout created", entry.Number)
			continue
		}
		scheduleID, err := w.refs.scheduleID(entry.Schedule)
		if err != nil {
			return fmt.Errorf("channel %s: %w", entry.Number, err)
		}
		p := models.Playout{ChannelID: channel.ID, ProgramScheduleID: scheduleID}
		for idx, t := range entry.Templates {
			tmpl, err := w.template(idx, t)
			if err != nil {
				return fmt.Errorf("channel %s template %d: %w", entry.Number, idx, err)
			}
			p.Templates = append(p.Templates, tmpl)
		}
		if err := w.tx.Create(&p).Error; err != nil {
			return fmt.Errorf("create playout for channel %s: %w", entry.Number, err)
		}
		w.result.PlayoutsCreated++
		w.result.CreatedPlayoutIDs = append(w.result.CreatedPlayoutIDs, p.ID)
	}
	return nil
}

func (w *writer) template(idx int, t TemplateEntry) (models.PlayoutTemplate, error) {
	scheduleID, err := w.refs.scheduleID(t.Schedule)
	if err != nil {
		return models.PlayoutTemplate{}, err
	}
	tmpl := models.PlayoutTemplate{
		ProgramScheduleID: scheduleID,
		Index:             idx,
		DaysOfWeek:        orDefault(t.DaysOfWeek, schedule.AllDaysOfWeek),
		DaysOfMonth:       orDefault(t.DaysOfMonth, schedule.AllDaysOfMonth),
		MonthsOfYear:      orDefault(t.MonthsOfYear, schedule.AllMonthsOfYear),
	}
	if t.From != "" {
		from, err := parseDay(t.From)
		if err != nil {
			return tmpl, err
		}
		to, err := parseDay(t.To)
		if err != nil {
			return tmpl, err
		}
		tmpl.LimitToDateRange = true
		tmpl.StartYear, tmpl.StartMonth, tmpl.StartDay = from.year, from.month, from.day
		tmpl.EndYear, tmpl.EndMonth, tmpl.EndDay = to.year, to.month, to.day
	}
	return tmpl, nil
}

func orDefault(values []int, all func() []int) []int {
	if len(values) > 0 {
		return values
	}
	return all()
}

func (w *writer) webhooks(l *Lineup) error {
	for _, entry := range l.Webhooks {
		var channelID *int
		if entry.Channel != "" {
			id, found, err := findID(w.tx, &models.Channel{}, "number", entry.Channel)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("webhook %s: %w: channel %s", entry.URL, ErrUnknownReference, entry.Channel)
			}
			channelID = &id
		}

		q := w.tx.Model(&models.WebhookTarget{}).Where("url = ?", entry.URL)
		if channelID == nil {
			q = q.Where("channel_id IS NULL")
		} else {
			q = q.Where("channel_id = ?", *channelID)
		}
		var existing int64
		if err := q.Count(&existing).Error; err != nil {
			return fmt.Errorf("lookup webhook %s: %w", entry.URL, err)
		}
		if existing > 0 {
			w.result.skip("webhook")
			continue
		}

		row := models.WebhookTarget{
			ChannelID: channelID,
			URL:       entry.URL,
			Events:    strings.Join(entry.Events, ","),
			Secret:    entry.Secret,
			Active:    true,
		}
		if err := w.tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create webhook %s: %w", entry.URL, err)
		}
		w.result.WebhooksCreated++
	}
	return nil
}
