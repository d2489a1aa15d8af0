/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/enumerator"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/schedule"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
	"github.com/friendsincode/grimnir_playout/internal/telemetry"
)

const tracerName = "grimnir-playout/playout"

// loopLimit is how often the build loop may observe the same current time
// before it gives up.
const loopLimit = 6

// Mode selects how much existing state a build keeps.
type Mode string

const (
	// ModeContinue extends the playout from its anchors.
	ModeContinue Mode = "continue"
	// ModeRefresh rebuilds from the oldest checkpoint of the start date.
	ModeRefresh Mode = "refresh"
	// ModeReset discards everything and starts over.
	ModeReset Mode = "reset"
)

// ParseMode converts a user supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeContinue, ModeRefresh, ModeReset:
		return m, nil
	case "":
		return ModeContinue, nil
	}
	return "", fmt.Errorf("unknown build mode %q", s)
}

// Options configures a Builder.
type Options struct {
	// DaysToBuild is how far past now Build extends the playout.
	DaysToBuild int
	// History is how long finished items are kept.
	History          time.Duration
	SkipMissingItems bool
	// Location is used for channels without a time zone.
	Location *time.Location
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DaysToBuild: 2,
		History:     4 * time.Hour,
		Location:    time.Local,
	}
}

// BuildResult describes one build pass.
type BuildResult struct {
	RunID      uuid.UUID
	PlayoutID  int
	Mode       Mode
	Outcome    Outcome
	Start      time.Time
	Finish     time.Time
	ItemsAdded int
	Warnings   []Warning
}

// Builder materializes playouts from their program schedules. A Builder may
// be shared by concurrent builds of different playouts; callers must not
// build the same playout concurrently.
type Builder struct {
	source collection.Source
	seeds  shuffle.SeedGenerator
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(source collection.Source, seeds shuffle.SeedGenerator, opts Options, logger zerolog.Logger) *Builder {
	if opts.DaysToBuild < 1 {
		opts.DaysToBuild = DefaultOptions().DaysToBuild
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if seeds == nil {
		seeds = shuffle.NewSeedGenerator()
	}
	return &Builder{
		source: source,
		seeds:  seeds,
		opts:   opts,
		logger: logger.With().Str("component", "playout_builder").Logger(),
		now:    time.Now,
	}
}

// Build extends p from now through the configured number of days.
func (b *Builder) Build(ctx context.Context, p *models.Playout, mode Mode) (*BuildResult, error) {
	now := b.now().In(b.location(p))
	return b.BuildWindow(ctx, p, mode, now, now.AddDate(0, 0, b.opts.DaysToBuild))
}

// BuildWindow builds p over [start, finish). p is only modified when the
// build succeeds; a canceled build reports OutcomeCanceled and no error.
func (b *Builder) BuildWindow(ctx context.Context, p *models.Playout, mode Mode, start, finish time.Time) (*BuildResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Build")
	defer span.End()

	began := time.Now()
	result := &BuildResult{
		RunID:     uuid.New(),
		PlayoutID: p.ID,
		Mode:      mode,
		Start:     start,
		Finish:    finish,
	}
	logger := b.logger.With().
		Str("run_id", result.RunID.String()).
		Int("playout_id", p.ID).
		Str("mode", string(mode)).
		Logger()
	telemetry.AddSpanAttributes(span, map[string]any{
		"playout.id": p.ID,
		"build.mode": string(mode),
		"build.run":  result.RunID.String(),
	})
	defer func() {
		telemetry.ScheduleBuildDuration.WithLabelValues(string(mode)).Observe(time.Since(began).Seconds())
	}()

	fail := func(err error) (*BuildResult, error) {
		telemetry.RecordError(span, err)
		telemetry.PlayoutBuildsTotal.WithLabelValues(string(mode), "failed").Inc()
		logger.Error().Err(err).Msg("unable to build playout")
		return result, err
	}

	if p.ProgramSchedule == nil || len(p.ProgramSchedule.Items) == 0 {
		return fail(ErrNoScheduleItems)
	}

	loc := b.location(p)
	start, finish = start.In(loc), finish.In(loc)

	res, warnings, err := b.resolve(ctx, p)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return b.canceled(result, logger), nil
		}
		return fail(err)
	}

	work := clonePlayout(p)
	randomStartPoint := b.prepare(work, mode, start, loc, logger)

	logger.Debug().Time("start", start).Time("finish", finish).Msg("building playout")

	built := false
	chunkStart := start
	chunkFinish := startOfDay(start).AddDate(0, 0, 1)
	for chunkFinish.Before(finish) {
		if ctx.Err() != nil {
			return b.canceled(result, logger), nil
		}
		ran, err := b.buildRange(work, res, chunkStart, chunkFinish, true, randomStartPoint, loc, result, logger)
		if err != nil {
			return fail(err)
		}
		built = built || ran
		randomStartPoint = false
		chunkStart = work.Anchor.NextStart.In(loc)
		chunkFinish = chunkFinish.AddDate(0, 0, 1)
	}
	if chunkStart.Before(finish) {
		if ctx.Err() != nil {
			return b.canceled(result, logger), nil
		}
		ran, err := b.buildRange(work, res, chunkStart, finish, false, randomStartPoint, loc, result, logger)
		if err != nil {
			return fail(err)
		}
		built = built || ran
	}

	b.trim(work, start, finish, result, logger)

	p.Items = work.Items
	p.Anchor = work.Anchor
	p.ScheduleAnchors = work.ScheduleAnchors

	result.Outcome = OutcomeBuilt
	if !built {
		result.Outcome = OutcomeNothingToDo
	}
	telemetry.PlayoutBuildsTotal.WithLabelValues(string(mode), string(result.Outcome)).Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"build.outcome":     string(result.Outcome),
		"build.items_added": result.ItemsAdded,
		"build.warnings":    len(result.Warnings),
	})
	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("items_added", result.ItemsAdded).
		Int("warnings", len(result.Warnings)).
		Dur("elapsed", time.Since(began)).
		Msg("playout build finished")
	return result, nil
}

func (b *Builder) canceled(result *BuildResult, logger zerolog.Logger) *BuildResult {
	result.Outcome = OutcomeCanceled
	result.ItemsAdded = 0
	telemetry.PlayoutBuildsTotal.WithLabelValues(string(result.Mode), string(OutcomeCanceled)).Inc()
	logger.Info().Msg("playout build canceled")
	return result
}

// location is the channel time zone, falling back to the configured one.
func (b *Builder) location(p *models.Playout) *time.Location {
	if p.Channel != nil && p.Channel.Timezone != "" {
		loc, err := time.LoadLocation(p.Channel.Timezone)
		if err == nil {
			return loc
		}
		b.logger.Warn().Err(err).Str("timezone", p.Channel.Timezone).Msg("unknown channel time zone")
	}
	return b.opts.Location
}

// prepare applies the mode to the anchors and items of work. It reports
// whether enumerators should pick a random start point.
func (b *Builder) prepare(work *models.Playout, mode Mode, start time.Time, loc *time.Location, logger zerolog.Logger) bool {
	day := startOfDay(start)
	switch mode {
	case ModeReset:
		work.Items = nil
		work.Anchor = nil
		work.ScheduleAnchors = nil
		return work.ProgramSchedule.RandomStartPoint

	case ModeRefresh:
		work.Items = nil
		work.Anchor = nil

		// keep the checkpoints taken on the start date, oldest per key
		oldest := make(map[anchorKey]models.PlayoutScheduleAnchor)
		var order []anchorKey
		for _, a := range work.ScheduleAnchors {
			if a.AnchorDate == nil {
				continue
			}
			if !startOfDay(a.AnchorDate.In(loc)).Equal(day) {
				continue
			}
			k := anchorKeyOf(&a)
			prev, ok := oldest[k]
			if !ok {
				order = append(order, k)
			}
			if !ok || a.AnchorDate.Before(*prev.AnchorDate) {
				oldest[k] = a
			}
		}
		work.ScheduleAnchors = work.ScheduleAnchors[:0:0]
		var earliest *time.Time
		for _, k := range order {
			a := oldest[k]
			work.ScheduleAnchors = append(work.ScheduleAnchors, a)
			if earliest == nil || a.AnchorDate.Before(*earliest) {
				earliest = a.AnchorDate
			}
		}
		if earliest != nil {
			work.Anchor = &models.PlayoutAnchor{PlayoutID: work.ID, NextStart: earliest.UTC(), NextGuideGroup: 1}
		}
		logger.Debug().Int("checkpoints", len(work.ScheduleAnchors)).Msg("refreshing playout from checkpoints")

	default:
		kept := work.ScheduleAnchors[:0:0]
		for _, a := range work.ScheduleAnchors {
			if a.AnchorDate != nil && a.AnchorDate.Before(day) {
				continue
			}
			kept = append(kept, a)
		}
		work.ScheduleAnchors = kept
	}
	return false
}

type anchorKey struct {
	scheduleID int
	key        collection.Key
}

func anchorKeyOf(a *models.PlayoutScheduleAnchor) anchorKey {
	return anchorKey{scheduleID: a.ProgramScheduleID, key: collection.ForAnchor(a)}
}

// anchorState finds the saved position of key: the continue anchor when one
// exists, otherwise the latest checkpoint.
func anchorState(anchors []models.PlayoutScheduleAnchor, scheduleID int, key collection.Key) (enumerator.State, bool) {
	var best *models.PlayoutScheduleAnchor
	for i := range anchors {
		a := &anchors[i]
		if a.ProgramScheduleID != scheduleID || collection.ForAnchor(a) != key {
			continue
		}
		if a.AnchorDate == nil {
			return enumerator.State{Seed: a.Seed, Index: a.Index}, true
		}
		if best == nil || a.AnchorDate.After(*best.AnchorDate) {
			best = a
		}
	}
	if best == nil {
		return enumerator.State{}, false
	}
	return enumerator.State{Seed: best.Seed, Index: best.Index}, true
}

// buildRange runs the scheduling loop from the playout anchor to finish. It
// reports whether the loop ran at all.
func (b *Builder) buildRange(work *models.Playout, res *resolved, start, finish time.Time, saveAnchorDate, randomStartPoint bool, loc *time.Location, result *BuildResult, logger zerolog.Logger) (bool, error) {
	sched := schedule.ScheduleFor(work, start)
	items := sortedItems(sched)
	if len(items) == 0 {
		return false, fmt.Errorf("schedule %q: %w", sched.Name, ErrNoScheduleItems)
	}

	seq, resumed := b.scheduleItems(work.Anchor, sched, items)
	if work.Anchor != nil && !resumed {
		logger.Debug().Int("schedule_id", sched.ID).Msg("schedule changed; starting from its first item")
	}

	keys := scheduleKeys(sched)
	enumerators := make(map[collection.Key]enumerator.Enumerator, len(keys))
	counts := make(map[collection.Key]int, len(keys))
	for _, key := range keys {
		state, ok := anchorState(work.ScheduleAnchors, sched.ID, key)
		if !ok {
			state = enumerator.State{Seed: b.seeds.NextSeed()}
		}
		enumerators[key] = newEnumerator(sched, key, playbackOrderFor(items, key), state, res, randomStartPoint)
		counts[key] = len(res.media[key])
	}

	anchor := work.Anchor
	if anchor == nil {
		first := seq.Current()
		next := startOfDay(start)
		if first.StartType == models.StartTypeFixed {
			next = fixedStartAfter(start, first, loc)
		}
		st := seq.State()
		anchor = &models.PlayoutAnchor{
			PlayoutID:          work.ID,
			NextScheduleItemID: first.ID,
			NextStart:          next.UTC(),
			ScheduleItemsSeed:  st.Seed,
			ScheduleItemsIndex: st.Index,
			NextGuideGroup:     1,
		}
	}

	current := anchor.NextStart.In(loc)
	if !current.Before(finish) {
		if work.Anchor == nil {
			work.Anchor = anchor
		}
		return false, nil
	}

	// items past the anchor were built but never anchored
	kept := work.Items[:0:0]
	removed := 0
	for _, pi := range work.Items {
		if !pi.Start.Before(current) {
			removed++
			continue
		}
		kept = append(kept, pi)
	}
	work.Items = kept
	if removed > 0 {
		result.Warnings = append(result.Warnings, Warning{
			Kind:    WarningStaleItems,
			At:      current,
			Message: fmt.Sprintf("removed %d items beyond the start anchor", removed),
		})
		telemetry.PlayoutWarningsTotal.WithLabelValues(string(WarningStaleItems)).Inc()
		logger.Warn().Int("count", removed).Time("anchor", current).Msg("removed playout items beyond current start anchor")
	}

	state := builderState{
		items:          seq,
		nextGuideGroup: anchor.NextGuideGroup,
		currentTime:    current,
	}
	if resumed {
		if anchor.MultipleRemaining != nil {
			state.multipleRemaining = intPtr(*anchor.MultipleRemaining)
		}
		if anchor.DurationFinish != nil {
			state.durationFinish = timePtr(anchor.DurationFinish.In(loc))
		}
		state.inFlood = anchor.InFlood
	}

	ms := newModeScheduler(enumerators, counts, loc, logger)
	seen := make(map[int64]int)
	for state.currentTime.Before(finish) {
		at := state.currentTime.UnixNano()
		seen[at]++
		if seen[at] == loopLimit {
			logger.Error().Time("at", state.currentTime).Msg("failed to schedule beyond current time; aborting playout build")
			return false, fmt.Errorf("at %s: %w", state.currentTime.Format(time.RFC3339), ErrSchedulingLoop)
		}

		item := seq.Current()
		next := seq.Peek(1)
		st, emitted, err := ms.schedule(state, item, next, finish)
		if err != nil {
			return false, err
		}
		for i := range emitted {
			emitted[i].PlayoutID = work.ID
			telemetry.PlayoutItemsEmitted.WithLabelValues(string(emitted[i].FillerKind)).Inc()
		}
		work.Items = append(work.Items, emitted...)
		result.ItemsAdded += len(emitted)
		state = st
	}
	result.Warnings = append(result.Warnings, ms.warnings...)

	if len(work.Items) > 0 {
		if last := maxFinish(work.Items); last.Before(state.currentTime) {
			state.currentTime = last
		}
	}

	anchorItem := seq.Current()
	st := seq.State()
	work.Anchor = &models.PlayoutAnchor{
		PlayoutID:          work.ID,
		NextScheduleItemID: anchorItem.ID,
		NextStart:          startTimeAfter(state, anchorItem, loc).UTC(),
		ScheduleItemsSeed:  st.Seed,
		ScheduleItemsIndex: st.Index,
		InFlood:            state.inFlood,
		NextGuideGroup:     state.nextGuideGroup,
	}
	if anchor.ID != 0 {
		work.Anchor.ID = anchor.ID
	}
	if state.multipleRemaining != nil {
		work.Anchor.MultipleRemaining = intPtr(*state.multipleRemaining)
	}
	if state.durationFinish != nil {
		work.Anchor.DurationFinish = timePtr(state.durationFinish.UTC())
	}

	work.ScheduleAnchors = scheduleAnchors(work, sched, keys, enumerators, saveAnchorDate)
	return true, nil
}

// scheduleItems restores the rule sequence. The saved position only applies
// when the anchored rule belongs to sched; otherwise the sequence restarts.
func (b *Builder) scheduleItems(anchor *models.PlayoutAnchor, sched *models.ProgramSchedule, items []*models.ProgramScheduleItem) (enumerator.Sequence[*models.ProgramScheduleItem], bool) {
	var (
		state   enumerator.State
		resumed bool
	)
	switch {
	case anchor == nil || anchor.NextScheduleItemID == 0:
		state = enumerator.State{Seed: b.seeds.NextSeed()}
		resumed = anchor != nil
	case slices.ContainsFunc(items, func(i *models.ProgramScheduleItem) bool { return i.ID == anchor.NextScheduleItemID }):
		state = enumerator.State{Seed: anchor.ScheduleItemsSeed, Index: anchor.ScheduleItemsIndex}
		resumed = true
	default:
		state = enumerator.State{Seed: anchor.ScheduleItemsSeed}
	}

	if sched.ShuffleScheduleItems {
		return enumerator.NewShuffledSequence(items, func(i *models.ProgramScheduleItem) int { return i.ID }, state), resumed
	}
	return enumerator.NewOrdered(items, state), resumed
}

// scheduleAnchors records the enumerator positions of sched. Checkpoints and
// the continue anchors of other schedules are kept.
func scheduleAnchors(work *models.Playout, sched *models.ProgramSchedule, keys []collection.Key, enumerators map[collection.Key]enumerator.Enumerator, saveAnchorDate bool) []models.PlayoutScheduleAnchor {
	out := make([]models.PlayoutScheduleAnchor, 0, len(keys)+len(work.ScheduleAnchors))
	for _, key := range keys {
		st := enumerators[key].State()
		a := models.PlayoutScheduleAnchor{
			PlayoutID:         work.ID,
			ProgramScheduleID: sched.ID,
			CollectionKind:    key.Kind,
			CollectionRefID:   key.ID,
			Seed:              st.Seed,
			Index:             st.Index,
		}
		if saveAnchorDate {
			a.AnchorDate = timePtr(work.Anchor.NextStart)
		}
		out = append(out, a)
	}
	for _, a := range work.ScheduleAnchors {
		if a.AnchorDate != nil || a.ProgramScheduleID != sched.ID {
			out = append(out, a)
		}
	}
	return out
}

// trim drops history and reports future items that are not part of a guide
// group reaching into the window.
func (b *Builder) trim(work *models.Playout, start, finish time.Time, result *BuildResult, logger zerolog.Logger) {
	before := start.Add(-b.opts.History)
	kept := work.Items[:0:0]
	for _, pi := range work.Items {
		if pi.Finish.Before(before) {
			continue
		}
		kept = append(kept, pi)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start.Before(kept[j].Start) })
	work.Items = kept

	for i := range work.Items {
		future := &work.Items[i]
		if !future.Start.After(finish) {
			continue
		}
		grouped := false
		for j := range work.Items {
			if i != j && work.Items[j].GuideGroup == future.GuideGroup {
				grouped = true
				break
			}
		}
		if grouped {
			continue
		}
		result.Warnings = append(result.Warnings, Warning{
			Kind:        WarningOrphanItem,
			MediaItemID: future.MediaItemID,
			At:          future.Start,
			Message:     fmt.Sprintf("playout item scheduled after hard stop of %s", finish.Format(time.RFC3339)),
		})
		telemetry.PlayoutWarningsTotal.WithLabelValues(string(WarningOrphanItem)).Inc()
		logger.Error().Time("start", future.Start).Time("hard_stop", finish).Msg("playout item scheduled after hard stop")
	}
}

func clonePlayout(p *models.Playout) *models.Playout {
	c := *p
	c.Items = slices.Clone(p.Items)
	c.ScheduleAnchors = slices.Clone(p.ScheduleAnchors)
	if p.Anchor != nil {
		a := *p.Anchor
		c.Anchor = &a
	}
	return &c
}
