/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
)

var (
	// ErrEmptyCollection means a referenced collection has no playable items.
	// The build is aborted and the playout is left unchanged.
	ErrEmptyCollection = errors.New("collection has no valid items")

	// ErrNoScheduleItems is returned for a playout whose schedule has no rules.
	ErrNoScheduleItems = errors.New("program schedule has no items")

	// ErrSchedulingLoop is returned when the builder stops making progress.
	ErrSchedulingLoop = errors.New("scheduling loop encountered")

	// ErrInvariant marks programming errors such as an unknown schedule item kind.
	ErrInvariant = errors.New("playout invariant violated")
)

// EmptyCollectionError names the collection that emptied out.
type EmptyCollectionError struct {
	Key collection.Key
}

func (e *EmptyCollectionError) Error() string {
	return fmt.Sprintf("unable to build playout: %s has no valid items", e.Key)
}

func (e *EmptyCollectionError) Unwrap() error { return ErrEmptyCollection }

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// Outcome distinguishes completed builds from builds that had nothing to do
// or were canceled.
type Outcome string

const (
	OutcomeBuilt       Outcome = "built"
	OutcomeNothingToDo Outcome = "nothing_to_do"
	OutcomeCanceled    Outcome = "canceled"
)

// WarningKind classifies data quality problems found while building.
type WarningKind string

const (
	WarningZeroDuration      WarningKind = "zero_duration"
	WarningMissingMedia      WarningKind = "missing_media"
	WarningOverlongItem      WarningKind = "overlong_item"
	WarningOverlongBlock     WarningKind = "overlong_block"
	WarningOverlongFiller    WarningKind = "overlong_filler"
	WarningPadConflict       WarningKind = "pad_conflict"
	WarningPredictionMiss    WarningKind = "filler_prediction_mismatch"
	WarningChapterExpression WarningKind = "chapter_expression"
	WarningCountExpression   WarningKind = "count_expression"
	WarningStaleItems        WarningKind = "stale_items"
	WarningOrphanItem        WarningKind = "orphan_item"
)

// Warning is a non-fatal problem recorded on the build result.
type Warning struct {
	Kind        WarningKind
	MediaItemID int
	At          time.Time
	Message     string
}
