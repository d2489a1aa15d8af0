/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package collection resolves content sources into media items.
package collection

import (
	"fmt"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// Key identifies a content source. Two keys are equal when kind and id match,
// which is what lets schedule items share one enumerator.
type Key struct {
	Kind models.CollectionKind
	ID   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// ForScheduleItem returns the primary content key of a schedule item.
func ForScheduleItem(item *models.ProgramScheduleItem) Key {
	return Key{Kind: item.CollectionKind, ID: item.CollectionRefID}
}

// ForFiller returns the content key of a filler preset.
func ForFiller(preset *models.FillerPreset) Key {
	return Key{Kind: preset.CollectionKind, ID: preset.CollectionRefID}
}

// ForPlaylistItem returns the content key of a playlist entry.
func ForPlaylistItem(item *models.PlaylistItem) Key {
	return Key{Kind: item.CollectionKind, ID: item.CollectionRefID}
}

// ForAnchor returns the key a persisted enumerator anchor belongs to.
func ForAnchor(anchor *models.PlayoutScheduleAnchor) Key {
	return Key{Kind: anchor.CollectionKind, ID: anchor.CollectionRefID}
}

// Fillers returns the filler presets attached to a schedule item in
// pre, mid, post, tail, fallback order.
func Fillers(item *models.ProgramScheduleItem) []*models.FillerPreset {
	var out []*models.FillerPreset
	for _, p := range []*models.FillerPreset{
		item.PreRollFiller, item.MidRollFiller, item.PostRollFiller, item.TailFiller, item.FallbackFiller,
	} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
