/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/models"
)

// ItemKind is the playout mode of a schedule item together with the fields
// only that mode uses.
type ItemKind interface {
	isItemKind()
}

// One plays a single item and moves on.
type One struct{}

// Multiple plays Count items. A zero count is resolved through Mode.
type Multiple struct {
	Count int
	Mode  models.MultipleMode
}

// Duration plays whole items until PlayoutDuration is used up.
type Duration struct {
	PlayoutDuration time.Duration
	TailMode        models.TailMode
}

// Flood plays items until the next fixed start.
type Flood struct{}

func (One) isItemKind()      {}
func (Multiple) isItemKind() {}
func (Duration) isItemKind() {}
func (Flood) isItemKind()    {}

// KindOf converts a stored schedule item into its ItemKind.
func KindOf(item *models.ProgramScheduleItem) (ItemKind, error) {
	switch item.PlayoutMode {
	case models.PlayoutModeOne:
		return One{}, nil
	case models.PlayoutModeMultiple:
		mode := item.MultipleMode
		if mode == "" {
			mode = models.MultipleModeCount
		}
		return Multiple{Count: item.MultipleCount, Mode: mode}, nil
	case models.PlayoutModeDuration:
		tail := item.TailMode
		if tail == "" {
			tail = models.TailModeNone
		}
		return Duration{PlayoutDuration: item.PlayoutDuration, TailMode: tail}, nil
	case models.PlayoutModeFlood:
		return Flood{}, nil
	}
	return nil, invariantf("schedule item %d has unknown playout mode %q", item.ID, item.PlayoutMode)
}
