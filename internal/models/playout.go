/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Playout is the materialized timeline of one channel.
type Playout struct {
	ID                int `gorm:"primaryKey"`
	ChannelID         int `gorm:"uniqueIndex"`
	Channel           *Channel
	ProgramScheduleID int `gorm:"index"`
	ProgramSchedule   *ProgramSchedule
	Anchor            *PlayoutAnchor          `gorm:"constraint:OnDelete:CASCADE"`
	Items             []PlayoutItem           `gorm:"constraint:OnDelete:CASCADE"`
	ScheduleAnchors   []PlayoutScheduleAnchor `gorm:"constraint:OnDelete:CASCADE"`
	Templates         []PlayoutTemplate       `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PlayoutTemplate activates an alternate program schedule on matching dates.
// Empty or complete day/month sets match every date.
type PlayoutTemplate struct {
	ID                int `gorm:"primaryKey"`
	PlayoutID         int `gorm:"index"`
	ProgramScheduleID int
	ProgramSchedule   *ProgramSchedule
	Index             int   `gorm:"column:template_index"`
	DaysOfWeek        []int `gorm:"serializer:json"`
	DaysOfMonth       []int `gorm:"serializer:json"`
	MonthsOfYear      []int `gorm:"serializer:json"`
	LimitToDateRange  bool
	StartMonth        int
	StartDay          int
	StartYear         *int
	EndMonth          int
	EndDay            int
	EndYear           *int
}

// PlayoutItem is one concrete scheduled instance on the timeline.
type PlayoutItem struct {
	ID          int       `gorm:"primaryKey"`
	PlayoutID   int       `gorm:"index"`
	MediaItemID int       `gorm:"index"`
	Start       time.Time `gorm:"index"`
	Finish      time.Time
	// GuideFinish extends the guide entry of the last item in a duration block.
	GuideFinish  *time.Time
	InPoint      time.Duration
	OutPoint     time.Duration
	ChapterTitle string
	FillerKind   FillerKind `gorm:"type:varchar(16);default:'none'"`
	CustomTitle  string
	CustomGroup  bool
	GuideGroup   int
}

// Duration is the scheduled length of the item.
func (p *PlayoutItem) Duration() time.Duration {
	return p.Finish.Sub(p.Start)
}

// PlayoutAnchor is the minimal state needed to resume building a playout.
type PlayoutAnchor struct {
	ID                 int `gorm:"primaryKey"`
	PlayoutID          int `gorm:"uniqueIndex"`
	NextScheduleItemID int
	NextStart          time.Time
	ScheduleItemsSeed  int32
	ScheduleItemsIndex int32
	MultipleRemaining  *int
	DurationFinish     *time.Time
	InFlood            bool
	NextGuideGroup     int
}

// PlayoutScheduleAnchor persists one enumerator position for a collection.
// Rows with an AnchorDate are daily checkpoints; the row without one is the
// continue anchor.
type PlayoutScheduleAnchor struct {
	ID                int            `gorm:"primaryKey"`
	PlayoutID         int            `gorm:"index"`
	ProgramScheduleID int            `gorm:"index"`
	CollectionKind    CollectionKind `gorm:"type:varchar(32)"`
	CollectionRefID   int
	AnchorDate        *time.Time
	Seed              int32
	Index             int32
}
