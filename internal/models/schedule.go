/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Channel is a virtual broadcast channel.
type Channel struct {
	ID        int    `gorm:"primaryKey"`
	Number    string `gorm:"uniqueIndex;type:varchar(16)"`
	Name      string
	Timezone  string `gorm:"type:varchar(64)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartType controls how a schedule item chooses its start time.
type StartType string

const (
	StartTypeFixed   StartType = "fixed"
	StartTypeDynamic StartType = "dynamic"
)

// PlayoutMode selects the scheduling state machine for an item.
type PlayoutMode string

const (
	PlayoutModeOne      PlayoutMode = "one"
	PlayoutModeMultiple PlayoutMode = "multiple"
	PlayoutModeDuration PlayoutMode = "duration"
	PlayoutModeFlood    PlayoutMode = "flood"
)

// MultipleMode decides what a zero count means in multiple mode.
type MultipleMode string

const (
	MultipleModeCount                 MultipleMode = "count"
	MultipleModeCollectionSize        MultipleMode = "collection_size"
	MultipleModePlaylistItemSize      MultipleMode = "playlist_item_size"
	MultipleModeMultiEpisodeGroupSize MultipleMode = "multi_episode_group_size"
)

// TailMode decides what happens after a duration block runs out of content.
type TailMode string

const (
	TailModeNone    TailMode = "none"
	TailModeOffline TailMode = "offline"
	TailModeFiller  TailMode = "filler"
)

// GuideMode controls whether scheduled content shows in the program guide.
type GuideMode string

const (
	GuideModeNormal GuideMode = "normal"
	GuideModeFiller GuideMode = "filler"
)

// ProgramSchedule is an ordered list of scheduling rules.
type ProgramSchedule struct {
	ID                            int    `gorm:"primaryKey"`
	Name                          string `gorm:"uniqueIndex"`
	ShuffleScheduleItems          bool
	KeepMultiPartEpisodesTogether bool
	TreatCollectionsAsShows       bool
	RandomStartPoint              bool
	Items                         []ProgramScheduleItem `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// ProgramScheduleItem is one rule of a program schedule.
type ProgramScheduleItem struct {
	ID                int       `gorm:"primaryKey"`
	ProgramScheduleID int       `gorm:"index"`
	Index             int       `gorm:"column:item_index"`
	StartType         StartType `gorm:"type:varchar(16);default:'dynamic'"`
	StartTime         *time.Duration
	PlayoutMode       PlayoutMode `gorm:"type:varchar(16)"`

	MultipleCount   int
	MultipleMode    MultipleMode `gorm:"type:varchar(32)"`
	PlayoutDuration time.Duration
	TailMode        TailMode  `gorm:"type:varchar(16)"`
	GuideMode       GuideMode `gorm:"type:varchar(16);default:'normal'"`

	CollectionKind  CollectionKind `gorm:"type:varchar(32)"`
	CollectionRefID int
	PlaybackOrder   PlaybackOrder `gorm:"type:varchar(32)"`
	CustomTitle     string

	PreRollFillerID  *int
	PreRollFiller    *FillerPreset `gorm:"foreignKey:PreRollFillerID"`
	MidRollFillerID  *int
	MidRollFiller    *FillerPreset `gorm:"foreignKey:MidRollFillerID"`
	PostRollFillerID *int
	PostRollFiller   *FillerPreset `gorm:"foreignKey:PostRollFillerID"`
	TailFillerID     *int
	TailFiller       *FillerPreset `gorm:"foreignKey:TailFillerID"`
	FallbackFillerID *int
	FallbackFiller   *FillerPreset `gorm:"foreignKey:FallbackFillerID"`
}

// FillerKind tags filler presets and the playout items they produce.
type FillerKind string

const (
	FillerKindNone      FillerKind = "none"
	FillerKindPreRoll   FillerKind = "pre_roll"
	FillerKindMidRoll   FillerKind = "mid_roll"
	FillerKindPostRoll  FillerKind = "post_roll"
	FillerKindTail      FillerKind = "tail"
	FillerKindFallback  FillerKind = "fallback"
	FillerKindGuideMode FillerKind = "guide_mode"
)

// FillerMode selects how much filler a preset inserts.
type FillerMode string

const (
	FillerModeNone     FillerMode = "none"
	FillerModeDuration FillerMode = "duration"
	FillerModeCount    FillerMode = "count"
	FillerModePad      FillerMode = "pad"
)

// FillerPreset describes filler drawn from a collection.
type FillerPreset struct {
	ID         int        `gorm:"primaryKey"`
	Name       string     `gorm:"uniqueIndex"`
	FillerKind FillerKind `gorm:"type:varchar(16)"`
	FillerMode FillerMode `gorm:"type:varchar(16)"`
	Duration   *time.Duration
	Count      *int
	// CountExpression overrides Count when set; see the expression package.
	CountExpression    string
	PadToNearestMinute *int
	// ChapterExpression limits mid-roll to matching chapter boundaries.
	ChapterExpression string
	CollectionKind    CollectionKind `gorm:"type:varchar(32)"`
	CollectionRefID   int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
