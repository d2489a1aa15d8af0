/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// CollectionKind identifies the kind of content source a schedule item draws from.
type CollectionKind string

const (
	CollectionKindCollection      CollectionKind = "collection"
	CollectionKindMultiCollection CollectionKind = "multi_collection"
	CollectionKindSmartCollection CollectionKind = "smart_collection"
	CollectionKindPlaylist        CollectionKind = "playlist"
	CollectionKindShow            CollectionKind = "show"
	CollectionKindArtist          CollectionKind = "artist"
	CollectionKindMediaItem       CollectionKind = "media_item"
)

// PlaybackOrder selects the enumeration strategy for a collection.
type PlaybackOrder string

const (
	PlaybackOrderChronological  PlaybackOrder = "chronological"
	PlaybackOrderRandom         PlaybackOrder = "random"
	PlaybackOrderShuffle        PlaybackOrder = "shuffle"
	PlaybackOrderShuffleInOrder PlaybackOrder = "shuffle_in_order"
	PlaybackOrderSeasonEpisode  PlaybackOrder = "season_episode"
	PlaybackOrderRandomRotation PlaybackOrder = "random_rotation"
	PlaybackOrderLatest         PlaybackOrder = "latest"
)

// Collection is a manually curated list of media items.
type Collection struct {
	ID                     int              `gorm:"primaryKey"`
	Name                   string           `gorm:"uniqueIndex"`
	UseCustomPlaybackOrder bool             `gorm:"not null;default:false"`
	Items                  []CollectionItem `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CollectionItem links a media item into a collection.
type CollectionItem struct {
	CollectionID int `gorm:"primaryKey"`
	MediaItemID  int `gorm:"primaryKey"`
	// CustomIndex orders the item when the collection uses a custom playback order.
	CustomIndex int
}

// MultiCollection combines collections, optionally keeping each together.
type MultiCollection struct {
	ID        int                   `gorm:"primaryKey"`
	Name      string                `gorm:"uniqueIndex"`
	Items     []MultiCollectionItem `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MultiCollectionItem references a collection or smart collection inside a multi collection.
type MultiCollectionItem struct {
	MultiCollectionID int            `gorm:"primaryKey"`
	CollectionKind    CollectionKind `gorm:"primaryKey;type:varchar(32)"`
	CollectionRefID   int            `gorm:"primaryKey"`
	ScheduleAsGroup   bool
	PlaybackOrder     PlaybackOrder `gorm:"type:varchar(32)"`
}

// SmartCollection is a saved title query. Matching is a case-insensitive
// LIKE against media titles.
type SmartCollection struct {
	ID        int    `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Query     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Playlist plays its entries in order, each entry drawing from its own source.
type Playlist struct {
	ID           int            `gorm:"primaryKey"`
	Name         string         `gorm:"uniqueIndex"`
	ShuffleItems bool           `gorm:"not null;default:false"`
	Items        []PlaylistItem `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlaylistItem is one entry of a playlist.
type PlaylistItem struct {
	ID                    int            `gorm:"primaryKey"`
	PlaylistID            int            `gorm:"index"`
	Index                 int            `gorm:"column:item_index"`
	CollectionKind        CollectionKind `gorm:"type:varchar(32)"`
	CollectionRefID       int
	PlaybackOrder         PlaybackOrder `gorm:"type:varchar(32)"`
	PlayAll               bool
	IncludeInProgramGuide bool `gorm:"not null;default:true"`
}
