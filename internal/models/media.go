/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// MediaKind enumerates the content types the scheduler understands.
type MediaKind string

const (
	MediaKindMovie        MediaKind = "movie"
	MediaKindEpisode      MediaKind = "episode"
	MediaKindMusicVideo   MediaKind = "music_video"
	MediaKindSong         MediaKind = "song"
	MediaKindOtherVideo   MediaKind = "other_video"
	MediaKindRemoteStream MediaKind = "remote_stream"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaKindMovie, MediaKindEpisode, MediaKindMusicVideo, MediaKindSong,
		MediaKindOtherVideo, MediaKindRemoteStream:
		return true
	}
	return false
}

// MediaState tracks whether the underlying file is playable.
type MediaState string

const (
	MediaStateNormal       MediaState = "normal"
	MediaStateFileNotFound MediaState = "file_not_found"
	MediaStateUnavailable  MediaState = "unavailable"
)

// MediaItem is a playable content unit supplied by ingestion.
type MediaItem struct {
	ID            int       `gorm:"primaryKey" json:"id" yaml:"id"`
	Kind          MediaKind `gorm:"type:varchar(32);index" json:"kind" yaml:"kind"`
	Title         string    `gorm:"index" json:"title" yaml:"title"`
	ShowID        int       `gorm:"index" json:"show_id,omitempty" yaml:"show_id"`
	SeasonNumber  int       `json:"season_number,omitempty" yaml:"season"`
	EpisodeNumber int       `json:"episode_number,omitempty" yaml:"episode"`
	ArtistID      int       `gorm:"index" json:"artist_id,omitempty" yaml:"artist_id"`
	Album         string    `json:"album,omitempty" yaml:"album"`
	Track         string    `json:"track,omitempty" yaml:"track"`
	// SongDate is the free-form date tag carried by songs.
	SongDate    string         `json:"song_date,omitempty" yaml:"song_date"`
	ReleaseDate *time.Time     `json:"release_date,omitempty" yaml:"release_date"`
	State       MediaState     `gorm:"type:varchar(32);default:'normal'" json:"state" yaml:"state"`
	Versions    []MediaVersion `gorm:"constraint:OnDelete:CASCADE" json:"versions" yaml:"versions"`
	CreatedAt   time.Time      `json:"-" yaml:"-"`
	UpdatedAt   time.Time      `json:"-" yaml:"-"`
}

// HeadVersion returns the first version of the item.
func (m *MediaItem) HeadVersion() (MediaVersion, bool) {
	if len(m.Versions) == 0 {
		return MediaVersion{}, false
	}
	return m.Versions[0], true
}

// Duration is the head version duration, or zero when the item has no versions.
func (m *MediaItem) Duration() time.Duration {
	v, ok := m.HeadVersion()
	if !ok {
		return 0
	}
	return v.Duration
}

// ParentKey identifies the show or artist an item belongs to.
type ParentKey struct {
	Kind string
	ID   int
}

// Parent returns the grouping parent of the item. Items without a show or
// artist are their own parent.
func (m *MediaItem) Parent() ParentKey {
	switch m.Kind {
	case MediaKindEpisode:
		if m.ShowID != 0 {
			return ParentKey{Kind: "show", ID: m.ShowID}
		}
	case MediaKindSong, MediaKindMusicVideo:
		if m.ArtistID != 0 {
			return ParentKey{Kind: "artist", ID: m.ArtistID}
		}
	}
	return ParentKey{Kind: "item", ID: m.ID}
}

// Missing reports whether the media file is known to be unplayable.
func (m *MediaItem) Missing() bool {
	return m.State == MediaStateFileNotFound || m.State == MediaStateUnavailable
}

// MediaVersion is one encoding of a media item.
type MediaVersion struct {
	ID          int            `gorm:"primaryKey" json:"id" yaml:"-"`
	MediaItemID int            `gorm:"index" json:"media_item_id" yaml:"-"`
	Duration    time.Duration  `json:"duration" yaml:"duration"`
	Chapters    []MediaChapter `gorm:"constraint:OnDelete:CASCADE" json:"chapters,omitempty" yaml:"chapters"`
}

// MediaChapter marks a chapter inside a media version.
type MediaChapter struct {
	ID             int           `gorm:"primaryKey" json:"id" yaml:"-"`
	MediaVersionID int           `gorm:"index" json:"media_version_id" yaml:"-"`
	ChapterID      int           `json:"chapter_id" yaml:"chapter_id"`
	StartTime      time.Duration `json:"start_time" yaml:"start"`
	EndTime        time.Duration `json:"end_time" yaml:"end"`
	Title          string        `json:"title,omitempty" yaml:"title"`
}
