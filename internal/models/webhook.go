/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// WebhookTarget receives build notifications. A nil ChannelID subscribes
// to every channel.
type WebhookTarget struct {
	ID        int    `gorm:"primaryKey" json:"id"`
	ChannelID *int   `gorm:"index" json:"channel_id,omitempty"`
	URL       string `gorm:"type:varchar(512);not null" json:"url"`
	Events    string `gorm:"type:varchar(255)" json:"events"` // comma-separated: playout.built,playout.build_failed
	Secret    string `gorm:"type:varchar(255)" json:"-"`      // for HMAC signing
	Active    bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookLog records one delivery attempt.
type WebhookLog struct {
	ID         int    `gorm:"primaryKey" json:"id"`
	TargetID   int    `gorm:"index" json:"target_id"`
	Event      string `gorm:"type:varchar(64)" json:"event"`
	PlayoutID  int    `gorm:"index" json:"playout_id"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
