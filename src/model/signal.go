package model

import (
	"time"
)

const (
	SignalStatusPending = "pending"
	SignalStatusDone    = "done"
	SignalStatusError   = "error"
)

const (
	ParseTierPattern  = "pattern"
	ParseTierFallback = "fallback"
)

// Signal is one ingested channel message together with its parse outcome.
// The (ChannelID, MessageID) pair is the dedup key; re-deliveries collide on
// the unique index instead of producing a second row.
type Signal struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChannelID   string    `gorm:"size:60;not null;uniqueIndex:idx_signals_channel_message" json:"channel_id"`
	MessageID   string    `gorm:"size:60;not null;uniqueIndex:idx_signals_channel_message" json:"message_id"`
	ChannelName string    `gorm:"size:100" json:"channel_name"`
	RawText     string    `gorm:"type:text" json:"raw_text"`
	ReceivedAt  time.Time `json:"received_at"`

	// Intent is null when the message parsed to nothing usable.
	Intent    *Intent `gorm:"serializer:json" json:"intent,omitempty"`
	ParseTier string  `gorm:"size:20" json:"parse_tier,omitempty"`

	Status       string     `gorm:"size:20;not null;default:pending;index" json:"status"`
	RejectReason string     `gorm:"size:60" json:"reject_reason,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (Signal) TableName() string {
	return "signals"
}

// Actionable reports whether the signal still needs resolution and
// submission. Done and errored rows are never picked up again.
func (s *Signal) Actionable() bool {
	return s.Intent != nil && s.Intent.HasMinimum()
}
