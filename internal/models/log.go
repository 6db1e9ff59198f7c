package models

import "time"

// LogEntry is an append-only audit record. Token is the opaque reference
// code surfaced to users in error replies; Escalate marks entries that
// should reach a human through the notifier.
type LogEntry struct {
	ID       uint   `gorm:"primaryKey"`
	Token    string `gorm:"type:uuid;uniqueIndex;not null"`
	Message  string `gorm:"type:text"`
	Escalate bool

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}
