package models

import "time"

// Message is the message log: one row per observed platform message.
// Write-only from the bot's perspective.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID string `gorm:"uniqueIndex;not null"`
	ChannelID string `gorm:"index;not null"`
	ServerID  string `gorm:"index"`
	UserID    string `gorm:"index;not null"`
	Content   string `gorm:"type:text"`
	Timestamp time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
