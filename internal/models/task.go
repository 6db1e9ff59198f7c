package models

import "time"

type TaskType string

const (
	// TaskAddToGameChat grants a user access to an existing game channel.
	TaskAddToGameChat TaskType = "add_to_game_chat"
)

// Task is a deferred unit of work polled by the runner once its expire date
// passes. Unrecognized types are logged and completed, never fatal.
type Task struct {
	ID   uint     `gorm:"primaryKey"`
	Type TaskType `gorm:"not null"`

	UserID    uint `gorm:"not null"`
	ServerID  uint `gorm:"not null"`
	GameID    *uint
	ChannelID *uint

	CreatedDate time.Time
	ExpireDate  time.Time

	Cancelled bool
	Completed bool

	User    User
	Server  Server
	Game    *Game
	Channel *Channel
}
