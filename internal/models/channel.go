package models

import (
	"fmt"
	"time"
)

// Channel is a text or voice space the bot tracks. Game channels always
// carry an expire date and no owning user; private channels carry an owner
// and never expire. Rows are soft-deleted only: once pruning succeeds (or
// the platform reports the channel already gone) Deleted flips to true and
// the row stays as an audit trail.
type Channel struct {
	ID        uint   `gorm:"primaryKey"`
	ChannelID string `gorm:"uniqueIndex;not null"`
	Name      string
	ServerID  uint `gorm:"not null"`
	UserID    *uint
	GameID    *uint

	CreatedDate time.Time
	ExpireDate  *time.Time

	Private     bool
	GameChannel bool
	Deleted     bool
	WarningSent bool

	Server Server
	User   *User
	Game   *Game
}

func (c *Channel) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ChannelID)
}

// ChannelUser records that a User has read+send access to a Channel.
// Maintained by the reconciliation pass from live permission overwrites,
// not by membership events.
type ChannelUser struct {
	ID        uint `gorm:"primaryKey"`
	ChannelID uint `gorm:"uniqueIndex:idx_channel_user;not null"`
	UserID    uint `gorm:"uniqueIndex:idx_channel_user;not null"`

	Channel Channel
	User    User
}
