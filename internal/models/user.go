package models

import (
	"fmt"
	"time"
)

// User is a platform account observed by the bot. Users are created on first
// sighting (join, message, presence update) and never hard-deleted; removal
// from a server is tracked through ServerUser rows instead.
type User struct {
	ID     uint   `gorm:"primaryKey"`
	UserID string `gorm:"uniqueIndex;not null"`
	Name   string
	Bot    bool

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (u *User) String() string {
	if u.Name != "" {
		return fmt.Sprintf("%s (%s)", u.Name, u.UserID)
	}
	return u.UserID
}

// ServerUser records membership of a User on a Server. Deleted when the
// member leaves or is removed.
type ServerUser struct {
	ID       uint `gorm:"primaryKey"`
	UserID   uint `gorm:"uniqueIndex:idx_server_user;not null"`
	ServerID uint `gorm:"uniqueIndex:idx_server_user;not null"`

	User   User
	Server Server
}
