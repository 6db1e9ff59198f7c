package models

import "fmt"

// Server is a community the bot is a member of.
type Server struct {
	ID       uint   `gorm:"primaryKey"`
	ServerID string `gorm:"uniqueIndex;not null"`
	Name     string
	OwnerID  *uint

	Owner *User `gorm:"foreignKey:OwnerID"`
}

func (s *Server) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.ServerID)
	}
	return s.ServerID
}
