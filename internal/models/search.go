package models

import (
	"fmt"
	"time"
)

// GameSearch is a pending matchmaking request. At most one active row
// (not cancelled, not found, not expired) may exist per user/game pair;
// the engine enforces this with a query before insert so that historical
// expired and cancelled rows can coexist.
type GameSearch struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"index;not null"`
	GameID uint `gorm:"index;not null"`

	CreatedDate time.Time
	ExpireDate  time.Time

	Cancelled bool
	GameFound bool

	User User
	Game Game
}

func (s *GameSearch) String() string {
	return fmt.Sprintf("GameSearch(user=%d, game=%d)", s.UserID, s.GameID)
}

// Active reports whether the search still counts for matchmaking at now.
func (s *GameSearch) Active(now time.Time) bool {
	return !s.Cancelled && !s.GameFound && s.ExpireDate.After(now)
}
