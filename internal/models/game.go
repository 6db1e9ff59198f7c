package models

// Game names are not unique: lookups are fuzzy and the numeric primary key
// is what users reference in listings (`games 12`).
type Game struct {
	ID   uint `gorm:"primaryKey"`
	Name string
	URL  string
}

// GameUser associates a User with a Game they have been seen playing.
// The association count is the popularity ranking source.
type GameUser struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"uniqueIndex:idx_game_user;not null"`
	GameID uint `gorm:"uniqueIndex:idx_game_user;not null"`

	User User
	Game Game
}
