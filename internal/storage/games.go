package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RankedGame is a Game with its popularity (count of playing associations).
type RankedGame struct {
	ID          uint
	Name        string
	URL         string
	PlayerCount int64
}

// GetOrCreateGame matches by exact name first. Game names are not unique by
// schema, so this is best-effort dedup of presence-observed games.
func (s *Storage) GetOrCreateGame(ctx context.Context, name, url string) (*models.Game, error) {
	name = strings.TrimSpace(name)

	var game models.Game
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&game).Error
	if err == nil {
		return &game, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("getting game %q: %w", name, err)
	}

	game = models.Game{Name: name, URL: url}
	if err := s.db.WithContext(ctx).Create(&game).Error; err != nil {
		return nil, fmt.Errorf("creating game %q: %w", name, err)
	}
	return &game, nil
}

func (s *Storage) GetGameByID(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := s.db.WithContext(ctx).First(&game, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting game %d: %w", id, err)
	}
	return &game, nil
}

// ListRankedGames returns games ordered by descending popularity. A
// non-empty nameLike filters by case-insensitive substring; floor excludes
// games with fewer playing associations.
func (s *Storage) ListRankedGames(ctx context.Context, nameLike string, floor int) ([]RankedGame, error) {
	q := s.db.
		WithContext(ctx).
		Model(&models.Game{}).
		Select("games.id, games.name, games.url, count(game_users.id) as player_count").
		Joins("LEFT JOIN game_users ON game_users.game_id = games.id").
		Group("games.id")

	if strings.TrimSpace(nameLike) != "" {
		q = q.Where("LOWER(games.name) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(nameLike))+"%")
	}
	if floor > 0 {
		q = q.Having("count(game_users.id) >= ?", floor)
	}

	var result []RankedGame
	if err := q.Order("player_count DESC, games.id ASC").Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("listing ranked games: %w", err)
	}
	return result, nil
}

func (s *Storage) GetOrCreateGameUser(ctx context.Context, userPK, gamePK uint) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GameUser{UserID: userPK, GameID: gamePK}).
		Error; err != nil {
		return fmt.Errorf("creating game user: %w", err)
	}
	return nil
}

// UsersForGame lists users with a playing association for the game.
func (s *Storage) UsersForGame(ctx context.Context, gamePK uint) ([]*models.User, error) {
	var users []*models.User
	if err := s.db.
		WithContext(ctx).
		Model(&models.User{}).
		Joins("JOIN game_users ON game_users.user_id = users.id").
		Where("game_users.game_id = ?", gamePK).
		Find(&users).
		Error; err != nil {
		return nil, fmt.Errorf("listing users for game %d: %w", gamePK, err)
	}
	return users, nil
}
