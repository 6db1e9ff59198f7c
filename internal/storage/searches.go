package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"gorm.io/gorm"
)

func activeSearchScope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cancelled = ? AND game_found = ? AND expire_date > ?", false, false, now)
	}
}

// CreateSearch inserts a fresh pending search. Duplicate suppression is the
// engine's job (check-then-act); the schema deliberately has no uniqueness
// constraint so expired and cancelled rows can pile up as history.
func (s *Storage) CreateSearch(ctx context.Context, userPK, gamePK uint, ttl time.Duration) (*models.GameSearch, error) {
	now := time.Now()
	search := &models.GameSearch{
		UserID:      userPK,
		GameID:      gamePK,
		CreatedDate: now,
		ExpireDate:  now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(search).Error; err != nil {
		return nil, fmt.Errorf("creating search: %w", err)
	}
	return search, nil
}

func (s *Storage) ActiveSearchForUserGame(ctx context.Context, userPK, gamePK uint, now time.Time) (*models.GameSearch, error) {
	var search models.GameSearch
	err := s.db.
		WithContext(ctx).
		Scopes(activeSearchScope(now)).
		Where("user_id = ? AND game_id = ?", userPK, gamePK).
		First(&search).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting active search: %w", err)
	}
	return &search, nil
}

func (s *Storage) ActiveSearchesForUser(ctx context.Context, userPK uint, now time.Time) ([]*models.GameSearch, error) {
	var searches []*models.GameSearch
	if err := s.db.
		WithContext(ctx).
		Scopes(activeSearchScope(now)).
		Where("user_id = ?", userPK).
		Preload("Game").
		Find(&searches).
		Error; err != nil {
		return nil, fmt.Errorf("listing active searches for user: %w", err)
	}
	return searches, nil
}

func (s *Storage) ActiveSearchesForGame(ctx context.Context, gamePK uint, now time.Time) ([]*models.GameSearch, error) {
	var searches []*models.GameSearch
	if err := s.db.
		WithContext(ctx).
		Scopes(activeSearchScope(now)).
		Where("game_id = ?", gamePK).
		Order("created_date ASC").
		Preload("User").
		Find(&searches).
		Error; err != nil {
		return nil, fmt.Errorf("listing active searches for game: %w", err)
	}
	return searches, nil
}

func (s *Storage) ListActiveSearches(ctx context.Context, now time.Time) ([]*models.GameSearch, error) {
	var searches []*models.GameSearch
	if err := s.db.
		WithContext(ctx).
		Scopes(activeSearchScope(now)).
		Preload("User").
		Preload("Game").
		Find(&searches).
		Error; err != nil {
		return nil, fmt.Errorf("listing active searches: %w", err)
	}
	return searches, nil
}

func (s *Storage) MarkSearchesFound(ctx context.Context, searchPKs []uint) error {
	if len(searchPKs) == 0 {
		return nil
	}
	if err := s.db.
		WithContext(ctx).
		Model(&models.GameSearch{}).
		Where("id IN ?", searchPKs).
		Update("game_found", true).
		Error; err != nil {
		return fmt.Errorf("marking searches found: %w", err)
	}
	return nil
}

// CancelSearches flips cancelled on the user's active searches, all of them
// or only those for the given games. Returns the number of rows flipped.
func (s *Storage) CancelSearches(ctx context.Context, userPK uint, gamePKs []uint, now time.Time) (int64, error) {
	q := s.db.
		WithContext(ctx).
		Model(&models.GameSearch{}).
		Scopes(activeSearchScope(now)).
		Where("user_id = ?", userPK)
	if len(gamePKs) > 0 {
		q = q.Where("game_id IN ?", gamePKs)
	}

	result := q.Update("cancelled", true)
	if result.Error != nil {
		return 0, fmt.Errorf("cancelling searches: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeActiveSearches mass-cancels every active search.
func (s *Storage) PurgeActiveSearches(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.
		WithContext(ctx).
		Model(&models.GameSearch{}).
		Scopes(activeSearchScope(now)).
		Update("cancelled", true)
	if result.Error != nil {
		return 0, fmt.Errorf("purging searches: %w", result.Error)
	}
	return result.RowsAffected, nil
}
