package storage

import (
	"context"
	"fmt"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Storage) GetOrCreateUser(ctx context.Context, userID, name string, bot bool) (*models.User, error) {
	toCreate := &models.User{
		UserID: userID,
		Name:   name,
		Bot:    bot,
	}

	var user models.User
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).
			Create(toCreate).
			Error; err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		if err := tx.Where("user_id = ?", userID).First(&user).Error; err != nil {
			return fmt.Errorf("getting user: %w", err)
		}

		if name != "" && user.Name != name {
			if err := tx.Model(&user).Update("name", name).Error; err != nil {
				return fmt.Errorf("updating user name: %w", err)
			}
			user.Name = name
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &user, nil
}

func (s *Storage) GetUserByPlatformID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user %s: %w", userID, err)
	}
	return &user, nil
}

func (s *Storage) GetOrCreateServer(ctx context.Context, serverID, name string) (*models.Server, error) {
	toCreate := &models.Server{
		ServerID: serverID,
		Name:     name,
	}

	var server models.Server
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "server_id"}},
				DoNothing: true,
			}).
			Create(toCreate).
			Error; err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		if err := tx.Where("server_id = ?", serverID).First(&server).Error; err != nil {
			return fmt.Errorf("getting server: %w", err)
		}

		if name != "" && server.Name != name {
			if err := tx.Model(&server).Update("name", name).Error; err != nil {
				return fmt.Errorf("updating server name: %w", err)
			}
			server.Name = name
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &server, nil
}

func (s *Storage) SetServerOwner(ctx context.Context, serverPK, ownerPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.Server{}).
		Where("id = ?", serverPK).
		Update("owner_id", ownerPK).
		Error; err != nil {
		return fmt.Errorf("setting server owner: %w", err)
	}
	return nil
}

func (s *Storage) ListServers(ctx context.Context) ([]*models.Server, error) {
	var servers []*models.Server
	if err := s.db.WithContext(ctx).Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	return servers, nil
}

func (s *Storage) GetOrCreateServerUser(ctx context.Context, userPK, serverPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ServerUser{UserID: userPK, ServerID: serverPK}).
		Error; err != nil {
		return fmt.Errorf("creating server user: %w", err)
	}
	return nil
}

func (s *Storage) RemoveServerUser(ctx context.Context, userPK, serverPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Where("user_id = ? AND server_id = ?", userPK, serverPK).
		Delete(&models.ServerUser{}).
		Error; err != nil {
		return fmt.Errorf("removing server user: %w", err)
	}
	return nil
}
