package storage

import (
	"context"
	"fmt"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"gorm.io/gorm"
)

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Server{},
		&models.ServerUser{},
		&models.Game{},
		&models.GameUser{},
		&models.Channel{},
		&models.ChannelUser{},
		&models.GameSearch{},
		&models.Task{},
		&models.LogEntry{},
		&models.Message{},
	)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
