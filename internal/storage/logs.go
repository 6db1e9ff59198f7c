package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddLog appends an audit record and returns its token, the opaque
// reference code surfaced to users.
func (s *Storage) AddLog(ctx context.Context, message string, escalate bool) (string, error) {
	entry := &models.LogEntry{
		Token:    uuid.New().String(),
		Message:  message,
		Escalate: escalate,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return "", fmt.Errorf("creating log entry: %w", err)
	}
	return entry.Token, nil
}

func (s *Storage) GetLogByToken(ctx context.Context, token string) (*models.LogEntry, error) {
	var entry models.LogEntry
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting log entry %s: %w", token, err)
	}
	return &entry, nil
}

// AddMessage records an observed platform message. Duplicate deliveries of
// the same message id are ignored.
func (s *Storage) AddMessage(ctx context.Context, msg *models.Message) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(msg).
		Error; err != nil {
		return fmt.Errorf("creating message: %w", err)
	}
	return nil
}
