package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Storage) CreateChannel(ctx context.Context, channel *models.Channel) error {
	if err := s.db.WithContext(ctx).Create(channel).Error; err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

func (s *Storage) GetOrCreateChannel(ctx context.Context, channelID string, serverPK uint, name string) (*models.Channel, error) {
	toCreate := &models.Channel{
		ChannelID:   channelID,
		ServerID:    serverPK,
		Name:        name,
		CreatedDate: time.Now(),
	}

	var channel models.Channel
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "channel_id"}},
				DoNothing: true,
			}).
			Create(toCreate).
			Error; err != nil {
			return fmt.Errorf("creating channel: %w", err)
		}

		if err := tx.Where("channel_id = ?", channelID).First(&channel).Error; err != nil {
			return fmt.Errorf("getting channel: %w", err)
		}

		if name != "" && channel.Name != name {
			if err := tx.Model(&channel).Update("name", name).Error; err != nil {
				return fmt.Errorf("updating channel name: %w", err)
			}
			channel.Name = name
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("in tx: %w", err)
	}

	return &channel, nil
}

func (s *Storage) GetChannelByPlatformID(ctx context.Context, channelID string) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&channel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting channel %s: %w", channelID, err)
	}
	return &channel, nil
}

// ExpiredGameChannels selects game channels due for pruning. Private and
// non-game channels are never returned, whatever their expire date.
func (s *Storage) ExpiredGameChannels(ctx context.Context, now time.Time) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := s.db.
		WithContext(ctx).
		Where("game_channel = ? AND private = ? AND deleted = ? AND expire_date <= ?", true, false, false, now).
		Preload("Server").
		Find(&channels).
		Error; err != nil {
		return nil, fmt.Errorf("listing expired game channels: %w", err)
	}
	return channels, nil
}

// GameChannelsExpiringBefore selects live game channels that will expire
// before the deadline and have not been warned yet.
func (s *Storage) GameChannelsExpiringBefore(ctx context.Context, deadline time.Time) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := s.db.
		WithContext(ctx).
		Where("game_channel = ? AND deleted = ? AND warning_sent = ? AND expire_date > ? AND expire_date <= ?",
			true, false, false, time.Now(), deadline).
		Find(&channels).
		Error; err != nil {
		return nil, fmt.Errorf("listing expiring game channels: %w", err)
	}
	return channels, nil
}

func (s *Storage) MarkChannelDeleted(ctx context.Context, channelPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelPK).
		Update("deleted", true).
		Error; err != nil {
		return fmt.Errorf("marking channel deleted: %w", err)
	}
	return nil
}

func (s *Storage) MarkChannelWarned(ctx context.Context, channelPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", channelPK).
		Update("warning_sent", true).
		Error; err != nil {
		return fmt.Errorf("marking channel warned: %w", err)
	}
	return nil
}

// LiveGameChannel returns the non-expired game channel for a game on a
// server, or nil.
func (s *Storage) LiveGameChannel(ctx context.Context, gamePK, serverPK uint, now time.Time) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.
		WithContext(ctx).
		Where("game_channel = ? AND deleted = ? AND game_id = ? AND server_id = ? AND expire_date > ?",
			true, false, gamePK, serverPK, now).
		First(&channel).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting live game channel: %w", err)
	}
	return &channel, nil
}

// PrivateChannelFor returns the user's live private channel on a server,
// or nil.
func (s *Storage) PrivateChannelFor(ctx context.Context, userPK, serverPK uint) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.
		WithContext(ctx).
		Where("private = ? AND deleted = ? AND user_id = ? AND server_id = ?", true, false, userPK, serverPK).
		First(&channel).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting private channel: %w", err)
	}
	return &channel, nil
}

func (s *Storage) ListChannels(ctx context.Context, includeDeleted bool) ([]*models.Channel, error) {
	q := s.db.WithContext(ctx).Preload("Server").Preload("Game")
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	var channels []*models.Channel
	if err := q.Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return channels, nil
}

func (s *Storage) ChannelsForServer(ctx context.Context, serverPK uint) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := s.db.
		WithContext(ctx).
		Where("server_id = ? AND deleted = ?", serverPK, false).
		Find(&channels).
		Error; err != nil {
		return nil, fmt.Errorf("listing channels for server: %w", err)
	}
	return channels, nil
}

func (s *Storage) GetOrCreateChannelUser(ctx context.Context, channelPK, userPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ChannelUser{ChannelID: channelPK, UserID: userPK}).
		Error; err != nil {
		return fmt.Errorf("creating channel user: %w", err)
	}
	return nil
}

func (s *Storage) RemoveChannelUser(ctx context.Context, channelPK, userPK uint) error {
	if err := s.db.
		WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelPK, userPK).
		Delete(&models.ChannelUser{}).
		Error; err != nil {
		return fmt.Errorf("removing channel user: %w", err)
	}
	return nil
}

func (s *Storage) ChannelUsers(ctx context.Context, channelPK uint) ([]*models.ChannelUser, error) {
	var users []*models.ChannelUser
	if err := s.db.
		WithContext(ctx).
		Where("channel_id = ?", channelPK).
		Preload("User").
		Find(&users).
		Error; err != nil {
		return nil, fmt.Errorf("listing channel users: %w", err)
	}
	return users, nil
}

func (s *Storage) ChannelUserCount(ctx context.Context, channelPK uint) (int64, error) {
	var count int64
	if err := s.db.
		WithContext(ctx).
		Model(&models.ChannelUser{}).
		Where("channel_id = ?", channelPK).
		Count(&count).
		Error; err != nil {
		return 0, fmt.Errorf("counting channel users: %w", err)
	}
	return count, nil
}
