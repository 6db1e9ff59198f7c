// Package lifecycle creates ephemeral game channels, grants access to
// matched searchers, and retires channels past their expire date.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/sirupsen/logrus"
)

const privateWelcome = `Welcome to your private channel!
You can add and remove people from this channel as you please.
Currently you, myself and the server admins are able to see it.
Please make sure you still follow the rules of the %s server.`

type Manager struct {
	config  *config.Config
	storage *storage.Storage
	conn    platform.Connector
}

func New(cfg *config.Config, store *storage.Storage, conn platform.Connector) *Manager {
	return &Manager{
		config:  cfg,
		storage: store,
		conn:    conn,
	}
}

// CreateGameChannel creates a platform channel for the matched searches,
// persists the Channel row, marks the searches found and announces the
// deletion time. The row must exist before any search flips to found, so a
// failure mid-way still leaves an auditable trail.
func (m *Manager) CreateGameChannel(
	ctx context.Context,
	server *models.Server,
	game *models.Game,
	searches []*models.GameSearch,
) (*models.Channel, error) {
	if len(searches) > m.config.MatchSize {
		searches = searches[:m.config.MatchSize]
	}

	memberIDs := make([]string, 0, len(searches))
	for _, search := range searches {
		if search.User.UserID == "" {
			return nil, fmt.Errorf("search %d has no loaded user", search.ID)
		}
		memberIDs = append(memberIDs, search.User.UserID)
	}

	name := channelName(game.Name)
	info, err := m.conn.CreateGameChannel(ctx, server.ServerID, name, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("creating platform channel: %w", err)
	}

	expire := time.Now().Add(m.config.ChannelTTL)
	channel := &models.Channel{
		ChannelID:   info.ID,
		Name:        info.Name,
		ServerID:    server.ID,
		GameID:      &game.ID,
		CreatedDate: time.Now(),
		ExpireDate:  &expire,
		GameChannel: true,
	}
	if err := m.storage.CreateChannel(ctx, channel); err != nil {
		return nil, fmt.Errorf("persisting channel row: %w", err)
	}

	searchPKs := make([]uint, 0, len(searches))
	for _, search := range searches {
		searchPKs = append(searchPKs, search.ID)
	}
	if err := m.storage.MarkSearchesFound(ctx, searchPKs); err != nil {
		return nil, fmt.Errorf("marking searches found: %w", err)
	}

	announcement := fmt.Sprintf(
		"A group for **%s** has assembled! This channel will be deleted at %s.",
		game.Name,
		expire.UTC().Format("15:04 MST"),
	)
	if _, err := m.conn.SendMessage(ctx, info.ID, announcement, platform.SendOptions{Pin: true}); err != nil {
		logrus.Warnf("failed to announce in game channel %s: %v", info.ID, err)
	}

	return channel, nil
}

// CreatePrivateChannel returns the user's existing live private channel or
// creates a fresh one. A stored row whose platform channel is gone is
// soft-deleted and replaced.
func (m *Manager) CreatePrivateChannel(
	ctx context.Context,
	server *models.Server,
	user *models.User,
) (channel *models.Channel, reused bool, err error) {
	existing, err := m.storage.PrivateChannelFor(ctx, user.ID, server.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if _, err := m.conn.GetChannel(ctx, existing.ChannelID); err == nil {
			return existing, true, nil
		} else if !errors.Is(err, platform.ErrNotFound) {
			return nil, false, fmt.Errorf("checking existing private channel: %w", err)
		}

		// Row survived the platform channel. Retire it and start over.
		logrus.Infof("private channel %s of %s is gone from the platform, replacing", existing.ChannelID, user)
		if err := m.storage.MarkChannelDeleted(ctx, existing.ID); err != nil {
			return nil, false, err
		}
	}

	info, err := m.conn.CreatePrivateChannel(ctx, server.ServerID, channelName(user.Name), user.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("creating platform channel: %w", err)
	}

	channel = &models.Channel{
		ChannelID:   info.ID,
		Name:        info.Name,
		ServerID:    server.ID,
		UserID:      &user.ID,
		CreatedDate: time.Now(),
		Private:     true,
	}
	if err := m.storage.CreateChannel(ctx, channel); err != nil {
		return nil, false, fmt.Errorf("persisting channel row: %w", err)
	}

	welcome := fmt.Sprintf(privateWelcome, server.Name)
	if _, err := m.conn.SendMessage(ctx, info.ID, welcome, platform.SendOptions{Pin: true}); err != nil {
		logrus.Warnf("failed to send welcome to private channel %s: %v", info.ID, err)
	}

	return channel, false, nil
}

// PruneExpired retires every game channel whose expire date has passed.
// The bookkeeping flip is unconditional: a platform deletion that fails or
// finds the channel already gone is logged, never a reason to keep the row
// live, because a stuck row would block the game from getting a fresh
// channel. Deletions are paced to avoid bursting the platform.
func (m *Manager) PruneExpired(ctx context.Context) error {
	channels, err := m.storage.ExpiredGameChannels(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing expired channels: %w", err)
	}
	if len(channels) == 0 {
		return nil
	}

	logrus.Infof("pruning %d expired game channels", len(channels))
	for i, channel := range channels {
		note := fmt.Sprintf("Deleting channel %s\n", channel)

		if _, err := m.conn.GetChannel(ctx, channel.ChannelID); errors.Is(err, platform.ErrNotFound) {
			note += "- Already gone from the platform\n"
		} else if err != nil {
			note += fmt.Sprintf("- Failed to fetch: %v\n", err)
		} else if err := m.conn.DeleteChannel(ctx, channel.ChannelID); err != nil {
			note += fmt.Sprintf("- Failed to delete: %v\n", err)
		} else {
			note += "- Success\n"
		}

		if err := m.storage.MarkChannelDeleted(ctx, channel.ID); err != nil {
			logrus.Errorf("failed to mark channel %s deleted: %v", channel, err)
		}
		if _, err := m.storage.AddLog(ctx, note, false); err != nil {
			logrus.Errorf("failed to log channel prune: %v", err)
		}

		if i < len(channels)-1 {
			if err := sleepCtx(ctx, m.config.PrunePause); err != nil {
				return err
			}
		}
	}

	return nil
}

// WarnExpiring notifies game channels nearing their expire date, once.
func (m *Manager) WarnExpiring(ctx context.Context) error {
	deadline := time.Now().Add(m.config.WarnBeforeExpiry)
	channels, err := m.storage.GameChannelsExpiringBefore(ctx, deadline)
	if err != nil {
		return fmt.Errorf("listing expiring channels: %w", err)
	}

	for _, channel := range channels {
		if channel.ExpireDate == nil {
			continue
		}
		text := fmt.Sprintf("This channel will be deleted at %s.", channel.ExpireDate.UTC().Format("15:04 MST"))
		_, err := m.conn.SendMessage(ctx, channel.ChannelID, text, platform.SendOptions{})
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			logrus.Warnf("failed to warn channel %s: %v", channel, err)
			continue
		}
		if err := m.storage.MarkChannelWarned(ctx, channel.ID); err != nil {
			logrus.Errorf("failed to mark channel %s warned: %v", channel, err)
		}
	}

	return nil
}

// ReconcileChannelUsers re-derives ChannelUser rows from the live
// permission overwrites of every text channel on the server. Permission
// edits, not join events, are how access is actually granted, so this full
// diff is the only maintenance the associations get.
func (m *Manager) ReconcileChannelUsers(ctx context.Context, server *models.Server) error {
	live, err := m.conn.ListChannels(ctx, server.ServerID)
	if err != nil {
		return fmt.Errorf("listing live channels: %w", err)
	}

	seen := make(map[string]bool, len(live))
	for _, info := range live {
		seen[info.ID] = true
		if info.Voice || info.Private || info.Default {
			continue
		}

		channel, err := m.storage.GetOrCreateChannel(ctx, info.ID, server.ID, info.Name)
		if err != nil {
			logrus.Errorf("failed to get or create channel %s: %v", info.ID, err)
			continue
		}
		// Owner-managed channels look like ordinary text channels on the
		// platform; the stored row is what knows they are private.
		if channel.Private {
			continue
		}

		access, err := m.conn.ChannelAccess(ctx, info.ID)
		if err != nil {
			logrus.Warnf("failed to snapshot access of channel %s: %v", info.ID, err)
			continue
		}

		current := make(map[string]platform.MemberAccess, len(access))
		for _, member := range access {
			current[member.UserID] = member
			if member.Read && member.Send {
				user, err := m.storage.GetOrCreateUser(ctx, member.UserID, "", false)
				if err != nil {
					logrus.Errorf("failed to get or create user %s: %v", member.UserID, err)
					continue
				}
				if err := m.storage.GetOrCreateChannelUser(ctx, channel.ID, user.ID); err != nil {
					logrus.Errorf("failed to associate user %s with channel %s: %v", member.UserID, info.ID, err)
				}
			}
		}

		stored, err := m.storage.ChannelUsers(ctx, channel.ID)
		if err != nil {
			logrus.Errorf("failed to list channel users of %s: %v", info.ID, err)
			continue
		}
		for _, cu := range stored {
			member, ok := current[cu.User.UserID]
			if ok && (member.Read || member.Send) {
				continue
			}
			if err := m.storage.RemoveChannelUser(ctx, channel.ID, cu.UserID); err != nil {
				logrus.Errorf("failed to remove channel user %d from %s: %v", cu.UserID, info.ID, err)
			}
		}
	}

	// Stored rows with no live counterpart drifted: the channel went away
	// without the bot seeing it.
	stored, err := m.storage.ChannelsForServer(ctx, server.ID)
	if err != nil {
		return fmt.Errorf("listing stored channels: %w", err)
	}
	for _, channel := range stored {
		if !seen[channel.ChannelID] {
			logrus.Infof("channel %s is gone from the platform, marking deleted", channel)
			if err := m.storage.MarkChannelDeleted(ctx, channel.ID); err != nil {
				logrus.Errorf("failed to mark channel %s deleted: %v", channel, err)
			}
		}
	}

	return nil
}

func channelName(base string) string {
	name := strings.ToLower(strings.TrimSpace(base))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '_', r == '-':
			return '-'
		default:
			return -1
		}
	}, name)
	name = strings.Trim(name, "-")
	if name == "" {
		name = "channel"
	}
	return name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
