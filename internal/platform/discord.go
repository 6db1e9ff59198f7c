package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

const (
	memberAllow = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionVoiceConnect |
		discordgo.PermissionVoiceSpeak
	everyoneDeny = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionVoiceConnect
)

// Discord implements Connector over a discordgo session.
type Discord struct {
	session *discordgo.Session
}

func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{session: session}
}

func (d *Discord) BotUser() UserRef {
	u := d.session.State.User
	if u == nil {
		return UserRef{}
	}
	return UserRef{ID: u.ID, Name: u.Username, Bot: true}
}

func (d *Discord) GetChannel(ctx context.Context, channelID string) (*ChannelInfo, error) {
	c, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting channel %s: %w", channelID, err)
	}
	info := channelInfo(c)
	return &info, nil
}

func (d *Discord) ListChannels(ctx context.Context, serverID string) ([]ChannelInfo, error) {
	channels, err := d.session.GuildChannels(serverID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("listing channels of %s: %w", serverID, err)
	}

	result := make([]ChannelInfo, 0, len(channels))
	for _, c := range channels {
		result = append(result, channelInfo(c))
	}
	return result, nil
}

func (d *Discord) CreateGameChannel(ctx context.Context, serverID, name string, memberIDs []string) (*ChannelInfo, error) {
	overwrites := []*discordgo.PermissionOverwrite{{
		ID:   serverID, // @everyone shares the guild id
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: everyoneDeny,
	}}
	if bot := d.BotUser(); bot.ID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    bot.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow | discordgo.PermissionManageChannels,
		})
	}
	for _, id := range memberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow,
		})
	}

	c, err := d.session.GuildChannelCreateComplex(serverID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating game channel %q on %s: %w", name, serverID, err)
	}
	info := channelInfo(c)
	return &info, nil
}

func (d *Discord) CreatePrivateChannel(ctx context.Context, serverID, name, ownerID string) (*ChannelInfo, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   serverID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: everyoneDeny,
		},
		{
			ID:    ownerID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow | discordgo.PermissionManageChannels,
		},
	}
	if bot := d.BotUser(); bot.ID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    bot.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberAllow | discordgo.PermissionManageChannels,
		})
	}

	c, err := d.session.GuildChannelCreateComplex(serverID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating private channel %q on %s: %w", name, serverID, err)
	}
	info := channelInfo(c)
	return &info, nil
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := d.session.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting channel %s: %w", channelID, err)
	}
	return nil
}

func (d *Discord) GrantChannelAccess(ctx context.Context, channelID, userID string) error {
	err := d.session.ChannelPermissionSet(
		channelID,
		userID,
		discordgo.PermissionOverwriteTypeMember,
		memberAllow,
		0,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("granting %s access to %s: %w", userID, channelID, err)
	}
	return nil
}

func (d *Discord) ChannelAccess(ctx context.Context, channelID string) ([]MemberAccess, error) {
	c, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting channel %s: %w", channelID, err)
	}

	result := make([]MemberAccess, 0, len(c.PermissionOverwrites))
	for _, ow := range c.PermissionOverwrites {
		if ow.Type != discordgo.PermissionOverwriteTypeMember {
			continue
		}
		result = append(result, MemberAccess{
			UserID: ow.ID,
			Read:   ow.Allow&discordgo.PermissionViewChannel != 0,
			Send:   ow.Allow&discordgo.PermissionSendMessages != 0,
		})
	}
	return result, nil
}

func (d *Discord) SendMessage(ctx context.Context, channelID, text string, opts SendOptions) (*MessageInfo, error) {
	msg, err := d.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sending message to %s: %w", channelID, err)
	}

	if opts.Pin {
		if err := d.session.ChannelMessagePin(channelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
			logrus.Warnf("failed to pin message %s in %s: %v", msg.ID, channelID, err)
		}
	}
	if opts.DeleteAfter > 0 {
		time.AfterFunc(opts.DeleteAfter, func() {
			if err := d.session.ChannelMessageDelete(channelID, msg.ID); err != nil {
				logrus.Debugf("failed to delete message %s in %s: %v", msg.ID, channelID, err)
			}
		})
	}

	return &MessageInfo{
		ID:        msg.ID,
		ChannelID: channelID,
		AuthorID:  d.BotUser().ID,
		Content:   text,
	}, nil
}

func (d *Discord) WaitForReply(ctx context.Context, channelID, authorID string, timeout time.Duration) (*MessageInfo, error) {
	replies := make(chan *MessageInfo, 1)
	remove := d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.ChannelID != channelID || m.Author == nil || m.Author.ID != authorID {
			return
		}
		select {
		case replies <- &MessageInfo{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			AuthorID:  m.Author.ID,
			Content:   m.Content,
		}:
		default:
		}
	})
	defer remove()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-replies:
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting message %s in %s: %w", messageID, channelID, err)
	}
	return nil
}

func (d *Discord) Announce(ctx context.Context, serverID, text string) error {
	guild, err := d.session.Guild(serverID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("getting guild %s: %w", serverID, err)
	}

	target := guild.SystemChannelID
	if target == "" {
		channels, err := d.session.GuildChannels(serverID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("listing channels of %s: %w", serverID, err)
		}
		for _, c := range channels {
			if c.Type == discordgo.ChannelTypeGuildText {
				target = c.ID
				break
			}
		}
	}
	if target == "" {
		return fmt.Errorf("no announce channel on %s: %w", serverID, ErrNotFound)
	}

	_, err = d.SendMessage(ctx, target, text, SendOptions{})
	return err
}

func channelInfo(c *discordgo.Channel) ChannelInfo {
	created, _ := discordgo.SnowflakeTimestamp(c.ID)
	return ChannelInfo{
		ID:        c.ID,
		Name:      c.Name,
		ServerID:  c.GuildID,
		Voice:     c.Type == discordgo.ChannelTypeGuildVoice,
		Private:   c.Type == discordgo.ChannelTypeDM || c.Type == discordgo.ChannelTypeGroupDM,
		Default:   c.ID == c.GuildID, // legacy default channel shares the guild id
		CreatedAt: created,
	}
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return true
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownGuild:
			return true
		}
	}
	return false
}
