// Package bot translates platform events into engine and lifecycle calls.
// The connector invokes the exported On* methods; everything else is
// internal dispatch.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/engine"
	"github.com/bsquidwrd/Squid-Bot/internal/lifecycle"
	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/bsquidwrd/Squid-Bot/internal/notify"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	config    *config.Config
	storage   *storage.Storage
	engine    *engine.Engine
	lifecycle *lifecycle.Manager
	conn      platform.Connector
	notifier  *notify.Notifier
}

func NewHandler(
	cfg *config.Config,
	store *storage.Storage,
	eng *engine.Engine,
	manager *lifecycle.Manager,
	conn platform.Connector,
	notifier *notify.Notifier,
) *Handler {
	return &Handler{
		config:    cfg,
		storage:   store,
		engine:    eng,
		lifecycle: manager,
		conn:      conn,
		notifier:  notifier,
	}
}

func (h *Handler) OnReady(_ *discordgo.Session, r *discordgo.Ready) {
	logrus.Infof("connected as %s, member of %d servers", r.User.Username, len(r.Guilds))
}

// OnGuildCreate fires on connect for every known guild and later for new
// ones. It seeds Server, User and ServerUser rows.
func (h *Handler) OnGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	ctx, cancel := h.handlerContext()
	defer cancel()

	server, err := h.storage.GetOrCreateServer(ctx, g.ID, g.Name)
	if err != nil {
		logrus.Errorf("failed to get or create server %s: %v", g.ID, err)
		return
	}

	if g.OwnerID != "" {
		owner, err := h.storage.GetOrCreateUser(ctx, g.OwnerID, "", false)
		if err != nil {
			logrus.Errorf("failed to get or create owner of %s: %v", g.ID, err)
		} else if err := h.storage.SetServerOwner(ctx, server.ID, owner.ID); err != nil {
			logrus.Errorf("failed to set owner of %s: %v", g.ID, err)
		}
	}

	for _, member := range g.Members {
		if member.User == nil {
			continue
		}
		user, err := h.storage.GetOrCreateUser(ctx, member.User.ID, member.User.Username, member.User.Bot)
		if err != nil {
			logrus.Errorf("failed to get or create user %s: %v", member.User.ID, err)
			continue
		}
		if err := h.storage.GetOrCreateServerUser(ctx, user.ID, server.ID); err != nil {
			logrus.Errorf("failed to associate user %s with server %s: %v", member.User.ID, g.ID, err)
		}
	}
}

func (h *Handler) OnGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil {
		return
	}
	ctx, cancel := h.handlerContext()
	defer cancel()

	server, err := h.storage.GetOrCreateServer(ctx, m.GuildID, "")
	if err != nil {
		logrus.Errorf("failed to get or create server %s: %v", m.GuildID, err)
		return
	}
	user, err := h.storage.GetOrCreateUser(ctx, m.User.ID, m.User.Username, m.User.Bot)
	if err != nil {
		logrus.Errorf("failed to get or create user %s: %v", m.User.ID, err)
		return
	}
	if err := h.storage.GetOrCreateServerUser(ctx, user.ID, server.ID); err != nil {
		logrus.Errorf("failed to associate user %s with server %s: %v", m.User.ID, m.GuildID, err)
	}
}

// OnGuildMemberRemove drops the membership relation. The User row stays:
// removal is tracked through the relation, never by deleting identities.
func (h *Handler) OnGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil {
		return
	}
	ctx, cancel := h.handlerContext()
	defer cancel()

	server, err := h.storage.GetOrCreateServer(ctx, m.GuildID, "")
	if err != nil {
		logrus.Errorf("failed to get or create server %s: %v", m.GuildID, err)
		return
	}
	user, err := h.storage.GetOrCreateUser(ctx, m.User.ID, m.User.Username, m.User.Bot)
	if err != nil {
		logrus.Errorf("failed to get or create user %s: %v", m.User.ID, err)
		return
	}
	if err := h.storage.RemoveServerUser(ctx, user.ID, server.ID); err != nil {
		logrus.Errorf("failed to remove user %s from server %s: %v", m.User.ID, m.GuildID, err)
	}
}

// OnPresenceUpdate feeds the popularity ranking: the first sighting of a
// user playing a game creates the Game and the association.
func (h *Handler) OnPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}

	var game *discordgo.Activity
	for _, activity := range p.Activities {
		if activity != nil && activity.Type == discordgo.ActivityTypeGame && activity.Name != "" {
			game = activity
			break
		}
	}
	if game == nil {
		return
	}

	ctx, cancel := h.handlerContext()
	defer cancel()

	author := platform.UserRef{ID: p.User.ID, Name: p.User.Username, Bot: p.User.Bot}
	if err := h.engine.ObserveGame(ctx, author, game.Name, game.URL); err != nil {
		logrus.Warnf("failed to observe game %q for %s: %v", game.Name, p.User.ID, err)
	}
}

// OnMessageCreate logs the message and dispatches prefix commands.
func (h *Handler) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == h.conn.BotUser().ID {
		return
	}

	ctx, cancel := h.handlerContext()
	defer cancel()

	h.logMessage(ctx, m)

	if m.Author.Bot || m.GuildID == "" {
		return
	}
	if !strings.HasPrefix(m.Content, h.config.CommandPrefix) {
		return
	}

	command, key := splitCommand(strings.TrimPrefix(m.Content, h.config.CommandPrefix))
	if command == "" {
		return
	}

	author := platform.UserRef{ID: m.Author.ID, Name: m.Author.Username, Bot: m.Author.Bot}
	cc := NewCommandContext(ctx, command, m.GuildID, m.ChannelID, author)
	h.dispatch(cc, m, command, key)
}

// dispatch is the outer boundary of command handling: nothing a command
// does may crash the process, and an unexpected failure surfaces as the
// generic apology with a correlation token.
func (h *Handler) dispatch(cc *CommandContext, m *discordgo.MessageCreate, command, key string) {
	defer func() {
		if rec := recover(); rec != nil {
			h.reportPanic(cc, m.ChannelID, command, rec)
		}
	}()

	cc.L().Debug("dispatching command")

	var err error
	switch command {
	case "games":
		err = h.engine.HandleListGames(cc, m.ChannelID, cc.Author(), key)
	case "lfg":
		err = h.engine.HandleLFG(cc, m.GuildID, m.ChannelID, cc.Author(), key)
	case "lfgstop":
		err = h.engine.HandleLFGStop(cc, m.ChannelID, cc.Author(), key)
	case "whoplays":
		err = h.engine.HandleWhoPlays(cc, m.ChannelID, cc.Author(), key)
	case "lfgpurge":
		err = h.handlePurge(cc, m)
	case "private":
		err = h.handlePrivate(cc, m)
	default:
		return
	}

	if err != nil {
		cc.L().Errorf("command failed: %v", err)
	}
}

// handlePurge gates the mass-cancel behind server ownership.
func (h *Handler) handlePurge(cc *CommandContext, m *discordgo.MessageCreate) error {
	server, err := h.storage.GetOrCreateServer(cc, m.GuildID, "")
	if err != nil {
		return err
	}

	allowed := false
	if server.OwnerID != nil {
		owner, err := h.storage.GetUserByPlatformID(cc, cc.Author().ID)
		if err == nil && owner != nil && owner.ID == *server.OwnerID {
			allowed = true
		}
	}
	if !allowed {
		h.reply(cc, m.ChannelID, "You do not have permission to do that.")
		return nil
	}

	return h.engine.HandlePurge(cc, m.ChannelID, cc.Author())
}

func (h *Handler) handlePrivate(cc *CommandContext, m *discordgo.MessageCreate) error {
	server, err := h.storage.GetOrCreateServer(cc, m.GuildID, "")
	if err != nil {
		return err
	}
	user, err := h.storage.GetOrCreateUser(cc, cc.Author().ID, cc.Author().Name, cc.Author().Bot)
	if err != nil {
		return err
	}

	channel, reused, err := h.lifecycle.CreatePrivateChannel(cc, server, user)
	if err != nil {
		token := h.logFailure(cc, fmt.Sprintf("private channel for %s on %s", user, server), err)
		h.reply(cc, m.ChannelID, fmt.Sprintf("An error occurred, please contact the owner. Reference code: `%s`", token))
		return err
	}

	if reused {
		h.reply(cc, m.ChannelID, fmt.Sprintf("Looks like you already have a channel, check <#%s>.", channel.ChannelID))
	} else {
		h.reply(cc, m.ChannelID, fmt.Sprintf("Your channel has been created! Head over to <#%s>.", channel.ChannelID))
	}
	return nil
}

func (h *Handler) logMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Content == "" {
		return
	}

	if _, err := h.storage.GetOrCreateUser(ctx, m.Author.ID, m.Author.Username, m.Author.Bot); err != nil {
		logrus.Warnf("failed to get or create author %s: %v", m.Author.ID, err)
	}

	err := h.storage.AddMessage(ctx, &models.Message{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		ServerID:  m.GuildID,
		UserID:    m.Author.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		logrus.Warnf("failed to log message %s: %v", m.ID, err)
	}
}

func (h *Handler) reportPanic(cc *CommandContext, channelID, command string, rec any) {
	detail := fmt.Sprintf("panic in command %q by %s: %v", command, cc.Author().ID, rec)
	cc.L().Error(detail)

	token := h.logFailure(cc, detail, nil)
	h.reply(cc, channelID, fmt.Sprintf("An error occurred, please contact the owner. Reference code: `%s`", token))
}

func (h *Handler) logFailure(ctx context.Context, detail string, err error) string {
	if err != nil {
		detail = fmt.Sprintf("%s: %v", detail, err)
	}
	token, logErr := h.storage.AddLog(ctx, detail, true)
	if logErr != nil {
		logrus.Errorf("failed to write log entry: %v", logErr)
		return "unavailable"
	}
	h.notifier.Escalate(ctx, token, detail)
	return token
}

func (h *Handler) reply(ctx context.Context, channelID, text string) {
	_, err := h.conn.SendMessage(ctx, channelID, text, platform.SendOptions{
		DeleteAfter: h.config.ResponseDeleteAfter,
	})
	if err != nil {
		logrus.Warnf("failed to reply in %s: %v", channelID, err)
	}
}

// handlerContext bounds one event handler: long enough for two interactive
// reply windows plus the platform calls around them.
func (h *Handler) handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*h.config.ReplyTimeout+30*time.Second)
}

func splitCommand(content string) (command, key string) {
	parts := strings.SplitN(strings.TrimSpace(content), " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) > 1 {
		key = strings.TrimSpace(parts[1])
	}
	return command, key
}
