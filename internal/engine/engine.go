// Package engine turns free-text game references into matchmaking state:
// it registers searches, resolves ambiguous input interactively and matches
// queued players into shared game channels.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/lifecycle"
	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/bsquidwrd/Squid-Bot/internal/notify"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/sirupsen/logrus"
)

type Engine struct {
	config    *config.Config
	storage   *storage.Storage
	conn      platform.Connector
	lifecycle *lifecycle.Manager
	notifier  *notify.Notifier
}

func New(
	cfg *config.Config,
	store *storage.Storage,
	conn platform.Connector,
	manager *lifecycle.Manager,
	notifier *notify.Notifier,
) *Engine {
	return &Engine{
		config:    cfg,
		storage:   store,
		conn:      conn,
		lifecycle: manager,
		notifier:  notifier,
	}
}

// HandleLFG runs the full search flow for one user command: resolve the
// game, disambiguate if needed, then register or match the search.
func (e *Engine) HandleLFG(ctx context.Context, serverID, channelID string, author platform.UserRef, key string) error {
	if author.Bot {
		return nil
	}

	user, err := e.storage.GetOrCreateUser(ctx, author.ID, author.Name, author.Bot)
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s", key, author.ID), err)
	}
	server, err := e.storage.GetOrCreateServer(ctx, serverID, "")
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s", key, author.ID), err)
	}

	candidates, err := e.resolveGameReference(ctx, key)
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s: resolving game", key, author.ID), err)
	}
	if len(candidates) == 0 {
		if strings.TrimSpace(key) == "" {
			e.reply(ctx, channelID, msgNoGames)
		} else {
			e.reply(ctx, channelID, fmt.Sprintf(msgNoMatchingGame, key))
		}
		return nil
	}

	// Games the user is already queued for are not offered again.
	var open []storage.RankedGame
	var queued []storage.RankedGame
	for _, candidate := range candidates {
		existing, err := e.storage.ActiveSearchForUserGame(ctx, user.ID, candidate.ID, time.Now())
		if err != nil {
			return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s: checking searches", key, author.ID), err)
		}
		if existing != nil {
			queued = append(queued, candidate)
		} else {
			open = append(open, candidate)
		}
	}
	if len(open) == 0 {
		e.reply(ctx, channelID, fmt.Sprintf(msgAlreadyQueued, queued[0].Name))
		return nil
	}

	chosen := &open[0]
	if len(open) > 1 {
		chosen, err = e.disambiguate(ctx, channelID, author, key, open)
		if err != nil {
			return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s: disambiguating", key, author.ID), err)
		}
		if chosen == nil {
			return nil // terminal reply already sent
		}
	}

	game, err := e.storage.GetGameByID(ctx, chosen.ID)
	if err != nil || game == nil {
		if err == nil {
			err = fmt.Errorf("game %d vanished during the flow", chosen.ID)
		}
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s: loading game", key, author.ID), err)
	}

	// The wait above is a suspension point, so re-derive the duplicate
	// check right before the insert instead of trusting earlier state.
	existing, err := e.storage.ActiveSearchForUserGame(ctx, user.ID, game.ID, time.Now())
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfg %q by %s: re-checking searches", key, author.ID), err)
	}
	if existing != nil {
		e.reply(ctx, channelID, fmt.Sprintf(msgAlreadyQueued, game.Name))
		return nil
	}

	return e.startOrJoin(ctx, server, user, game, channelID, author)
}

// startOrJoin registers the search and matches it into an open group when
// one exists: a live non-full game channel first, then a pool of other
// active searches for the same game.
func (e *Engine) startOrJoin(
	ctx context.Context,
	server *models.Server,
	user *models.User,
	game *models.Game,
	channelID string,
	author platform.UserRef,
) error {
	failCtx := fmt.Sprintf("lfg for game %d by %s", game.ID, author.ID)

	live, err := e.storage.LiveGameChannel(ctx, game.ID, server.ID, time.Now())
	if err != nil {
		return e.reportFailure(ctx, channelID, failCtx, err)
	}
	if live != nil {
		count, err := e.storage.ChannelUserCount(ctx, live.ID)
		if err != nil {
			return e.reportFailure(ctx, channelID, failCtx, err)
		}
		if count < int64(e.config.MatchSize) {
			join, terminal := e.offerJoin(ctx, channelID, author, game.Name)
			if terminal {
				return nil
			}
			if join {
				return e.joinExistingChannel(ctx, server, user, game, live, channelID, author)
			}
		}
	}

	pool, err := e.storage.ActiveSearchesForGame(ctx, game.ID, time.Now())
	if err != nil {
		return e.reportFailure(ctx, channelID, failCtx, err)
	}

	if live == nil && len(pool) > 0 {
		join, terminal := e.offerJoin(ctx, channelID, author, game.Name)
		if terminal {
			return nil
		}
		if join {
			search, err := e.storage.CreateSearch(ctx, user.ID, game.ID, e.config.SearchTTL)
			if err != nil {
				return e.reportFailure(ctx, channelID, failCtx, err)
			}
			search.User = *user

			group := append(pool, search)
			if len(group) >= e.config.MatchMinimum {
				channel, err := e.lifecycle.CreateGameChannel(ctx, server, game, group)
				if err != nil {
					return e.reportFailure(ctx, channelID, failCtx, err)
				}
				e.reply(ctx, channelID, fmt.Sprintf(msgJoinedGroup, game.Name, channel.ChannelID))
				return nil
			}

			e.reply(ctx, channelID, fmt.Sprintf(msgSearchCreated, game.Name))
			return nil
		}
	}

	if _, err := e.storage.CreateSearch(ctx, user.ID, game.ID, e.config.SearchTTL); err != nil {
		return e.reportFailure(ctx, channelID, failCtx, err)
	}
	e.reply(ctx, channelID, fmt.Sprintf(msgSearchCreated, game.Name))
	return nil
}

// joinExistingChannel adds the user to a live game channel. A failed grant
// is deferred to the task runner instead of being dropped.
func (e *Engine) joinExistingChannel(
	ctx context.Context,
	server *models.Server,
	user *models.User,
	game *models.Game,
	channel *models.Channel,
	channelID string,
	author platform.UserRef,
) error {
	failCtx := fmt.Sprintf("joining channel %s by %s", channel.ChannelID, author.ID)

	search, err := e.storage.CreateSearch(ctx, user.ID, game.ID, e.config.SearchTTL)
	if err != nil {
		return e.reportFailure(ctx, channelID, failCtx, err)
	}
	if err := e.storage.MarkSearchesFound(ctx, []uint{search.ID}); err != nil {
		return e.reportFailure(ctx, channelID, failCtx, err)
	}

	if err := e.conn.GrantChannelAccess(ctx, channel.ChannelID, author.ID); err != nil {
		logrus.Warnf("failed to grant %s access to %s, deferring to task runner: %v", author.ID, channel.ChannelID, err)
		task := &models.Task{
			Type:       models.TaskAddToGameChat,
			UserID:     user.ID,
			ServerID:   server.ID,
			GameID:     &game.ID,
			ChannelID:  &channel.ID,
			ExpireDate: time.Now(),
		}
		if err := e.storage.CreateTask(ctx, task); err != nil {
			return e.reportFailure(ctx, channelID, failCtx, err)
		}
	}

	e.reply(ctx, channelID, fmt.Sprintf(msgJoinedGroup, game.Name, channel.ChannelID))
	return nil
}

// HandleLFGStop cancels the user's searches: all of them when key is
// empty, otherwise the one search the key resolves to.
func (e *Engine) HandleLFGStop(ctx context.Context, channelID string, author platform.UserRef, key string) error {
	if author.Bot {
		return nil
	}

	user, err := e.storage.GetOrCreateUser(ctx, author.ID, author.Name, author.Bot)
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgstop %q by %s", key, author.ID), err)
	}

	active, err := e.storage.ActiveSearchesForUser(ctx, user.ID, time.Now())
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgstop %q by %s", key, author.ID), err)
	}
	if len(active) == 0 {
		e.reply(ctx, channelID, msgNoActiveSearches)
		return nil
	}

	if strings.TrimSpace(key) == "" {
		count, err := e.storage.CancelSearches(ctx, user.ID, nil, time.Now())
		if err != nil {
			return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgstop by %s", author.ID), err)
		}
		e.reply(ctx, channelID, fmt.Sprintf(msgSearchesStopped, count))
		return nil
	}

	// Resolve the key against the games the user is actually queued for.
	matches := matchSearches(active, key)
	if len(matches) == 0 {
		e.reply(ctx, channelID, fmt.Sprintf(msgNoMatchingGame, key))
		return nil
	}

	chosen := matches[0]
	if len(matches) > 1 {
		ranked := make([]storage.RankedGame, 0, len(matches))
		for _, search := range matches {
			ranked = append(ranked, storage.RankedGame{ID: search.GameID, Name: search.Game.Name})
		}
		picked, err := e.disambiguate(ctx, channelID, author, key, ranked)
		if err != nil {
			return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgstop %q by %s", key, author.ID), err)
		}
		if picked == nil {
			return nil
		}
		for _, search := range matches {
			if search.GameID == picked.ID {
				chosen = search
				break
			}
		}
	}

	if _, err := e.storage.CancelSearches(ctx, user.ID, []uint{chosen.GameID}, time.Now()); err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgstop %q by %s", key, author.ID), err)
	}
	e.reply(ctx, channelID, fmt.Sprintf(msgSearchStopped, chosen.Game.Name))
	return nil
}

// HandlePurge mass-cancels every active search after an explicit "yes"
// confirmation, then notifies every server. Privilege checks belong to the
// command layer.
func (e *Engine) HandlePurge(ctx context.Context, channelID string, author platform.UserRef) error {
	e.reply(ctx, channelID, fmt.Sprintf(msgPurgeConfirm, int(e.config.ReplyTimeout.Seconds())))

	reply, err := e.conn.WaitForReply(ctx, channelID, author.ID, e.config.ReplyTimeout)
	if errors.Is(err, platform.ErrTimeout) {
		e.reply(ctx, channelID, msgTimedOut)
		return nil
	}
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgpurge by %s", author.ID), err)
	}
	if !strings.EqualFold(strings.TrimSpace(reply.Content), "yes") {
		e.reply(ctx, channelID, msgPurgeCancelled)
		return nil
	}

	count, err := e.storage.PurgeActiveSearches(ctx, time.Now())
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("lfgpurge by %s", author.ID), err)
	}

	servers, err := e.storage.ListServers(ctx)
	if err != nil {
		logrus.Errorf("failed to list servers for purge announcement: %v", err)
	}
	for _, server := range servers {
		if err := e.conn.Announce(ctx, server.ServerID, msgPurgeAnnounce); err != nil {
			logrus.Warnf("failed to announce purge on %s: %v", server, err)
		}
	}

	e.reply(ctx, channelID, fmt.Sprintf(msgPurgeDone, count))
	return nil
}

// offerJoin asks the user whether to join the open group. terminal means a
// timeout reply was already sent and the flow must stop.
func (e *Engine) offerJoin(ctx context.Context, channelID string, author platform.UserRef, gameName string) (join, terminal bool) {
	e.reply(ctx, channelID, fmt.Sprintf(msgOfferJoin, gameName, int(e.config.ReplyTimeout.Seconds())))

	reply, err := e.conn.WaitForReply(ctx, channelID, author.ID, e.config.ReplyTimeout)
	if errors.Is(err, platform.ErrTimeout) {
		e.reply(ctx, channelID, msgTimedOut)
		return false, true
	}
	if err != nil {
		logrus.Warnf("failed to wait for join reply from %s: %v", author.ID, err)
		return false, false
	}
	return strings.EqualFold(strings.TrimSpace(reply.Content), "yes"), false
}

// disambiguate presents a numbered list and waits for a valid index. A nil
// game with nil error means a terminal reply (timeout, not understood) was
// already sent.
func (e *Engine) disambiguate(
	ctx context.Context,
	channelID string,
	author platform.UserRef,
	key string,
	games []storage.RankedGame,
) (*storage.RankedGame, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, msgDisambiguate, key, int(e.config.ReplyTimeout.Seconds()))
	for i, game := range games {
		fmt.Fprintf(&sb, "`%d:` %s\n", i+1, game.Name)
	}
	e.reply(ctx, channelID, sb.String())

	reply, err := e.conn.WaitForReply(ctx, channelID, author.ID, e.config.ReplyTimeout)
	if errors.Is(err, platform.ErrTimeout) {
		e.reply(ctx, channelID, msgTimedOut)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	index, err := strconv.Atoi(strings.TrimSpace(reply.Content))
	if err != nil || index < 1 || index > len(games) {
		e.reply(ctx, channelID, msgNotUnderstood)
		return nil, nil
	}
	return &games[index-1], nil
}

// reply sends a short, self-deleting response. Send failures are logged
// and swallowed: a missing reply is not worth failing the flow over.
func (e *Engine) reply(ctx context.Context, channelID, text string) {
	_, err := e.conn.SendMessage(ctx, channelID, text, platform.SendOptions{
		DeleteAfter: e.config.ResponseDeleteAfter,
	})
	if err != nil {
		logrus.Warnf("failed to reply in %s: %v", channelID, err)
	}
}

// reportFailure logs the error with enough context to reproduce, escalates
// it, and shows the user only the generic apology with the log token.
func (e *Engine) reportFailure(ctx context.Context, channelID, detail string, err error) error {
	full := fmt.Sprintf("%s: %v", detail, err)
	logrus.Error(full)

	token, logErr := e.storage.AddLog(ctx, full, true)
	if logErr != nil {
		logrus.Errorf("failed to write log entry: %v", logErr)
		token = "unavailable"
	} else if e.notifier != nil {
		e.notifier.Escalate(ctx, token, full)
	}

	e.reply(ctx, channelID, fmt.Sprintf(msgGenericError, token))
	return err
}

func matchSearches(searches []*models.GameSearch, key string) []*models.GameSearch {
	key = strings.TrimSpace(key)
	if id, err := strconv.ParseUint(key, 10, 32); err == nil {
		for _, search := range searches {
			if search.GameID == uint(id) {
				return []*models.GameSearch{search}
			}
		}
		return nil
	}

	lowered := strings.ToLower(key)
	var matches []*models.GameSearch
	for _, search := range searches {
		if strings.Contains(strings.ToLower(search.Game.Name), lowered) {
			matches = append(matches, search)
		}
	}
	return matches
}
