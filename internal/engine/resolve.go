package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
)

// resolveGameReference maps a free-text key to candidate games, ranked by
// popularity. An empty key lists everything above the popularity floor; a
// numeric key is a primary-key lookup; anything else is a case-insensitive
// substring match. Keyed lookups skip the floor so that an exact reference
// to an unpopular game still works.
func (e *Engine) resolveGameReference(ctx context.Context, key string) ([]storage.RankedGame, error) {
	key = strings.TrimSpace(key)

	if key == "" {
		return e.storage.ListRankedGames(ctx, "", e.config.PopularityFloor)
	}

	if id, err := strconv.ParseUint(key, 10, 32); err == nil {
		game, err := e.storage.GetGameByID(ctx, uint(id))
		if err != nil {
			return nil, err
		}
		if game == nil {
			return nil, nil
		}
		return []storage.RankedGame{{ID: game.ID, Name: game.Name, URL: game.URL}}, nil
	}

	return e.storage.ListRankedGames(ctx, key, 0)
}

// HandleListGames replies with the ranked game listing, optionally
// filtered by key.
func (e *Engine) HandleListGames(ctx context.Context, channelID string, author platform.UserRef, key string) error {
	if author.Bot {
		return nil
	}

	games, err := e.resolveGameReference(ctx, key)
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("games %q by %s", key, author.ID), err)
	}

	if len(games) == 0 {
		if strings.TrimSpace(key) == "" {
			e.reply(ctx, channelID, msgNoGames)
		} else {
			e.reply(ctx, channelID, fmt.Sprintf(msgNoMatchingGame, key))
		}
		return nil
	}

	var sb strings.Builder
	sb.WriteString(msgGameListHeader)
	for _, game := range games {
		fmt.Fprintf(&sb, "`%d:` %s\n", game.ID, game.Name)
	}
	e.reply(ctx, channelID, sb.String())
	return nil
}

// HandleWhoPlays lists the users with a playing association for the game
// the key resolves to.
func (e *Engine) HandleWhoPlays(ctx context.Context, channelID string, author platform.UserRef, key string) error {
	if author.Bot {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		e.reply(ctx, channelID, fmt.Sprintf(msgNoMatchingGame, key))
		return nil
	}

	candidates, err := e.resolveGameReference(ctx, key)
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("whoplays %q by %s", key, author.ID), err)
	}
	if len(candidates) == 0 {
		e.reply(ctx, channelID, fmt.Sprintf(msgNoMatchingGame, key))
		return nil
	}

	chosen := &candidates[0]
	if len(candidates) > 1 {
		chosen, err = e.disambiguate(ctx, channelID, author, key, candidates)
		if err != nil {
			return e.reportFailure(ctx, channelID, fmt.Sprintf("whoplays %q by %s", key, author.ID), err)
		}
		if chosen == nil {
			return nil
		}
	}

	users, err := e.storage.UsersForGame(ctx, chosen.ID)
	if err != nil {
		return e.reportFailure(ctx, channelID, fmt.Sprintf("whoplays %q by %s", key, author.ID), err)
	}
	if len(users) == 0 {
		e.reply(ctx, channelID, fmt.Sprintf(msgWhoPlaysNone, chosen.Name))
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, msgWhoPlaysHeader, chosen.Name)
	for _, user := range users {
		fmt.Fprintf(&sb, "- %s\n", user.Name)
	}
	e.reply(ctx, channelID, sb.String())
	return nil
}

// ObserveGame records that a user is currently playing a game, creating
// the Game and the playing association on first sighting. This is what
// feeds the popularity ranking.
func (e *Engine) ObserveGame(ctx context.Context, author platform.UserRef, gameName, gameURL string) error {
	if author.Bot || strings.TrimSpace(gameName) == "" {
		return nil
	}

	user, err := e.storage.GetOrCreateUser(ctx, author.ID, author.Name, author.Bot)
	if err != nil {
		return fmt.Errorf("getting user: %w", err)
	}
	game, err := e.storage.GetOrCreateGame(ctx, gameName, gameURL)
	if err != nil {
		return fmt.Errorf("getting game: %w", err)
	}
	if err := e.storage.GetOrCreateGameUser(ctx, user.ID, game.ID); err != nil {
		return fmt.Errorf("associating user with game: %w", err)
	}
	return nil
}
