package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return s
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	second, err := s.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same row, got ids %d and %d", first.ID, second.ID)
	}

	renamed, err := s.GetOrCreateUser(ctx, "u1", "alicia", false)
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if renamed.ID != first.ID {
		t.Errorf("rename created a new row: ids %d and %d", first.ID, renamed.ID)
	}
	if renamed.Name != "alicia" {
		t.Errorf("expected name to update, got %q", renamed.Name)
	}
}

func TestListRankedGames(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	popular, err := s.GetOrCreateGame(ctx, "Rocket League", "")
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}
	niche, err := s.GetOrCreateGame(ctx, "Obscure Quest", "")
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}

	for _, id := range []string{"u1", "u2"} {
		user, err := s.GetOrCreateUser(ctx, id, id, false)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		if err := s.GetOrCreateGameUser(ctx, user.ID, popular.ID); err != nil {
			t.Fatalf("failed to create game user: %v", err)
		}
	}

	ranked, err := s.ListRankedGames(ctx, "", 1)
	if err != nil {
		t.Fatalf("failed to list games: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("expected only the popular game above the floor, got %d games", len(ranked))
	}
	if ranked[0].ID != popular.ID || ranked[0].PlayerCount != 2 {
		t.Errorf("unexpected ranking: %+v", ranked[0])
	}

	// A keyed lookup skips the floor.
	byName, err := s.ListRankedGames(ctx, "obscure", 0)
	if err != nil {
		t.Fatalf("failed to list games: %v", err)
	}
	if len(byName) != 1 || byName[0].ID != niche.ID {
		t.Errorf("expected the niche game by substring, got %+v", byName)
	}
}

func TestActiveSearchQueries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	user, err := s.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	game, err := s.GetOrCreateGame(ctx, "Rocket League", "")
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}

	search, err := s.CreateSearch(ctx, user.ID, game.ID, 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to create search: %v", err)
	}

	active, err := s.ActiveSearchForUserGame(ctx, user.ID, game.ID, now)
	if err != nil {
		t.Fatalf("failed to query search: %v", err)
	}
	if active == nil || active.ID != search.ID {
		t.Fatalf("expected the fresh search to be active, got %+v", active)
	}

	// An expired search no longer counts.
	if active.Active(now.Add(time.Hour)) {
		t.Error("expected the search to be inactive past its expire date")
	}

	if err := s.MarkSearchesFound(ctx, []uint{search.ID}); err != nil {
		t.Fatalf("failed to mark search found: %v", err)
	}
	active, err = s.ActiveSearchForUserGame(ctx, user.ID, game.ID, now)
	if err != nil {
		t.Fatalf("failed to query search: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active search after game_found, got %+v", active)
	}
}

func TestCancelSearches(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	for _, name := range []string{"Rocket League", "Overwatch"} {
		game, err := s.GetOrCreateGame(ctx, name, "")
		if err != nil {
			t.Fatalf("failed to create game: %v", err)
		}
		if _, err := s.CreateSearch(ctx, user.ID, game.ID, 30*time.Minute); err != nil {
			t.Fatalf("failed to create search: %v", err)
		}
	}

	count, err := s.CancelSearches(ctx, user.ID, nil, time.Now())
	if err != nil {
		t.Fatalf("failed to cancel searches: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cancelled searches, got %d", count)
	}

	// Cancelling again is a no-op.
	count, err = s.CancelSearches(ctx, user.ID, nil, time.Now())
	if err != nil {
		t.Fatalf("failed to cancel searches: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 cancelled searches on repeat, got %d", count)
	}
}

func TestExpiredGameChannelsExcludesPrivate(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	server, err := s.GetOrCreateServer(ctx, "g1", "guild")
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	expired := &models.Channel{
		ChannelID:   "c1",
		ServerID:    server.ID,
		CreatedDate: time.Now().Add(-time.Hour),
		ExpireDate:  &past,
		GameChannel: true,
	}
	private := &models.Channel{
		ChannelID:   "c2",
		ServerID:    server.ID,
		CreatedDate: time.Now().Add(-time.Hour),
		ExpireDate:  &past,
		Private:     true,
	}
	for _, c := range []*models.Channel{expired, private} {
		if err := s.CreateChannel(ctx, c); err != nil {
			t.Fatalf("failed to create channel: %v", err)
		}
	}

	due, err := s.ExpiredGameChannels(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to list expired channels: %v", err)
	}
	if len(due) != 1 || due[0].ChannelID != "c1" {
		t.Fatalf("expected only the game channel to expire, got %+v", due)
	}

	if err := s.MarkChannelDeleted(ctx, expired.ID); err != nil {
		t.Fatalf("failed to mark deleted: %v", err)
	}
	due, err = s.ExpiredGameChannels(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to list expired channels: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("expected no expired channels after deletion, got %d", len(due))
	}
}

func TestAddLog(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	token, err := s.AddLog(ctx, "something broke", true)
	if err != nil {
		t.Fatalf("failed to add log: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	entry, err := s.GetLogByToken(ctx, token)
	if err != nil {
		t.Fatalf("failed to get log: %v", err)
	}
	if entry == nil || entry.Message != "something broke" || !entry.Escalate {
		t.Errorf("unexpected log entry: %+v", entry)
	}
}
