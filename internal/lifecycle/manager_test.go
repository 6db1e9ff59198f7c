package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/platform/platformtest"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Storage, *platformtest.Fake) {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store := storage.New(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := &config.Config{
		MatchSize:        5,
		ChannelTTL:       15 * time.Minute,
		WarnBeforeExpiry: 5 * time.Minute,
	}

	fake := platformtest.NewFake()
	return New(cfg, store, fake), store, fake
}

func seedServer(t *testing.T, store *storage.Storage) *models.Server {
	t.Helper()
	server, err := store.GetOrCreateServer(context.Background(), "g1", "guild")
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server
}

func seedGameChannel(t *testing.T, store *storage.Storage, fake *platformtest.Fake, server *models.Server, expireIn time.Duration) *models.Channel {
	t.Helper()

	id := fake.AddChannel(platform.ChannelInfo{Name: "rocket-league", ServerID: server.ServerID})
	expire := time.Now().Add(expireIn)
	channel := &models.Channel{
		ChannelID:   id,
		Name:        "rocket-league",
		ServerID:    server.ID,
		CreatedDate: time.Now(),
		ExpireDate:  &expire,
		GameChannel: true,
	}
	if err := store.CreateChannel(context.Background(), channel); err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}
	return channel
}

func TestPruneExpired(t *testing.T) {
	manager, store, fake := newTestManager(t)
	ctx := context.Background()
	server := seedServer(t, store)

	expired := seedGameChannel(t, store, fake, server, -time.Minute)
	live := seedGameChannel(t, store, fake, server, time.Hour)

	if err := manager.PruneExpired(ctx); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	if fake.HasChannel(expired.ChannelID) {
		t.Error("expected the expired channel to be deleted on the platform")
	}
	if !fake.HasChannel(live.ChannelID) {
		t.Error("expected the live channel to survive")
	}

	stored, err := store.GetChannelByPlatformID(ctx, expired.ChannelID)
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if !stored.Deleted {
		t.Error("expected the expired channel row to be marked deleted")
	}

	// A second pass finds nothing to do.
	if err := manager.PruneExpired(ctx); err != nil {
		t.Fatalf("repeat prune failed: %v", err)
	}
}

func TestPruneMarksDeletedDespitePlatformFailure(t *testing.T) {
	manager, store, fake := newTestManager(t)
	ctx := context.Background()
	server := seedServer(t, store)

	channel := seedGameChannel(t, store, fake, server, -time.Minute)
	fake.FailDelete[channel.ChannelID] = errors.New("permission denied")

	if err := manager.PruneExpired(ctx); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	// The bookkeeping flip must not depend on the platform cooperating,
	// otherwise the row would block the game from a fresh channel forever.
	stored, err := store.GetChannelByPlatformID(ctx, channel.ChannelID)
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if !stored.Deleted {
		t.Error("expected the channel row to be marked deleted despite the failure")
	}
}

func TestWarnExpiringOnce(t *testing.T) {
	manager, store, fake := newTestManager(t)
	ctx := context.Background()
	server := seedServer(t, store)

	channel := seedGameChannel(t, store, fake, server, 2*time.Minute)
	seedGameChannel(t, store, fake, server, time.Hour)

	if err := manager.WarnExpiring(ctx); err != nil {
		t.Fatalf("warn failed: %v", err)
	}
	if len(fake.Sent) != 1 || fake.Sent[0].ChannelID != channel.ChannelID {
		t.Fatalf("expected one warning in the expiring channel, got %+v", fake.Sent)
	}

	if err := manager.WarnExpiring(ctx); err != nil {
		t.Fatalf("repeat warn failed: %v", err)
	}
	if len(fake.Sent) != 1 {
		t.Errorf("expected no second warning, got %d messages", len(fake.Sent))
	}
}

func TestCreatePrivateChannel(t *testing.T) {
	manager, store, fake := newTestManager(t)
	ctx := context.Background()
	server := seedServer(t, store)

	user, err := store.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	channel, reused, err := manager.CreatePrivateChannel(ctx, server, user)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if reused {
		t.Error("expected a fresh channel on first call")
	}
	if !fake.HasChannel(channel.ChannelID) {
		t.Error("expected the channel on the platform")
	}
	if sent := fake.LastSent(); sent == nil || !sent.Pin {
		t.Errorf("expected a pinned welcome message, got %+v", sent)
	}

	again, reused, err := manager.CreatePrivateChannel(ctx, server, user)
	if err != nil {
		t.Fatalf("repeat create failed: %v", err)
	}
	if !reused || again.ID != channel.ID {
		t.Errorf("expected the existing channel to be reused, got %+v", again)
	}

	// The platform channel disappears behind the bot's back: the stale row
	// is retired and a fresh channel created.
	if err := fake.DeleteChannel(ctx, channel.ChannelID); err != nil {
		t.Fatalf("failed to delete channel: %v", err)
	}
	replacement, reused, err := manager.CreatePrivateChannel(ctx, server, user)
	if err != nil {
		t.Fatalf("replacement create failed: %v", err)
	}
	if reused || replacement.ChannelID == channel.ChannelID {
		t.Errorf("expected a replacement channel, got %+v", replacement)
	}

	old, err := store.GetChannelByPlatformID(ctx, channel.ChannelID)
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if !old.Deleted {
		t.Error("expected the stale row to be marked deleted")
	}
}

func TestReconcileChannelUsers(t *testing.T) {
	manager, store, fake := newTestManager(t)
	ctx := context.Background()
	server := seedServer(t, store)

	id := fake.AddChannel(platform.ChannelInfo{Name: "general", ServerID: server.ServerID})
	fake.SetAccess(id, "u1", true, true)
	fake.SetAccess(id, "u2", true, false) // read-only, no association

	if err := manager.ReconcileChannelUsers(ctx, server); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	channel, err := store.GetChannelByPlatformID(ctx, id)
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if channel == nil {
		t.Fatal("expected the live channel to get a row")
	}

	users, err := store.ChannelUsers(ctx, channel.ID)
	if err != nil {
		t.Fatalf("failed to list channel users: %v", err)
	}
	if len(users) != 1 || users[0].User.UserID != "u1" {
		t.Fatalf("expected only the read+send member to be associated, got %+v", users)
	}

	// Access fully revoked: the association goes away on the next pass.
	fake.SetAccess(id, "u1", false, false)
	if err := manager.ReconcileChannelUsers(ctx, server); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	users, err = store.ChannelUsers(ctx, channel.ID)
	if err != nil {
		t.Fatalf("failed to list channel users: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected the association to be removed, got %+v", users)
	}
}

func TestReconcileMarksVanishedChannelsDeleted(t *testing.T) {
	manager, store, fake := newTestManager(t)
	ctx := context.Background()
	server := seedServer(t, store)

	channel := seedGameChannel(t, store, fake, server, time.Hour)
	if err := fake.DeleteChannel(ctx, channel.ChannelID); err != nil {
		t.Fatalf("failed to delete channel: %v", err)
	}

	if err := manager.ReconcileChannelUsers(ctx, server); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	stored, err := store.GetChannelByPlatformID(ctx, channel.ChannelID)
	if err != nil {
		t.Fatalf("failed to get channel: %v", err)
	}
	if !stored.Deleted {
		t.Error("expected the vanished channel row to be marked deleted")
	}
}

func TestChannelName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Rocket League", "rocket-league"},
		{"  Halo: Reach!  ", "halo-reach"},
		{"日本語", "channel"},
		{"already-fine", "already-fine"},
	}
	for _, c := range cases {
		if got := channelName(c.in); got != c.want {
			t.Errorf("channelName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
