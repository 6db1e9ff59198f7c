package runner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/lifecycle"
	"github.com/bsquidwrd/Squid-Bot/internal/models"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/platform/platformtest"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
)

func newTestRunner(t *testing.T) (*Runner, *storage.Storage, *platformtest.Fake) {
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
		TickInterval: 10 * time.Millisecond,
		ChannelTTL:   15 * time.Minute,
	}

	fake := platformtest.NewFake()
	manager := lifecycle.New(cfg, store, fake)
	return New(cfg, store, manager, fake), store, fake
}

func TestRunStopsOnCancel(t *testing.T) {
	r, _, _ := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestAddToGameChatTask(t *testing.T) {
	r, store, fake := newTestRunner(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	server, err := store.GetOrCreateServer(ctx, "g1", "guild")
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	game, err := store.GetOrCreateGame(ctx, "Rocket League", "")
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}

	channelID := fake.AddChannel(platform.ChannelInfo{Name: "rocket-league", ServerID: server.ServerID})
	expire := time.Now().Add(15 * time.Minute)
	channel := &models.Channel{
		ChannelID:   channelID,
		ServerID:    server.ID,
		GameID:      &game.ID,
		CreatedDate: time.Now(),
		ExpireDate:  &expire,
		GameChannel: true,
	}
	if err := store.CreateChannel(ctx, channel); err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}

	task := &models.Task{
		Type:       models.TaskAddToGameChat,
		UserID:     user.ID,
		ServerID:   server.ID,
		GameID:     &game.ID,
		ChannelID:  &channel.ID,
		ExpireDate: time.Now().Add(-time.Second),
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := r.runDueTasks(ctx); err != nil {
		t.Fatalf("running tasks failed: %v", err)
	}

	access, err := fake.ChannelAccess(ctx, channelID)
	if err != nil {
		t.Fatalf("failed to snapshot access: %v", err)
	}
	granted := false
	for _, member := range access {
		if member.UserID == "u1" && member.Read && member.Send {
			granted = true
		}
	}
	if !granted {
		t.Error("expected the user to be granted channel access")
	}

	due, err := store.DueTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("expected the task to be completed, %d still due", len(due))
	}
}

func TestFailedTaskLeftPending(t *testing.T) {
	r, store, _ := newTestRunner(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	server, err := store.GetOrCreateServer(ctx, "g1", "guild")
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	// No channel referent: the task cannot run and must stay pending for
	// manual follow-up instead of being silently completed.
	task := &models.Task{
		Type:       models.TaskAddToGameChat,
		UserID:     user.ID,
		ServerID:   server.ID,
		ExpireDate: time.Now().Add(-time.Second),
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := r.runDueTasks(ctx); err != nil {
		t.Fatalf("running tasks failed: %v", err)
	}

	due, err := store.DueTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected the task to stay pending, got %d due", len(due))
	}
}

func TestUnrecognizedTaskCompleted(t *testing.T) {
	r, store, _ := newTestRunner(t)
	ctx := context.Background()

	user, err := store.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	server, err := store.GetOrCreateServer(ctx, "g1", "guild")
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	task := &models.Task{
		Type:       models.TaskType("reticulate_splines"),
		UserID:     user.ID,
		ServerID:   server.ID,
		ExpireDate: time.Now().Add(-time.Second),
	}
	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}

	if err := r.runDueTasks(ctx); err != nil {
		t.Fatalf("running tasks failed: %v", err)
	}

	// Completed so it stops re-firing every tick.
	due, err := store.DueTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("expected the unrecognized task to be completed, %d still due", len(due))
	}
}

func TestPhasePanicIsolated(t *testing.T) {
	r, _, _ := newTestRunner(t)

	err := r.runPhase(context.Background(), "boom", func(context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
}
