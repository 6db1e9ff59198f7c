package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/labstack/echo/v4"
)

func newTestService(t *testing.T) (*echo.Echo, *storage.Storage) {
	t.Helper()

	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store := storage.New(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	e := echo.New()
	NewService(&config.Config{PopularityFloor: 1}, store).Register(e)
	return e, store
}

func TestHealth(t *testing.T) {
	e, _ := newTestService(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestGames(t *testing.T) {
	e, store := newTestService(t)
	ctx := context.Background()

	game, err := store.GetOrCreateGame(ctx, "Rocket League", "")
	if err != nil {
		t.Fatalf("failed to create game: %v", err)
	}
	user, err := store.GetOrCreateUser(ctx, "u1", "alice", false)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if err := store.GetOrCreateGameUser(ctx, user.ID, game.ID); err != nil {
		t.Fatalf("failed to create game user: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var games []storage.RankedGame
	if err := json.Unmarshal(rec.Body.Bytes(), &games); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(games) != 1 || games[0].Name != "Rocket League" || games[0].PlayerCount != 1 {
		t.Errorf("unexpected games listing: %+v", games)
	}

	// A bad floor is rejected, not ignored.
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/games?floor=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestLogLookup(t *testing.T) {
	e, store := newTestService(t)

	token, err := store.AddLog(context.Background(), "something broke", false)
	if err != nil {
		t.Fatalf("failed to add log: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/"+token, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
