// Package api serves a read-only status view over the bot's state.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type Service struct {
	config  *config.Config
	storage *storage.Storage
}

func NewService(cfg *config.Config, store *storage.Storage) *Service {
	return &Service{
		config:  cfg,
		storage: store,
	}
}

// Register attaches all routes to the echo instance.
func (s *Service) Register(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth())
	e.GET("/api/games", s.HandleGames())
	e.GET("/api/searches", s.HandleSearches())
	e.GET("/api/channels", s.HandleChannels())
	e.GET("/api/logs/:token", s.HandleLog())
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}

// HandleGames returns the popularity-ranked game listing. The floor query
// parameter overrides the configured minimum player count; name filters by
// substring.
func (s *Service) HandleGames() echo.HandlerFunc {
	return func(c echo.Context) error {
		floor := s.config.PopularityFloor
		if raw := c.QueryParam("floor"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "floor must be an integer"})
			}
			floor = parsed
		}

		games, err := s.storage.ListRankedGames(c.Request().Context(), c.QueryParam("name"), floor)
		if err != nil {
			logrus.Errorf("failed to list games: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list games"})
		}

		return c.JSON(http.StatusOK, games)
	}
}

type searchStatus struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	GameID    uint      `json:"game_id"`
	GameName  string    `json:"game_name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) HandleSearches() echo.HandlerFunc {
	return func(c echo.Context) error {
		searches, err := s.storage.ListActiveSearches(c.Request().Context(), time.Now())
		if err != nil {
			logrus.Errorf("failed to list searches: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list searches"})
		}

		out := make([]searchStatus, 0, len(searches))
		for _, search := range searches {
			out = append(out, searchStatus{
				ID:        search.ID,
				UserID:    search.User.UserID,
				UserName:  search.User.Name,
				GameID:    search.GameID,
				GameName:  search.Game.Name,
				CreatedAt: search.CreatedDate,
				ExpiresAt: search.ExpireDate,
			})
		}
		return c.JSON(http.StatusOK, out)
	}
}

type channelStatus struct {
	ID          uint       `json:"id"`
	ChannelID   string     `json:"channel_id"`
	Name        string     `json:"name"`
	Private     bool       `json:"private"`
	GameChannel bool       `json:"game_channel"`
	Deleted     bool       `json:"deleted"`
	ExpireDate  *time.Time `json:"expire_date,omitempty"`
}

func (s *Service) HandleChannels() echo.HandlerFunc {
	return func(c echo.Context) error {
		includeDeleted := c.QueryParam("include_deleted") == "true"

		channels, err := s.storage.ListChannels(c.Request().Context(), includeDeleted)
		if err != nil {
			logrus.Errorf("failed to list channels: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list channels"})
		}

		out := make([]channelStatus, 0, len(channels))
		for _, channel := range channels {
			out = append(out, channelStatus{
				ID:          channel.ID,
				ChannelID:   channel.ChannelID,
				Name:        channel.Name,
				Private:     channel.Private,
				GameChannel: channel.GameChannel,
				Deleted:     channel.Deleted,
				ExpireDate:  channel.ExpireDate,
			})
		}
		return c.JSON(http.StatusOK, out)
	}
}

// HandleLog resolves a reference code handed out in an error reply to the
// audit entry behind it.
func (s *Service) HandleLog() echo.HandlerFunc {
	return func(c echo.Context) error {
		entry, err := s.storage.GetLogByToken(c.Request().Context(), c.Param("token"))
		if err != nil {
			logrus.Errorf("failed to get log entry: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to get log entry"})
		}
		if entry == nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no such log entry"})
		}
		return c.JSON(http.StatusOK, entry)
	}
}
