package config

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	DiscordToken string `mapstructure:"discord_token"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`

	CommandPrefix string `mapstructure:"command_prefix"`

	// Matchmaking.
	SearchTTL       time.Duration `mapstructure:"search_ttl"`
	ReplyTimeout    time.Duration `mapstructure:"reply_timeout"`
	PopularityFloor int           `mapstructure:"popularity_floor"`
	MatchMinimum    int           `mapstructure:"match_minimum"`
	MatchSize       int           `mapstructure:"match_size"`

	// Channel lifecycle.
	ChannelTTL       time.Duration `mapstructure:"channel_ttl"`
	WarnBeforeExpiry time.Duration `mapstructure:"warn_before_expiry"`
	PrunePause       time.Duration `mapstructure:"prune_pause"`

	// Runner.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// Responses to commands self-delete after this delay to keep
	// channels tidy. Zero disables.
	ResponseDeleteAfter time.Duration `mapstructure:"response_delete_after"`

	// Escalation webhook for log entries flagged for a human.
	// Empty disables escalation.
	EscalationWebhookURL string `mapstructure:"escalation_webhook_url"`

	APIListenAddress string `mapstructure:"api_listen_address"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	return cfg
}

func SetupCommon() {
	viper.SetDefault("command_prefix", "!")
	viper.SetDefault("search_ttl", "30m")
	viper.SetDefault("reply_timeout", "30s")
	viper.SetDefault("popularity_floor", 1)
	viper.SetDefault("match_minimum", 2)
	viper.SetDefault("match_size", 5)
	viper.SetDefault("channel_ttl", "15m")
	viper.SetDefault("warn_before_expiry", "5m")
	viper.SetDefault("prune_pause", "1s")
	viper.SetDefault("tick_interval", "60s")
	viper.SetDefault("response_delete_after", "30s")
	viper.SetDefault("api_listen_address", ":8080")
	viper.SetEnvPrefix("SQUIDBOT")

	viper.MustBindEnv("discord_token")
	viper.MustBindEnv("postgres_dsn")
	viper.AutomaticEnv()
}
