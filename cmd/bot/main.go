package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bsquidwrd/Squid-Bot/internal/bot"
	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/engine"
	"github.com/bsquidwrd/Squid-Bot/internal/lifecycle"
	"github.com/bsquidwrd/Squid-Bot/internal/logging"
	"github.com/bsquidwrd/Squid-Bot/internal/notify"
	"github.com/bsquidwrd/Squid-Bot/internal/platform"
	"github.com/bsquidwrd/Squid-Bot/internal/runner"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	config.SetupCommon()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	initCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()

	if err := store.Migrate(initCtx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logrus.Fatalf("Failed to create session: %v", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildPresences |
		discordgo.IntentMessageContent

	conn := platform.NewDiscord(session)
	notifier := notify.New(cfg.EscalationWebhookURL)
	manager := lifecycle.New(cfg, store, conn)
	eng := engine.New(cfg, store, conn, manager, notifier)
	handler := bot.NewHandler(cfg, store, eng, manager, conn, notifier)

	session.AddHandler(handler.OnReady)
	session.AddHandler(handler.OnGuildCreate)
	session.AddHandler(handler.OnGuildMemberAdd)
	session.AddHandler(handler.OnGuildMemberRemove)
	session.AddHandler(handler.OnPresenceUpdate)
	session.AddHandler(handler.OnMessageCreate)

	if err := session.Open(); err != nil {
		logrus.Fatalf("Failed to connect to the gateway: %v", err)
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.New(cfg, store, manager, conn).Run(ctx)
	}()

	<-ctx.Done()

	if err := session.Close(); err != nil {
		logrus.Errorf("Failed to close session: %v", err)
	}

	logrus.Info("waiting for services to finish")
	wg.Wait()
}
