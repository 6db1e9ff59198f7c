package main

import (
	"github.com/bsquidwrd/Squid-Bot/internal/api"
	"github.com/bsquidwrd/Squid-Bot/internal/config"
	"github.com/bsquidwrd/Squid-Bot/internal/logging"
	"github.com/bsquidwrd/Squid-Bot/internal/storage"
	"github.com/labstack/echo/v4"
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

	service := api.NewService(cfg, store)
	e := echo.New()
	service.Register(e)
	if err := e.Start(cfg.APIListenAddress); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}
