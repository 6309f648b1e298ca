package main

import (
	"github.com/rs/zerolog/log"

	"github.com/director74/macro_saga/notification-service/config"
	"github.com/director74/macro_saga/notification-service/internal/app"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка при загрузке конфигурации")
	}

	notificationApp, err := app.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка при создании приложения")
	}

	if err := notificationApp.Run(); err != nil {
		log.Fatal().Err(err).Msg("Ошибка при запуске приложения")
	}
}
