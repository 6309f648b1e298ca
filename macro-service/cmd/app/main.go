package main

import (
	"github.com/rs/zerolog/log"

	"github.com/director74/macro_saga/macro-service/config"
	"github.com/director74/macro_saga/macro-service/internal/app"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка при загрузке конфигурации")
	}

	macroApp, err := app.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка при создании приложения")
	}

	// Запускаем приложение
	if err := macroApp.Run(); err != nil {
		log.Fatal().Err(err).Msg("Ошибка при запуске приложения")
	}
}
