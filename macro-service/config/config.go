package config

import (
	"time"

	"github.com/director74/macro_saga/pkg/config"
)

// Config содержит конфигурацию сервиса макросов
type Config struct {
	HTTP         config.HTTPConfig
	Postgres     config.PostgresConfig
	RabbitMQ     config.RabbitMQConfig
	Redis        config.RedisConfig
	Messaging    config.MessagingConfig
	JWT          config.JWTConfig
	LogLevel     string
	Saga         SagaConfig
	Purge        PurgeConfig
	Watchdog     WatchdogConfig
	Lease        LeaseConfig
	Notification NotificationConfig
}

// SagaConfig настройки повторов записи шага саги
type SagaConfig struct {
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	SystemUser        string
}

// PurgeConfig настройки удаления старых саг
type PurgeConfig struct {
	Enabled        bool
	Cron           string
	RetentionDays  int
	LockAtLeastFor time.Duration
	LockAtMostFor  time.Duration
}

// WatchdogConfig настройки повторного запуска зависших саг. По умолчанию выключен.
type WatchdogConfig struct {
	Enabled        bool
	Cron           string
	StaleAfter     time.Duration
	ForceStopAfter time.Duration
	BatchSize      int
	LockAtMostFor  time.Duration
}

// LeaseConfig выбор хранилища распределенной аренды: postgres или redis
type LeaseConfig struct {
	Backend string
}

// NotificationConfig адреса для уведомлений об изменении макросов
type NotificationConfig struct {
	FromEmail string
	ToEmail   string
}

func NewConfig() (*Config, error) {
	// Загружаем общую конфигурацию
	commonConfig := config.LoadCommonConfig("macros", "8080")
	jwtConfig := config.LoadJWTConfig("macro-service")

	return &Config{
		HTTP:      commonConfig.HTTP,
		Postgres:  commonConfig.Postgres,
		RabbitMQ:  commonConfig.RabbitMQ,
		Redis:     commonConfig.Redis,
		Messaging: commonConfig.Messaging,
		JWT:       *jwtConfig,
		LogLevel:  commonConfig.LogLevel,
		Saga: SagaConfig{
			RetryMaxAttempts:  config.GetEnvAsInt("SAGA_RETRY_MAX_ATTEMPTS", 5),
			RetryInitialDelay: config.GetEnvAsDuration("SAGA_RETRY_INITIAL_DELAY", 100*time.Millisecond),
			RetryMaxDelay:     config.GetEnvAsDuration("SAGA_RETRY_MAX_DELAY", 5*time.Second),
			SystemUser:        config.GetEnv("SAGA_SYSTEM_USER", "MACRO_API"),
		},
		Purge: PurgeConfig{
			Enabled:        config.GetEnvAsBool("PURGE_ENABLED", true),
			Cron:           config.GetEnv("PURGE_CRON", "0 0 * * *"),
			RetentionDays:  config.GetEnvAsInt("PURGE_RETENTION_DAYS", 30),
			LockAtLeastFor: config.GetEnvAsDuration("PURGE_LOCK_AT_LEAST_FOR", 5*time.Minute),
			LockAtMostFor:  config.GetEnvAsDuration("PURGE_LOCK_AT_MOST_FOR", time.Hour),
		},
		Watchdog: WatchdogConfig{
			Enabled:        config.GetEnvAsBool("SAGA_WATCHDOG_ENABLED", false),
			Cron:           config.GetEnv("SAGA_WATCHDOG_CRON", "*/5 * * * *"),
			StaleAfter:     config.GetEnvAsDuration("SAGA_WATCHDOG_STALE_AFTER", 15*time.Minute),
			ForceStopAfter: config.GetEnvAsDuration("SAGA_WATCHDOG_FORCE_STOP_AFTER", 24*time.Hour),
			BatchSize:      config.GetEnvAsInt("SAGA_WATCHDOG_BATCH_SIZE", 100),
			LockAtMostFor:  config.GetEnvAsDuration("SAGA_WATCHDOG_LOCK_AT_MOST_FOR", 4*time.Minute),
		},
		Lease: LeaseConfig{
			Backend: config.GetEnv("LEASE_BACKEND", "postgres"),
		},
		Notification: NotificationConfig{
			FromEmail: config.GetEnv("NOTIFICATION_FROM_EMAIL", "noreply@macro.local"),
			ToEmail:   config.GetEnv("NOTIFICATION_TO_EMAIL", "pens.coordinator@macro.local"),
		},
	}, nil
}
