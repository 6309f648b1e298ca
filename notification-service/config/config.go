package config

import (
	"time"

	"github.com/director74/macro_saga/pkg/config"
)

// Config содержит конфигурацию сервиса уведомлений
type Config struct {
	HTTP      config.HTTPConfig
	Postgres  config.PostgresConfig
	RabbitMQ  config.RabbitMQConfig
	Messaging config.MessagingConfig
	LogLevel  string
	Mail      MailConfig
	Purge     PurgeConfig
}

// PurgeConfig настройки удаления старых уведомлений и журнала команд
type PurgeConfig struct {
	Enabled        bool
	Cron           string
	RetentionDays  int
	LockAtLeastFor time.Duration
	LockAtMostFor  time.Duration
}

// LoadPurgeConfig загружает настройки удаления старых записей
func LoadPurgeConfig() PurgeConfig {
	return PurgeConfig{
		Enabled:        config.GetEnvAsBool("PURGE_ENABLED", true),
		Cron:           config.GetEnv("PURGE_CRON", "30 0 * * *"),
		RetentionDays:  config.GetEnvAsInt("PURGE_RETENTION_DAYS", 30),
		LockAtLeastFor: config.GetEnvAsDuration("PURGE_LOCK_AT_LEAST_FOR", 5*time.Minute),
		LockAtMostFor:  config.GetEnvAsDuration("PURGE_LOCK_AT_MOST_FOR", time.Hour),
	}
}

// MailConfig содержит настройки для отправки почты.
// Driver "dummy" только пишет письмо в лог, "smtp" отправляет через SMTP_HOST.
type MailConfig struct {
	Driver       string
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
}

// LoadMailConfig загружает конфигурацию для отправки почты
func LoadMailConfig() MailConfig {
	return MailConfig{
		Driver:       config.GetEnv("MAIL_DRIVER", "dummy"),
		SMTPHost:     config.GetEnv("SMTP_HOST", "localhost"),
		SMTPPort:     config.GetEnv("SMTP_PORT", "1025"),
		SMTPUser:     config.GetEnv("SMTP_USER", ""),
		SMTPPassword: config.GetEnv("SMTP_PASSWORD", ""),
		FromEmail:    config.GetEnv("FROM_EMAIL", "noreply@macro.local"),
	}
}

func NewConfig() (*Config, error) {
	// Загружаем общую конфигурацию
	commonConfig := config.LoadCommonConfig("notifications", "8082")
	mailConfig := LoadMailConfig()

	return &Config{
		HTTP:      commonConfig.HTTP,
		Postgres:  commonConfig.Postgres,
		RabbitMQ:  commonConfig.RabbitMQ,
		Messaging: commonConfig.Messaging,
		LogLevel:  commonConfig.LogLevel,
		Mail:      mailConfig,
		Purge:     LoadPurgeConfig(),
	}, nil
}
