package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/director74/macro_saga/notification-service/config"
	httpController "github.com/director74/macro_saga/notification-service/internal/controller/http"
	rabbitmqController "github.com/director74/macro_saga/notification-service/internal/controller/rabbitmq"
	"github.com/director74/macro_saga/notification-service/internal/entity"
	"github.com/director74/macro_saga/notification-service/internal/jobs"
	"github.com/director74/macro_saga/notification-service/internal/repo"
	"github.com/director74/macro_saga/notification-service/internal/usecase"
	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/lease"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/logger"
	"github.com/director74/macro_saga/pkg/messaging"
	"github.com/director74/macro_saga/pkg/middleware"
	"github.com/director74/macro_saga/pkg/rabbitmq"
	"github.com/director74/macro_saga/pkg/scheduler"
)

// App представляет приложение сервиса уведомлений
type App struct {
	config     *config.Config
	httpServer *http.Server
	db         *gorm.DB
	rabbitMQ   *rabbitmq.RabbitMQ
	consumer   *rabbitmqController.NotificationConsumer
	scheduler  *scheduler.Scheduler
	logger     zerolog.Logger
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logger.New("notification-service", cfg.LogLevel, os.Stdout)

	db, err := database.NewPostgresDB(cfg.Postgres)
	if err != nil {
		return nil, apperrors.AppendPrefix(err, "не удалось подключиться к базе данных")
	}

	if err := database.AutoMigrateWithCleanup(db, &entity.Notification{}, &ledger.CommandLedger{}, &lease.Lease{}); err != nil {
		return nil, apperrors.AppendPrefix(err, "не удалось выполнить миграцию")
	}

	rmq, err := messaging.InitRabbitMQ(cfg.RabbitMQ, logger.Component(log, "rabbitmq"))
	if err != nil {
		database.CloseDB(db)
		return nil, apperrors.AppendPrefix(err, "не удалось подключиться к RabbitMQ")
	}
	gateway := messaging.NewGateway(rmq, cfg.Messaging.Exchange, cfg.Messaging.Workers, "notification-service", logger.Component(log, "messaging"))

	a := &App{
		config:   cfg,
		db:       db,
		rabbitMQ: rmq,
		logger:   log,
	}

	emailSender, err := usecase.NewEmailSender(cfg.Mail, logger.Component(log, "mail"))
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	notificationRepo := repo.NewNotificationRepository(db)
	executor := ledger.NewExecutor(ledger.NewGormRepository(db), database.NewTransactor(db), logger.Component(log, "ledger"))
	notificationUseCase := usecase.NewNotificationUseCase(
		executor,
		notificationRepo,
		emailSender,
		gateway,
		cfg.Mail.FromEmail,
		logger.Component(log, "notifications"),
	)

	a.consumer = rabbitmqController.NewNotificationConsumer(gateway, notificationUseCase, logger.Component(log, "consumer"))
	if err := gateway.Setup(a.consumer.Topics()...); err != nil {
		a.Shutdown()
		return nil, apperrors.AppendPrefix(err, "ошибка при настройке RabbitMQ")
	}

	// Удаление старых уведомлений, аренда в той же базе
	a.scheduler = scheduler.New(lease.NewGuard(lease.NewPostgresLocker(db), lease.NewOwner()), logger.Component(log, "scheduler"))
	if cfg.Purge.Enabled {
		purge := jobs.NewPurgeJob(notificationRepo, cfg.Purge.RetentionDays, logger.Component(log, "purge"))
		if err := a.scheduler.Add(purge.Task(cfg.Purge)); err != nil {
			a.Shutdown()
			return nil, err
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		a.Shutdown()
		return nil, apperrors.AppendPrefix(err, "не удалось получить соединение с базой данных")
	}

	router := gin.New()
	router.Use(apperrors.RecoveryMiddleware())
	router.Use(apperrors.ErrorMiddleware())
	router.NoRoute(apperrors.NotFoundHandler())
	router.NoMethod(apperrors.MethodNotAllowedHandler())

	internalAuth := middleware.NewInternalAuthMiddleware(middleware.NewInternalAPIConfig())
	httpController.NewNotificationHandler(notificationUseCase, internalAuth, sqlDB, gateway).RegisterRoutes(router)

	a.httpServer = &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return a, nil
}

// Run запускает HTTP сервер, подписку и планировщик и ждет сигнала завершения
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if err := a.consumer.Start(ctx); err != nil {
		return err
	}

	g.Go(func() error {
		a.logger.Info().Str("port", a.config.HTTP.Port).Msg("HTTP сервер запущен")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка HTTP сервера: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info().Msg("Получен сигнал завершения, закрываем приложение...")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown корректно завершает работу приложения
func (a *App) Shutdown() error {
	errGroup := apperrors.NewErrorGroup()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.httpServer.Shutdown(ctx); err != nil {
			errGroup.AddPrefix(err, "ошибка при закрытии HTTP сервера")
		}
	}

	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(); err != nil {
			errGroup.AddPrefix(err, "ошибка при закрытии RabbitMQ")
		}
	}

	if a.db != nil {
		if err := database.CloseDB(a.db); err != nil {
			errGroup.AddPrefix(err, "ошибка при закрытии соединения с базой данных")
		}
	}

	if errGroup.HasErrors() {
		a.logger.Error().Err(errGroup).Msg("Ошибки при завершении")
		return errGroup
	}

	a.logger.Info().Msg("Сервис уведомлений остановлен")
	return nil
}
