package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/director74/macro_saga/macro-service/config"
	httpController "github.com/director74/macro_saga/macro-service/internal/controller/http"
	rabbitmqController "github.com/director74/macro_saga/macro-service/internal/controller/rabbitmq"
	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/macro-service/internal/jobs"
	"github.com/director74/macro_saga/macro-service/internal/repo"
	"github.com/director74/macro_saga/macro-service/internal/usecase"
	"github.com/director74/macro_saga/pkg/auth"
	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
	"github.com/director74/macro_saga/pkg/lease"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/logger"
	"github.com/director74/macro_saga/pkg/messaging"
	"github.com/director74/macro_saga/pkg/rabbitmq"
	"github.com/director74/macro_saga/pkg/saga"
	"github.com/director74/macro_saga/pkg/scheduler"
)

// App представляет приложение
type App struct {
	config     *config.Config
	httpServer *http.Server
	db         *gorm.DB
	rabbitMQ   *rabbitmq.RabbitMQ
	redis      *redis.Client
	consumer   *rabbitmqController.SagaConsumer
	scheduler  *scheduler.Scheduler
	logger     zerolog.Logger
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logger.New("macro-service", cfg.LogLevel, os.Stdout)

	db, err := database.NewPostgresDB(cfg.Postgres)
	if err != nil {
		return nil, apperrors.AppendPrefix(err, "не удалось подключиться к базе данных")
	}

	if err := database.AutoMigrateWithCleanup(db,
		&saga.Saga{}, &saga.SagaEventState{}, &ledger.CommandLedger{}, &entity.Macro{}, &lease.Lease{},
	); err != nil {
		return nil, apperrors.AppendPrefix(err, "не удалось выполнить миграцию")
	}

	rmq, err := messaging.InitRabbitMQ(cfg.RabbitMQ, logger.Component(log, "rabbitmq"))
	if err != nil {
		database.CloseDB(db)
		return nil, apperrors.AppendPrefix(err, "не удалось подключиться к RabbitMQ")
	}
	gateway := messaging.NewGateway(rmq, cfg.Messaging.Exchange, cfg.Messaging.Workers, "macro-service", logger.Component(log, "messaging"))

	a := &App{
		config:   cfg,
		db:       db,
		rabbitMQ: rmq,
		logger:   log,
	}

	locker, err := a.newLocker()
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	// Репозитории
	tx := database.NewTransactor(db)
	sagaRepo := repo.NewSagaRepository(db)
	macroRepo := repo.NewMacroRepository(db)
	ledgerRepo := ledger.NewGormRepository(db)

	// Оркестраторы саг
	sagaLog := logger.Component(log, "saga")
	opts := []saga.Option{
		saga.WithSystemUser(cfg.Saga.SystemUser),
		saga.WithRetryPolicy(saga.RetryPolicy{
			MaxAttempts:  cfg.Saga.RetryMaxAttempts,
			InitialDelay: cfg.Saga.RetryInitialDelay,
			MaxDelay:     cfg.Saga.RetryMaxDelay,
			Multiplier:   2,
		}),
	}
	steps := usecase.NewSagaSteps(cfg.Notification)
	createSaga := saga.NewOrchestrator(steps.CreateMacroGraph(), sagaRepo, tx, gateway, sagaLog, opts...)
	updateSaga := saga.NewOrchestrator(steps.UpdateMacroGraph(), sagaRepo, tx, gateway, sagaLog, opts...)

	// Use cases
	macroUseCase := usecase.NewMacroUseCase(macroRepo, createSaga, updateSaga, cfg.Saga.SystemUser, logger.Component(log, "macros"))
	sagaUseCase := usecase.NewSagaUseCase(sagaRepo)
	executor := ledger.NewExecutor(ledgerRepo, tx, logger.Component(log, "ledger"))
	commandHandler := usecase.NewMacroCommandHandler(executor, macroRepo, gateway, cfg.Saga.SystemUser, logger.Component(log, "commands"))

	// Подписки RabbitMQ
	a.consumer = rabbitmqController.NewSagaConsumer(gateway, commandHandler, logger.Component(log, "consumer"), createSaga, updateSaga)
	topics := append(a.consumer.Topics(), saga.TopicEmailAPI)
	if err := gateway.Setup(topics...); err != nil {
		a.Shutdown()
		return nil, apperrors.AppendPrefix(err, "ошибка при настройке RabbitMQ")
	}

	// Периодические задания
	a.scheduler = scheduler.New(lease.NewGuard(locker, lease.NewOwner()), logger.Component(log, "scheduler"))
	if cfg.Purge.Enabled {
		purge := jobs.NewPurgeJob(sagaRepo, cfg.Purge.RetentionDays, logger.Component(log, "purge"))
		if err := a.scheduler.Add(purge.Task(cfg.Purge)); err != nil {
			a.Shutdown()
			return nil, err
		}
	}
	if cfg.Watchdog.Enabled {
		watchdog := jobs.NewWatchdogJob(cfg.Watchdog, logger.Component(log, "watchdog"), createSaga, updateSaga)
		if err := a.scheduler.Add(watchdog.Task()); err != nil {
			a.Shutdown()
			return nil, err
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		a.Shutdown()
		return nil, apperrors.AppendPrefix(err, "не удалось получить соединение с базой данных")
	}

	// HTTP
	jwtManager := auth.NewJWTManager(auth.NewConfig(&cfg.JWT))
	authMiddleware := auth.NewAuthMiddleware(jwtManager)

	a.httpServer = &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      newRouter(authMiddleware, macroUseCase, sagaUseCase, sqlDB, gateway),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return a, nil
}

func newRouter(mw *auth.AuthMiddleware, macros httpController.MacroService, sagas httpController.SagaService, db *sql.DB, broker httpController.BrokerHealth) *gin.Engine {
	router := gin.New()

	router.Use(apperrors.RecoveryMiddleware())
	router.Use(apperrors.ErrorMiddleware())

	router.NoRoute(apperrors.NotFoundHandler())
	router.NoMethod(apperrors.MethodNotAllowedHandler())

	httpController.NewHealthHandler(db, broker).RegisterRoutes(router)
	httpController.NewMacroHandler(macros, mw).RegisterRoutes(router)
	httpController.NewSagaHandler(sagas, mw).RegisterRoutes(router)

	return router
}

// newLocker хранилище аренды для периодических заданий
func (a *App) newLocker() (lease.Locker, error) {
	switch a.config.Lease.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.config.Redis.Addr,
			Password: a.config.Redis.Password,
			DB:       a.config.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, apperrors.AppendPrefix(err, "не удалось подключиться к Redis")
		}
		return lease.NewRedisLocker(a.redis), nil
	case "postgres", "":
		return lease.NewPostgresLocker(a.db), nil
	default:
		return nil, fmt.Errorf("неизвестный LEASE_BACKEND %q", a.config.Lease.Backend)
	}
}

// Run запускает HTTP сервер, подписки и планировщик и ждет сигнала завершения
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

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errGroup.AddPrefix(err, "ошибка при закрытии Redis")
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

	a.logger.Info().Msg("Приложение успешно завершено")
	return nil
}
