package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/voxline/livechat-service/internal/api/http"
	"github.com/voxline/livechat-service/internal/api/http/handlers"
	"github.com/voxline/livechat-service/internal/auth"
	"github.com/voxline/livechat-service/internal/config"
	"github.com/voxline/livechat-service/internal/events"
	"github.com/voxline/livechat-service/internal/ledger"
	"github.com/voxline/livechat-service/internal/observability"
	"github.com/voxline/livechat-service/internal/persistence"
	"github.com/voxline/livechat-service/internal/presence"
	"github.com/voxline/livechat-service/internal/repository"
	"github.com/voxline/livechat-service/internal/service"
	"github.com/voxline/livechat-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	defer rdb.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	operatorRepo := repository.NewOperatorRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	historyRepo := repository.NewSessionHistoryRepository(pool)
	ratingRepo := repository.NewRatingRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	tracker := presence.NewTracker(rdb.ClientHandle(), cfg.Presence.HeartbeatTTL(), logger)
	capacityLedger := ledger.New(operatorRepo, tracker, metrics, logger)

	router := service.NewRouter(service.RouterDependencies{
		SessionRepo: sessionRepo,
		Ledger:      capacityLedger,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		SessionRepo:  sessionRepo,
		OperatorRepo: operatorRepo,
		MessageRepo:  messageRepo,
		HistoryRepo:  historyRepo,
		Ledger:       capacityLedger,
		Router:       router,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	ratingService := service.NewRatingService(service.RatingDependencies{
		SessionRepo: sessionRepo,
		RatingRepo:  ratingRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
		MaxValue:    cfg.Chat.MaxRatingValue,
	})
	operatorService := service.NewOperatorService(*cfg, operatorRepo, tracker)
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:     userRepo,
		OperatorRepo: operatorRepo,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	presenceWorker := worker.NewPresenceWorker(cfg.Presence, operatorRepo, tracker, chatService, metrics, logger)
	if presenceWorker != nil {
		presenceWorker.Start()
	}

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, operatorRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:           handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb),
		Users:            handlers.NewUsersHandler(authService),
		Sessions:         handlers.NewSessionsHandler(chatService, ratingService),
		OperatorSessions: handlers.NewOperatorSessionsHandler(chatService, operatorService, ratingService),
		Operators:        handlers.NewOperatorsHandler(authService, operatorService),
		AuthMiddleware:   authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if presenceWorker != nil {
		presenceWorker.Stop()
	}
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
