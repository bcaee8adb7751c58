package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/matchforge/tournament-engine/brackets"
	"github.com/matchforge/tournament-engine/cache"
	"github.com/matchforge/tournament-engine/config"
	"github.com/matchforge/tournament-engine/db"
	"github.com/matchforge/tournament-engine/handlers"
	"github.com/matchforge/tournament-engine/repositories"
	api "github.com/matchforge/tournament-engine/routes"
	"github.com/matchforge/tournament-engine/services"
	"github.com/matchforge/tournament-engine/storage"
	"github.com/matchforge/tournament-engine/wallet"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Кэш лидербордов: Redis опционален, без него работаем напрямую с БД.
	var cacheClient cache.Cache
	if cfg.RedisAddr != "" {
		cacheClient, err = cache.NewRedisCache(context.Background(), cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("redis cache connected", slog.String("addr", cfg.RedisAddr))
	} else {
		cacheClient = cache.NewNoop()
		logger.Info("redis is not configured, leaderboard cache disabled")
	}

	// Загрузчик файлов (Cloudflare R2) для экспорта сеток.
	var uploader storage.FileUploader
	if cfg.R2AccountID != "" {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2Bucket,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	}

	// Провайдер выплат (Stripe); без API-ключа призы можно только рассчитывать.
	var walletService wallet.Service
	if cfg.StripeAPIKey != "" {
		// Сопоставление userID -> Stripe-аккаунт живёт во внешнем identity-сервисе,
		// движок получает кошельки явно через PUT /prizes/{id}/wallet.
		resolver := func(ctx context.Context, userID int) (string, error) {
			return "", wallet.ErrWalletNotFound
		}
		walletService = wallet.NewStripeService(cfg.StripeAPIKey, resolver, logger)
		logger.Info("stripe wallet provider initialized")
	} else {
		logger.Info("stripe is not configured, prize distribution disabled")
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	bracketRepo := repositories.NewPostgresBracketRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	standingRepo := repositories.NewPostgresStandingRepository(dbConn)
	prizeRepo := repositories.NewPostgresPrizeRepository(dbConn)
	logger.Info("repositories initialized")

	// Инициализация сервисов
	tournamentService := services.NewTournamentService(dbConn, tournamentRepo, bracketRepo, standingRepo, logger)
	registrationService := services.NewRegistrationService(dbConn, tournamentRepo, registrationRepo, standingRepo, logger)
	standingService := services.NewStandingService(
		dbConn,
		standingRepo,
		matchRepo,
		tournamentRepo,
		cacheClient,
		wsHub,
		cfg.LeaderboardActiveTTL,
		cfg.LeaderboardFinalTTL,
		logger,
	)
	matchService := services.NewMatchService(dbConn, matchRepo, bracketRepo, tournamentRepo, standingService, wsHub, logger)
	bracketService := services.NewBracketService(
		dbConn,
		tournamentRepo,
		registrationRepo,
		bracketRepo,
		matchRepo,
		standingService,
		matchService,
		uploader,
		wsHub,
		logger,
	)
	prizeService := services.NewPrizeService(
		dbConn,
		prizeRepo,
		tournamentRepo,
		registrationRepo,
		standingRepo,
		walletService,
		wsHub,
		cfg.EscrowWalletID,
		cfg.WalletTransferWait,
		logger,
	)
	logger.Info("services initialized")

	// Планировщик автоматического движения турниров по датам.
	go func() {
		ticker := time.NewTicker(cfg.SchedulerInterval)
		defer ticker.Stop()
		logger.Info("tournament status scheduler started", slog.Duration("interval", cfg.SchedulerInterval))

		runOnce := func() {
			moved, err := tournamentService.AutoUpdateStatusesByDates(context.Background())
			if err != nil {
				logger.Error("scheduler run failed", slog.Any("error", err))
				return
			}
			if moved > 0 {
				logger.Info("scheduler moved tournaments", slog.Int("count", moved))
			}
		}

		runOnce()
		for range ticker.C {
			runOnce()
		}
	}()

	// Инициализация обработчиков HTTP
	routerHandlers := api.Handlers{
		Tournaments:   handlers.NewTournamentHandler(tournamentService),
		Registrations: handlers.NewRegistrationHandler(registrationService),
		Brackets:      handlers.NewBracketHandler(bracketService),
		Matches:       handlers.NewMatchHandler(matchService),
		Leaderboards:  handlers.NewLeaderboardHandler(standingService),
		Prizes:        handlers.NewPrizeHandler(prizeService),
		WebSocket:     handlers.NewWebSocketHandler(wsHub, logger),
	}
	router := api.SetupRoutes(routerHandlers, []byte(cfg.JWTSecretKey))
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
