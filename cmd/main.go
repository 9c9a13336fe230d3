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

	"github.com/Nurbek02/brainduel/auth"
	"github.com/Nurbek02/brainduel/config"
	"github.com/Nurbek02/brainduel/db"
	"github.com/Nurbek02/brainduel/handlers"
	"github.com/Nurbek02/brainduel/repositories"
	api "github.com/Nurbek02/brainduel/routes"
	"github.com/Nurbek02/brainduel/services"
	"github.com/Nurbek02/brainduel/storage"
	"github.com/Nurbek02/brainduel/workers"
	"github.com/Nurbek02/brainduel/youtube"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

const connectTimeout = 5 * time.Second

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
	dbConn, err := db.Connect(cfg.DatabaseURL, connectTimeout)
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

	// Redis держит лидерборд трендов; без него работаем через Postgres.
	redisClient, err := db.ConnectRedis(cfg.RedisAddr, connectTimeout)
	if err != nil {
		logger.Warn("redis unavailable, trend leaderboard falls back to Postgres", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis connection", slog.Any("error", err))
			}
		}()
		logger.Info("redis connection established")
	}

	// Инициализация загрузчика файлов (Cloudflare R2)
	var uploader storage.FileUploader
	if cfg.R2AccountID != "" {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 configuration absent, avatar uploads disabled")
	}

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	profileRepo := repositories.NewPostgresProfileRepository(dbConn)
	problemRepo := repositories.NewPostgresProblemRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	queueRepo := repositories.NewPostgresQueueRepository(dbConn)
	videoRepo := repositories.NewPostgresVideoRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	googleVerifier := auth.NewGoogleVerifier(cfg.GoogleClientID)
	authService := services.NewAuthService(userRepo, profileRepo, googleVerifier)
	profileService := services.NewProfileService(userRepo, profileRepo, uploader)
	gameService := services.NewGameService(
		dbConn, // For its own transactions
		matchRepo,
		queueRepo,
		problemRepo,
		profileRepo,
		services.GameServiceConfig{ForfeitParticipantsOnly: cfg.ForfeitParticipantsOnly},
		logger,
	)
	trendService := services.NewTrendService(videoRepo, redisClient, logger)
	logger.Info("Services initialized")

	// Запуск фонового опроса статистики YouTube
	if cfg.YouTubeAPIKey != "" {
		worker := workers.NewYouTubeWorker(
			youtube.NewClient(cfg.YouTubeAPIKey),
			videoRepo,
			redisClient,
			workers.YouTubeWorkerConfig{
				Interval:      cfg.FetchInterval,
				Region:        cfg.YouTubeRegion,
				SearchResults: cfg.YouTubeSearchResults,
			},
			logger,
		)
		if err := worker.Start(); err != nil {
			logger.Error("failed to start youtube stats worker", slog.Any("error", err))
			os.Exit(1)
		}
		defer worker.Stop()
	} else {
		logger.Warn("YOUTUBE_API_KEY not set, stats worker disabled")
	}

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	profileHandler := handlers.NewProfileHandler(profileService)
	gameHandler := handlers.NewGameHandler(gameService)
	videoHandler := handlers.NewVideoHandler(trendService)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		[]byte(cfg.JWTSecretKey),
		authHandler,
		profileHandler,
		gameHandler,
		videoHandler,
	)
	logger.Info("Routes configured")

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
