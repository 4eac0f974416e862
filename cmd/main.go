package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"catalog-backend/internal/api"
	"catalog-backend/internal/auth"
	"catalog-backend/internal/config"
	"catalog-backend/internal/media"
	"catalog-backend/internal/store"
)

const serviceName = "catalog-backend"

func main() {
	if err := godotenv.Load(); err != nil {
		// Not fatal; environment variables may be set another way.
		slog.Info("no .env file found, relying on system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info("starting service", slog.String("env", cfg.AppEnv))

	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.PingContext(context.Background()); err != nil {
		logger.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")
	dbStore := store.NewPostgresStore(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to ping redis", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Media.Dir, 0o755); err != nil {
		logger.Error("failed to create media directory", slog.Any("error", err))
		os.Exit(1)
	}
	mediaStore := media.NewStore(cfg.Media.Dir, cfg.Media.PublicBase, cfg.Media.MaxUploadBytes)

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	revoked := auth.NewRevocationList(rdb)
	authService := auth.NewService(dbStore, issuer, revoked)

	handler := api.NewHTTPHandler(
		logger, dbStore, dbStore, dbStore,
		authService, mediaStore, cfg.Features.ExtendedRoutes,
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	registerHealthCheck(router, logger, db)
	registerMediaFiles(router, cfg.Media)
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPServer.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutRead,
		WriteTimeout: cfg.HTTPServer.TimeoutWrite,
		IdleTimeout:  cfg.HTTPServer.TimeoutIdle,
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("port", cfg.HTTPServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	waitForShutdown(logger, httpServer, dbStore, rdb)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func registerHealthCheck(router *chi.Mux, logger *slog.Logger, db *sql.DB) {
	router.Get("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		dbStatus := "healthy"
		if err := db.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
			logger.Warn("health check DB ping failed", slog.Any("error", err))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"database":  dbStatus,
		})
	})
}

// registerMediaFiles serves stored product images at the public base path.
func registerMediaFiles(router *chi.Mux, cfg config.MediaConfig) {
	base := strings.TrimRight(cfg.PublicBase, "/")
	fs := http.StripPrefix(base+"/", http.FileServer(http.Dir(cfg.Dir)))
	router.Get(base+"/*", func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	})
}

func waitForShutdown(logger *slog.Logger, httpServer *http.Server, dbStore *store.PostgresStore, rdb *redis.Client) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-sigChan
	logger.Info("starting graceful shutdown", slog.String("signal", receivedSignal.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("error closing redis client", slog.Any("error", err))
	}
	if err := dbStore.Close(); err != nil {
		logger.Warn("error closing database connection", slog.Any("error", err))
	}
	logger.Info("graceful shutdown complete")
}
