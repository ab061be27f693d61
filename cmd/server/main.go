package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/oauth2/spotify"

	"github.com/moodtunes/backend/internal/audio"
	"github.com/moodtunes/backend/internal/broker"
	"github.com/moodtunes/backend/internal/config"
	"github.com/moodtunes/backend/internal/crypto"
	"github.com/moodtunes/backend/internal/database"
	"github.com/moodtunes/backend/internal/db"
	"github.com/moodtunes/backend/internal/handlers"
	"github.com/moodtunes/backend/internal/logging"
	"github.com/moodtunes/backend/internal/metrics"
	"github.com/moodtunes/backend/internal/middleware"
	"github.com/moodtunes/backend/internal/router"
	"github.com/moodtunes/backend/internal/services"
	sentryscrub "github.com/moodtunes/backend/internal/sentry"
	"github.com/moodtunes/backend/internal/uploads"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env before anything reads the environment
	envErr := godotenv.Load()

	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.String("error", envErr.Error()))
	}

	// Load configuration
	cfg := config.Load()

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:                   cfg.SentryDSN,
			Environment:           cfg.SentryEnvironment,
			BeforeSend:            sentryscrub.ScrubEvent,
			BeforeSendTransaction: sentryscrub.ScrubTransaction,
		})
		if err != nil {
			slog.Error("failed to initialize sentry", slog.String("error", err.Error()))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database
	sqlDB, err := database.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(sqlDB); err != nil {
		slog.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sealer, err := crypto.NewSealer(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("failed to derive token sealing key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := uploads.NewStore(cfg.UploadDir)
	if err != nil {
		slog.Error("failed to prepare upload directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Core
	b := broker.New(m)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	go rateLimiter.Run(ctx)

	prober := audio.NewProber(cfg.FFprobePath)
	if _, ok := prober.(audio.MP3Probe); ok {
		slog.Warn("ffprobe not found, audio analysis limited to mp3", slog.String("ffprobe_path", cfg.FFprobePath))
	}

	deps := router.Dependencies{
		Auth:        services.NewAuthService(cfg.JWTSecret, cfg.JWTDuration),
		OAuth:       services.NewOAuthService(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.RedirectURL(), spotify.Endpoint),
		Spotify:     services.NewSpotifyService(cfg.SpotifyAPIBaseURL, cfg.SpotifyMaxRetries, cfg.SpotifyRetryBackoff),
		Credentials: services.NewCredentialService(db.New(sqlDB), sealer),
		SessionIDs:  services.NewSessionIDService(func(id string) bool { return b.Subscribers(id) > 0 }),
		Broker:      b,
		Uploads:     store,
		Prober:      prober,
		Metrics:     m,
		Gatherer:    registry,
		RateLimiter: rateLimiter,
		Push:        handlers.NewPushHandler(b, m, cfg.CORSAllowedOrigins, cfg.PushSendBuffer),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(deps.Push.CloseAll)

	slog.Info("starting server", slog.String("addr", srv.Addr), slog.String("frontend_url", cfg.FrontendURL))
	if err := runServer(ctx, srv, deps.Push.Wait); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// runServer serves until ctx is canceled, then drains for up to 10 seconds.
// Hijacked connections are not covered by Shutdown; drain waits for them.
func runServer(ctx context.Context, srv *http.Server, drain func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if drain != nil {
			if err := drain(shutdownCtx); err != nil {
				slog.Warn("push connections did not drain", slog.String("error", err.Error()))
			}
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
