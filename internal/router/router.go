package router

import (
	"log"
	"net/http"
	"os"
	"runtime"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moodtunes/backend/internal/audio"
	"github.com/moodtunes/backend/internal/broker"
	"github.com/moodtunes/backend/internal/config"
	"github.com/moodtunes/backend/internal/handlers"
	"github.com/moodtunes/backend/internal/metrics"
	"github.com/moodtunes/backend/internal/middleware"
	"github.com/moodtunes/backend/internal/services"
	"github.com/moodtunes/backend/internal/uploads"
)

// Dependencies are the long-lived components the routes are built from.
type Dependencies struct {
	Auth        *services.AuthService
	OAuth       *services.OAuthService
	Spotify     *services.SpotifyService
	Credentials *services.CredentialService
	SessionIDs  *services.SessionIDService
	Broker      *broker.Broker
	Uploads     *uploads.Store
	Prober      audio.Prober
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
	// Push is built from Broker and Metrics when nil.
	Push        *handlers.PushHandler
}

func New(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.AccessLogger(log.New(os.Stdout, "", log.LstdFlags), runtime.GOOS == "windows", "/callback"))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewRealIP(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Handlers
	pushHandler := deps.Push
	if pushHandler == nil {
		pushHandler = handlers.NewPushHandler(deps.Broker, deps.Metrics, cfg.CORSAllowedOrigins, cfg.PushSendBuffer)
	}
	authHandler := handlers.NewAuthHandler(deps.OAuth, deps.Spotify, deps.Credentials, deps.Auth, cfg.BaseURL, cfg.FrontendURL, cfg.RequestTimeout)
	moodHandler := handlers.NewMoodHandler(deps.Spotify, deps.Prober, deps.Uploads, deps.Broker, deps.Metrics, handlers.MoodHandlerOptions{
		Timeout:        cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	sessionHandler := handlers.NewSessionHandler(deps.SessionIDs)

	// Operational endpoints are not rate limited
	r.Get("/health", handlers.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware)
		}

		// Push channel; browser clients connect to the root
		r.Get("/", pushHandler.Serve)
		r.Get("/ws", pushHandler.Serve)

		// OAuth handshake
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)

		r.Get("/sessions/new", sessionHandler.New)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.Auth))

			r.Post("/suggest", moodHandler.Suggest)
			r.Post("/analyze-audio", moodHandler.AnalyzeAudio)
		})
	})

	return r
}
