// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port                string
	BaseURL             string
	FrontendURL         string
	DatabasePath        string
	JWTSecret           string
	JWTDuration         time.Duration
	TokenEncryptionKey  string
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyAPIBaseURL   string
	SpotifyMaxRetries   int
	SpotifyRetryBackoff time.Duration
	UploadDir           string
	MaxUploadBytes      int64
	FFprobePath         string
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	RequestTimeout      time.Duration
	PushSendBuffer      int
	CORSAllowedOrigins  []string
	TrustedProxies      []string
	SentryDSN           string
	SentryEnvironment   string
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	frontendURL := strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/")
	jwtSecret := getEnv("JWT_SECRET", "change-me-in-production") // #nosec G101 -- intentional dev default

	return &Config{
		Port:                getEnv("PORT", "3000"),
		BaseURL:             strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		FrontendURL:         frontendURL,
		DatabasePath:        getEnv("DATABASE_PATH", "./moodtunes.db"),
		JWTSecret:           jwtSecret,
		JWTDuration:         getDurationEnv("JWT_DURATION", time.Hour),
		TokenEncryptionKey:  getEnv("TOKEN_ENCRYPTION_KEY", jwtSecret),
		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyAPIBaseURL:   strings.TrimRight(getEnv("SPOTIFY_API_BASE_URL", "https://api.spotify.com/v1"), "/"),
		SpotifyMaxRetries:   getIntEnv("SPOTIFY_MAX_RETRIES", 3),
		SpotifyRetryBackoff: getDurationEnv("SPOTIFY_RETRY_BACKOFF", 500*time.Millisecond),
		UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:      int64(getIntEnv("MAX_UPLOAD_BYTES", 25<<20)),
		FFprobePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		RateLimitRequests:   getIntEnv("RATE_LIMIT_REQUESTS", 50),
		RateLimitWindow:     getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),
		RequestTimeout:      getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		PushSendBuffer:      getIntEnv("PUSH_SEND_BUFFER", 16),
		CORSAllowedOrigins:  []string{frontendURL},
		TrustedProxies:      getStringSliceEnv("TRUSTED_PROXIES"),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		SentryEnvironment:   getEnv("SENTRY_ENVIRONMENT", "production"),
	}
}

// RedirectURL is the OAuth callback registered with Spotify.
func (c *Config) RedirectURL() string {
	return c.BaseURL + "/callback"
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
