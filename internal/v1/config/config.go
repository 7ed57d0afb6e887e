// Package config loads and validates process configuration from the
// environment for the control-plane service.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the control plane.
type Config struct {
	// Required variables
	ServerSecret string
	Port         string
	LiveKitURL   string
	LiveKitKey   string
	LiveKitSecret string

	// Optional variables with defaults
	GoEnv    string
	LogLevel string
	BasePath string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	ObjectStoreDir string

	RoomIDRandomLength  int
	MinAutoDeletionLead time.Duration

	RecordingLockTTL       time.Duration
	RecordingStartTimeout  time.Duration
	OrphanLockGCInterval   time.Duration
	OrphanLockGracePeriod  time.Duration

	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RoomMemberTokenTTL time.Duration

	AllowedOrigins string

	OIDCIssuer   string
	OIDCAudience string

	OTELCollectorAddr string

	// Rate limits (Defaults: M = Minute, H = Hour)
	RateLimitAPIGlobal     string
	RateLimitAPIPublic     string
	RateLimitAPIRooms      string
	RateLimitAPIRecordings string
	RateLimitWebhook       string
}

// ValidateEnv validates all required environment variables and returns a
// Config object. Errors are aggregated so an operator can fix everything in
// one pass rather than one variable at a time.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: SERVER_SECRET (minimum 32 characters) - signs all minted tokens.
	cfg.ServerSecret = os.Getenv("SERVER_SECRET")
	if cfg.ServerSecret == "" {
		errs = append(errs, "SERVER_SECRET is required")
	} else if len(cfg.ServerSecret) < 32 {
		errs = append(errs, fmt.Sprintf("SERVER_SECRET must be at least 32 characters (got %d)", len(cfg.ServerSecret)))
	}

	// PORT (defaults to 6080; must be a valid port number)
	cfg.Port = getEnvOrDefault("PORT", "6080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Required: LIVEKIT_URL / LIVEKIT_API_KEY / LIVEKIT_API_SECRET
	cfg.LiveKitURL = os.Getenv("LIVEKIT_URL")
	if cfg.LiveKitURL == "" {
		errs = append(errs, "LIVEKIT_URL is required")
	}
	cfg.LiveKitKey = os.Getenv("LIVEKIT_API_KEY")
	cfg.LiveKitSecret = os.Getenv("LIVEKIT_API_SECRET")
	if cfg.LiveKitKey == "" || cfg.LiveKitSecret == "" {
		errs = append(errs, "LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}

	// REDIS_ADDR (used unless REDIS_ENABLED=false; defaults to localhost:6379)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") != "false"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.ObjectStoreDir = getEnvOrDefault("OBJECT_STORE_DIR", "./data/objectstore")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.BasePath = getEnvOrDefault("BASE_PATH", "")
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	cfg.OIDCIssuer = os.Getenv("OIDC_ISSUER")
	cfg.OIDCAudience = os.Getenv("OIDC_AUDIENCE")

	cfg.OTELCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	var err error
	cfg.RoomIDRandomLength, err = strconv.Atoi(getEnvOrDefault("ROOM_ID_RANDOM_LENGTH", "8"))
	if err != nil || cfg.RoomIDRandomLength < 4 {
		errs = append(errs, "ROOM_ID_RANDOM_LENGTH must be an integer >= 4")
	}

	cfg.MinAutoDeletionLead = durationOrDefault(&errs, "MIN_AUTO_DELETION_LEAD", time.Hour)
	cfg.RecordingLockTTL = durationOrDefault(&errs, "RECORDING_LOCK_TTL", 5*time.Minute)
	cfg.RecordingStartTimeout = durationOrDefault(&errs, "RECORDING_START_TIMEOUT", 30*time.Second)
	cfg.OrphanLockGCInterval = durationOrDefault(&errs, "ORPHAN_LOCK_GC_INTERVAL", time.Minute)
	cfg.OrphanLockGracePeriod = durationOrDefault(&errs, "ORPHAN_LOCK_GRACE_PERIOD", time.Minute)
	cfg.AccessTokenTTL = durationOrDefault(&errs, "ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = durationOrDefault(&errs, "REFRESH_TOKEN_TTL", 168*time.Hour)
	cfg.RoomMemberTokenTTL = durationOrDefault(&errs, "ROOM_MEMBER_TOKEN_TTL", 4*time.Hour)

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "1000-M")
	cfg.RateLimitAPIPublic = getEnvOrDefault("RATE_LIMIT_API_PUBLIC", "100-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "100-M")
	cfg.RateLimitAPIRecordings = getEnvOrDefault("RATE_LIMIT_API_RECORDINGS", "60-M")
	cfg.RateLimitWebhook = getEnvOrDefault("RATE_LIMIT_WEBHOOK", "500-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func durationOrDefault(errs *[]string, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a valid duration (got '%s')", key, v))
		return def
	}
	return d
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

// logValidatedConfig logs the validated configuration with secrets redacted.
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"server_secret", redactSecret(cfg.ServerSecret),
		"port", cfg.Port,
		"livekit_url", cfg.LiveKitURL,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"object_store_dir", cfg.ObjectStoreDir,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
