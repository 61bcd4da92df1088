package middleware

import (
	"time"

	"github.com/repsync-io/repsync/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: applied to all requests
//   - Per-user: applied to authenticated requests
//   - Unauthenticated: applied to requests without an identity
//
// Burst capacity allows temporary bursts above the sustained rate.
// Burst fields left at 0 are computed automatically as 2 × rate.
type Config struct {
	GlobalRPS int // Default: 100
	UserRPS   int // Default: 20
	UnAuthRPS int // Default: 10

	GlobalBurst int // Default: 0 (computed as 2 × GlobalRPS)
	UserBurst   int // Default: 0 (computed as 2 × UserRPS)
	UnAuthBurst int // Default: 0 (computed as 2 × UnAuthRPS)

	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 10,000
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("REPSYNC_GLOBAL_RPS", defaultGlobalRPS),
		UserRPS:   config.GetEnvInt("REPSYNC_USER_RPS", defaultUserRPS),
		UnAuthRPS: config.GetEnvInt("REPSYNC_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst: config.GetEnvInt("REPSYNC_GLOBAL_BURST", 0),
		UserBurst:   config.GetEnvInt("REPSYNC_USER_BURST", 0),
		UnAuthBurst: config.GetEnvInt("REPSYNC_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"REPSYNC_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("REPSYNC_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:  config.GetEnvInt("REPSYNC_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
