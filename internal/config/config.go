// internal/config/config.go
//
// Runtime configuration, read from the environment (optionally seeded from a
// `.env` file in development).
//
// Environment variables:
//   PORT               HTTP port (default 5175)
//   DB_PATH            SQLite file (default ./data/tonewheel.db)
//   LOG_LEVEL          zerolog level (default info)
//   JWT_SECRET         HS256 secret (default dev_secret_change_me)
//   JWT_EXPIRES_DAYS   token lifetime in days (default 14)
//   COOKIE_NAME        auth cookie name (default tonewheel_token)
//   CLIENT_ORIGIN      allowed CORS origin (default http://localhost:5173)
//   NODE_ENV           "production" enables Secure cookies
//   DAILY_SALT         salt for the daily challenge (default local_dev_salt)
//   SCALE / SCALE_ROOT candidate pool (default major / C4)
//   CHALLENGE_PAUSE    per-note pause, Go duration (default 1s)
//   CHALLENGE_PREEMPT  cancel in-flight playback on a new round (default false)

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/robalobadob/tonewheel/internal/music"
)

type Config struct {
	Port             string
	DBPath           string
	LogLevel         string
	JWTSecret        string
	JWTExpiresDays   int
	CookieName       string
	ClientOrigin     string
	Production       bool
	DailySalt        string
	Scale            string
	ScaleRoot        string
	ChallengePause   time.Duration
	ChallengePreempt bool
	SessionIdle      time.Duration // live sessions untouched this long are evicted
}

// Load reads `.env` (if present) and then the environment.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:             Str("PORT", "5175"),
		DBPath:           Str("DB_PATH", "./data/tonewheel.db"),
		LogLevel:         Str("LOG_LEVEL", "info"),
		JWTSecret:        Str("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays:   Int("JWT_EXPIRES_DAYS", 14),
		CookieName:       Str("COOKIE_NAME", "tonewheel_token"),
		ClientOrigin:     Str("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:       os.Getenv("NODE_ENV") == "production",
		DailySalt:        Str("DAILY_SALT", "local_dev_salt"),
		Scale:            Str("SCALE", "major"),
		ScaleRoot:        Str("SCALE_ROOT", "C4"),
		ChallengePause:   Duration("CHALLENGE_PAUSE", time.Second),
		ChallengePreempt: Bool("CHALLENGE_PREEMPT", false),
		SessionIdle:      Duration("SESSION_IDLE", 30*time.Minute),
	}
}

// ApplyLogLevel sets the global zerolog level; unknown levels are ignored.
func (c Config) ApplyLogLevel() {
	if lvl, err := zerolog.ParseLevel(c.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

// Pool resolves the configured scale into a candidate pool.
func (c Config) Pool() ([]music.Note, error) {
	return music.Pool(c.Scale, c.ScaleRoot)
}

// Str returns the value of k or def if unset/empty.
func Str(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Int returns k parsed as an int, or def.
func Int(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

// Bool returns k parsed as a bool, or def.
func Bool(k string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(k)); err == nil {
		return b
	}
	return def
}

// Duration returns k parsed as a Go duration, or def.
func Duration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil && d > 0 {
		return d
	}
	return def
}
