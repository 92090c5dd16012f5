package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"marketwatch/internal/feed"
	"marketwatch/internal/ledger"

	"github.com/joho/godotenv"
)

// Config holds process configuration loaded from the environment.
type Config struct {
	WatchListPath string
	Symbols       []string // fallback when the watch-list file is absent
	SignalModel   string

	PollInterval    time.Duration
	MarketHoursOnly bool
	InitialCapital  float64

	SQLitePath    string
	RedisAddr     string
	RedisPassword string

	HTTPAddr    string
	MetricsAddr string
	WebhookURL  string

	QuoteBaseURL  string
	KlineBaseURL  string
	MinuteBaseURL string

	LogLevel string
}

// Load reads configuration from environment variables, after loading an
// optional .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("[config] .env not loaded", slog.Any("err", err))
	}

	return &Config{
		WatchListPath: getEnv("WATCHLIST_PATH", "watchlist.yaml"),
		Symbols:       splitList(getEnv("SYMBOLS", "sh600519")),
		SignalModel:   getEnv("SIGNAL_MODEL", "t0"),

		PollInterval:    time.Duration(getEnvInt("POLL_INTERVAL_MS", 3000)) * time.Millisecond,
		MarketHoursOnly: getEnvBool("MARKET_HOURS_ONLY", false),
		InitialCapital:  getEnvFloat("INITIAL_CAPITAL", ledger.DefaultInitialCapital),

		SQLitePath:    getEnv("SQLITE_PATH", "data/marketwatch.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		WebhookURL:  getEnv("WEBHOOK_URL", ""),

		QuoteBaseURL:  getEnv("QUOTE_BASE_URL", feed.DefaultQuoteURL),
		KlineBaseURL:  getEnv("KLINE_BASE_URL", feed.DefaultKlineURL),
		MinuteBaseURL: getEnv("MINUTE_BASE_URL", feed.DefaultMinuteURL),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("[config] ignoring invalid value", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		slog.Warn("[config] ignoring invalid value", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("[config] ignoring invalid value", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return b
}
