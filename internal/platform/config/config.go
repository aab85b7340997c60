package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the environment leaves a setting unset or unparseable.
var (
	DefaultAddr             = ":8080"
	DefaultUpstreamTimeout  = 30 * time.Second
	DefaultBatchConcurrency = 4
	DefaultRequestTimeout   = 60 * time.Second
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    slog.Level
	// RequestTimeout bounds a whole inbound request, batch rows included.
	RequestTimeout   time.Duration
	BatchConcurrency int
	// TrustedProxies are CIDR ranges allowed to set X-Forwarded-For.
	TrustedProxies []string
	Growth         GrowthAPI
}

// GrowthAPI configures the upstream calculation service.
type GrowthAPI struct {
	BaseURL string
	// Timeout is the http.Client timeout of the transport. Zero disables it.
	Timeout time.Duration
	// APIKey is the CLI's default subscription key. The server always
	// forwards the caller's key.
	APIKey string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:             stringEnv("GROWTHSHEET_ADDR", DefaultAddr),
		Environment:      stringEnv("ENVIRONMENT", "development"),
		LogLevel:         levelEnv("LOG_LEVEL", slog.LevelInfo),
		RequestTimeout:   durationEnv("REQUEST_TIMEOUT", DefaultRequestTimeout),
		BatchConcurrency: intEnv("BATCH_CONCURRENCY", DefaultBatchConcurrency),
		TrustedProxies:   listEnv("TRUSTED_PROXIES"),
		Growth:           GrowthFromEnv(),
	}
}

// GrowthFromEnv reads the upstream settings shared by the server and the CLI.
func GrowthFromEnv() GrowthAPI {
	return GrowthAPI{
		BaseURL: os.Getenv("GROWTH_API_BASE_URL"),
		Timeout: durationEnv("GROWTH_API_TIMEOUT", DefaultUpstreamTimeout),
		APIKey:  os.Getenv("GROWTH_API_KEY"),
	}
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if v == "0" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return fallback
}

func levelEnv(key string, fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(os.Getenv(key)))); err != nil {
		return fallback
	}
	return level
}

func listEnv(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
