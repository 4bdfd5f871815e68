package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if host := os.Getenv("STREAMTEST_HOST"); host != "" {
		cfg.Target.Host = host
	}
	if port := os.Getenv("STREAMTEST_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Target.Port = p
		}
	}
	if workers := os.Getenv("STREAMTEST_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			cfg.Load.Workers = w
		}
	}
	if msgs := os.Getenv("STREAMTEST_MESSAGES"); msgs != "" {
		if m, err := strconv.Atoi(msgs); err == nil {
			cfg.Load.MessagesPerWorker = m
		}
	}
	if rate := os.Getenv("STREAMTEST_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Load.RatePerWorker = r
		}
	}
	if dir := os.Getenv("STREAMTEST_SESSIONS_DIR"); dir != "" {
		cfg.Artifact.SessionsDir = dir
	}
	if path := os.Getenv("STREAMTEST_STREAM_PATH"); path != "" {
		cfg.Artifact.StreamPath = path
	}
	if settle := os.Getenv("STREAMTEST_STARTUP_SETTLE"); settle != "" {
		if d, err := time.ParseDuration(settle); err == nil {
			cfg.Server.StartupSettle = d
		}
	}
	if addr := os.Getenv("STREAMTEST_METRICS_ADDR"); addr != "" {
		cfg.Metrics.Addr = addr
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
