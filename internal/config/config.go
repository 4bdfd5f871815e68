package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a harness run. Zero values are filled in by
// Default; a yaml file and STREAMTEST_* env vars may override any field.
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Load     LoadConfig     `yaml:"load"`
	Session  SessionConfig  `yaml:"session"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TargetConfig addresses the UDP collection endpoint.
type TargetConfig struct {
	Host         string        `yaml:"host" default:"127.0.0.1"`
	Port         int           `yaml:"port" default:"9999"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" default:"500ms"`
}

// Addr returns the host:port dial address.
func (t TargetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// LoadConfig shapes the generation phase.
type LoadConfig struct {
	Workers           int     `yaml:"workers" default:"2"`
	MessagesPerWorker int     `yaml:"messages_per_worker" default:"500"`
	RatePerWorker     float64 `yaml:"rate_per_worker" default:"100"`
	RateTolerance     float64 `yaml:"rate_tolerance" default:"0.8"`
}

// SessionConfig controls the settle windows around session boundaries. The
// transport has no acknowledgment, so these delays stand in for a handshake.
type SessionConfig struct {
	StartSettle time.Duration `yaml:"start_settle" default:"500ms"`
	FlushSettle time.Duration `yaml:"flush_settle" default:"500ms"`
}

// ArtifactConfig locates the persisted log the verifier reads.
type ArtifactConfig struct {
	StreamPath  string        `yaml:"stream_path" default:"unified_stream.log"`
	SessionsDir string        `yaml:"sessions_dir" default:"log_sessions"`
	SettleWait  time.Duration `yaml:"settle_wait" default:"1s"`
	QuietWindow time.Duration `yaml:"quiet_window" default:"250ms"`
}

// ServerConfig describes the target service for the managed-startup path.
type ServerConfig struct {
	Manage         bool          `yaml:"manage" default:"true"`
	BinaryPath     string        `yaml:"binary_path" default:"UDPLogServer/udp_log_server"`
	WorkDir        string        `yaml:"work_dir" default:"."`
	ProcessPattern string        `yaml:"process_pattern" default:"udp_log_server"`
	StartupSettle  time.Duration `yaml:"startup_settle" default:"1s"`
}

// MetricsConfig exposes send counters during the run; empty addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for the standard loopback scenario.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			Host:         "127.0.0.1",
			Port:         9999,
			ProbeTimeout: 500 * time.Millisecond,
		},
		Load: LoadConfig{
			Workers:           2,
			MessagesPerWorker: 500,
			RatePerWorker:     100,
			RateTolerance:     0.8,
		},
		Session: SessionConfig{
			StartSettle: 500 * time.Millisecond,
			FlushSettle: 500 * time.Millisecond,
		},
		Artifact: ArtifactConfig{
			StreamPath:  "unified_stream.log",
			SessionsDir: "log_sessions",
			SettleWait:  time.Second,
			QuietWindow: 250 * time.Millisecond,
		},
		Server: ServerConfig{
			Manage:         true,
			BinaryPath:     "UDPLogServer/udp_log_server",
			WorkDir:        ".",
			ProcessPattern: "udp_log_server",
			StartupSettle:  time.Second,
		},
	}
}

// LoadFile overlays cfg with values from a yaml file.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks configuration
func (c *Config) Validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("config: target host is required")
	}
	if c.Target.Port <= 0 || c.Target.Port > 65535 {
		return fmt.Errorf("config: invalid target port %d", c.Target.Port)
	}
	if c.Load.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative")
	}
	if c.Load.MessagesPerWorker < 0 {
		return fmt.Errorf("config: messages_per_worker must be non-negative")
	}
	if c.Load.Workers > 0 && c.Load.MessagesPerWorker > 0 && c.Load.RatePerWorker <= 0 {
		return fmt.Errorf("config: rate_per_worker must be positive")
	}
	if c.Load.RateTolerance <= 0 || c.Load.RateTolerance > 1 {
		return fmt.Errorf("config: rate_tolerance must be in (0,1]")
	}
	return nil
}
