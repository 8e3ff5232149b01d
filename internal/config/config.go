// Package config loads and validates the hub's process configuration:
// a YAML file overlaid with environment variables, unmarshaled into a
// typed struct and validated before the hub starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the hub process's full configuration, unmarshaled from
// YAML with an environment-variable overlay.
type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Overlay   OverlayConfig   `koanf:"overlay"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
	Paths     PathsConfig     `koanf:"paths"`
	Audit     AuditConfig     `koanf:"audit"`
	Retention RetentionConfig `koanf:"retention"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ServiceConfig holds process-level tunables the teacher's ServiceConfig
// also carries: instance identity, log level, shutdown grace period.
type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	Listen                 string `koanf:"listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// OverlayConfig mirrors the wire protocol's OVERLAY.* option set.
type OverlayConfig struct {
	Self           uint64 `koanf:"self"`
	Group          uint8  `koanf:"group"`
	Enroll         bool   `koanf:"enroll"`
	Authenticate   bool   `koanf:"authenticate"`
	Join           bool   `koanf:"join"`
	PeriodMs       int    `koanf:"period"`
	TimeoutMs      int    `koanf:"timeout"`
	PauseMs        int    `koanf:"pause"`
	Netmask        uint64 `koanf:"netmask"`
	TableSize      int    `koanf:"table_size"`
	MaxNodes       uint64 `koanf:"max_nodes"`
	PoolCapacity   int    `koanf:"pool_capacity"`
	MaxConnections int    `koanf:"max_connections"`
	ClientQueueCap int    `koanf:"client_queue_cap"`
	RecentPeers    int    `koanf:"recent_peers"`
}

// BootstrapConfig names the peers tried at startup.
type BootstrapConfig struct {
	Nodes []uint64 `koanf:"nodes"`
}

// PathsConfig names the hub's on-disk resources and doubles as the hub's
// hot-reload watch list. Values are used as written: Load does not
// expand $NAME/... references in these or in other options.
type PathsConfig struct {
	Options    string `koanf:"options"`
	HostsFile  string `koanf:"hosts_file"`
	PrivateKey string `koanf:"private_key"`
	PublicKey  string `koanf:"public_key"`
	SSLCA      string `koanf:"ssl_ca"`
	SSLCert    string `koanf:"ssl_cert"`
	SSLKey     string `koanf:"ssl_key"`
}

// AuditConfig configures the operational-event export: always Postgres,
// optionally mirrored to Kafka.
type AuditConfig struct {
	DSN      string   `koanf:"dsn"`
	MaxConns int32    `koanf:"max_conns"`
	MinConns int32    `koanf:"min_conns"`
	Topic    string   `koanf:"topic"`
	Brokers  []string `koanf:"brokers"`
}

// RetentionConfig governs the audit_events partition lifecycle: how
// many days of history to keep and in what timezone a "day" is judged.
type RetentionConfig struct {
	Days     int    `koanf:"days"`
	Timezone string `koanf:"timezone"`
}

// MetricsConfig configures the operator-facing HTTP surface.
type MetricsConfig struct {
	Listen string `koanf:"listen"`
}

// Load reads path (YAML) then overlays WANHIVE_-prefixed environment
// variables (WANHIVE_OVERLAY__NETMASK -> overlay.netmask), applies
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("WANHIVE_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "WANHIVE_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "overlay-hub-1",
			Listen:                 ":9000",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Overlay: OverlayConfig{
			Group:          0,
			Enroll:         true,
			Authenticate:   true,
			Join:           true,
			PeriodMs:       5000,
			TimeoutMs:      2000,
			PauseMs:        1000,
			Netmask:        0xFFFFFFFFFFFFFFFF,
			TableSize:      32,
			MaxNodes:       1024,
			PoolCapacity:   4096,
			MaxConnections: 8192,
			ClientQueueCap: 64,
			RecentPeers:    32,
		},
		Audit: AuditConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Retention: RetentionConfig{
			Days:     30,
			Timezone: "UTC",
		},
		Metrics: MetricsConfig{
			Listen: ":9100",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Audit.Brokers) == 1 && strings.Contains(cfg.Audit.Brokers[0], ",") {
		cfg.Audit.Brokers = strings.Split(cfg.Audit.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges the hub cannot run
// without.
func (c *Config) Validate() error {
	if c.Audit.DSN == "" {
		return fmt.Errorf("config: audit.dsn is required")
	}
	if c.Overlay.TableSize <= 0 || c.Overlay.TableSize > 63 {
		return fmt.Errorf("config: overlay.table_size must be in (0, 63] (got %d)", c.Overlay.TableSize)
	}
	if c.Overlay.PeriodMs <= 0 {
		return fmt.Errorf("config: overlay.period must be > 0 (got %d)", c.Overlay.PeriodMs)
	}
	if c.Overlay.TimeoutMs <= 0 {
		return fmt.Errorf("config: overlay.timeout must be > 0 (got %d)", c.Overlay.TimeoutMs)
	}
	if c.Overlay.PauseMs <= 0 {
		return fmt.Errorf("config: overlay.pause must be > 0 (got %d)", c.Overlay.PauseMs)
	}
	if c.Overlay.PoolCapacity <= 0 {
		return fmt.Errorf("config: overlay.pool_capacity must be > 0 (got %d)", c.Overlay.PoolCapacity)
	}
	if c.Overlay.MaxConnections <= 0 {
		return fmt.Errorf("config: overlay.max_connections must be > 0 (got %d)", c.Overlay.MaxConnections)
	}
	if c.Audit.MaxConns <= 0 {
		return fmt.Errorf("config: audit.max_conns must be > 0 (got %d)", c.Audit.MaxConns)
	}
	if c.Audit.MinConns < 0 {
		return fmt.Errorf("config: audit.min_conns must be >= 0 (got %d)", c.Audit.MinConns)
	}
	if c.Audit.Topic != "" && len(c.Audit.Brokers) == 0 {
		return fmt.Errorf("config: audit.brokers is required when audit.topic is set")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("config: retention.days must be > 0 (got %d)", c.Retention.Days)
	}
	if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
		return fmt.Errorf("config: retention.timezone is invalid: %w", err)
	}
	if _, err := time.ParseDuration(fmt.Sprintf("%dms", c.Overlay.PeriodMs)); err != nil {
		return fmt.Errorf("config: overlay.period is invalid: %w", err)
	}
	return nil
}
