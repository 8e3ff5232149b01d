package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			Listen:                 ":9000",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Overlay: OverlayConfig{
			Self:           1,
			TableSize:      32,
			PeriodMs:       5000,
			TimeoutMs:      2000,
			PauseMs:        1000,
			PoolCapacity:   4096,
			MaxConnections: 8192,
		},
		Audit: AuditConfig{
			DSN:      "postgres://localhost/test",
			MaxConns: 10,
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
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty audit.dsn")
	}
}

func TestValidate_TableSizeZero(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.TableSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for table_size = 0")
	}
}

func TestValidate_TableSizeTooLarge(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.TableSize = 64
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for table_size = 64")
	}
}

func TestValidate_PeriodZero(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.PeriodMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for period = 0")
	}
}

func TestValidate_TimeoutNegative(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.TimeoutMs = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestValidate_PauseZero(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.PauseMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for pause = 0")
	}
}

func TestValidate_PoolCapacityZero(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.PoolCapacity = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for pool_capacity = 0")
	}
}

func TestValidate_MaxConnectionsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Overlay.MaxConnections = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_connections = 0")
	}
}

func TestValidate_AuditMaxConnsZero(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.MaxConns = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for audit.max_conns = 0")
	}
}

func TestValidate_AuditMinConnsNegative(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.MinConns = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative audit.min_conns")
	}
}

func TestValidate_TopicWithoutBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Topic = "overlay.events"
	cfg.Audit.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for audit.topic set without audit.brokers")
	}
}

func TestValidate_TopicWithBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.Topic = "overlay.events"
	cfg.Audit.Brokers = []string{"localhost:9092"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_RetentionDaysZero(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Days = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retention.days = 0")
	}
}

func TestValidate_RetentionTimezoneInvalid(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Timezone = "Not/AZone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid retention.timezone")
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
overlay:
  self: 1
  table_size: 32
  period: 5000
  timeout: 2000
  pause: 1000
  pool_capacity: 4096
  max_connections: 8192
audit:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("WANHIVE_AUDIT__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audit.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Audit.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("WANHIVE_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvOverrideFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("WANHIVE_OVERLAY__TABLE_SIZE", "0")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for table_size=0 via env")
	}
}
