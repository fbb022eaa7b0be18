package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Scheduler(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Scheduler.Interval.Std() != 15*time.Minute {
		t.Errorf("Interval = %v, expected 15m", cfg.Scheduler.Interval.Std())
	}
	if cfg.Scheduler.Concurrency != 4 {
		t.Errorf("Concurrency = %d, expected 4", cfg.Scheduler.Concurrency)
	}
	if !cfg.Scheduler.RunOnStartup {
		t.Error("RunOnStartup should default to true")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, expected %q", cfg.Database.Driver, "sqlite")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, expected %q", cfg.Server.Port, "8080")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
scheduler:
  interval: 5m
  concurrency: 2
platform:
  timeout: 3s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, expected %q", cfg.Server.Port, "9090")
	}
	if cfg.Scheduler.Interval.Std() != 5*time.Minute {
		t.Errorf("Interval = %v, expected 5m", cfg.Scheduler.Interval.Std())
	}
	if cfg.Scheduler.Concurrency != 2 {
		t.Errorf("Concurrency = %d, expected 2", cfg.Scheduler.Concurrency)
	}
	if cfg.Platform.Timeout.Std() != 3*time.Second {
		t.Errorf("Platform.Timeout = %v, expected 3s", cfg.Platform.Timeout.Std())
	}
	// untouched keys keep defaults
	if cfg.Scheduler.ResumeMaxAttempts != 3 {
		t.Errorf("ResumeMaxAttempts = %d, expected 3", cfg.Scheduler.ResumeMaxAttempts)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  interval: soon\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("BATCH_INTERVAL", "30m")
	t.Setenv("PLATFORM_API_TOKEN", "secret-token")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("CORS_ORIGINS", "https://ops.example.com,https://admin.example.com")

	cfg := DefaultConfig()
	cfg.overrideFromEnv()

	if cfg.Scheduler.Interval.Std() != 30*time.Minute {
		t.Errorf("Interval = %v, expected 30m", cfg.Scheduler.Interval.Std())
	}
	if cfg.Platform.APIToken != "secret-token" {
		t.Errorf("APIToken = %q, expected %q", cfg.Platform.APIToken, "secret-token")
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, expected %q", cfg.Database.Driver, "postgres")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://admin.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
	}{
		{"host only", "redis://localhost:6379", "localhost:6379", "", 0},
		{"with password", "redis://:pw@redis:6380", "redis:6380", "pw", 0},
		{"with db", "redis://:pw@redis:6380/2", "redis:6380", "pw", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Redis.Password = ""
			cfg.Redis.DB = 0
			cfg.parseRedisURL(tt.url)
			if cfg.Redis.Addr != tt.addr {
				t.Errorf("Addr = %q, expected %q", cfg.Redis.Addr, tt.addr)
			}
			if cfg.Redis.Password != tt.password {
				t.Errorf("Password = %q, expected %q", cfg.Redis.Password, tt.password)
			}
			if cfg.Redis.DB != tt.db {
				t.Errorf("DB = %d, expected %d", cfg.Redis.DB, tt.db)
			}
		})
	}
}

func TestNormalize_FixesZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.normalize()

	if cfg.Scheduler.Interval.Std() != 15*time.Minute {
		t.Errorf("Interval = %v, expected 15m", cfg.Scheduler.Interval.Std())
	}
	if cfg.External.CallTimeout.Std() != 30*time.Second {
		t.Errorf("CallTimeout = %v, expected 30s", cfg.External.CallTimeout.Std())
	}
	if cfg.Platform.Burst != 1 {
		t.Errorf("Burst = %d, expected 1", cfg.Platform.Burst)
	}
	if cfg.Server.RateLimit != 20 || cfg.Server.RateBurst != 40 {
		t.Errorf("server rate = %v/%d, expected 20/40", cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
}
