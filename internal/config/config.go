package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Platform  PlatformConfig  `yaml:"platform"`
	External  ExternalConfig  `yaml:"external"`
	Manual    ManualConfig    `yaml:"manual"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	Mode        string   `yaml:"mode"` // debug, release, test
	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit"` // requests per second per IP
	RateBurst   int      `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// OpenAIConfig is the fallback LLM used when no LLMConfig row is active.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// RedisConfig for the optional asynq outlet fan-out
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SchedulerConfig struct {
	Interval          Duration `yaml:"interval"`
	RunOnStartup      bool     `yaml:"run_on_startup"`
	Concurrency       int      `yaml:"concurrency"`
	InitialLookback   Duration `yaml:"initial_lookback"`
	LockTTL           Duration `yaml:"lock_ttl"`
	ResumeMaxAttempts int      `yaml:"resume_max_attempts"`
}

// PlatformConfig points at the review-source platform API.
type PlatformConfig struct {
	BaseURL   string   `yaml:"base_url"`
	APIToken  string   `yaml:"api_token"`
	Timeout   Duration `yaml:"timeout"`
	RateLimit float64  `yaml:"rate_limit"` // requests per second
	Burst     int      `yaml:"burst"`
	PageSize  int      `yaml:"page_size"`
}

type ExternalConfig struct {
	CallTimeout Duration `yaml:"call_timeout"`
}

type ManualConfig struct {
	SuggestReply   bool `yaml:"suggest_reply"`
	PostHumanReply bool `yaml:"post_human_reply"`
}

// Duration is a time.Duration written as a Go duration string ("15m") in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Decode over the defaults so omitted keys keep their default values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.normalize()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			Mode:        "debug",
			CORSOrigins: []string{"*"},
			RateLimit:   20,
			RateBurst:   40,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "reviewflow.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Scheduler: SchedulerConfig{
			Interval:          Duration(15 * time.Minute),
			RunOnStartup:      true,
			Concurrency:       4,
			InitialLookback:   Duration(7 * 24 * time.Hour),
			LockTTL:           Duration(30 * time.Minute),
			ResumeMaxAttempts: 3,
		},
		Platform: PlatformConfig{
			BaseURL:   "https://mybusiness.googleapis.com/v4",
			Timeout:   Duration(20 * time.Second),
			RateLimit: 5,
			Burst:     10,
			PageSize:  50,
		},
		External: ExternalConfig{
			CallTimeout: Duration(30 * time.Second),
		},
		Manual: ManualConfig{
			SuggestReply:   true,
			PostHumanReply: true,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = strings.Split(origins, ",")
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		c.OpenAI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.OpenAI.APIKey = apiKey
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.OpenAI.Model = model
	}
	if interval := os.Getenv("BATCH_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Scheduler.Interval = Duration(d)
		}
	}
	if baseURL := os.Getenv("PLATFORM_BASE_URL"); baseURL != "" {
		c.Platform.BaseURL = baseURL
	}
	if token := os.Getenv("PLATFORM_API_TOKEN"); token != "" {
		c.Platform.APIToken = token
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// normalize replaces zero or negative values that would stall the scheduler.
func (c *Config) normalize() {
	defaults := DefaultConfig()
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = defaults.Scheduler.Interval
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = defaults.Scheduler.Concurrency
	}
	if c.Scheduler.InitialLookback <= 0 {
		c.Scheduler.InitialLookback = defaults.Scheduler.InitialLookback
	}
	if c.Scheduler.LockTTL <= 0 {
		c.Scheduler.LockTTL = defaults.Scheduler.LockTTL
	}
	if c.Scheduler.ResumeMaxAttempts < 0 {
		c.Scheduler.ResumeMaxAttempts = 0
	}
	if c.External.CallTimeout <= 0 {
		c.External.CallTimeout = defaults.External.CallTimeout
	}
	if c.Platform.Timeout <= 0 {
		c.Platform.Timeout = defaults.Platform.Timeout
	}
	if c.Platform.PageSize <= 0 {
		c.Platform.PageSize = defaults.Platform.PageSize
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = defaults.Server.RateLimit
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}
	if c.Platform.Burst <= 0 {
		c.Platform.Burst = 1
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
