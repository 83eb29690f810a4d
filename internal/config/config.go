// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Wiki     WikiConfig     `mapstructure:"wiki"`
	Sync     SyncConfig     `mapstructure:"sync"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines admin endpoint authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// WikiConfig configures the wiki API client.
type WikiConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	PageLimit         int     `mapstructure:"page_limit"`
}

// SyncConfig governs the sync pipeline.
type SyncConfig struct {
	Category       string `mapstructure:"category"`
	Concurrency    int    `mapstructure:"concurrency"`
	BatchSize      int    `mapstructure:"batch_size"`
	DeadLetterPath string `mapstructure:"dead_letter_path"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// StorageConfig sets the destination for raw markup archival.
// Backend is one of "none", "local", or "gcs".
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ScheduleConfig controls the periodic sync trigger.
type ScheduleConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	IntervalHours int  `mapstructure:"interval_hours"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOSSSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("wiki.base_url", "https://tibia.fandom.com/api.php")
	v.SetDefault("wiki.user_agent", "boss-sync/0.1")
	v.SetDefault("wiki.timeout_seconds", 30)
	v.SetDefault("wiki.max_retries", 3)
	v.SetDefault("wiki.backoff_initial_ms", 1000)
	v.SetDefault("wiki.requests_per_second", 5)
	v.SetDefault("wiki.page_limit", 500)
	v.SetDefault("sync.category", "Bosses")
	v.SetDefault("sync.concurrency", 10)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.dead_letter_path", "dead_letter.jsonl")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("logging.development", true)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval_hours", 24)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Wiki.TimeoutSeconds <= 0 {
		return fmt.Errorf("wiki.timeout_seconds must be > 0")
	}
	if c.Wiki.RequestsPerSecond <= 0 {
		return fmt.Errorf("wiki.requests_per_second must be > 0")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be > 0")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be > 0")
	}
	switch c.Storage.Backend {
	case "", "none":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be none, local, or gcs")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Schedule.Enabled && c.Schedule.IntervalHours <= 0 {
		return fmt.Errorf("schedule.interval_hours must be > 0 when the schedule is enabled")
	}
	return nil
}

// WikiTimeout returns the wiki client timeout as a duration.
func (c Config) WikiTimeout() time.Duration {
	return time.Duration(c.Wiki.TimeoutSeconds) * time.Second
}

// WikiBackoff returns the initial retry backoff as a duration.
func (c Config) WikiBackoff() time.Duration {
	return time.Duration(c.Wiki.BackoffInitialMs) * time.Millisecond
}

// SyncInterval returns the scheduler interval as a duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalHours) * time.Hour
}
