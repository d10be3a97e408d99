package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the whole service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Threads   ThreadsConfig   `mapstructure:"threads"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig covers the Postgres deployment (Supabase), MySQL, and SQLite
// for local runs. For sqlite, Database is the file path.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PostPublished string `mapstructure:"post_published"`
	PostFailed    string `mapstructure:"post_failed"`
}

type ThreadsConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIVersion        string        `mapstructure:"api_version"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SchedulerConfig holds the dispatcher and sweep tuning. Retry delay and
// lookahead are deployment settings, not constants.
type SchedulerConfig struct {
	LookaheadWindow     time.Duration `mapstructure:"lookahead_window"`
	BatchSize           int           `mapstructure:"batch_size"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	RetryJitterRatio    float64       `mapstructure:"retry_jitter_ratio"`
	DefaultMaxRetries   int           `mapstructure:"default_max_retries"`
	StuckThreshold      time.Duration `mapstructure:"stuck_threshold"`
	RecoveryBatchSize   int           `mapstructure:"recovery_batch_size"`
	RunLockTTL          time.Duration `mapstructure:"run_lock_ttl"`
	DispatchSpec        string        `mapstructure:"dispatch_spec"`
	RecoverySpec        string        `mapstructure:"recovery_spec"`
	OutboxSpec          string        `mapstructure:"outbox_spec"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	OutboxMaxRetry      int           `mapstructure:"outbox_max_retry"`
	EnableInProcessCron bool          `mapstructure:"enable_in_process_cron"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic.post_published", "threads.post.published")
	v.SetDefault("kafka.topic.post_failed", "threads.post.failed")

	v.SetDefault("threads.base_url", "https://graph.threads.net")
	v.SetDefault("threads.api_version", "v1.0")
	v.SetDefault("threads.timeout", 30*time.Second)
	v.SetDefault("threads.requests_per_second", 5.0)

	v.SetDefault("scheduler.lookahead_window", 5*time.Minute)
	v.SetDefault("scheduler.batch_size", 10)
	v.SetDefault("scheduler.retry_base_delay", 15*time.Minute)
	v.SetDefault("scheduler.retry_jitter_ratio", 0.0)
	v.SetDefault("scheduler.default_max_retries", 3)
	v.SetDefault("scheduler.stuck_threshold", 10*time.Minute)
	v.SetDefault("scheduler.recovery_batch_size", 100)
	v.SetDefault("scheduler.run_lock_ttl", 5*time.Minute)
	v.SetDefault("scheduler.dispatch_spec", "@every 1m")
	v.SetDefault("scheduler.recovery_spec", "@every 5m")
	v.SetDefault("scheduler.outbox_spec", "@every 5s")
	v.SetDefault("scheduler.outbox_batch_size", 100)
	v.SetDefault("scheduler.outbox_max_retry", 5)
	v.SetDefault("scheduler.enable_in_process_cron", true)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}

// LoadConfig reads the YAML file at configPath and applies THREADSPOST_*
// environment overrides. An empty path uses defaults and the environment only.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("THREADSPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the jobs cannot run with.
func (c *Config) Validate() error {
	s := c.Scheduler
	switch {
	case s.BatchSize <= 0:
		return fmt.Errorf("scheduler.batch_size must be positive, got %d", s.BatchSize)
	case s.LookaheadWindow < 0:
		return fmt.Errorf("scheduler.lookahead_window must not be negative")
	case s.RetryBaseDelay <= 0:
		return fmt.Errorf("scheduler.retry_base_delay must be positive")
	case s.RetryJitterRatio < 0 || s.RetryJitterRatio > 1:
		return fmt.Errorf("scheduler.retry_jitter_ratio must be within [0,1], got %v", s.RetryJitterRatio)
	case s.DefaultMaxRetries < 0:
		return fmt.Errorf("scheduler.default_max_retries must not be negative")
	case s.StuckThreshold < 0:
		return fmt.Errorf("scheduler.stuck_threshold must not be negative")
	}

	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres, mysql or sqlite, got %q", c.Database.Driver)
	}
	return nil
}
