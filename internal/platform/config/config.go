package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. Values come from Default, then an
// optional YAML file, then environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ThankYouURL     string        `yaml:"thank_you_url"`
	StaticDir       string        `yaml:"static_dir"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL selects the
// in-memory store, which is only meant for local development.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TxTimeout       time.Duration `yaml:"tx_timeout"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
}

// StorageConfig locates uploaded ID photos.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
}

// RedisConfig configures the optional Redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RateLimitConfig bounds submissions per client IP. Requires Redis.
type RateLimitConfig struct {
	SubmitLimit  int           `yaml:"submit_limit"`
	SubmitWindow time.Duration `yaml:"submit_window"`
}

// KafkaConfig configures the outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	OutboxInterval time.Duration `yaml:"outbox_interval"`
	OutboxBatch    int           `yaml:"outbox_batch"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns development defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ThankYouURL:     "/thank-you.html",
			StaticDir:       "public",
			MaxUploadBytes:  12 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			TxTimeout:       5 * time.Second,
			LockTimeout:     3 * time.Second,
		},
		Storage: StorageConfig{
			UploadDir: "uploads",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		RateLimit: RateLimitConfig{
			SubmitLimit:  10,
			SubmitWindow: time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:          "formvault.events",
			OutboxInterval: 2 * time.Second,
			OutboxBatch:    100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty) and
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Storage.UploadDir == "" {
		errs = append(errs, errors.New("storage.upload_dir is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Database.LockTimeout < 0 || c.Database.TxTimeout < 0 {
		errs = append(errs, errors.New("database timeouts must not be negative"))
	}
	if c.RateLimit.SubmitLimit > 0 && c.RateLimit.SubmitWindow <= 0 {
		errs = append(errs, errors.New("rate_limit.submit_window must be positive when submit_limit is set"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("FORMVAULT_ADDR", &cfg.Server.Addr)
	str("THANK_YOU_URL", &cfg.Server.ThankYouURL)
	if v, ok := lookup("STATIC_DIR"); ok {
		cfg.Server.StaticDir = v
	}
	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
		} else {
			cfg.Server.MaxUploadBytes = n
		}
	}
	dur("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("DATABASE_URL", &cfg.Database.URL)
	num("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	num("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	dur("DATABASE_TX_TIMEOUT", &cfg.Database.TxTimeout)
	dur("DATABASE_LOCK_TIMEOUT", &cfg.Database.LockTimeout)

	str("UPLOAD_DIR", &cfg.Storage.UploadDir)

	str("REDIS_URL", &cfg.Redis.URL)
	num("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)

	num("SUBMIT_RATE_LIMIT", &cfg.RateLimit.SubmitLimit)
	dur("SUBMIT_RATE_WINDOW", &cfg.RateLimit.SubmitWindow)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	dur("OUTBOX_INTERVAL", &cfg.Kafka.OutboxInterval)
	num("OUTBOX_BATCH", &cfg.Kafka.OutboxBatch)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
