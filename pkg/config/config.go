// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the index,
// its backing stores, the optional cache and change feed, and the HTTP surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Backend names accepted by IndexConfig.Backend.
const (
	BackendDisk     = "disk"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// IndexConfig controls where the index lives, when buffered documents are
// flushed and committed, and how large a query result may get.
type IndexConfig struct {
	Backend                string        `yaml:"backend"`
	DataDir                string        `yaml:"dataDir"`
	SQLitePath             string        `yaml:"sqlitePath"`
	RAMBufferBytes         int64         `yaml:"ramBufferBytes"`
	MemoryLimitBytes       int64         `yaml:"memoryLimitBytes"`
	CommitInterval         time.Duration `yaml:"commitInterval"`
	MaxSegmentsBeforeMerge int           `yaml:"maxSegmentsBeforeMerge"`
	ResultLimit            int           `yaml:"resultLimit"`
	MaxContentBytes        int64         `yaml:"maxContentBytes"`
	ExcludeContent         []string      `yaml:"excludeContent"`
	Workers                int           `yaml:"workers"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables the change feed and completion events.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	FileChanges   string `yaml:"fileChanges"`
	IndexComplete string `yaml:"indexComplete"`
}

// WatchConfig controls the fsnotify watcher over the indexed root.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls structured logging level, output format and the
// optional rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint. Port 0 serves /metrics on
// the main HTTP server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			Backend:                BackendDisk,
			DataDir:                "data/index",
			SQLitePath:             "data/index.db",
			RAMBufferBytes:         16 << 20,
			CommitInterval:         30 * time.Second,
			MaxSegmentsBeforeMerge: 10,
			ResultLimit:            1000,
			MaxContentBytes:        10 << 20,
			Workers:                2,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "vfssearch",
			User:            "vfssearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "vfssearch-indexer",
			Topics: KafkaTopics{
				FileChanges:   "vfs.file-changes",
				IndexComplete: "vfs.index-complete",
			},
		},
		Watch: WatchConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the index cannot run with.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendDisk, BackendMemory, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("index.backend: unknown backend %q", c.Index.Backend)
	}
	if c.Index.ResultLimit <= 0 {
		return fmt.Errorf("index.resultLimit must be positive, got %d", c.Index.ResultLimit)
	}
	if c.Index.RAMBufferBytes <= 0 {
		return fmt.Errorf("index.ramBufferBytes must be positive, got %d", c.Index.RAMBufferBytes)
	}
	if c.Index.CommitInterval <= 0 {
		return fmt.Errorf("index.commitInterval must be positive, got %s", c.Index.CommitInterval)
	}
	if c.Index.Workers <= 0 {
		return fmt.Errorf("index.workers must be positive, got %d", c.Index.Workers)
	}
	return nil
}

// applyEnvOverrides reads VS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VS_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("VS_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("VS_INDEX_SQLITE_PATH"); v != "" {
		cfg.Index.SQLitePath = v
	}
	if v := os.Getenv("VS_INDEX_RESULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.ResultLimit = n
		}
	}
	if v := os.Getenv("VS_INDEX_EXCLUDE_CONTENT"); v != "" {
		cfg.Index.ExcludeContent = strings.Split(v, ",")
	}
	if v := os.Getenv("VS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("VS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("VS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("VS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("VS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("VS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("VS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("VS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("VS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("VS_LOGGING_FILE"); v != "" {
		cfg.Logging.File = v
	}
}
