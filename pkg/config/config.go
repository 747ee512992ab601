// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, VectorIndex, Indexer, Search,
// Thesaurus, Logging, Metrics).
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

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	VectorIndex VectorIndexConfig `yaml:"vectorIndex"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Search      SearchConfig      `yaml:"search"`
	Thesaurus   ThesaurusConfig   `yaml:"thesaurus"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AllowedOrigins enables CORS for the listed browser origins.
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// RateLimit is the number of API requests a client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`
}

// PostgresConfig holds PostgreSQL connection parameters for the problem store.
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

// RedisConfig holds Redis connection parameters. Redis backs both the model
// store and the search result cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexBuilt        string `yaml:"indexBuilt"`
	IndexBatchFailure string `yaml:"indexBatchFailure"`
}

// VectorIndexConfig selects and configures the vector index backend.
type VectorIndexConfig struct {
	Type             string        `yaml:"type"`
	URL              string        `yaml:"url"`
	APIKey           string        `yaml:"apiKey"`
	Collection       string        `yaml:"collection"`
	SourceCollection string        `yaml:"sourceCollection"`
	Timeout          time.Duration `yaml:"timeout"`
}

// PayloadCollection returns the collection existing payloads are read from.
// It falls back to the target collection when no source is configured.
func (v VectorIndexConfig) PayloadCollection() string {
	if v.SourceCollection != "" {
		return v.SourceCollection
	}
	return v.Collection
}

// IndexerConfig controls the two-pass build: corpus batch size, upsert chunk
// size, retry policy and the pass-2 worker pool.
type IndexerConfig struct {
	CorpusBatchSize  int           `yaml:"corpusBatchSize"`
	UpsertBatchSize  int           `yaml:"upsertBatchSize"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	BaseDelay        time.Duration `yaml:"baseDelay"`
	MaxJitter        time.Duration `yaml:"maxJitter"`
	MaxDelay         time.Duration `yaml:"maxDelay"`
	AttemptTimeout   time.Duration `yaml:"attemptTimeout"`
	Workers          int           `yaml:"workers"`
	CreateCollection bool          `yaml:"createCollection"`
	VectorOnly       bool          `yaml:"vectorOnly"`
}

// SearchConfig controls query execution.
type SearchConfig struct {
	Limit            int           `yaml:"limit"`
	PayloadFields    []string      `yaml:"payloadFields"`
	NotAvailable     string        `yaml:"notAvailable"`
	QueryCacheSize   int           `yaml:"queryCacheSize"`
	ResultCache      bool          `yaml:"resultCache"`
	MaxQueryLength   int           `yaml:"maxQueryLength"`
	ValidateIndexDim bool          `yaml:"validateIndexDim"`
	BreakerFailures  int           `yaml:"breakerFailures"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
	// SharedTimeout bounds model loads and result computations that
	// concurrent requests wait on together.
	SharedTimeout    time.Duration `yaml:"sharedTimeout"`
}

// ThesaurusConfig points at an optional synonym file overriding the
// embedded table.
type ThesaurusConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate reports configuration values that would make the pipeline or the
// query path misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Indexer.CorpusBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("indexer.corpusBatchSize must be positive, got %d", c.Indexer.CorpusBatchSize))
	}
	if c.Indexer.UpsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("indexer.upsertBatchSize must be positive, got %d", c.Indexer.UpsertBatchSize))
	}
	if c.Indexer.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("indexer.maxAttempts must be positive, got %d", c.Indexer.MaxAttempts))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit))
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		errs = append(errs, fmt.Errorf("server.rateWindow must be positive when rateLimit is set, got %s", c.Server.RateWindow))
	}
	if c.Indexer.Workers <= 0 {
		errs = append(errs, fmt.Errorf("indexer.workers must be positive, got %d", c.Indexer.Workers))
	}
	if c.Search.Limit <= 0 {
		errs = append(errs, fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit))
	}
	if c.Search.SharedTimeout <= 0 {
		errs = append(errs, fmt.Errorf("search.sharedTimeout must be positive, got %s", c.Search.SharedTimeout))
	}
	switch c.VectorIndex.Type {
	case "qdrant":
		if c.VectorIndex.URL == "" {
			errs = append(errs, errors.New("vectorIndex.url is required for qdrant"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown vectorIndex.type %q", c.VectorIndex.Type))
	}
	if c.VectorIndex.Collection == "" {
		errs = append(errs, errors.New("vectorIndex.collection is required"))
	}
	return errors.Join(errs...)
}

// defaultConfig mirrors the production deployment: problems are read from
// the "problems" table, payloads from the "problems" collection, and vectors
// are written to "problems_v2".
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateWindow:      time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "problems",
			User:            "postgres",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "problem-search",
			Topics: KafkaTopics{
				IndexBuilt:        "index.built",
				IndexBatchFailure: "index.batch-failed",
			},
		},
		VectorIndex: VectorIndexConfig{
			Type:             "qdrant",
			URL:              "http://localhost:6333",
			Collection:       "problems_v2",
			SourceCollection: "problems",
			Timeout:          300 * time.Second,
		},
		Indexer: IndexerConfig{
			CorpusBatchSize: 100,
			UpsertBatchSize: 100,
			MaxAttempts:     5,
			BaseDelay:       2 * time.Second,
			MaxJitter:       100 * time.Millisecond,
			MaxDelay:        2 * time.Minute,
			AttemptTimeout:  5 * time.Minute,
			Workers:         1,
		},
		Search: SearchConfig{
			Limit:            100,
			PayloadFields:    []string{"problem_name", "problem_link", "platform"},
			NotAvailable:     "N/A",
			QueryCacheSize:   1024,
			MaxQueryLength:   1000,
			ValidateIndexDim: true,
			BreakerFailures:  5,
			BreakerReset:     30 * time.Second,
			SharedTimeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PS_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PS_REDIS_USERNAME"); v != "" {
		cfg.Redis.Username = v
	}
	if v := os.Getenv("PS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PS_QDRANT_URL"); v != "" {
		cfg.VectorIndex.URL = v
	}
	if v := os.Getenv("PS_QDRANT_APIKEY"); v != "" {
		cfg.VectorIndex.APIKey = v
	}
	if v := os.Getenv("PS_VECTOR_INDEX_TYPE"); v != "" {
		cfg.VectorIndex.Type = v
	}
	if v := os.Getenv("PS_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("PS_THESAURUS_PATH"); v != "" {
		cfg.Thesaurus.Path = v
	}
	if v := os.Getenv("PS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
