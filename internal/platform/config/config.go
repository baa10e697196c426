package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server captures process level configuration for the reference engine.
type Server struct {
	Addr      string `env:"REFROUTE_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"refroute"`

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Engine   EngineConfig
	Identity IdentityConfig

	// PolicyLines are extra casbin policy rows, ';' separated ("p, clerk, local, view").
	PolicyLines []string `env:"PERMISSION_POLICY" envSeparator:";"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL              string        `env:"DATABASE_URL"`
	MaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DatastoreTimeout time.Duration `env:"DATASTORE_TIMEOUT" envDefault:"3s"`
	RunMigrations    bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
}

// RedisConfig holds Redis settings. An empty URL keeps caches and checkpoints in-process.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig holds broker settings. No brokers selects the log notification sink.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotifyTopic   string   `env:"KAFKA_NOTIFY_TOPIC" envDefault:"refroute.reference-events"`
	IdentityTopic string   `env:"KAFKA_IDENTITY_TOPIC" envDefault:"refroute.identity-changes"`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"refroute-identity-sync"`
	Partitions    int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	NotifyBuffer  int      `env:"NOTIFY_BUFFER_SIZE" envDefault:"1024"`
}

// EngineConfig tunes the reference engine.
type EngineConfig struct {
	BulkConcurrency      int `env:"BULK_CONCURRENCY" envDefault:"8"`
	BulkMaxItems         int `env:"BULK_MAX_ITEMS" envDefault:"500"`
	SyncBatchSize        int `env:"SYNC_BATCH_SIZE" envDefault:"200"`
	PendingThresholdDays int `env:"PENDING_THRESHOLD_DAYS" envDefault:"7"`
	DefaultPageSize      int `env:"PAGE_SIZE" envDefault:"20"`
	MaxPageSize          int `env:"MAX_PAGE_SIZE" envDefault:"100"`
}

// IdentityConfig tunes the identity snapshot cache.
type IdentityConfig struct {
	CacheSize int           `env:"IDENTITY_CACHE_SIZE" envDefault:"4096"`
	CacheTTL  time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"5m"`
	// SeedFile is a JSON array of identities loaded into the in-memory
	// directory when no database is configured.
	SeedFile string `env:"IDENTITY_SEED_FILE"`
	// CheckpointTTL bounds how long a sync checkpoint is trusted in Redis.
	CheckpointTTL time.Duration `env:"IDENTITY_CHECKPOINT_TTL" envDefault:"24h"`
}

// Load reads optional .env files and parses the environment into Server.
func Load() (Server, error) {
	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return Server{}, fmt.Errorf("load env files: %w", err)
	}
	return FromEnv()
}

// FromEnv parses Server from the process environment only.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Server) Validate() error {
	var errs []error
	if c.Engine.BulkConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BULK_CONCURRENCY must be positive, got %d", c.Engine.BulkConcurrency))
	}
	if c.Engine.BulkMaxItems < 1 {
		errs = append(errs, fmt.Errorf("BULK_MAX_ITEMS must be positive, got %d", c.Engine.BulkMaxItems))
	}
	if c.Engine.SyncBatchSize < 1 {
		errs = append(errs, fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.Engine.SyncBatchSize))
	}
	if c.Database.DatastoreTimeout <= 0 {
		errs = append(errs, errors.New("DATASTORE_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(c.JWTSigningKey) == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not be empty"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether a database URL is configured.
func (c Server) UsesPostgres() bool { return c.Database.URL != "" }

// UsesKafka reports whether brokers are configured.
func (c Server) UsesKafka() bool { return len(c.Kafka.Brokers) > 0 }

func loadEnvFiles(files ...string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}
