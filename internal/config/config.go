// Package config loads Vault Memory Router settings from environment
// variables (with an optional .env file for local development), the way
// the rest of this codebase's services do.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration, composed of one struct per
// subsystem.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Vault     VaultConfig     `json:"vault"`
	Temporal  TemporalConfig  `json:"temporal"`
	Race      RaceConfig      `json:"race"`
	SQLite    SQLiteConfig    `json:"sqlite"`
	Qdrant    QdrantConfig    `json:"qdrant"`
	Redis     RedisConfig     `json:"redis"`
	Embedding EmbeddingConfig `json:"embedding"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig configures the HTTP RPC surface.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// VaultConfig bounds vault lifecycle and capacity.
type VaultConfig struct {
	InitialCapacity int           `json:"initial_capacity"`
	HibernateAfter  time.Duration `json:"hibernate_after"`
	MaxActiveVaults int           `json:"max_active_vaults"`
}

// TemporalConfig sets the three KRONOS window boundaries before "now": HOT
// ends at HotWindowHours, WORKING at WorkingWindowHours (both in hours), the
// rest is LONG_TERM up to HorizonDays (in days); anything older is EXPIRED.
type TemporalConfig struct {
	HotWindowHours     float64 `json:"hot_window_hours"`
	WorkingWindowHours float64 `json:"working_window_hours"`
	HorizonDays        float64 `json:"horizon_days"`
}

// RaceConfig tunes the Hot/Cold race retrieval path. ReplicaDepth defaults
// to QdrantConfig.ReplicaDepth and is the chunk count the race compares a
// key's replica COUNT against, without a second round trip. Nothing prunes
// the replica to that depth: a key keeps every chunk mirrored to it.
type RaceConfig struct {
	Timeout           time.Duration `json:"timeout"`
	CoverageThreshold float64       `json:"coverage_threshold"`
	ReplicaDepth      int           `json:"replica_depth"`
}

// SQLiteConfig points at the per-tenant database directory.
type SQLiteConfig struct {
	DataDir string `json:"data_dir"`
}

// QdrantConfig configures the always-warm replica index.
type QdrantConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	APIKey         string `json:"-"`
	UseTLS         bool   `json:"use_tls"`
	Collection     string `json:"collection"`
	ReplicaDepth   int    `json:"replica_depth"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RedisConfig configures the cross-process warmth registry.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `json:"provider"` // "mock" selects the mock service; any other value selects OpenAI
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	BatchSize  int    `json:"batch_size"`
	APIKey     string `json:"-"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
}

// DefaultConfig returns the baseline configuration before environment
// overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8081,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Vault: VaultConfig{
			InitialCapacity: 1024,
			HibernateAfter:  30 * time.Minute,
			MaxActiveVaults: 256,
		},
		Temporal: TemporalConfig{
			HotWindowHours:     4,
			WorkingWindowHours: 24 * 3,
			HorizonDays:        90,
		},
		Race: RaceConfig{
			Timeout:           2500 * time.Millisecond,
			CoverageThreshold: 0.8,
			ReplicaDepth:      2000,
		},
		SQLite: SQLiteConfig{
			DataDir: "./data/vaults",
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			Collection:     "vault_replica",
			ReplicaDepth:   2000,
			TimeoutSeconds: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads a .env file if present, then layers environment
// variables over DefaultConfig.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	loadServerConfig(cfg)
	loadVaultConfig(cfg)
	loadTemporalConfig(cfg)
	loadSQLiteConfig(cfg)
	loadQdrantConfig(cfg)
	loadRaceConfig(cfg) // after Qdrant: Race.ReplicaDepth defaults from Qdrant.ReplicaDepth
	loadRedisConfig(cfg)
	loadEmbeddingConfig(cfg)
	loadLoggingConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func loadServerConfig(c *Config) {
	c.Server.Host = getStringEnvWithDefault("VAULT_HOST", c.Server.Host)
	c.Server.Port = getIntEnvWithDefault("VAULT_PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnvWithDefault("VAULT_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnvWithDefault("VAULT_WRITE_TIMEOUT", c.Server.WriteTimeout)
}

func loadVaultConfig(c *Config) {
	c.Vault.InitialCapacity = getIntEnvWithDefault("VAULT_INITIAL_CAPACITY", c.Vault.InitialCapacity)
	c.Vault.HibernateAfter = getDurationEnvWithDefault("VAULT_HIBERNATE_AFTER", c.Vault.HibernateAfter)
	c.Vault.MaxActiveVaults = getIntEnvWithDefault("VAULT_MAX_ACTIVE", c.Vault.MaxActiveVaults)
}

func loadTemporalConfig(c *Config) {
	c.Temporal.HotWindowHours = getFloatEnvWithDefault("VAULT_HOT_WINDOW_HOURS", c.Temporal.HotWindowHours)
	c.Temporal.WorkingWindowHours = getFloatEnvWithDefault("VAULT_WORKING_WINDOW_HOURS", c.Temporal.WorkingWindowHours)
	c.Temporal.HorizonDays = getFloatEnvWithDefault("VAULT_HORIZON_DAYS", c.Temporal.HorizonDays)
}

func loadRaceConfig(c *Config) {
	c.Race.Timeout = getDurationEnvWithDefault("VAULT_RACE_TIMEOUT", c.Race.Timeout)
	c.Race.CoverageThreshold = getFloatEnvWithDefault("VAULT_RACE_COVERAGE_THRESHOLD", c.Race.CoverageThreshold)
	c.Race.ReplicaDepth = getIntEnvWithDefault("VAULT_RACE_REPLICA_DEPTH", c.Qdrant.ReplicaDepth)
}

func loadSQLiteConfig(c *Config) {
	c.SQLite.DataDir = getStringEnvWithDefault("VAULT_DATA_DIR", c.SQLite.DataDir)
}

func loadQdrantConfig(c *Config) {
	c.Qdrant.Host = getStringEnvWithDefault("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = getIntEnvWithDefault("QDRANT_PORT", c.Qdrant.Port)
	c.Qdrant.APIKey = getStringEnvWithDefault("QDRANT_API_KEY", c.Qdrant.APIKey)
	c.Qdrant.UseTLS = getBoolEnvWithDefault("QDRANT_USE_TLS", c.Qdrant.UseTLS)
	c.Qdrant.Collection = getStringEnvWithDefault("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.Qdrant.ReplicaDepth = getIntEnvWithDefault("QDRANT_REPLICA_DEPTH", c.Qdrant.ReplicaDepth)
	c.Qdrant.TimeoutSeconds = getIntEnvWithDefault("QDRANT_TIMEOUT_SECONDS", c.Qdrant.TimeoutSeconds)
}

func loadRedisConfig(c *Config) {
	c.Redis.Addr = getStringEnvWithDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getStringEnvWithDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnvWithDefault("REDIS_DB", c.Redis.DB)
}

func loadEmbeddingConfig(c *Config) {
	c.Embedding.Provider = getStringEnvWithDefault("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getStringEnvWithDefault("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = getIntEnvWithDefault("EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.BatchSize = getIntEnvWithDefault("EMBEDDING_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.APIKey = getStringEnvWithDefault("OPENAI_API_KEY", c.Embedding.APIKey)
}

func loadLoggingConfig(c *Config) {
	c.Logging.Level = getStringEnvWithDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getStringEnvWithDefault("LOG_FORMAT", c.Logging.Format)
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks invariants that DefaultConfig/env loading cannot enforce
// on their own.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("config: server port out of range")
	}
	if c.Vault.InitialCapacity <= 0 {
		return errors.New("config: vault initial capacity must be positive")
	}
	if c.Temporal.HotWindowHours <= 0 || c.Temporal.WorkingWindowHours <= c.Temporal.HotWindowHours {
		return errors.New("config: temporal windows must be positive and increasing")
	}
	if c.Race.Timeout <= 0 {
		return errors.New("config: race timeout must be positive")
	}
	if c.Race.CoverageThreshold <= 0 || c.Race.CoverageThreshold > 1 {
		return errors.New("config: race coverage threshold must be in (0, 1]")
	}
	if c.Race.ReplicaDepth <= 0 {
		return errors.New("config: race replica depth must be positive")
	}
	if c.SQLite.DataDir == "" {
		return errors.New("config: sqlite data dir must not be empty")
	}
	return nil
}
