// Package config provides unified configuration loading for the Nalanda
// library assistant. Supports YAML files, environment variables, and
// programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the assistant.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Website       WebsiteConfig       `yaml:"website"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds catalogue store connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// VectorConfig holds on-disk vector index settings.
type VectorConfig struct {
	CatalogueIndexPath string        `yaml:"catalogue_index_path"`
	GeneralIndexPath   string        `yaml:"general_index_path"`
	GeneralQueriesPath string        `yaml:"general_queries_path"`
	Dimension          int           `yaml:"dimension"`
	LoadTimeout        time.Duration `yaml:"load_timeout"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds search thresholds and limits.
// The similarity thresholds are empirically chosen; they are deliberately
// configurable rather than compiled in.
type RetrievalConfig struct {
	MaxResults        int     `yaml:"max_results"`
	SemanticTopK      int     `yaml:"semantic_top_k"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	FuzzyCutoff       float64 `yaml:"fuzzy_cutoff"`
	SynonymThreshold  float64 `yaml:"synonym_threshold"`
	LexicalFloor      float64 `yaml:"lexical_floor"`
	VowelRatioMin     float64 `yaml:"vowel_ratio_min"`
	MaxQueryLength    int     `yaml:"max_query_length"`
	CacheResults      bool    `yaml:"cache_results"`
}

// ClassifierConfig holds query classification settings.
type ClassifierConfig struct {
	ExternalEnabled bool          `yaml:"external_enabled"`
	ExternalTimeout time.Duration `yaml:"external_timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
	CacheEvictCount int           `yaml:"cache_evict_count"`
}

// RateLimitConfig holds per-client admission settings.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// WebsiteConfig holds library website fetch settings.
type WebsiteConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	OPACURL       string        `yaml:"opac_url"`
	HelpdeskEmail string        `yaml:"helpdesk_email"`
	CachePath     string        `yaml:"cache_path"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
}

// AuditConfig holds audit log file settings.
type AuditConfig struct {
	QueryLogPath string `yaml:"query_log_path"`
	AdminLogPath string `yaml:"admin_log_path"`
	AlertChannel string `yaml:"alert_channel"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "data/catalogue.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Vector: VectorConfig{
			CatalogueIndexPath: "data/catalogue_index.json",
			GeneralIndexPath:   "data/general_index.json",
			GeneralQueriesPath: "data/general_queries.json",
			Dimension:          384,
			LoadTimeout:        10 * time.Second,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:8091",
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
			BatchSize: 100,
			Timeout:   30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			MaxResults:        10,
			SemanticTopK:      5,
			SemanticThreshold: 0.75,
			FuzzyCutoff:       0.75,
			SynonymThreshold:  0.35,
			LexicalFloor:      0.1,
			VowelRatioMin:     0.15,
			MaxQueryLength:    300,
			CacheResults:      true,
		},
		Classifier: ClassifierConfig{
			ExternalEnabled: false,
			ExternalTimeout: 2 * time.Second,
			CacheTTL:        2 * time.Hour,
			CacheMaxEntries: 500,
			CacheEvictCount: 100,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 20,
			Window:      60 * time.Second,
		},
		Website: WebsiteConfig{
			Enabled:       false,
			URL:           "https://library.example.edu",
			OPACURL:       "https://opac.example.edu",
			HelpdeskEmail: "helpdesk@library.example.edu",
			CachePath:     "data/website_cache.json",
			CacheTTL:      time.Hour,
			FetchTimeout:  10 * time.Second,
		},
		Audit: AuditConfig{
			QueryLogPath: "logs/query_audit.jsonl",
			AdminLogPath: "logs/admin_activity.jsonl",
			AlertChannel: "errors.alerts",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "debug",
			LogFormat:   "json",
			ServiceName: "nalanda",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Retrieval.MaxResults < 1 || c.Retrieval.MaxResults > 100 {
		return fmt.Errorf("max_results must be between 1 and 100")
	}

	if c.Retrieval.SemanticThreshold < 0 || c.Retrieval.SemanticThreshold > 1 {
		return fmt.Errorf("semantic_threshold must be between 0 and 1")
	}

	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rate_limit max_requests must be positive")
	}

	if c.Classifier.CacheEvictCount >= c.Classifier.CacheMaxEntries {
		return fmt.Errorf("classifier cache_evict_count must be below cache_max_entries")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite"
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Database.Postgres.DSN = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("CATALOGUE_INDEX_PATH"); v != "" {
		cfg.Vector.CatalogueIndexPath = v
	}

	if v := os.Getenv("GENERAL_INDEX_PATH"); v != "" {
		cfg.Vector.GeneralIndexPath = v
	}

	if v := os.Getenv("LIBRARY_WEBSITE_URL"); v != "" {
		cfg.Website.Enabled = true
		cfg.Website.URL = v
	}

	if v := os.Getenv("EXTERNAL_CLASSIFIER_ENABLED"); v == "true" {
		cfg.Classifier.ExternalEnabled = true
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
