// Package config provides unified configuration loading for the Program Engine.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Program Engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Import        ImportConfig        `yaml:"import"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
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

// DatabaseConfig holds database connection settings.
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

// CacheConfig holds cache and lock settings.
type CacheConfig struct {
	Driver string        `yaml:"driver"` // memory or redis
	TTL    time.Duration `yaml:"ttl"`
	Redis  RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ImportConfig holds program import pipeline settings.
type ImportConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	IssueLimit     int           `yaml:"issue_limit"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	CacheResults   bool          `yaml:"cache_results"`
	AuditChannel   string        `yaml:"audit_channel"`
}

// ClassifierConfig holds column classification confidences and limits.
type ClassifierConfig struct {
	SampleSize         int           `yaml:"sample_size"`
	HeaderKeyword      int           `yaml:"header_keyword"`
	ValuePattern       int           `yaml:"value_pattern"`
	PhonePattern       int           `yaml:"phone_pattern"`
	HallPattern        int           `yaml:"hall_pattern"`
	RolePattern        int           `yaml:"role_pattern"`
	SessionLabel       int           `yaml:"session_label"`
	SessionAsTopic     int           `yaml:"session_as_topic"`
	NameHeader         int           `yaml:"name_header"`
	NameHeuristic      int           `yaml:"name_heuristic"`
	LongTextTopic      int           `yaml:"long_text_topic"`
	SessionLabelMaxLen int           `yaml:"session_label_max_len"`
	LongTextMinLen     int           `yaml:"long_text_min_len"`
	Advisor            AdvisorConfig `yaml:"advisor"`
}

// AdvisorConfig holds the optional LLM column advisor settings.
type AdvisorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	MaxConfidence int           `yaml:"max_confidence"`
	Timeout       time.Duration `yaml:"timeout"`
}

// AnalysisConfig holds schedule conflict thresholds.
type AnalysisConfig struct {
	MaxGapMinutes        int     `yaml:"max_gap_minutes"`
	LongSessionMinutes   int     `yaml:"long_session_minutes"`
	MaxContinuousMinutes int     `yaml:"max_continuous_minutes"`
	HeavyLoadSessions    int     `yaml:"heavy_load_sessions"`
	UnderutilizedRatio   float64 `yaml:"underutilized_ratio"`
	TopFacultyLimit      int     `yaml:"top_faculty_limit"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

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
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/program-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    15 * time.Minute,
			Redis: RedisConfig{
				Addr:     "localhost:6380",
				DB:       0,
				PoolSize: 10,
			},
		},
		Import: ImportConfig{
			BatchSize:      100,
			IssueLimit:     50,
			LockTTL:        5 * time.Minute,
			MaxUploadBytes: 10 << 20,
			CacheResults:   true,
			AuditChannel:   "program.imports",
		},
		Classifier: ClassifierConfig{
			SampleSize:         10,
			HeaderKeyword:      95,
			ValuePattern:       90,
			PhonePattern:       85,
			HallPattern:        80,
			RolePattern:        75,
			SessionLabel:       90,
			SessionAsTopic:     85,
			NameHeader:         90,
			NameHeuristic:      70,
			LongTextTopic:      60,
			SessionLabelMaxLen: 30,
			LongTextMinLen:     50,
			Advisor: AdvisorConfig{
				Enabled:       false,
				Model:         "gpt-4o-mini",
				MaxConfidence: 50,
				Timeout:       20 * time.Second,
			},
		},
		Analysis: AnalysisConfig{
			MaxGapMinutes:        90,
			LongSessionMinutes:   180,
			MaxContinuousMinutes: 180,
			HeavyLoadSessions:    15,
			UnderutilizedRatio:   0.5,
			TopFacultyLimit:      10,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "program-engine",
		},
		Auth: AuthConfig{
			Enabled: false,
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

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires database.postgres.dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be positive")
	}

	if c.Classifier.SampleSize < 1 {
		return fmt.Errorf("classifier.sample_size must be positive")
	}

	a := c.Analysis
	if a.MaxGapMinutes <= 0 || a.LongSessionMinutes <= 0 || a.MaxContinuousMinutes <= 0 || a.HeavyLoadSessions <= 0 {
		return fmt.Errorf("analysis thresholds must be positive")
	}
	if a.UnderutilizedRatio <= 0 || a.UnderutilizedRatio > 1 {
		return fmt.Errorf("analysis.underutilized_ratio must be in (0, 1]")
	}

	if c.Classifier.Advisor.Enabled && c.Classifier.Advisor.APIKey == "" {
		return fmt.Errorf("classifier advisor enabled without api key")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth enabled without api keys")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite" || !c.Auth.Enabled
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
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

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}

	if v := os.Getenv("IMPORT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Import.BatchSize = n
		}
	}

	if v := os.Getenv("IMPORT_ISSUE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Import.IssueLimit = n
		}
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Classifier.Advisor.APIKey = v
	}

	if v := os.Getenv("CLASSIFIER_ADVISOR_ENABLED"); v == "true" {
		cfg.Classifier.Advisor.Enabled = true
	}

	if v := os.Getenv("CLASSIFIER_ADVISOR_MODEL"); v != "" {
		cfg.Classifier.Advisor.Model = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("AUTH_ENABLED"); v == "true" {
		cfg.Auth.Enabled = true
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		cfg.Auth.APIKeys = keys
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}
