package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the cellseek server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port        int
	Env         string
	SnowflakeID int64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// StorageConfig names the three on-disk roots the pipeline touches:
// customer uploads are read from UploadDir, built-in reference datasets
// from BuiltInDir, and result spreadsheets are written under OutputDir.
// ModelDir holds the transformer backend's vocabulary files.
type StorageConfig struct {
	UploadDir  string
	OutputDir  string
	BuiltInDir string
	ModelDir   string
}

// EngineConfig points at the embedding/search model server.
type EngineConfig struct {
	BaseURL      string
	Timeout      time.Duration
	EmbeddingDim int
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        envInt("CELLSEEK_PORT", 8080),
			Env:         envString("CELLSEEK_ENV", "development"),
			SnowflakeID: int64(envInt("CELLSEEK_NODE_ID", 1)),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			UploadDir:  os.Getenv("CELLSEEK_UPLOAD_DIR"),
			OutputDir:  os.Getenv("CELLSEEK_OUTPUT_DIR"),
			BuiltInDir: os.Getenv("CELLSEEK_BUILTIN_DIR"),
			ModelDir:   os.Getenv("CELLSEEK_MODEL_DIR"),
		},
		Engine: EngineConfig{
			BaseURL:      os.Getenv("ENGINE_BASE_URL"),
			Timeout:      envDuration("ENGINE_TIMEOUT", 10*time.Minute),
			EmbeddingDim: envInt("ENGINE_EMBEDDING_DIM", 512),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("CELLSEEK_UPLOAD_DIR is required")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("CELLSEEK_OUTPUT_DIR is required")
	}
	if c.Storage.BuiltInDir == "" {
		return fmt.Errorf("CELLSEEK_BUILTIN_DIR is required")
	}

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return fmt.Errorf("ENGINE_BASE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}
	if c.Engine.EmbeddingDim <= 0 {
		return fmt.Errorf("ENGINE_EMBEDDING_DIM must be positive, got %d", c.Engine.EmbeddingDim)
	}

	if c.Server.SnowflakeID < 0 || c.Server.SnowflakeID > 1023 {
		return fmt.Errorf("CELLSEEK_NODE_ID must be in [0, 1023], got %d", c.Server.SnowflakeID)
	}

	return nil
}

// EnsureDirs creates the configured storage directories if they do not exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.UploadDir, c.Storage.OutputDir, c.Storage.BuiltInDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
