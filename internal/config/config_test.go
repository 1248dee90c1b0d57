package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/cellseek")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CELLSEEK_UPLOAD_DIR", "/data/uploads")
	t.Setenv("CELLSEEK_OUTPUT_DIR", "/data/output")
	t.Setenv("CELLSEEK_BUILTIN_DIR", "/data/builtin")
	t.Setenv("ENGINE_BASE_URL", "http://localhost:9000")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, int64(1), cfg.Server.SnowflakeID)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 512, cfg.Engine.EmbeddingDim)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Timeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"database url", "DATABASE_URL"},
		{"redis url", "REDIS_URL"},
		{"upload dir", "CELLSEEK_UPLOAD_DIR"},
		{"output dir", "CELLSEEK_OUTPUT_DIR"},
		{"builtin dir", "CELLSEEK_BUILTIN_DIR"},
		{"engine url", "ENGINE_BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.unset)
		})
	}
}

func TestLoad_InvalidEngineURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENGINE_BASE_URL", "localhost:9000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_BASE_URL")
}

func TestLoad_InvalidNodeID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CELLSEEK_NODE_ID", "4096")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CELLSEEK_NODE_ID")
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CELLSEEK_PORT", "9090")
	t.Setenv("ENGINE_EMBEDDING_DIM", "128")
	t.Setenv("ENGINE_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 128, cfg.Engine.EmbeddingDim)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
}
