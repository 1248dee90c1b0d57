package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyvekbio/cellseek/internal/cache"
	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *testStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }
func (s *testStore) CreateJob(_ context.Context, _ *models.Job) error          { return nil }
func (s *testStore) GetJob(_ context.Context, _ int64) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListJobs(_ context.Context, _ store.JobFilter) ([]*models.Job, int, error) {
	return nil, 0, nil
}
func (s *testStore) UpdateJobStatus(_ context.Context, _ int64, _ string, _ ...store.JobUpdateOption) error {
	return nil
}
func (s *testStore) CompleteJob(_ context.Context, _ int64, _ *models.File, _ *models.JobResult) error {
	return nil
}
func (s *testStore) ModifyJob(_ context.Context, _ *models.Job) error { return nil }
func (s *testStore) DeleteJob(_ context.Context, _ int64) error       { return nil }
func (s *testStore) DeleteJobs(_ context.Context, _ []int64) error    { return nil }
func (s *testStore) CreateFile(_ context.Context, _ *models.File) error {
	return nil
}
func (s *testStore) GetFile(_ context.Context, _ int64) (*models.File, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListFiles(_ context.Context, _ store.FileFilter) ([]*models.File, int, error) {
	return nil, 0, nil
}
func (s *testStore) DeleteFile(_ context.Context, _ int64) error            { return nil }
func (s *testStore) CreateSample(_ context.Context, _ *models.Sample) error { return nil }
func (s *testStore) GetSample(_ context.Context, _ int64) (*models.Sample, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListSamples(_ context.Context, _ store.SampleFilter) ([]*models.Sample, int, error) {
	return nil, 0, nil
}
func (s *testStore) GetJobResultByJobID(_ context.Context, _ int64, _ string) (*models.JobResult, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) CountJobResults(_ context.Context, _ int64) (int, error) { return 0, nil }
func (s *testStore) CreateCellMetadataBatch(_ context.Context, _ []*models.CellMetadata) error {
	return nil
}
func (s *testStore) GetCellMetadata(_ context.Context, _ int64) (*models.CellMetadata, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListCellMetadata(_ context.Context, _ store.MetadataFilter) ([]*models.CellMetadata, int, error) {
	return nil, 0, nil
}
func (s *testStore) NearestCells(_ context.Context, _ pgvector.Vector, _ int) ([]*models.CellMetadata, error) {
	return nil, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *testCache) Ping(_ context.Context) error                                      { return c.pingErr }
func (c *testCache) SetJobStatus(_ context.Context, _ int64, _ string, _ time.Duration) error {
	return nil
}
func (c *testCache) GetJobStatus(_ context.Context, _ int64) (string, bool, error) {
	return "", false, nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_BothDegraded(t *testing.T) {
	h := healthHandler(
		&testStore{pingErr: errors.New("db down")},
		&testCache{pingErr: errors.New("redis down")},
	)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	// Clear all env vars that config.Load() requires
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "ENGINE_BASE_URL",
		"CELLSEEK_UPLOAD_DIR", "CELLSEEK_OUTPUT_DIR", "CELLSEEK_BUILTIN_DIR",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("ENGINE_BASE_URL", "http://localhost:8000")
	t.Setenv("CELLSEEK_UPLOAD_DIR", dir)
	t.Setenv("CELLSEEK_OUTPUT_DIR", dir)
	t.Setenv("CELLSEEK_BUILTIN_DIR", dir)

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
