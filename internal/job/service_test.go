package job

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyvekbio/cellseek/internal/artifact"
	"github.com/tyvekbio/cellseek/internal/config"
	"github.com/tyvekbio/cellseek/internal/dataset"
	"github.com/tyvekbio/cellseek/internal/engine"
	"github.com/tyvekbio/cellseek/internal/engine/enginetest"
	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// --- mocks ---

type fakeStore struct {
	mu      sync.Mutex
	jobs    map[int64]*models.Job
	files   map[int64]*models.File
	samples []*models.Sample
	results []*models.JobResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:  make(map[int64]*models.Job),
		files: make(map[int64]*models.File),
	}
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

func (s *fakeStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) ListJobs(_ context.Context, _ store.JobFilter) ([]*models.Job, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, id int64, status string, _ ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.Terminal() {
		return store.ErrInvalidTransition
	}
	job.Status = status
	return nil
}

func (s *fakeStore) CompleteJob(_ context.Context, jobID int64, file *models.File, result *models.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.Terminal() {
		return store.ErrInvalidTransition
	}
	s.files[file.ID] = file
	s.results = append(s.results, result)
	job.Status = models.JobStatusCompleted
	return nil
}

func (s *fakeStore) ModifyJob(_ context.Context, _ *models.Job) error { return nil }
func (s *fakeStore) DeleteJob(_ context.Context, _ int64) error       { return nil }
func (s *fakeStore) DeleteJobs(_ context.Context, _ []int64) error    { return nil }

func (s *fakeStore) CreateFile(_ context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.ID] = file
	return nil
}

func (s *fakeStore) GetFile(_ context.Context, id int64) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return file, nil
}

func (s *fakeStore) ListFiles(_ context.Context, _ store.FileFilter) ([]*models.File, int, error) {
	return nil, 0, nil
}
func (s *fakeStore) DeleteFile(_ context.Context, _ int64) error { return nil }

func (s *fakeStore) CreateSample(_ context.Context, sample *models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *fakeStore) GetSample(_ context.Context, _ int64) (*models.Sample, error) {
	return nil, store.ErrNotFound
}

func (s *fakeStore) ListSamples(_ context.Context, filter store.SampleFilter) ([]*models.Sample, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Sample
	for _, sm := range s.samples {
		if filter.SampleID == "" || sm.SampleID == filter.SampleID {
			out = append(out, sm)
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) GetJobResultByJobID(_ context.Context, jobID int64, resultKey string) (*models.JobResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.JobID == jobID && r.ResultKey == resultKey {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) CountJobResults(_ context.Context, jobID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.results {
		if r.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CreateCellMetadataBatch(_ context.Context, _ []*models.CellMetadata) error {
	return nil
}
func (s *fakeStore) GetCellMetadata(_ context.Context, _ int64) (*models.CellMetadata, error) {
	return nil, store.ErrNotFound
}
func (s *fakeStore) ListCellMetadata(_ context.Context, _ store.MetadataFilter) ([]*models.CellMetadata, int, error) {
	return nil, 0, nil
}
func (s *fakeStore) NearestCells(_ context.Context, _ pgvector.Vector, _ int) ([]*models.CellMetadata, error) {
	return nil, nil
}

func (s *fakeStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *fakeStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *fakeStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *fakeStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *fakeStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }

type fakeCache struct {
	mu       sync.Mutex
	statuses map[int64]string
	entries  map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{statuses: make(map[int64]string), entries: make(map[string][]byte)}
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *fakeCache) Delete(_ context.Context, _ string) error { return nil }
func (c *fakeCache) Ping(_ context.Context) error             { return nil }
func (c *fakeCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (c *fakeCache) SetJobStatus(_ context.Context, jobID int64, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *fakeCache) GetJobStatus(_ context.Context, jobID int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

// --- helpers ---

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Storage: config.StorageConfig{
			UploadDir:  t.TempDir(),
			OutputDir:  t.TempDir(),
			BuiltInDir: t.TempDir(),
		},
		Engine: config.EngineConfig{
			Timeout:      30 * time.Second,
			EmbeddingDim: 4,
		},
	}
}

func testNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// writeSampleDataset stores a 3-cell, 2-gene reference dataset under the
// built-in directory and registers the sample row.
func writeSampleDataset(t *testing.T, st *fakeStore, builtInDir, sampleID string) {
	t.Helper()
	d := &dataset.Dataset{
		ObsNames: []string{"AAAC-1", "CCCG-1", "GGGT-1"},
		VarNames: []string{"g1", "g2"},
		X:        [][]float64{{1, 2}, {3, 4}, {5, 6}},
	}
	require.NoError(t, d.Save(filepath.Join(builtInDir, sampleID+".h5ad")))
	require.NoError(t, st.CreateSample(context.Background(), &models.Sample{
		ID:       1,
		SampleID: sampleID,
	}))
}

func waitForTerminal(t *testing.T, st *fakeStore, jobID int64) *models.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job, err := st.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Terminal() {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %d to finish, status %s", jobID, job.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func intPtr(i int) *int { return &i }

// --- tests ---

func TestSubmit_ReturnsImmediately(t *testing.T) {
	st := newFakeStore()
	ca := newFakeCache()
	cfg := testConfig(t)
	writeSampleDataset(t, st, cfg.Storage.BuiltInDir, "S1")

	eng := &enginetest.Engine{
		GeneOrderFn: func(_ context.Context) ([]string, error) {
			time.Sleep(100 * time.Millisecond)
			return []string{"g1", "g2"}, nil
		},
	}

	svc := NewService(st, ca, eng, nil, cfg, testNode(t))

	start := time.Now()
	job, err := svc.Submit(context.Background(), SubmitParams{
		Model:    models.ModelSimilarity,
		JobType:  models.JobTypeSample,
		FileInfo: "S1",
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Less(t, elapsed, 50*time.Millisecond, "Submit must not wait for the pipeline")

	status, ok, _ := ca.GetJobStatus(context.Background(), job.ID)
	assert.True(t, ok)
	assert.Equal(t, models.JobStatusRunning, status)

	waitForTerminal(t, st, job.ID)
}

func TestSubmit_InvalidParams(t *testing.T) {
	svc := NewService(newFakeStore(), newFakeCache(), &enginetest.Engine{}, nil, testConfig(t), testNode(t))

	tests := []struct {
		name   string
		params SubmitParams
	}{
		{"unknown model", SubmitParams{Model: 99, JobType: models.JobTypeSample, FileInfo: "S1"}},
		{"unknown job type", SubmitParams{Model: models.ModelSimilarity, JobType: 7, FileInfo: "S1"}},
		{"missing file info", SubmitParams{Model: models.ModelSimilarity, JobType: models.JobTypeSample}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.params)
			assert.Error(t, err)
		})
	}
}

func TestRun_CompletesSampleJob(t *testing.T) {
	st := newFakeStore()
	ca := newFakeCache()
	cfg := testConfig(t)
	writeSampleDataset(t, st, cfg.Storage.BuiltInDir, "S1")

	var gotK int
	var gotQueries int
	eng := &enginetest.Engine{
		GeneOrderFn: func(_ context.Context) ([]string, error) {
			return []string{"g1", "g2"}, nil
		},
		EmbeddingsFn: func(_ context.Context, x [][]float64) ([][]float64, error) {
			out := make([][]float64, len(x))
			for i := range out {
				out[i] = []float64{1, 0, 0, 0}
			}
			return out, nil
		},
		SearchNearestFn: func(_ context.Context, queries [][]float64, k int) ([]engine.Neighbor, error) {
			gotQueries, gotK = len(queries), k
			return []engine.Neighbor{
				{Barcode: "ref-1", SampleID: "R1", CellType: "T cell", Distance: 0.1},
				{Barcode: "ref-2", SampleID: "R2", CellType: "B cell", Distance: 0.2},
			}, nil
		},
	}

	svc := NewService(st, ca, eng, nil, cfg, testNode(t))

	job, err := svc.Submit(context.Background(), SubmitParams{
		Model:           models.ModelSimilarity,
		JobType:         models.JobTypeSample,
		FileInfo:        "S1",
		ResultCellCount: intPtr(50),
	})
	require.NoError(t, err)

	finished := waitForTerminal(t, st, job.ID)
	require.Equal(t, models.JobStatusCompleted, finished.Status)

	// No cell_index: the pipeline embeds the single fallback cell.
	assert.Equal(t, 1, gotQueries)
	assert.Equal(t, 50, gotK)

	// Exactly one result row, pointing at a spreadsheet that exists on disk.
	n, err := st.CountJobResults(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	result, err := st.GetJobResultByJobID(context.Background(), job.ID, models.ResultKeyCellSearch)
	require.NoError(t, err)
	file, err := st.GetFile(context.Background(), result.FileID)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.Storage.OutputDir, file.Path))
	assert.FileExists(t, filepath.Join(cfg.Storage.OutputDir, artifact.EmbeddingFileName(job.ID)))

	status, _, _ := ca.GetJobStatus(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, status)
}

func TestRun_FailsOnMissingUpload(t *testing.T) {
	st := newFakeStore()
	ca := newFakeCache()
	cfg := testConfig(t)

	svc := NewService(st, ca, &enginetest.Engine{}, nil, cfg, testNode(t))

	job, err := svc.Submit(context.Background(), SubmitParams{
		Model:    models.ModelSimilarity,
		JobType:  models.JobTypeUpload,
		FileInfo: "123456",
	})
	require.NoError(t, err)

	finished := waitForTerminal(t, st, job.ID)
	assert.Equal(t, models.JobStatusFailed, finished.Status)

	// Failed jobs leave no result rows.
	n, err := st.CountJobResults(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	status, _, _ := ca.GetJobStatus(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, status)
}

func TestRun_FailsOnSearchError(t *testing.T) {
	st := newFakeStore()
	cfg := testConfig(t)
	writeSampleDataset(t, st, cfg.Storage.BuiltInDir, "S1")

	eng := &enginetest.Engine{
		GeneOrderFn: func(_ context.Context) ([]string, error) {
			return []string{"g1", "g2"}, nil
		},
		EmbeddingsFn: func(_ context.Context, x [][]float64) ([][]float64, error) {
			out := make([][]float64, len(x))
			for i := range out {
				out[i] = []float64{1, 0, 0, 0}
			}
			return out, nil
		},
		SearchNearestFn: func(_ context.Context, _ [][]float64, _ int) ([]engine.Neighbor, error) {
			return nil, engine.ErrEngineUnavailable
		},
	}

	svc := NewService(st, newFakeCache(), eng, nil, cfg, testNode(t))

	job, err := svc.Submit(context.Background(), SubmitParams{
		Model:    models.ModelSimilarity,
		JobType:  models.JobTypeSample,
		FileInfo: "S1",
	})
	require.NoError(t, err)

	finished := waitForTerminal(t, st, job.ID)
	assert.Equal(t, models.JobStatusFailed, finished.Status)
}

func TestGetResult_RunningJob(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, newFakeCache(), &enginetest.Engine{}, nil, testConfig(t), testNode(t))

	require.NoError(t, st.CreateJob(context.Background(), &models.Job{
		ID:     77,
		Status: models.JobStatusRunning,
	}))

	page, err := svc.GetResult(context.Background(), 77, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, page.Status)
	assert.Empty(t, page.Records)
	assert.Zero(t, page.Total)
}

func TestGetResult_UnknownJob(t *testing.T) {
	svc := NewService(newFakeStore(), newFakeCache(), &enginetest.Engine{}, nil, testConfig(t), testNode(t))

	_, err := svc.GetResult(context.Background(), 404, 1, 10)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetResult_CompletedJobPagination(t *testing.T) {
	st := newFakeStore()
	ca := newFakeCache()
	cfg := testConfig(t)
	writeSampleDataset(t, st, cfg.Storage.BuiltInDir, "S1")

	eng := &enginetest.Engine{
		GeneOrderFn: func(_ context.Context) ([]string, error) {
			return []string{"g1", "g2"}, nil
		},
		EmbeddingsFn: func(_ context.Context, x [][]float64) ([][]float64, error) {
			out := make([][]float64, len(x))
			for i := range out {
				out[i] = []float64{1, 0, 0, 0}
			}
			return out, nil
		},
		SearchNearestFn: func(_ context.Context, _ [][]float64, _ int) ([]engine.Neighbor, error) {
			return []engine.Neighbor{
				{Barcode: "ref-1", Distance: 0.1},
				{Barcode: "ref-2", Distance: 0.2},
				{Barcode: "ref-3", Distance: 0.3},
			}, nil
		},
	}

	svc := NewService(st, ca, eng, nil, cfg, testNode(t))

	job, err := svc.Submit(context.Background(), SubmitParams{
		Model:    models.ModelSimilarity,
		JobType:  models.JobTypeSample,
		FileInfo: "S1",
	})
	require.NoError(t, err)
	waitForTerminal(t, st, job.ID)

	page, err := svc.GetResult(context.Background(), job.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, page.Status)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "ref-1", page.Records[0]["barcode"])

	// Past-the-end page keeps the true total.
	past, err := svc.GetResult(context.Background(), job.ID, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, past.Records)
	assert.Equal(t, 3, past.Total)

	// Second read of the same page is served from cache.
	again, err := svc.GetResult(context.Background(), job.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, page.Records, again.Records)
}

func TestClampResultCells(t *testing.T) {
	tests := []struct {
		name      string
		requested *int
		want      int
	}{
		{"default", nil, 10000},
		{"below minimum", intPtr(0), 1},
		{"negative", intPtr(-5), 1},
		{"in range", intPtr(50), 50},
		{"above maximum", intPtr(20000), 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampResultCells(tt.requested))
		})
	}
}
