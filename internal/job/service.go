// Package job runs the asynchronous cell-search pipeline: a submission
// creates a running job and returns immediately, a background goroutine
// resolves the dataset, selects query cells, embeds them, searches the
// index, and materializes spreadsheets, and the result reader serves pages
// of the finished spreadsheet.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/tyvekbio/cellseek/internal/artifact"
	"github.com/tyvekbio/cellseek/internal/cache"
	"github.com/tyvekbio/cellseek/internal/config"
	"github.com/tyvekbio/cellseek/internal/dataset"
	"github.com/tyvekbio/cellseek/internal/embed"
	"github.com/tyvekbio/cellseek/internal/engine"
	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

const (
	// Bounds on the requested neighbor count.
	minResultCells     = 1
	maxResultCells     = 10000
	defaultResultCells = 10000

	statusTTL     = 30 * time.Minute
	resultPageTTL = 10 * time.Minute
)

// SubmitParams holds validated parameters for a job submission.
type SubmitParams struct {
	Name            *string
	ParentJobID     *int64
	Comment         *string
	Model           int
	JobType         int
	FileInfo        string
	Species         int
	CellIndex       *string
	ResultCellCount *int
}

// ResultPage is one page of a finished job's result spreadsheet. For jobs
// that have not completed, Records is empty and Total is zero; the caller
// polls until Status flips.
type ResultPage struct {
	Status  string              `json:"status"`
	Records []map[string]string `json:"records"`
	Total   int                 `json:"total"`
}

// Service orchestrates the search pipeline.
type Service struct {
	store  store.Store
	cache  cache.Cache
	engine engine.Engine
	vocab  *embed.Vocabulary
	cfg    config.Config
	node   *snowflake.Node
}

// NewService creates a new job Service. vocab may be nil when the
// transformer backend is disabled in the deployment.
func NewService(st store.Store, ca cache.Cache, eng engine.Engine, vocab *embed.Vocabulary, cfg config.Config, node *snowflake.Node) *Service {
	return &Service{store: st, cache: ca, engine: eng, vocab: vocab, cfg: cfg, node: node}
}

// Submit creates a running job and dispatches the pipeline in a background
// goroutine. It returns the job immediately without waiting for the search
// to complete.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Job, error) {
	if params.Model != models.ModelTransformer && params.Model != models.ModelSimilarity {
		return nil, fmt.Errorf("invalid model %d", params.Model)
	}
	if params.JobType != models.JobTypeUpload && params.JobType != models.JobTypeSample {
		return nil, fmt.Errorf("invalid job type %d", params.JobType)
	}
	if params.FileInfo == "" {
		return nil, fmt.Errorf("file_info is required")
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:              s.node.Generate().Int64(),
		Name:            params.Name,
		ParentJobID:     params.ParentJobID,
		Status:          models.JobStatusRunning,
		Comment:         params.Comment,
		Model:           params.Model,
		JobType:         params.JobType,
		FileInfo:        params.FileInfo,
		Species:         params.Species,
		CellIndex:       params.CellIndex,
		ResultCellCount: params.ResultCellCount,
		StartedAt:       &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusRunning, statusTTL)

	go s.run(job)

	return job, nil
}

// run executes the pipeline for one job. It recovers from panics and always
// leaves the job completed or failed.
func (s *Service) run(job *models.Job) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job pipeline", "error", r, "job_id", job.ID)
			s.fail(ctx, job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	path, err := s.resolveDatasetPath(ctx, job)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("resolving dataset: %v", err))
		return
	}

	d, err := dataset.Load(path)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("loading dataset: %v", err))
		return
	}

	selected, err := dataset.SelectCells(d, job.CellIndex)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("selecting cells: %v", err))
		return
	}

	backend, err := embed.NewBackend(job.Model, s.engine, s.vocab, s.cfg)
	if err != nil {
		s.fail(ctx, job.ID, err.Error())
		return
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.Engine.Timeout)
	defer cancel()

	res, err := backend.Embed(embedCtx, job.ID, selected)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("embedding cells: %v", err))
		return
	}

	k := clampResultCells(job.ResultCellCount)
	hits, err := s.engine.SearchNearest(embedCtx, res.Vectors, k)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("searching index: %v", err))
		return
	}

	file, result, err := s.materialize(job.ID, hits, res)
	if err != nil {
		s.fail(ctx, job.ID, fmt.Sprintf("writing results: %v", err))
		return
	}

	if err := s.store.CompleteJob(ctx, job.ID, file, result); err != nil {
		slog.Error("completing job", "error", err, "job_id", job.ID)
		s.fail(ctx, job.ID, fmt.Sprintf("storing result: %v", err))
		return
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, models.JobStatusCompleted, statusTTL)

	slog.Info("job completed", "job_id", job.ID, "backend", backend.Name(),
		"cells", len(res.Barcodes), "hits", len(hits))
}

// materialize writes the result and embedding spreadsheets and builds the
// rows CompleteJob will insert. Only the primary spreadsheet gets a File
// row; the embedding dump is a sidecar under the same output directory.
func (s *Service) materialize(jobID int64, hits []engine.Neighbor, res *embed.Result) (*models.File, *models.JobResult, error) {
	name := artifact.ResultFileName(jobID)
	size, err := artifact.WriteNeighbors(filepath.Join(s.cfg.Storage.OutputDir, name), hits)
	if err != nil {
		return nil, nil, err
	}

	embName := artifact.EmbeddingFileName(jobID)
	if _, err := artifact.WriteEmbeddings(filepath.Join(s.cfg.Storage.OutputDir, embName), res.Barcodes, res.Vectors); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	file := &models.File{
		ID:        s.node.Generate().Int64(),
		Name:      name,
		Path:      name,
		Size:      size,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result := &models.JobResult{
		ID:        s.node.Generate().Int64(),
		JobID:     jobID,
		FileID:    file.ID,
		ResultKey: models.ResultKeyCellSearch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return file, result, nil
}

// fail marks the job failed with the given message. Losing the race against
// another terminal transition is fine; the store keeps the first one.
func (s *Service) fail(ctx context.Context, jobID int64, msg string) {
	slog.Error("job failed", "job_id", jobID, "reason", msg)
	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("marking job failed", "error", err, "job_id", jobID)
	}
	_ = s.cache.SetJobStatus(ctx, jobID, models.JobStatusFailed, statusTTL)
}

// GetResult returns one page of a job's result. Until the job completes the
// page carries only the live status; for completed jobs it reads the stored
// spreadsheet, caching pages briefly since clients tend to re-request them.
func (s *Service) GetResult(ctx context.Context, jobID int64, page, pageSize int) (*ResultPage, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != models.JobStatusCompleted {
		return &ResultPage{Status: job.Status, Records: []map[string]string{}}, nil
	}

	cacheKey := cache.ResultPageKey(jobID, page, pageSize)
	if buf, ok, _ := s.cache.Get(ctx, cacheKey); ok {
		var cached ResultPage
		if err := json.Unmarshal(buf, &cached); err == nil {
			return &cached, nil
		}
	}

	result, err := s.store.GetJobResultByJobID(ctx, jobID, models.ResultKeyCellSearch)
	if err != nil {
		return nil, fmt.Errorf("looking up job result: %w", err)
	}
	file, err := s.store.GetFile(ctx, result.FileID)
	if err != nil {
		return nil, fmt.Errorf("looking up result file: %w", err)
	}

	sheet, err := artifact.ReadPage(filepath.Join(s.cfg.Storage.OutputDir, file.Path), page, pageSize)
	if err != nil {
		return nil, err
	}

	rp := &ResultPage{Status: job.Status, Records: sheet.Records, Total: sheet.Total}
	if buf, err := json.Marshal(rp); err == nil {
		_ = s.cache.Set(ctx, cacheKey, buf, resultPageTTL)
	}
	return rp, nil
}

// clampResultCells applies the default and bounds to the requested neighbor
// count.
func clampResultCells(requested *int) int {
	if requested == nil {
		return defaultResultCells
	}
	k := *requested
	if k < minResultCells {
		return minResultCells
	}
	if k > maxResultCells {
		return maxResultCells
	}
	return k
}
