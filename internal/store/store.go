package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/tyvekbio/cellseek/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	UpdateJobStatus(ctx context.Context, id int64, status string, opts ...JobUpdateOption) error
	// CompleteJob inserts the result File row, the JobResult row, and flips
	// the job to completed in a single transaction so a reader never sees
	// one without the others.
	CompleteJob(ctx context.Context, jobID int64, file *models.File, result *models.JobResult) error
	ModifyJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, id int64) error
	DeleteJobs(ctx context.Context, ids []int64) error

	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id int64) (*models.File, error)
	ListFiles(ctx context.Context, filter FileFilter) ([]*models.File, int, error)
	DeleteFile(ctx context.Context, id int64) error

	CreateSample(ctx context.Context, sample *models.Sample) error
	GetSample(ctx context.Context, id int64) (*models.Sample, error)
	ListSamples(ctx context.Context, filter SampleFilter) ([]*models.Sample, int, error)

	GetJobResultByJobID(ctx context.Context, jobID int64, resultKey string) (*models.JobResult, error)
	CountJobResults(ctx context.Context, jobID int64) (int, error)

	CreateCellMetadataBatch(ctx context.Context, rows []*models.CellMetadata) error
	GetCellMetadata(ctx context.Context, id int64) (*models.CellMetadata, error)
	ListCellMetadata(ctx context.Context, filter MetadataFilter) ([]*models.CellMetadata, int, error)
	// NearestCells orders the metadata table by L2 distance to the query
	// embedding. Used by the ingestion/ops path, not the job pipeline.
	NearestCells(ctx context.Context, embedding pgvector.Vector, k int) ([]*models.CellMetadata, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type JobFilter struct {
	ID           int64
	Name         string // matched with LIKE
	Status       string
	CreatedSince time.Time
	Page         int
	Limit        int
}

type FileFilter struct {
	Name  string // matched with LIKE
	Page  int
	Limit int
}

type SampleFilter struct {
	Species  string
	SampleID string
	Tissue   string
	Page     int
	Limit    int
}

type MetadataFilter struct {
	Barcode  string
	SampleID string
	Organism string
	Tissue   string
	Disease  string
	Sex      string
	CellType string
	Page     int
	Limit    int
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}
