package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tyvekbio/cellseek/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, job_name, parent_job_id, status, comment, model, job_type, file_info,
	species, cell_index, result_cell_count, error_message, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Name, &j.ParentJobID, &j.Status, &j.Comment, &j.Model,
		&j.JobType, &j.FileInfo, &j.Species, &j.CellIndex, &j.ResultCellCount,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, job_name, parent_job_id, status, comment, model, job_type, file_info,
		    species, cell_index, result_cell_count, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.Name, job.ParentJobID, job.Status, job.Comment, job.Model, job.JobType,
		job.FileInfo, job.Species, job.CellIndex, job.ResultCellCount, job.StartedAt,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.ID != 0 {
		conditions = append(conditions, fmt.Sprintf("id = $%d", argIdx))
		args = append(args, filter.ID)
		argIdx++
	}
	if filter.Name != "" {
		conditions = append(conditions, fmt.Sprintf("job_name LIKE $%d", argIdx))
		args = append(args, "%"+filter.Name+"%")
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.CreatedSince.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.CreatedSince)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	dataQuery := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// Status is monotonic: a job enters as running and never leaves a terminal
// state. The empty source set for completed/failed makes that explicit.
var validTransitions = map[string][]string{
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed},
}

func checkTransition(from, to string) error {
	for _, a := range validTransitions[from] {
		if a == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id int64, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := transitionJob(ctx, tx, id, status, params.ErrorMessage); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// transitionJob validates and applies a status transition inside tx.
func transitionJob(ctx context.Context, tx pgx.Tx, id int64, status string, errMsg *string) error {
	var currentStatus string
	err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if err := checkTransition(currentStatus, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if errMsg != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *errMsg)
		argIdx++
	}

	query += " WHERE id = $1"

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID int64, file *models.File, result *models.JobResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO files (id, name, path, size, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		file.ID, file.Name, file.Path, file.Size, file.CreatedAt, file.UpdatedAt); err != nil {
		return fmt.Errorf("create result file: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO job_results (id, job_id, file_id, result_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.ID, result.JobID, result.FileID, result.ResultKey,
		result.CreatedAt, result.UpdatedAt); err != nil {
		return fmt.Errorf("create job result: %w", err)
	}

	if err := transitionJob(ctx, tx, jobID, models.JobStatusCompleted, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ModifyJob(ctx context.Context, job *models.Job) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{job.ID}
	argIdx := 2

	if job.Name != nil {
		sets = append(sets, fmt.Sprintf("job_name = $%d", argIdx))
		args = append(args, *job.Name)
		argIdx++
	}
	if job.ParentJobID != nil {
		sets = append(sets, fmt.Sprintf("parent_job_id = $%d", argIdx))
		args = append(args, *job.ParentJobID)
		argIdx++
	}
	if job.Comment != nil {
		sets = append(sets, fmt.Sprintf("comment = $%d", argIdx))
		args = append(args, *job.Comment)
		argIdx++
	}

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $1`, strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("modify job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteJobs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	return nil
}

// --- Files ---

func (s *PostgresStore) CreateFile(ctx context.Context, file *models.File) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO files (id, name, path, size, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		file.ID, file.Name, file.Path, file.Size, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id int64) (*models.File, error) {
	var f models.File
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, path, size, created_at, updated_at FROM files WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.Path, &f.Size, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, filter FileFilter) ([]*models.File, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Name != "" {
		conditions = append(conditions, fmt.Sprintf("name LIKE $%d", argIdx))
		args = append(args, "%"+filter.Name+"%")
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM files WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, name, path, size, created_at, updated_at
		 FROM files WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.ID, &f.Name, &f.Path, &f.Size, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, &f)
	}
	return files, total, rows.Err()
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Samples ---

const sampleColumns = `id, species, sample_id, project_id, tissue, cell_count,
	project_title, project_summary, platform, ext, created_at, updated_at`

func scanSample(row pgx.Row) (*models.Sample, error) {
	var sm models.Sample
	err := row.Scan(&sm.ID, &sm.Species, &sm.SampleID, &sm.ProjectID, &sm.Tissue,
		&sm.CellCount, &sm.ProjectTitle, &sm.ProjectSummary, &sm.Platform, &sm.Ext,
		&sm.CreatedAt, &sm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sm, nil
}

func (s *PostgresStore) CreateSample(ctx context.Context, sample *models.Sample) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO samples (id, species, sample_id, project_id, tissue, cell_count,
		    project_title, project_summary, platform, ext, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sample.ID, sample.Species, sample.SampleID, sample.ProjectID, sample.Tissue,
		sample.CellCount, sample.ProjectTitle, sample.ProjectSummary, sample.Platform,
		sample.Ext, sample.CreatedAt, sample.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create sample: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSample(ctx context.Context, id int64) (*models.Sample, error) {
	sm, err := scanSample(s.pool.QueryRow(ctx,
		`SELECT `+sampleColumns+` FROM samples WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sample: %w", err)
	}
	return sm, nil
}

func (s *PostgresStore) ListSamples(ctx context.Context, filter SampleFilter) ([]*models.Sample, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Species != "" {
		conditions = append(conditions, fmt.Sprintf("species = $%d", argIdx))
		args = append(args, filter.Species)
		argIdx++
	}
	if filter.SampleID != "" {
		conditions = append(conditions, fmt.Sprintf("sample_id = $%d", argIdx))
		args = append(args, filter.SampleID)
		argIdx++
	}
	if filter.Tissue != "" {
		conditions = append(conditions, fmt.Sprintf("tissue = $%d", argIdx))
		args = append(args, filter.Tissue)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM samples WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count samples: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+sampleColumns+` FROM samples WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.Sample
	for rows.Next() {
		sm, err := scanSample(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sm)
	}
	return samples, total, rows.Err()
}

// --- Job results ---

func (s *PostgresStore) GetJobResultByJobID(ctx context.Context, jobID int64, resultKey string) (*models.JobResult, error) {
	var r models.JobResult
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, file_id, result_key, created_at, updated_at
		 FROM job_results WHERE job_id = $1 AND result_key = $2`, jobID, resultKey,
	).Scan(&r.ID, &r.JobID, &r.FileID, &r.ResultKey, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) CountJobResults(ctx context.Context, jobID int64) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_results WHERE job_id = $1`, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count job results: %w", err)
	}
	return n, nil
}

// --- Cell metadata ---

const metadataColumns = `id, barcode, sample_id, assay, organism, development_stage,
	tissue, disease, sex, cell_type, cell_embedding, created_at, updated_at`

func scanCellMetadata(row pgx.Row) (*models.CellMetadata, error) {
	var m models.CellMetadata
	err := row.Scan(&m.ID, &m.Barcode, &m.SampleID, &m.Assay, &m.Organism,
		&m.DevelopmentStage, &m.Tissue, &m.Disease, &m.Sex, &m.CellType,
		&m.CellEmbedding, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) CreateCellMetadataBatch(ctx context.Context, rows []*models.CellMetadata) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range rows {
		batch.Queue(
			`INSERT INTO cell_metadata (id, barcode, sample_id, assay, organism, development_stage,
			    tissue, disease, sex, cell_type, cell_embedding, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			m.ID, m.Barcode, m.SampleID, m.Assay, m.Organism, m.DevelopmentStage,
			m.Tissue, m.Disease, m.Sex, m.CellType, m.CellEmbedding, m.CreatedAt, m.UpdatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert cell metadata: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetCellMetadata(ctx context.Context, id int64) (*models.CellMetadata, error) {
	m, err := scanCellMetadata(s.pool.QueryRow(ctx,
		`SELECT `+metadataColumns+` FROM cell_metadata WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cell metadata: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListCellMetadata(ctx context.Context, filter MetadataFilter) ([]*models.CellMetadata, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	eq := []struct {
		col string
		val string
	}{
		{"barcode", filter.Barcode},
		{"sample_id", filter.SampleID},
		{"organism", filter.Organism},
		{"tissue", filter.Tissue},
		{"disease", filter.Disease},
		{"sex", filter.Sex},
		{"cell_type", filter.CellType},
	}
	for _, f := range eq {
		if f.val == "" {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", f.col, argIdx))
		args = append(args, f.val)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM cell_metadata WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cell metadata: %w", err)
	}

	limit, offset := normalizePage(filter.Page, filter.Limit)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+metadataColumns+` FROM cell_metadata WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cell metadata: %w", err)
	}
	defer rows.Close()

	var out []*models.CellMetadata
	for rows.Next() {
		m, err := scanCellMetadata(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cell metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) NearestCells(ctx context.Context, embedding pgvector.Vector, k int) ([]*models.CellMetadata, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+metadataColumns+` FROM cell_metadata ORDER BY cell_embedding <-> $1 LIMIT $2`,
		embedding, k)
	if err != nil {
		return nil, fmt.Errorf("nearest cells: %w", err)
	}
	defer rows.Close()

	var out []*models.CellMetadata
	for rows.Next() {
		m, err := scanCellMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cell metadata: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizePage clamps pagination to sane bounds and returns (limit, offset).
func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
