package models

import "time"

const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Model discriminators for the two embedding backends.
const (
	ModelTransformer = 1
	ModelSimilarity  = 2
)

// Job types: 1 = user-uploaded dataset, 2 = built-in sample.
const (
	JobTypeUpload = 1
	JobTypeSample = 2
)

// Job tracks one asynchronous embedding+search request. The API returns a
// job id on POST /api/v1/jobs/submit; the client polls the result endpoint
// until status is completed or failed. Status is monotonic: running is the
// entry state and terminal states never revert.
type Job struct {
	ID              int64      `db:"id"                json:"id"`
	Name            *string    `db:"job_name"          json:"job_name,omitempty"`
	ParentJobID     *int64     `db:"parent_job_id"     json:"parent_job_id,omitempty"`
	Status          string     `db:"status"            json:"status"`
	Comment         *string    `db:"comment"           json:"comment,omitempty"`
	Model           int        `db:"model"             json:"model"`
	JobType         int        `db:"job_type"          json:"job_type"`
	FileInfo        string     `db:"file_info"         json:"file_info"`
	Species         int        `db:"species"           json:"species"`
	CellIndex       *string    `db:"cell_index"        json:"cell_index,omitempty"`
	ResultCellCount *int       `db:"result_cell_count" json:"result_cell_count,omitempty"`
	ErrorMessage    *string    `db:"error_message"     json:"error_message,omitempty"`
	StartedAt       *time.Time `db:"started_at"        json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at"      json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
}

// Terminal reports whether the job has reached a terminal status.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
