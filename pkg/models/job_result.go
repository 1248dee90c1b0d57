package models

import "time"

// ResultKeyCellSearch tags the primary spreadsheet of a completed search job.
const ResultKeyCellSearch = "cell_search"

// JobResult joins a completed job to one of its result files. A job has at
// most one row per result key; failed jobs have none.
type JobResult struct {
	ID        int64     `db:"id"         json:"id"`
	JobID     int64     `db:"job_id"     json:"job_id"`
	FileID    int64     `db:"file_id"    json:"file_id"`
	ResultKey string    `db:"result_key" json:"result_key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
