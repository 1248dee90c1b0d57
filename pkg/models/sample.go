package models

import "time"

// Sample describes a built-in reference dataset. The dataset file lives at
// {built_in_dir}/{sample_id}.h5ad by convention.
type Sample struct {
	ID             int64     `db:"id"              json:"id"`
	Species        *string   `db:"species"         json:"species,omitempty"`
	SampleID       string    `db:"sample_id"       json:"sample_id"`
	ProjectID      *string   `db:"project_id"      json:"project_id,omitempty"`
	Tissue         *string   `db:"tissue"          json:"tissue,omitempty"`
	CellCount      *int      `db:"cell_count"      json:"cell_count,omitempty"`
	ProjectTitle   *string   `db:"project_title"   json:"project_title,omitempty"`
	ProjectSummary *string   `db:"project_summary" json:"project_summary,omitempty"`
	Platform       *string   `db:"platform"        json:"platform,omitempty"`
	Ext            *string   `db:"ext"             json:"ext,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}
