package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the width of the cell embedding vectors stored in the
// metadata table and expected by the search index.
const EmbeddingDim = 512

// CellMetadata is one previously indexed cell: its annotations plus the
// 512-dim embedding used for vector-distance queries. Populated by the
// ingestion path (cmd/ingest), not by the job pipeline.
type CellMetadata struct {
	ID               int64           `db:"id"                json:"id"`
	Barcode          string          `db:"barcode"           json:"barcode"`
	SampleID         *string         `db:"sample_id"         json:"sample_id,omitempty"`
	Assay            *string         `db:"assay"             json:"assay,omitempty"`
	Organism         *string         `db:"organism"          json:"organism,omitempty"`
	DevelopmentStage *string         `db:"development_stage" json:"development_stage,omitempty"`
	Tissue           *string         `db:"tissue"            json:"tissue,omitempty"`
	Disease          *string         `db:"disease"           json:"disease,omitempty"`
	Sex              *string         `db:"sex"               json:"sex,omitempty"`
	CellType         *string         `db:"cell_type"         json:"cell_type,omitempty"`
	CellEmbedding    pgvector.Vector `db:"cell_embedding"    json:"-"`
	CreatedAt        time.Time       `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"        json:"updated_at"`
}
