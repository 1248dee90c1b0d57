// Package engine wraps the external embedding/search model server. The
// service treats the model, its token vocabulary, and its vector index as an
// opaque collaborator; this package only defines the call contract the job
// pipeline depends on.
package engine

import (
	"context"
	"errors"
)

// Sentinel errors for engine failures.
var (
	ErrEngineUnavailable = errors.New("engine unreachable")
	ErrEngineQuery       = errors.New("engine query error")
	ErrEngineTimeout     = errors.New("engine timeout")
)

// Neighbor is one ranked hit from the nearest-neighbor index, carrying the
// indexed cell's annotations. Rows arrive in ascending-distance order;
// ordering and tie-breaks are entirely the index's business.
type Neighbor struct {
	Index            int64   `json:"index"`
	Distance         float64 `json:"distance"`
	Barcode          string  `json:"barcode"`
	SampleID         string  `json:"sample_id"`
	Assay            string  `json:"assay"`
	Organism         string  `json:"organism"`
	DevelopmentStage string  `json:"development_stage"`
	Tissue           string  `json:"tissue"`
	Disease          string  `json:"disease"`
	Sex              string  `json:"sex"`
	CellType         string  `json:"cell_type"`
}

// Query is the similarity model's query surface: its expected gene order,
// its embedding accessor, and its nearest-neighbor index.
type Query interface {
	GeneOrder(ctx context.Context) ([]string, error)
	Embeddings(ctx context.Context, x [][]float64) ([][]float64, error)
	SearchNearest(ctx context.Context, queries [][]float64, k int) ([]Neighbor, error)
}

// Extractor is the transformer backend's embedding extraction call: it reads
// the tokenizer input previously written to workDir and returns the raw
// embedding matrix, one row per cell.
type Extractor interface {
	ExtractEmbeddings(ctx context.Context, workDir string) ([][]float64, error)
}

// Engine is the full model-server surface.
type Engine interface {
	Query
	Extractor
	Ready(ctx context.Context) error
}
