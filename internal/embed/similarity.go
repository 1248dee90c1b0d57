package embed

import (
	"context"
	"fmt"
	"math"

	"github.com/tyvekbio/cellseek/internal/dataset"
	"github.com/tyvekbio/cellseek/internal/engine"
)

// lognorm target: counts are scaled to this per-cell total before log1p,
// matching the similarity model's training normalization.
const lognormTargetSum = 1e4

// SimilarityBackend computes embeddings with the similarity model's own
// accessor: align genes to the model's expected order, log-normalize, and
// hand the matrix to the model. No projection step; the model already emits
// index-width vectors.
type SimilarityBackend struct {
	query engine.Query
}

func NewSimilarityBackend(q engine.Query) *SimilarityBackend {
	return &SimilarityBackend{query: q}
}

func (b *SimilarityBackend) Name() string { return "similarity" }

func (b *SimilarityBackend) Embed(ctx context.Context, jobID int64, d *dataset.Dataset) (*Result, error) {
	order, err := b.query.GeneOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch gene order: %w", err)
	}

	aligned := alignDataset(d, order)
	logNormalize(aligned.X)

	vectors, err := b.query.Embeddings(ctx, aligned.X)
	if err != nil {
		return nil, fmt.Errorf("compute embeddings: %w", err)
	}

	return &Result{Vectors: vectors, Barcodes: aligned.ObsNames}, nil
}

// alignDataset reorders columns to the model's gene order, zero-filling
// genes the dataset lacks and dropping genes the model does not know.
func alignDataset(d *dataset.Dataset, order []string) *dataset.Dataset {
	colByGene := make(map[string]int, d.NVars())
	for j, g := range d.VarNames {
		colByGene[g] = j
	}

	out := &dataset.Dataset{
		ObsNames: d.ObsNames,
		VarNames: order,
		X:        make([][]float64, d.NObs()),
	}
	for i, row := range d.X {
		nr := make([]float64, len(order))
		for j, g := range order {
			if c, ok := colByGene[g]; ok {
				nr[j] = row[c]
			}
		}
		out.X[i] = nr
	}
	return out
}

// logNormalize scales each row to lognormTargetSum total counts and applies
// log1p, in place. All-zero rows are left untouched.
func logNormalize(x [][]float64) {
	for _, row := range x {
		var total float64
		for _, v := range row {
			total += v
		}
		if total == 0 {
			continue
		}
		scale := lognormTargetSum / total
		for j, v := range row {
			row[j] = math.Log1p(v * scale)
		}
	}
}
