// Package embed adapts the two embedding strategies behind one contract:
// a pretrained transformer backend that tokenizes counts and projects the
// raw embedding down to the index width, and a similarity-model backend
// that computes index-width embeddings directly. The job pipeline picks a
// backend by the submission's model discriminator and consumes the same
// Result either way.
package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/tyvekbio/cellseek/internal/config"
	"github.com/tyvekbio/cellseek/internal/dataset"
	"github.com/tyvekbio/cellseek/internal/engine"
	"github.com/tyvekbio/cellseek/pkg/models"
)

var (
	ErrUnknownModel  = errors.New("unknown embedding model")
	ErrNoUsableGenes = errors.New("no genes covered by the pretrained vocabulary")
)

// Result is the shared output contract of both backends: one query vector
// per selected cell, at the index's expected width, plus the barcodes
// labelling each row for the embedding export.
type Result struct {
	Vectors  [][]float64
	Barcodes []string
}

// Backend computes query embeddings for the selected cells of a dataset.
type Backend interface {
	Name() string
	Embed(ctx context.Context, jobID int64, d *dataset.Dataset) (*Result, error)
}

// NewBackend constructs the backend for a submission's model discriminator.
// The transformer variant needs the vocabulary; pass nil only if model 1 is
// disabled in the deployment.
func NewBackend(model int, eng engine.Engine, vocab *Vocabulary, cfg config.Config) (Backend, error) {
	switch model {
	case models.ModelTransformer:
		if vocab == nil {
			return nil, fmt.Errorf("transformer backend requires a gene vocabulary")
		}
		return NewTransformerBackend(eng, vocab, cfg.Storage.OutputDir, cfg.Engine.EmbeddingDim), nil
	case models.ModelSimilarity:
		return NewSimilarityBackend(eng), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownModel, model)
	}
}
