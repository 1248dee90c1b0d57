package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/tyvekbio/cellseek/internal/dataset"
	"github.com/tyvekbio/cellseek/internal/engine"
)

// projectionSeed fixes the random linear map so every job projects raw
// embeddings through the same matrix.
const projectionSeed = 20240601

// TransformerBackend embeds cells with the pretrained tokenized model:
// genes outside the pretrained vocabulary are dropped with a warning, the
// filtered counts plus per-cell totals are written to a job-scoped working
// directory for the tokenizer, the extractor produces the raw embedding
// matrix, and a fixed random linear map projects it down to the index
// width.
type TransformerBackend struct {
	extractor engine.Extractor
	vocab     *Vocabulary
	outputDir string
	projDim   int
}

func NewTransformerBackend(e engine.Extractor, v *Vocabulary, outputDir string, projDim int) *TransformerBackend {
	return &TransformerBackend{extractor: e, vocab: v, outputDir: outputDir, projDim: projDim}
}

func (b *TransformerBackend) Name() string { return "transformer" }

func (b *TransformerBackend) Embed(ctx context.Context, jobID int64, d *dataset.Dataset) (*Result, error) {
	workDir, err := b.preprocess(jobID, d)
	if err != nil {
		return nil, err
	}

	raw, err := b.extractor.ExtractEmbeddings(ctx, workDir)
	if err != nil {
		return nil, fmt.Errorf("extract embeddings: %w", err)
	}
	if len(raw) != d.NObs() {
		return nil, fmt.Errorf("extractor returned %d embeddings for %d cells", len(raw), d.NObs())
	}

	vectors, err := project(raw, b.projDim)
	if err != nil {
		return nil, err
	}

	return &Result{Vectors: vectors, Barcodes: d.ObsNames}, nil
}

// preprocess filters the dataset to vocabulary-covered genes and writes the
// tokenizer input under a job-scoped working directory, returning its path.
func (b *TransformerBackend) preprocess(jobID int64, d *dataset.Dataset) (string, error) {
	var kept []int
	var dropped int
	for j, gene := range d.VarNames {
		if b.vocab.Covers(gene) {
			kept = append(kept, j)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		slog.Warn("genes not in pretrained vocabulary will be removed",
			"job_id", jobID, "dropped", dropped, "kept", len(kept))
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("%w: dataset var names should be gene names", ErrNoUsableGenes)
	}

	filtered := d.SelectColumns(kept)
	if filtered.NObs() == 0 {
		return "", dataset.ErrEmptyDataset
	}

	// Tokenizer input carries ensembl ids, not display names.
	for j, gene := range filtered.VarNames {
		filtered.VarNames[j] = b.vocab.EnsemblID(gene)
	}

	workDir := filepath.Join(b.outputDir, strconv.FormatInt(jobID, 10))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}

	inputPath := filepath.Join(workDir, fmt.Sprintf("%d.dataset", jobID))
	if err := filtered.Save(inputPath); err != nil {
		return "", fmt.Errorf("write tokenizer input: %w", err)
	}

	counts := map[string]float64{}
	for i, total := range filtered.CountsPerRow() {
		counts[filtered.ObsNames[i]] = total
	}
	countsPath := filepath.Join(workDir, "n_counts.json")
	buf, err := json.Marshal(counts)
	if err != nil {
		return "", fmt.Errorf("encode counts: %w", err)
	}
	if err := os.WriteFile(countsPath, buf, 0o644); err != nil {
		return "", fmt.Errorf("write counts: %w", err)
	}

	slog.Info("tokenizer input written", "job_id", jobID, "work_dir", workDir, "genes", len(kept))
	return workDir, nil
}

// project multiplies the raw embedding matrix by the fixed random linear
// map, reducing each row to dim components.
func project(raw [][]float64, dim int) ([][]float64, error) {
	if len(raw) == 0 || len(raw[0]) == 0 {
		return nil, fmt.Errorf("empty raw embedding matrix")
	}
	inDim := len(raw[0])

	flat := make([]float64, 0, len(raw)*inDim)
	for i, row := range raw {
		if len(row) != inDim {
			return nil, fmt.Errorf("ragged raw embedding matrix at row %d", i)
		}
		flat = append(flat, row...)
	}
	rawM := mat.NewDense(len(raw), inDim, flat)

	var out mat.Dense
	out.Mul(rawM, projectionMatrix(inDim, dim))

	vectors := make([][]float64, len(raw))
	for i := range vectors {
		row := make([]float64, dim)
		copy(row, out.RawRowView(i))
		vectors[i] = row
	}
	return vectors, nil
}

// projectionMatrix builds the deterministic inDim x outDim map, scaled by
// 1/sqrt(inDim) to keep projected norms comparable across input widths.
func projectionMatrix(inDim, outDim int) *mat.Dense {
	rng := rand.New(rand.NewSource(projectionSeed))
	scale := 1 / math.Sqrt(float64(inDim))
	data := make([]float64, inDim*outDim)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	return mat.NewDense(inDim, outDim, data)
}
