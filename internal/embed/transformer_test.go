package embed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyvekbio/cellseek/internal/dataset"
	"github.com/tyvekbio/cellseek/internal/engine/enginetest"
)

// writeVocab lays out a minimal model directory and returns the loaded
// vocabulary. TP53/BRCA1 are covered; MYC has no token; ENSG00000000005 is
// a raw tokenized ensembl id.
func writeVocab(t *testing.T) (*Vocabulary, string) {
	t.Helper()
	modelDir := t.TempDir()
	base := filepath.Join(modelDir, "transformer")
	require.NoError(t, os.MkdirAll(base, 0o755))

	geneInfo := "gene_name,ensembl_id,gene_type\n" +
		"TP53,ENSG00000000001,protein_coding\n" +
		"BRCA1,ENSG00000000002,protein_coding\n" +
		"MYC,ENSG00000000003,protein_coding\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, "gene_info_table.csv"), []byte(geneInfo), 0o644))

	tokens := "ENSG00000000001\nENSG00000000002\nENSG00000000005\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, "token_ids.txt"), []byte(tokens), 0o644))

	v, err := LoadVocabulary(modelDir)
	require.NoError(t, err)
	return v, modelDir
}

func TestVocabulary_Covers(t *testing.T) {
	v, _ := writeVocab(t)

	assert.True(t, v.Covers("TP53"))
	assert.True(t, v.Covers("BRCA1"))
	assert.False(t, v.Covers("MYC"), "named gene without token")
	assert.True(t, v.Covers("ENSG00000000005"), "raw tokenized ensembl id")
	assert.False(t, v.Covers("ENSG99999999999"))
	assert.False(t, v.Covers("UNKNOWN"))
}

func TestTransformerBackend_Embed(t *testing.T) {
	v, _ := writeVocab(t)
	outputDir := t.TempDir()

	var gotWorkDir string
	eng := &enginetest.Engine{
		ExtractFn: func(ctx context.Context, workDir string) ([][]float64, error) {
			gotWorkDir = workDir
			// Raw width deliberately larger than the index width.
			return [][]float64{
				{1, 0, 0, 0, 0, 0},
				{0, 1, 0, 0, 0, 0},
			}, nil
		},
	}

	d := &dataset.Dataset{
		ObsNames: []string{"c1", "c2"},
		VarNames: []string{"TP53", "MYC", "BRCA1"},
		X:        [][]float64{{5, 9, 1}, {2, 9, 8}},
	}

	b := NewTransformerBackend(eng, v, outputDir, 4)
	res, err := b.Embed(context.Background(), 777, d)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2"}, res.Barcodes)
	require.Len(t, res.Vectors, 2)
	assert.Len(t, res.Vectors[0], 4)

	// Job-scoped working directory with tokenizer input and counts.
	assert.Equal(t, filepath.Join(outputDir, "777"), gotWorkDir)
	assert.FileExists(t, filepath.Join(gotWorkDir, "777.dataset"))
	assert.FileExists(t, filepath.Join(gotWorkDir, "n_counts.json"))

	// The uncovered MYC column must be gone from the tokenizer input, and
	// names must be ensembl ids.
	input, err := dataset.Load(filepath.Join(gotWorkDir, "777.dataset"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ENSG00000000001", "ENSG00000000002"}, input.VarNames)
	assert.Equal(t, [][]float64{{5, 1}, {2, 8}}, input.X)
}

func TestTransformerBackend_NoUsableGenes(t *testing.T) {
	v, _ := writeVocab(t)
	eng := &enginetest.Engine{}

	d := &dataset.Dataset{
		ObsNames: []string{"c1"},
		VarNames: []string{"MYC", "UNKNOWN"},
		X:        [][]float64{{1, 2}},
	}

	b := NewTransformerBackend(eng, v, t.TempDir(), 4)
	_, err := b.Embed(context.Background(), 1, d)
	require.ErrorIs(t, err, ErrNoUsableGenes)
	assert.Zero(t, eng.ExtractCalls, "extractor must not run without usable genes")
}

func TestProject_Deterministic(t *testing.T) {
	raw := [][]float64{{0.1, 0.2, 0.3, 0.4}}

	a, err := project(raw, 2)
	require.NoError(t, err)
	b, err := project(raw, 2)
	require.NoError(t, err)

	assert.Equal(t, a, b, "projection map must be fixed across calls")
	assert.Len(t, a[0], 2)
}

func TestProject_RaggedInput(t *testing.T) {
	_, err := project([][]float64{{1, 2}, {3}}, 2)
	require.Error(t, err)
}
