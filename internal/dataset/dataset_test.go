package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	d := testDataset()
	path := filepath.Join(t.TempDir(), "S1.h5ad")

	require.NoError(t, d.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d.ObsNames, got.ObsNames)
	assert.Equal(t, d.VarNames, got.VarNames)
	assert.Equal(t, d.X, got.X)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.h5ad"))
	require.Error(t, err)
}

func TestSave_RejectsRaggedMatrix(t *testing.T) {
	d := &Dataset{
		ObsNames: []string{"a", "b"},
		VarNames: []string{"g1", "g2"},
		X:        [][]float64{{1, 2}, {3}},
	}
	err := d.Save(filepath.Join(t.TempDir(), "bad.h5ad"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSelectColumns(t *testing.T) {
	d := testDataset()
	got := d.SelectColumns([]int{1})
	assert.Equal(t, []string{"g2"}, got.VarNames)
	assert.Equal(t, [][]float64{{0}, {2}, {0}, {4}, {0}}, got.X)
	assert.Equal(t, d.ObsNames, got.ObsNames)
}

func TestCountsPerRow(t *testing.T) {
	d := testDataset()
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, d.CountsPerRow())
}
