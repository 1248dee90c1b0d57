// Package dataset holds the on-disk single-cell expression container and the
// cell selection rules applied before embedding.
//
// Datasets are stored as gzip-compressed JSON written by the ingest tooling,
// which converts upstream AnnData (.h5ad) exports on import. The catalog
// keeps the {sample_id}.h5ad naming convention for built-in samples, so a
// dataset path's extension says nothing about its encoding.
package dataset

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrMalformed = errors.New("malformed dataset")

// Dataset is a dense expression matrix with per-cell and per-gene names.
// ObsNames[i] is the barcode of row i; VarNames[j] the gene of column j.
type Dataset struct {
	ObsNames []string    `json:"obs_names"`
	VarNames []string    `json:"var_names"`
	X        [][]float64 `json:"x"`
}

func (d *Dataset) NObs() int  { return len(d.ObsNames) }
func (d *Dataset) NVars() int { return len(d.VarNames) }

func (d *Dataset) validate() error {
	if len(d.X) != len(d.ObsNames) {
		return fmt.Errorf("%w: %d rows for %d barcodes", ErrMalformed, len(d.X), len(d.ObsNames))
	}
	for i, row := range d.X {
		if len(row) != len(d.VarNames) {
			return fmt.Errorf("%w: row %d has %d values for %d genes", ErrMalformed, i, len(row), len(d.VarNames))
		}
	}
	return nil
}

// Load reads a dataset container from path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer gz.Close()

	var d Dataset
	if err := json.NewDecoder(gz).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Save writes the dataset container to path.
func (d *Dataset) Save(path string) error {
	if err := d.validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(d); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flush dataset: %w", err)
	}
	return f.Sync()
}

// SelectRows returns a new dataset restricted to the given row indices.
// Indices must be in bounds.
func (d *Dataset) SelectRows(idx []int) *Dataset {
	out := &Dataset{
		ObsNames: make([]string, len(idx)),
		VarNames: d.VarNames,
		X:        make([][]float64, len(idx)),
	}
	for i, r := range idx {
		out.ObsNames[i] = d.ObsNames[r]
		out.X[i] = d.X[r]
	}
	return out
}

// SelectColumns returns a new dataset restricted to the given column indices.
func (d *Dataset) SelectColumns(idx []int) *Dataset {
	out := &Dataset{
		ObsNames: d.ObsNames,
		VarNames: make([]string, len(idx)),
		X:        make([][]float64, len(d.X)),
	}
	for j, c := range idx {
		out.VarNames[j] = d.VarNames[c]
	}
	for i, row := range d.X {
		nr := make([]float64, len(idx))
		for j, c := range idx {
			nr[j] = row[c]
		}
		out.X[i] = nr
	}
	return out
}

// CountsPerRow returns the total counts of each row. The transformer backend
// records these alongside the tokenizer input.
func (d *Dataset) CountsPerRow() []float64 {
	totals := make([]float64, len(d.X))
	for i, row := range d.X {
		var sum float64
		for _, v := range row {
			sum += v
		}
		totals[i] = sum
	}
	return totals
}
