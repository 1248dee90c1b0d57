// Package ingest loads reference cells into the metadata table. Input is a
// pair of files produced by the annotation pipeline: an embedding CSV
// (barcode plus one column per vector component) and a metadata spreadsheet
// indexed by barcode. Rows are joined on barcode; metadata rows without an
// embedding are skipped rather than failing the load.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pgvector/pgvector-go"
	"github.com/xuri/excelize/v2"

	"github.com/tyvekbio/cellseek/internal/store"
	"github.com/tyvekbio/cellseek/pkg/models"
)

const defaultBatchSize = 1000

// metadataColumns are the spreadsheet headers copied into CellMetadata.
var metadataColumns = []string{
	"sample_id", "assay", "organism", "development_stage",
	"tissue", "disease", "sex", "cell_type",
}

// Loader joins embedding and metadata files and writes them in batches.
type Loader struct {
	store     store.Store
	node      *snowflake.Node
	batchSize int
}

func NewLoader(st store.Store, node *snowflake.Node) *Loader {
	return &Loader{store: st, node: node, batchSize: defaultBatchSize}
}

// WithBatchSize overrides the insert batch size. Values below 1 are ignored.
func (l *Loader) WithBatchSize(n int) *Loader {
	if n >= 1 {
		l.batchSize = n
	}
	return l
}

// Report summarizes one load.
type Report struct {
	EmbeddingRows int
	MetadataRows  int
	Inserted      int
	Skipped       int
}

// Run loads embeddingPath and metadataPath into the metadata table.
func (l *Loader) Run(ctx context.Context, embeddingPath, metadataPath string) (*Report, error) {
	vectors, err := readEmbeddings(embeddingPath)
	if err != nil {
		return nil, fmt.Errorf("read embeddings %s: %w", embeddingPath, err)
	}

	rows, err := readMetadata(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", metadataPath, err)
	}

	report := &Report{EmbeddingRows: len(vectors), MetadataRows: len(rows)}
	now := time.Now().UTC()

	batch := make([]*models.CellMetadata, 0, l.batchSize)
	for _, row := range rows {
		vec, ok := vectors[row.barcode]
		if !ok {
			report.Skipped++
			continue
		}
		cell := &models.CellMetadata{
			ID:               l.node.Generate().Int64(),
			Barcode:          row.barcode,
			SampleID:         row.field("sample_id"),
			Assay:            row.field("assay"),
			Organism:         row.field("organism"),
			DevelopmentStage: row.field("development_stage"),
			Tissue:           row.field("tissue"),
			Disease:          row.field("disease"),
			Sex:              row.field("sex"),
			CellType:         row.field("cell_type"),
			CellEmbedding:    pgvector.NewVector(vec),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		batch = append(batch, cell)

		if len(batch) >= l.batchSize {
			if err := l.store.CreateCellMetadataBatch(ctx, batch); err != nil {
				return nil, fmt.Errorf("insert batch: %w", err)
			}
			report.Inserted += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := l.store.CreateCellMetadataBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("insert batch: %w", err)
		}
		report.Inserted += len(batch)
	}

	return report, nil
}

// Verify runs a nearest-neighbor probe against the loaded table. Used as an
// operational check that the vector column round-trips.
func (l *Loader) Verify(ctx context.Context, probe []float32, k int) ([]*models.CellMetadata, error) {
	if len(probe) != models.EmbeddingDim {
		return nil, fmt.Errorf("probe vector has %d components, want %d", len(probe), models.EmbeddingDim)
	}
	return l.store.NearestCells(ctx, pgvector.NewVector(probe), k)
}

// readEmbeddings parses the embedding CSV into barcode -> vector. The header
// must contain a barcode column; every other column is a vector component in
// header order.
func readEmbeddings(path string) (map[string][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	barcodeCol := -1
	for i, name := range header {
		if name == "barcode" {
			barcodeCol = i
			break
		}
	}
	if barcodeCol < 0 {
		return nil, fmt.Errorf("no barcode column in header")
	}
	dim := len(header) - 1
	if dim != models.EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d components, want %d", dim, models.EmbeddingDim)
	}

	vectors := make(map[string][]float32)
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		vec := make([]float32, 0, dim)
		var barcode string
		for i, cell := range record {
			if i == barcodeCol {
				barcode = cell
				continue
			}
			v, err := strconv.ParseFloat(cell, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse %q: %w", line, cell, err)
			}
			vec = append(vec, float32(v))
		}
		if barcode == "" {
			return nil, fmt.Errorf("line %d: empty barcode", line)
		}
		vectors[barcode] = vec
	}

	return vectors, nil
}

// metadataRow is one spreadsheet row: the barcode index plus named fields.
type metadataRow struct {
	barcode string
	fields  map[string]string
}

// field returns the named column value, or nil when absent or blank.
func (r metadataRow) field(name string) *string {
	v, ok := r.fields[name]
	if !ok || v == "" {
		return nil
	}
	return &v
}

// readMetadata parses the metadata spreadsheet. The first column is the
// barcode index; remaining columns are matched to metadataColumns by header
// name, so column order does not matter.
func readMetadata(path string) ([]metadataRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty sheet")
	}

	wanted := make(map[string]bool, len(metadataColumns))
	for _, c := range metadataColumns {
		wanted[c] = true
	}
	colNames := make(map[int]string)
	for i, name := range rows[0] {
		if i == 0 {
			continue // barcode index column
		}
		if wanted[name] {
			colNames[i] = name
		}
	}

	out := make([]metadataRow, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		row := metadataRow{barcode: cells[0], fields: make(map[string]string)}
		for i, name := range colNames {
			if i < len(cells) {
				row.fields[name] = cells[i]
			}
		}
		out = append(out, row)
	}

	return out, nil
}
