// Package artifact writes and reads a job's exported spreadsheets. The
// reader is deliberately independent of the writer: result files are
// re-read any number of times after the producing job finished, possibly by
// a different process.
package artifact

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/tyvekbio/cellseek/internal/engine"
)

const sheet = "Sheet1"

// Placeholder fills cells the spreadsheet left blank.
const Placeholder = ""

// neighborColumns is the column order of the primary result spreadsheet.
var neighborColumns = []string{
	"barcode", "sample_id", "assay", "organism", "development_stage",
	"tissue", "disease", "sex", "cell_type", "distance",
}

// ResultFileName returns the primary spreadsheet name for a job.
func ResultFileName(jobID int64) string {
	return fmt.Sprintf("%d.xlsx", jobID)
}

// EmbeddingFileName returns the embedding-dump spreadsheet name for a job.
func EmbeddingFileName(jobID int64) string {
	return fmt.Sprintf("%d_emb.xlsx", jobID)
}

// WriteNeighbors writes the neighbor-metadata table to path and returns the
// file size in bytes. Row order is preserved as delivered by the index.
func WriteNeighbors(path string, hits []engine.Neighbor) (int64, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeRow(f, 1, neighborColumns); err != nil {
		return 0, err
	}
	for i, h := range hits {
		row := []string{
			h.Barcode, h.SampleID, h.Assay, h.Organism, h.DevelopmentStage,
			h.Tissue, h.Disease, h.Sex, h.CellType,
			strconv.FormatFloat(h.Distance, 'g', -1, 64),
		}
		if err := writeRow(f, i+2, row); err != nil {
			return 0, err
		}
	}

	return save(f, path)
}

// WriteEmbeddings writes the query-embedding dump: one row per cell, the
// barcode followed by the vector components under 0..dim-1 headers.
func WriteEmbeddings(path string, barcodes []string, vectors [][]float64) (int64, error) {
	if len(barcodes) != len(vectors) {
		return 0, fmt.Errorf("%d barcodes for %d vectors", len(barcodes), len(vectors))
	}

	f := excelize.NewFile()
	defer f.Close()

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	header := make([]string, 0, dim+1)
	header = append(header, "barcode")
	for j := 0; j < dim; j++ {
		header = append(header, strconv.Itoa(j))
	}
	if err := writeRow(f, 1, header); err != nil {
		return 0, err
	}

	for i, vec := range vectors {
		row := make([]string, 0, dim+1)
		row = append(row, barcodes[i])
		for _, v := range vec {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writeRow(f, i+2, row); err != nil {
			return 0, err
		}
	}

	return save(f, path)
}

// Page is one slice of a result spreadsheet.
type Page struct {
	Columns []string
	Records []map[string]string
	Total   int
}

// ReadPage loads the spreadsheet at path and returns the 1-based page of
// pageSize records plus the true total. An offset at or past the end yields
// empty records with the total intact; that is a normal outcome, not an
// error.
func ReadPage(path string, page, pageSize int) (*Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open result spreadsheet: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read result spreadsheet: %w", err)
	}
	if len(rows) == 0 {
		return &Page{Records: []map[string]string{}}, nil
	}

	columns := rows[0]
	data := rows[1:]
	total := len(data)

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	start := (page - 1) * pageSize
	if start >= total {
		return &Page{Columns: columns, Records: []map[string]string{}, Total: total}, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	records := make([]map[string]string, 0, end-start)
	for _, row := range data[start:end] {
		rec := make(map[string]string, len(columns))
		for j, col := range columns {
			if j < len(row) {
				rec[col] = row[j]
			} else {
				rec[col] = Placeholder
			}
		}
		records = append(records, rec)
	}

	return &Page{Columns: columns, Records: records, Total: total}, nil
}

func writeRow(f *excelize.File, row int, values []string) error {
	for j, v := range values {
		cell, err := excelize.CoordinatesToCellName(j+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func save(f *excelize.File, path string) (int64, error) {
	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save spreadsheet: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat spreadsheet: %w", err)
	}
	return info.Size(), nil
}
