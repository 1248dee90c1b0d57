package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBarcodeNotFound = errors.New("barcode not found")
var ErrEmptyDataset = errors.New("dataset has no observations")

// FallbackRow is the row selected when the cell index expression is absent
// or an integer outside [0, n_obs). Falling back instead of rejecting
// out-of-range indices preserves the service's historical behavior; it is a
// deliberate, documented policy rather than input validation.
const FallbackRow = 1

// SelectCells narrows a dataset to the cells named by the cell index
// expression. The expression is one of:
//
//   - absent/empty: the fallback row is selected
//   - a signed integer: that row, or the fallback row if out of range
//   - a comma-separated barcode list (ASCII or full-width comma): rows are
//     selected by barcode membership, in dataset order
func SelectCells(d *Dataset, cellIndex *string) (*Dataset, error) {
	if d.NObs() == 0 {
		return nil, ErrEmptyDataset
	}

	expr := ""
	if cellIndex != nil {
		expr = strings.TrimSpace(*cellIndex)
	}
	if expr == "" {
		return d.SelectRows([]int{fallbackRow(d)}), nil
	}

	if idx, err := strconv.Atoi(expr); err == nil {
		if idx < 0 || idx >= d.NObs() {
			idx = fallbackRow(d)
		}
		return d.SelectRows([]int{idx}), nil
	}

	wanted := make(map[string]bool)
	for _, part := range splitBarcodes(expr) {
		wanted[part] = true
	}
	if len(wanted) == 0 {
		return nil, fmt.Errorf("%w: empty barcode list %q", ErrBarcodeNotFound, expr)
	}

	var idx []int
	for i, name := range d.ObsNames {
		if wanted[name] {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: none of %q present in dataset", ErrBarcodeNotFound, expr)
	}
	return d.SelectRows(idx), nil
}

func fallbackRow(d *Dataset) int {
	if d.NObs() > FallbackRow {
		return FallbackRow
	}
	return 0
}

// splitBarcodes splits on ASCII and full-width commas, trimming whitespace
// and dropping empty parts.
func splitBarcodes(expr string) []string {
	normalized := strings.ReplaceAll(expr, "，", ",")
	var out []string
	for _, part := range strings.Split(normalized, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
