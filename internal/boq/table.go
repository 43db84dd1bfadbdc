package boq

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TableSummary is the tabular-mode result: data row count plus the
// total rounded to six decimals.
type TableSummary struct {
	Rows  int     `json:"rows"`
	Total float64 `json:"total"`
}

// MissingColumnsError reports required header columns absent from an
// uploaded table.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// ParseError reports a malformed table or a non-numeric cell.
type ParseError struct {
	Cause string
}

func (e *ParseError) Error() string {
	return "table parse failed: " + e.Cause
}

// TotalTable reads a CSV table with a header row and sums the
// elementwise product of the qty and unit_price columns. Header
// matching is a case-insensitive exact name match. The parse is
// all-or-nothing: any malformed row or cell fails the whole upload.
func TotalTable(r io.Reader) (TableSummary, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return TableSummary{}, &ParseError{Cause: err.Error()}
	}
	qtyIdx, priceIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "qty":
			qtyIdx = i
		case "unit_price":
			priceIdx = i
		}
	}
	var missing []string
	if qtyIdx < 0 {
		missing = append(missing, "qty")
	}
	if priceIdx < 0 {
		missing = append(missing, "unit_price")
	}
	if len(missing) > 0 {
		return TableSummary{}, &MissingColumnsError{Columns: missing}
	}

	rows := 0
	total := 0.0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return TableSummary{}, &ParseError{Cause: err.Error()}
		}
		qty, err := parseCell(record, qtyIdx, "qty", rows)
		if err != nil {
			return TableSummary{}, err
		}
		price, err := parseCell(record, priceIdx, "unit_price", rows)
		if err != nil {
			return TableSummary{}, err
		}
		total += qty * price
		rows++
	}
	return TableSummary{Rows: rows, Total: round6(total)}, nil
}

func parseCell(record []string, idx int, column string, row int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
	if err != nil {
		return 0, &ParseError{Cause: fmt.Sprintf("row %d, column %s: %v", row+1, column, err)}
	}
	return v, nil
}
