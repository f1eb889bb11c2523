package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readRows parses a headerless CSV of floats with exactly cols fields per
// record. Lines starting with # are skipped. Returns the values row-major
// and the number of rows.
func readRows(r io.Reader, cols int) ([]float32, int, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = cols
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var values []float32
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				line, _ := reader.FieldPos(i)
				return nil, 0, fmt.Errorf("line %d, column %d: %w", line, i+1, err)
			}
			values = append(values, float32(v))
		}
		rows++
	}

	if rows == 0 {
		return nil, 0, errors.New("no rows in input")
	}
	return values, rows, nil
}

// writeRows writes each row as the concatenation of the matching rows of
// the given column blocks.
func writeRows(w io.Writer, rows int, blocks ...[]float32) error {
	writer := csv.NewWriter(w)

	widths := make([]int, len(blocks))
	total := 0
	for i, b := range blocks {
		widths[i] = len(b) / rows
		total += widths[i]
	}

	record := make([]string, 0, total)
	for r := range rows {
		record = record[:0]
		for i, b := range blocks {
			for _, v := range b[r*widths[i] : (r+1)*widths[i]] {
				record = append(record, strconv.FormatFloat(float64(v), 'g', -1, 32))
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
