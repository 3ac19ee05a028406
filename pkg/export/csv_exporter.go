package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Dataset is tabular export content. Rows are keyed by header; a missing key
// renders as an empty cell. Subtitle is only used by formats that have one.
type Dataset struct {
	Subtitle string
	Headers  []string
	Rows     []map[string]string
}

// CSVExporter writes RFC 4180 CSV. Cells that a spreadsheet would evaluate
// as a formula are prefixed with a quote.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams data to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return errors.New("csv requires at least one header")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, h := range data.Headers {
			record[i] = neutralize(row[h])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", n+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func neutralize(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '@', '\t', '\r':
		return "'" + cell
	case '-':
		// negative numbers stay as they are
		if strings.TrimLeft(cell[1:], "0123456789.") == "" && len(cell) > 1 {
			return cell
		}
		return "'" + cell
	}
	return cell
}
