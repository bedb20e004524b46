package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders a Document as consecutive CSV blocks separated by an empty record.
// Each block starts with a single-cell title record when the table has a title.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the document.
func (e *CSVExporter) Render(doc Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	for i, table := range doc.Tables {
		if i > 0 {
			if err := writer.Write([]string{""}); err != nil {
				return nil, fmt.Errorf("write csv separator: %w", err)
			}
		}
		if table.Title != "" {
			if err := writer.Write([]string{table.Title}); err != nil {
				return nil, fmt.Errorf("write csv title: %w", err)
			}
		}
		if err := writer.Write(table.Headers); err != nil {
			return nil, fmt.Errorf("write csv headers: %w", err)
		}
		if err := writer.WriteAll(table.Rows); err != nil {
			return nil, fmt.Errorf("write csv rows: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
