package export

import "fmt"

// Table is one titled section of a rendered report.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Document is an ordered list of tables rendered into a single file.
type Document struct {
	Title  string
	Tables []Table
}

func (d Document) validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("document requires at least one table")
	}
	for i, t := range d.Tables {
		if len(t.Headers) == 0 {
			return fmt.Errorf("table %d (%q) requires at least one header", i, t.Title)
		}
		for r, row := range t.Rows {
			if len(row) != len(t.Headers) {
				return fmt.Errorf("table %q row %d has %d cells, want %d", t.Title, r, len(row), len(t.Headers))
			}
		}
	}
	return nil
}
