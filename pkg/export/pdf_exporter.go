package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 10.0
	pdfLineHeight = 4.5
)

// PDFExporter renders documents as landscape A4 tables, one section per table.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document. Cells may contain newlines; rows grow to fit.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, 15, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin
	for i, table := range doc.Tables {
		if i > 0 {
			pdf.Ln(6)
		}
		if table.Title != "" {
			ensureSpace(pdf, 8+pdfLineHeight*2)
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, table.Title, "", 1, "L", false, 0, "")
		}
		widths := columnWidths(len(table.Headers), usable)
		pdf.SetFont("Arial", "B", 9)
		drawRow(pdf, widths, table.Headers, "C")
		pdf.SetFont("Arial", "", 8)
		for _, row := range table.Rows {
			drawRow(pdf, widths, row, "L")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths gives the first column (row labels) a narrower share when there are many columns.
func columnWidths(n int, usable float64) []float64 {
	widths := make([]float64, n)
	if n == 1 {
		widths[0] = usable
		return widths
	}
	first := usable / float64(n)
	if n > 3 {
		first = usable * 0.12
	}
	rest := (usable - first) / float64(n-1)
	widths[0] = first
	for i := 1; i < n; i++ {
		widths[i] = rest
	}
	return widths
}

func drawRow(pdf *gofpdf.Fpdf, widths []float64, cells []string, align string) {
	lines := 1
	for i, cell := range cells {
		if n := len(pdf.SplitLines([]byte(cell), widths[i]-2)); n > lines {
			lines = n
		}
	}
	height := float64(lines)*pdfLineHeight + 2
	ensureSpace(pdf, height)

	x, y := pdf.GetXY()
	for i, cell := range cells {
		pdf.Rect(x, y, widths[i], height, "D")
		pdf.SetXY(x+1, y+1)
		pdf.MultiCell(widths[i]-2, pdfLineHeight, cell, "", align, false)
		x += widths[i]
	}
	pdf.SetXY(pdfMargin, y+height)
}

func ensureSpace(pdf *gofpdf.Fpdf, height float64) {
	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+height > pageHeight-pdfMargin {
		pdf.AddPage()
	}
}
