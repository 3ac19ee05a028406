package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	landscapeColumnThreshold = 6
	rowHeight                = 6.5
	headerHeight             = 8.0
	minColumnShare           = 0.5
)

// PDFExporter renders datasets as a paged table. Column widths follow the
// longest cell of each column and the header row repeats on every page.
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("pdf requires at least one header")
	}
	orientation := "P"
	if len(data.Headers) > landscapeColumnThreshold {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(false, 15)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 5, fmt.Sprintf("page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	widths := columnWidths(data, pageWidth-left-right)

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	}
	if data.Subtitle != "" {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, data.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(222, 232, 242)
		for i, h := range data.Headers {
			pdf.CellFormat(widths[i], headerHeight, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 7.5)
		pdf.SetFillColor(246, 248, 250)
	}
	header()

	for n, row := range data.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i, h := range data.Headers {
			cell := fit(pdf, row[h], widths[i]-2)
			pdf.CellFormat(widths[i], rowHeight, cell, "1", 0, "", n%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares usable between columns by their longest value, with no
// column below half of an even share.
func columnWidths(data Dataset, usable float64) []float64 {
	weights := make([]float64, len(data.Headers))
	var total float64
	for i, h := range data.Headers {
		longest := len(h)
		for _, row := range data.Rows {
			if l := len(row[h]); l > longest {
				longest = l
			}
		}
		weights[i] = float64(longest)
		total += weights[i]
	}
	even := usable / float64(len(weights))
	floor := even * minColumnShare
	out := make([]float64, len(weights))
	if total == 0 {
		for i := range out {
			out[i] = even
		}
		return out
	}

	// columns pinned to the floor give their slack back to the rest
	remaining, spread := usable, total
	for i, w := range weights {
		if usable*w/total < floor {
			out[i] = floor
			remaining -= floor
			spread -= w
		}
	}
	for i, w := range weights {
		if out[i] == 0 {
			out[i] = remaining * w / spread
		}
	}
	return out
}

// fit truncates s with an ellipsis so it renders within width.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
