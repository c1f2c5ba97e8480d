package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into a tabular PDF and formal letters.
type PDFExporter struct {
	// Organisation printed on letterheads and report footers.
	Organisation string
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter(organisation string) *PDFExporter {
	if organisation == "" {
		organisation = "Constituency Bursary Office"
	}
	return &PDFExporter{Organisation: organisation}
}

// Render creates a landscape PDF with a title and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s - page %d", e.Organisation, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colWidth := (pageWidth - left - right) / float64(len(data.Headers))

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, record := range data.Records() {
		for _, value := range record {
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf)
}

// Letter is a single-page formal letter.
type Letter struct {
	Reference string
	Recipient string
	Subject   string
	Body      []string
	Signatory string
	Date      time.Time
}

// RenderLetter lays out a letter on an A4 portrait page.
func (e *PDFExporter) RenderLetter(letter Letter) ([]byte, error) {
	if letter.Subject == "" || len(letter.Body) == 0 {
		return nil, fmt.Errorf("letter requires subject and body")
	}
	if letter.Date.IsZero() {
		letter.Date = time.Now().UTC()
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(e.Organisation), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	if letter.Reference != "" {
		pdf.CellFormat(0, 6, "Ref: "+letter.Reference, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Date: "+letter.Date.Format("02 January 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	if letter.Recipient != "" {
		pdf.CellFormat(0, 6, "Dear "+letter.Recipient+",", "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	pdf.SetFont("Arial", "BU", 11)
	pdf.CellFormat(0, 8, "RE: "+strings.ToUpper(letter.Subject), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 11)
	for _, paragraph := range letter.Body {
		pdf.MultiCell(0, 6, paragraph, "", "J", false)
		pdf.Ln(3)
	}

	if letter.Signatory != "" {
		pdf.Ln(10)
		pdf.CellFormat(0, 6, "Yours faithfully,", "", 1, "L", false, 0, "")
		pdf.Ln(12)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 6, letter.Signatory, "", 1, "L", false, 0, "")
	}

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
