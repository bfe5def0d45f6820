package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFGenerator renders reports as tabular PDF documents.
type PDFGenerator struct {
	options PDFOptions
}

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize       string
	Orientation    string // portrait, landscape
	DateFormat     string
	IncludePageNum bool
	HeaderColor    PDFColor
	AlternateRows  bool
	AlternateColor PDFColor
	FontFamily     string
	FontSize       float64
	HeaderFontSize float64
	TitleFontSize  float64
	Margins        PDFMargins
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int
	G int
	B int
}

// PDFMargins represents page margins
type PDFMargins struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		Orientation:    "landscape",
		DateFormat:     "2006-01-02 15:04 MST",
		IncludePageNum: true,
		HeaderColor:    PDFColor{R: 68, G: 114, B: 196},
		AlternateRows:  true,
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		FontFamily:     "Arial",
		FontSize:       9,
		HeaderFontSize: 9,
		TitleFontSize:  16,
		Margins:        PDFMargins{Left: 15, Right: 15, Top: 20, Bottom: 20},
	}
}

func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	return &PDFGenerator{options: options}
}

func (g *PDFGenerator) ContentType() string { return "application/pdf" }
func (g *PDFGenerator) Extension() string   { return "pdf" }

// Export lays out the title block, the summary and one table per section.
func (g *PDFGenerator) Export(w io.Writer, report *Report) error {
	orientation := "P"
	if g.options.Orientation == "landscape" {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", g.options.PageSize, "")
	pdf.SetMargins(g.options.Margins.Left, g.options.Margins.Top, g.options.Margins.Right)
	pdf.SetAutoPageBreak(true, g.options.Margins.Bottom)
	pdf.SetTitle(report.Title, true)
	g.setFooter(pdf)

	pdf.AddPage()
	g.addTitle(pdf, report)
	if len(report.Summary) > 0 {
		g.addSummary(pdf, report.Summary)
	}
	for _, section := range report.Sections {
		g.addSection(pdf, section)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

func (g *PDFGenerator) addTitle(pdf *gofpdf.Fpdf, report *Report) {
	pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, report.Title, "", 1, "C", false, 0, "")

	if report.Subtitle != "" {
		pdf.SetFont(g.options.FontFamily, "", g.options.FontSize+2)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 8, report.Subtitle, "", 1, "C", false, 0, "")
	}

	pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
	pdf.SetTextColor(128, 128, 128)
	generated := fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(g.options.DateFormat))
	pdf.CellFormat(0, 6, generated, "", 1, "R", false, 0, "")
	pdf.Ln(4)
}

func (g *PDFGenerator) addSummary(pdf *gofpdf.Fpdf, items []SummaryItem) {
	pdf.SetTextColor(0, 0, 0)
	for _, item := range items {
		pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
		pdf.CellFormat(45, 6, item.Label+":", "", 0, "L", false, 0, "")
		pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		pdf.CellFormat(0, 6, g.formatValue(item.Value), "", 1, "L", false, 0, "")
	}
}

func (g *PDFGenerator) addSection(pdf *gofpdf.Fpdf, section Section) {
	pdf.Ln(8)
	pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize+2)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, section.Title, "", 1, "L", false, 0, "")

	if len(section.Rows) == 0 {
		pdf.SetFont(g.options.FontFamily, "I", g.options.FontSize)
		pdf.CellFormat(0, 6, "None", "", 1, "L", false, 0, "")
		return
	}

	widths := g.columnWidths(pdf, section)
	labels := section.labels()
	g.addTableHeader(pdf, labels, widths)

	_, pageHeight := pdf.GetPageSize()
	for i, row := range section.Rows {
		if pdf.GetY()+7 > pageHeight-g.options.Margins.Bottom {
			pdf.AddPage()
			g.addTableHeader(pdf, labels, widths)
		}

		pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		pdf.SetTextColor(0, 0, 0)
		if g.options.AlternateRows && i%2 == 1 {
			pdf.SetFillColor(g.options.AlternateColor.R, g.options.AlternateColor.G, g.options.AlternateColor.B)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		for j, col := range section.Columns {
			val := fit(pdf, g.formatValue(row[col.Key]), widths[j]-2)
			pdf.CellFormat(widths[j], 7, val, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	}
}

// columnWidths sizes columns to their widest cell and scales them down to
// the printable width.
func (g *PDFGenerator) columnWidths(pdf *gofpdf.Fpdf, section Section) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	available := pageWidth - g.options.Margins.Left - g.options.Margins.Right

	widths := make([]float64, len(section.Columns))
	pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
	for i, c := range section.Columns {
		widths[i] = pdf.GetStringWidth(c.Label) + 4
	}
	pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
	for _, row := range section.Rows {
		for i, c := range section.Columns {
			widths[i] = max(widths[i], pdf.GetStringWidth(g.formatValue(row[c.Key]))+4)
		}
	}

	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > available {
		scale := available / total
		for i := range widths {
			widths[i] *= scale
		}
	}
	return widths
}

func (g *PDFGenerator) addTableHeader(pdf *gofpdf.Fpdf, labels []string, widths []float64) {
	pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
	pdf.SetFillColor(g.options.HeaderColor.R, g.options.HeaderColor.G, g.options.HeaderColor.B)
	pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		pdf.CellFormat(widths[i], 8, fit(pdf, label, widths[i]-2), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func (g *PDFGenerator) setFooter(pdf *gofpdf.Fpdf) {
	if !g.options.IncludePageNum {
		return
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.options.FontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}

// fit truncates s with an ellipsis until it fits width.
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

func (g *PDFGenerator) formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(g.options.DateFormat)
	case *time.Time:
		if v == nil || v.IsZero() {
			return ""
		}
		return v.Format(g.options.DateFormat)
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case float64:
		return fmt.Sprintf("%.2f", v)
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprintf("%v", v)
	}
}
