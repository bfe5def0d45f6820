package reports

import (
	"errors"
	"fmt"
	"strings"

	"esign-portal/esign-backend/internal/reports/export"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatExcel ExportFormat = "xlsx"
	ExportFormatPDF   ExportFormat = "pdf"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat accepts the format names used in query strings. "excel" is
// an alias for xlsx.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ExportFormatCSV, ExportFormatExcel, ExportFormatPDF:
		return f, nil
	case "excel":
		return ExportFormatExcel, nil
	case "":
		return ExportFormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Rendered is a finished report file.
type Rendered struct {
	FileName    string
	ContentType string
	Data        []byte
}

func exporterFor(format ExportFormat) export.Exporter {
	switch format {
	case ExportFormatCSV:
		return export.NewCSVExporter(export.DefaultCSVOptions())
	case ExportFormatExcel:
		return export.NewExcelExporter(export.DefaultExcelOptions())
	default:
		return export.NewPDFGenerator(export.DefaultPDFOptions())
	}
}
