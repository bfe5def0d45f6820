package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes the summary and every section to their own sheets.
type ExcelExporter struct {
	options ExcelOptions
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SummarySheet    string
	FreezeHeader    bool
	AutoFilter      bool
	TimestampFormat string
	HeaderStyle     *ExcelStyleConfig
	DataStyle       *ExcelStyleConfig
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool
	FontSize  int
	FontColor string
	FillColor string
	Alignment string // left, center, right
	Border    bool
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SummarySheet:    "Summary",
		FreezeHeader:    true,
		AutoFilter:      true,
		TimestampFormat: "yyyy-mm-dd hh:mm:ss",
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
		DataStyle: &ExcelStyleConfig{
			FontSize:  11,
			Alignment: "left",
			Border:    true,
		},
	}
}

func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	return &ExcelExporter{options: options}
}

func (e *ExcelExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *ExcelExporter) Extension() string { return "xlsx" }

// styles holds the style ids registered on one workbook.
type styles struct {
	header, data, timestamp int
}

func (e *ExcelExporter) Export(w io.Writer, report *Report) error {
	file := excelize.NewFile()
	defer file.Close()

	st, err := e.registerStyles(file)
	if err != nil {
		return err
	}

	if err := file.SetSheetName("Sheet1", e.options.SummarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := e.writeSummary(file, report, st); err != nil {
		return err
	}

	for _, section := range report.Sections {
		if _, err := file.NewSheet(section.Title); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		if err := e.writeSection(file, section, st); err != nil {
			return err
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (e *ExcelExporter) registerStyles(file *excelize.File) (styles, error) {
	var st styles
	var err error
	if e.options.HeaderStyle != nil {
		if st.header, err = file.NewStyle(buildStyle(e.options.HeaderStyle)); err != nil {
			return st, fmt.Errorf("failed to create header style: %w", err)
		}
	}
	if e.options.DataStyle != nil {
		if st.data, err = file.NewStyle(buildStyle(e.options.DataStyle)); err != nil {
			return st, fmt.Errorf("failed to create data style: %w", err)
		}
	}
	ts := &excelize.Style{CustomNumFmt: &e.options.TimestampFormat}
	if e.options.DataStyle != nil {
		ts = buildStyle(e.options.DataStyle)
		ts.CustomNumFmt = &e.options.TimestampFormat
	}
	if st.timestamp, err = file.NewStyle(ts); err != nil {
		return st, fmt.Errorf("failed to create timestamp style: %w", err)
	}
	return st, nil
}

func (e *ExcelExporter) writeSummary(file *excelize.File, report *Report, st styles) error {
	sheet := e.options.SummarySheet
	rows := [][]any{{report.Title}}
	if report.Subtitle != "" {
		rows = append(rows, []any{report.Subtitle})
	}
	rows = append(rows, []any{"Generated", report.GeneratedAt})
	for _, item := range report.Summary {
		rows = append(rows, []any{item.Label, item.Value})
	}

	for i, row := range rows {
		for j, val := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := e.setCellValue(file, sheet, cell, val, st); err != nil {
				return err
			}
		}
	}
	if st.header > 0 {
		if err := file.SetCellStyle(sheet, "A1", "A1", st.header); err != nil {
			return err
		}
	}
	return file.SetColWidth(sheet, "A", "B", 30)
}

func (e *ExcelExporter) writeSection(file *excelize.File, section Section, st styles) error {
	sheet := section.Title
	widths := make([]float64, len(section.Columns))

	for i, col := range section.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, col.Label); err != nil {
			return err
		}
		if st.header > 0 {
			if err := file.SetCellStyle(sheet, cell, cell, st.header); err != nil {
				return err
			}
		}
		widths[i] = estimateCellWidth(col.Label)
	}

	for r, row := range section.Rows {
		for i, col := range section.Columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			val := row[col.Key]
			if err := e.setCellValue(file, sheet, cell, val, st); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			widths[i] = max(widths[i], estimateCellWidth(val))
		}
	}

	if e.options.FreezeHeader {
		if err := file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return err
		}
	}
	if e.options.AutoFilter && len(section.Rows) > 0 && len(section.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(section.Columns), len(section.Rows)+1)
		if err := file.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return err
		}
	}

	for i, w := range widths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		// Min width 10, max width 50
		if err := file.SetColWidth(sheet, name, name, min(max(w, 10), 50)); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExcelExporter) setCellValue(file *excelize.File, sheet, cell string, val any, st styles) error {
	style := st.data
	switch v := val.(type) {
	case nil:
		val = ""
	case *string:
		val = ""
		if v != nil {
			val = *v
		}
	case *time.Time:
		val = ""
		if v != nil && !v.IsZero() {
			val = v.UTC()
			style = st.timestamp
		}
	case time.Time:
		val = ""
		if !v.IsZero() {
			val = v.UTC()
			style = st.timestamp
		}
	}
	if err := file.SetCellValue(sheet, cell, val); err != nil {
		return err
	}
	if style > 0 {
		return file.SetCellStyle(sheet, cell, cell, style)
	}
	return nil
}

func buildStyle(config *ExcelStyleConfig) *excelize.Style {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{config.FillColor}}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return style
}

// estimateCellWidth is a rough display width: one unit per character plus
// padding.
func estimateCellWidth(val any) float64 {
	if val == nil {
		return 0
	}
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}
