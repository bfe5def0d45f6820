package export

import (
	"io"
	"time"
)

// Column maps a row key to its display label.
type Column struct {
	Key   string
	Label string
}

// Section is one titled table of a report.
type Section struct {
	Title   string
	Columns []Column
	Rows    []map[string]any
}

func (s Section) labels() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Label
	}
	return out
}

// SummaryItem is a labelled value printed above the tables.
type SummaryItem struct {
	Label string
	Value any
}

// Report is the format-independent content of an export.
type Report struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
	Summary     []SummaryItem
	Sections    []Section
}

// Exporter renders a report in one file format.
type Exporter interface {
	Export(w io.Writer, report *Report) error
	ContentType() string
	Extension() string
}
