package models

import "time"

// Column names with fixed meaning in case log tables.
const (
	ColumnTimestamp = "timestamp"
	ColumnDomain    = "domain"
	ColumnIP        = "ip"
	ColumnLabel     = "is_suspicious"
	ColumnSource    = "label_source"
)

// Capabilities records which optional columns a table carried at ingestion.
type Capabilities struct {
	Timestamp bool
	Domain    bool
	IP        bool
	Label     bool
}

// LogRow is one resolved DNS/network observation.
type LogRow struct {
	// Timestamp is zero when the column is absent or the value did not parse.
	Timestamp    time.Time
	RawTimestamp string
	Domain       string
	IP           string
	// Fields holds every original column verbatim, keyed by header name.
	Fields map[string]string
}

// HasTimestamp reports whether the row carried a parseable timestamp.
func (r LogRow) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// LogTable is a case log after ingestion, with its numeric feature view.
type LogTable struct {
	Columns  []string
	Rows     []LogRow
	Caps     Capabilities
	Features *FeatureTable
}

// NewLogTable wraps rows with an empty feature table of matching length.
func NewLogTable(columns []string, rows []LogRow, caps Capabilities) *LogTable {
	return &LogTable{
		Columns:  columns,
		Rows:     rows,
		Caps:     caps,
		Features: NewFeatureTable(len(rows)),
	}
}

// Len returns the number of rows.
func (t *LogTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the original header contained name.
func (t *LogTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Raw returns the original string value of column name for row i.
func (t *LogTable) Raw(i int, name string) (string, bool) {
	v, ok := t.Rows[i].Fields[name]
	return v, ok
}

// Clone copies the table header and feature columns; rows are shared since they are immutable.
func (t *LogTable) Clone() *LogTable {
	return &LogTable{
		Columns:  append([]string(nil), t.Columns...),
		Rows:     t.Rows,
		Caps:     t.Caps,
		Features: t.Features.Clone(),
	}
}
