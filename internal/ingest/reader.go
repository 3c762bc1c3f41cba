package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// Reader turns comma-separated case logs into typed LogTables.
type Reader struct {
	logger *slog.Logger
}

// NewReader constructs a Reader.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// ReadFile loads path, failing with a NotFound error when it does not exist.
func (r *Reader) ReadFile(path, artifact string) (*models.LogTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, utils.NotFoundError("read "+artifact, artifact, path, err)
		}
		return nil, utils.NewAppError("read "+artifact, "open "+path, err)
	}
	defer f.Close()

	table, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", artifact, path, err)
	}
	r.logger.Debug("log table loaded",
		slog.String("artifact", artifact),
		slog.String("path", path),
		slog.Int("rows", table.Len()),
		slog.Bool("timestamp", table.Caps.Timestamp),
		slog.Bool("domain", table.Caps.Domain),
		slog.Bool("ip", table.Caps.IP),
		slog.Bool("label", table.Caps.Label),
	)
	return table, nil
}

// Read parses a header line plus rows. Optional columns are detected once here
// and recorded in the table's Capabilities.
func (r *Reader) Read(src io.Reader) (*models.LogTable, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, utils.DataError("read log", "table has no header row")
		}
		return nil, utils.NewAppError("read log", "parse header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	caps := capabilities(header)
	rows := make([]models.LogRow, 0, 64)
	badTimestamps := 0

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, utils.NewAppError("read log", fmt.Sprintf("parse line %d", line), err)
		}
		if blankRecord(record) {
			continue
		}

		row := models.LogRow{Fields: make(map[string]string, len(header))}
		for i, name := range header {
			if i < len(record) {
				row.Fields[name] = record[i]
			} else {
				row.Fields[name] = ""
			}
		}

		if caps.Timestamp {
			row.RawTimestamp = Value(row.Fields[models.ColumnTimestamp])
			if row.RawTimestamp != "" {
				if ts, err := utils.ParseTimestamp(row.RawTimestamp); err == nil {
					row.Timestamp = ts
				} else {
					badTimestamps++
				}
			}
		}
		if caps.Domain {
			row.Domain = Value(row.Fields[models.ColumnDomain])
		}
		if caps.IP {
			row.IP = Value(row.Fields[models.ColumnIP])
		}
		rows = append(rows, row)
	}

	if badTimestamps > 0 {
		r.logger.Warn("unparseable timestamps left empty", slog.Int("rows", badTimestamps))
	}
	return models.NewLogTable(header, rows, caps), nil
}

func capabilities(header []string) models.Capabilities {
	var caps models.Capabilities
	for _, name := range header {
		switch name {
		case models.ColumnTimestamp:
			caps.Timestamp = true
		case models.ColumnDomain:
			caps.Domain = true
		case models.ColumnIP:
			caps.IP = true
		case models.ColumnLabel:
			caps.Label = true
		}
	}
	return caps
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Value trims v and maps the placeholders exporters write for missing cells to "".
func Value(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "nan", "none", "null", "nat", "<na>":
		return ""
	}
	return v
}
