package repo

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/androidleak/leak-triage/internal/ingest"
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// CorpusStore is the append-only training corpus shared by every case.
type CorpusStore struct {
	path   string
	lock   *FileLock
	reader *ingest.Reader
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCorpusStore constructs a store for the corpus at path. Cross-process
// appends serialize on a sibling lock file.
func NewCorpusStore(path string, lockTimeout time.Duration, logger *slog.Logger) *CorpusStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusStore{
		path:   path,
		lock:   NewFileLock(path+".lock", lockTimeout),
		reader: ingest.NewReader(logger),
		logger: logger,
	}
}

// Path returns the corpus location.
func (s *CorpusStore) Path() string {
	return s.path
}

// Load reads the whole corpus, failing with NotFound when it does not exist.
func (s *CorpusStore) Load(ctx context.Context) (*models.LogTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.reader.ReadFile(s.path, "training corpus")
}

// Append adds batch to the end of the corpus and returns the number of rows written.
// The header is written only when the file is created; later batches follow the
// existing header's column order. Rows are written with a single append so a
// concurrent reader never sees a partial batch from this process.
func (s *CorpusStore) Append(ctx context.Context, batch models.CorpusBatch) (int, error) {
	const op = "append corpus"
	if len(batch.Rows) == 0 {
		return 0, nil
	}
	for i, row := range batch.Rows {
		if len(row.Features) != batch.Schema.Len() {
			return 0, utils.DataError(op, fmt.Sprintf("row %d has %d features, schema has %d", i, len(row.Features), batch.Schema.Len()))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, utils.NewAppError(op, "create corpus directory", err)
	}
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return 0, utils.NewAppError(op, "acquire corpus lock", err)
	}
	defer release()

	header, needsNewline, err := s.existingHeader()
	if err != nil {
		return 0, err
	}
	writeHeader := header == nil
	if writeHeader {
		header = batch.Header()
	}

	records, err := project(batch, header)
	if err != nil {
		return 0, err
	}
	if !writeHeader && !slices.Contains(header, models.ColumnSource) {
		s.logger.Warn("corpus has no label_source column, row provenance not recorded",
			slog.String("path", s.path),
			slog.String("source", string(batch.Rows[0].Source)),
		)
	}

	var buf bytes.Buffer
	if needsNewline {
		buf.WriteByte('\n')
	}
	w := csv.NewWriter(&buf)
	if writeHeader {
		_ = w.Write(header)
	}
	if err := w.WriteAll(records); err != nil {
		return 0, utils.NewAppError(op, "encode rows", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, utils.NewAppError(op, "open "+s.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return 0, utils.NewAppError(op, "write "+s.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, utils.NewAppError(op, "sync "+s.path, err)
	}
	if err := f.Close(); err != nil {
		return 0, utils.NewAppError(op, "close "+s.path, err)
	}

	s.logger.Info("corpus rows appended",
		slog.String("path", s.path),
		slog.Int("rows", len(records)),
		slog.Bool("created", writeHeader),
	)
	return len(records), nil
}

// existingHeader returns the corpus header, or nil when the file is absent or empty.
// needsNewline reports a final line without a terminator.
func (s *CorpusStore) existingHeader() (header []string, needsNewline bool, err error) {
	const op = "append corpus"
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, utils.NewAppError(op, "open "+s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false, utils.NewAppError(op, "stat "+s.path, err)
	}
	if info.Size() == 0 {
		return nil, false, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return nil, false, utils.NewAppError(op, "read "+s.path, err)
	}
	needsNewline = last[0] != '\n'

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err = cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, &utils.AppError{Op: op, Msg: "parse corpus header", Kind: utils.KindData, Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	return header, needsNewline, nil
}

// project lays batch rows out in header order. Every feature and the label must
// exist in the header; header columns the batch does not carry are left blank.
// A header without a label_source column predates provenance tracking, and rows
// appended to it carry no source.
func project(batch models.CorpusBatch, header []string) ([][]string, error) {
	position := make(map[string]int, len(header))
	for i, name := range header {
		position[name] = i
	}
	for _, name := range batch.Header() {
		if _, ok := position[name]; !ok && name != models.ColumnSource {
			return nil, utils.MismatchError("append corpus",
				fmt.Sprintf("corpus header has no %q column; move the corpus aside so a new one is started with the current features", name))
		}
	}
	sourcePos, hasSource := position[models.ColumnSource]

	records := make([][]string, len(batch.Rows))
	for r, row := range batch.Rows {
		rec := make([]string, len(header))
		for j, name := range batch.Schema.Names {
			rec[position[name]] = strconv.FormatFloat(row.Features[j], 'g', -1, 64)
		}
		label := "0"
		if row.Label {
			label = "1"
		}
		rec[position[models.ColumnLabel]] = label
		if hasSource {
			rec[sourcePos] = string(row.Source)
		}
		records[r] = rec
	}
	return records, nil
}
