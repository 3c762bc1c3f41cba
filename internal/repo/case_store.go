package repo

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/androidleak/leak-triage/internal/ingest"
	"github.com/androidleak/leak-triage/internal/ml"
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// CaseLayout names the files inside a case folder.
type CaseLayout struct {
	LogFile        string
	MasterListFile string
	FlaggedFile    string
	RankedFile     string
	ModelFile      string
}

// DefaultCaseLayout returns the file names the dashboard expects.
func DefaultCaseLayout() CaseLayout {
	return CaseLayout{
		LogFile:        "resolved_dns_log.csv",
		MasterListFile: "master_list.csv",
		FlaggedFile:    "ml_flagged_suspicious.csv",
		RankedFile:     "ranked_suspicious_ips.csv",
		ModelFile:      "case_model.json.zst",
	}
}

// CaseStore resolves case folders and reads or writes their artifacts.
type CaseStore struct {
	baseDir string
	layout  CaseLayout
	models  *ModelCache
	reader  *ingest.Reader
	logger  *slog.Logger
}

// NewCaseStore constructs a store rooted at baseDir.
func NewCaseStore(baseDir string, layout CaseLayout, cache *ModelCache, logger *slog.Logger) *CaseStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseStore{
		baseDir: baseDir,
		layout:  layout,
		models:  cache,
		reader:  ingest.NewReader(logger),
		logger:  logger,
	}
}

// Dir resolves a case to its folder. Absolute paths are used as given; anything
// else must be a plain folder name under the cases directory.
func (s *CaseStore) Dir(caseID string) (string, error) {
	const op = "resolve case"
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return "", utils.DataError(op, "case is required")
	}

	dir := caseID
	if !filepath.IsAbs(caseID) {
		if caseID != filepath.Base(caseID) || caseID == "." || caseID == ".." {
			return "", utils.DataError(op, fmt.Sprintf("case %q must be a folder name or an absolute path", caseID))
		}
		dir = filepath.Join(s.baseDir, caseID)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", utils.NotFoundError(op, "case folder", dir, err)
		}
		return "", utils.NewAppError(op, "stat "+dir, err)
	}
	if !info.IsDir() {
		return "", utils.DataError(op, dir+" is not a folder")
	}
	return dir, nil
}

// LoadLog reads the case's DNS log table.
func (s *CaseStore) LoadLog(caseID string) (*models.LogTable, error) {
	dir, err := s.Dir(caseID)
	if err != nil {
		return nil, err
	}
	return s.reader.ReadFile(filepath.Join(dir, s.layout.LogFile), "case log")
}

// MasterIPs returns the investigator's known-bad IP set for the case. A missing
// list yields an empty set; a list without an ip column is a DataError.
func (s *CaseStore) MasterIPs(caseID string) (map[string]struct{}, error) {
	const op = "load master list"
	dir, err := s.Dir(caseID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, s.layout.MasterListFile)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("master list not found, every IP is unlabelled", slog.String("path", path))
			return map[string]struct{}{}, nil
		}
		return nil, utils.NewAppError(op, "open "+path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]struct{}{}, nil
		}
		return nil, &utils.AppError{Op: op, Msg: "parse " + path, Kind: utils.KindData, Err: err}
	}
	col := -1
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		if name == models.ColumnIP {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, utils.DataError(op, fmt.Sprintf("%s has no %q column", path, models.ColumnIP))
	}

	ips := make(map[string]struct{})
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &utils.AppError{Op: op, Msg: "parse " + path, Kind: utils.KindData, Err: err}
		}
		if col >= len(record) {
			continue
		}
		if ip := ingest.Value(record[col]); ip != "" {
			ips[ip] = struct{}{}
		}
	}
	return ips, nil
}

// WriteFlagged replaces the case's flagged-rows output.
func (s *CaseStore) WriteFlagged(caseID string, header []string, records [][]string) (string, error) {
	return s.writeOutput(caseID, s.layout.FlaggedFile, header, records)
}

// WriteRanked replaces the case's ranked-IP output.
func (s *CaseStore) WriteRanked(caseID string, header []string, records [][]string) (string, error) {
	return s.writeOutput(caseID, s.layout.RankedFile, header, records)
}

func (s *CaseStore) writeOutput(caseID, name string, header []string, records [][]string) (string, error) {
	const op = "write case output"
	dir, err := s.Dir(caseID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	if err := w.WriteAll(records); err != nil {
		return "", utils.NewAppError(op, "encode "+name, err)
	}
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", utils.NewAppError(op, "write "+path, err)
	}
	s.logger.Debug("case output written", slog.String("path", path), slog.Int("rows", len(records)))
	return path, nil
}

// Models returns the store for the case's own model bundle.
func (s *CaseStore) Models(caseID string) (*ModelStore, error) {
	dir, err := s.Dir(caseID)
	if err != nil {
		return nil, err
	}
	return NewModelStore(filepath.Join(dir, s.layout.ModelFile), s.models, s.logger), nil
}

// SaveModel stores a model bundle inside the case folder and returns its path.
func (s *CaseStore) SaveModel(caseID string, m *ml.Model) (string, error) {
	store, err := s.Models(caseID)
	if err != nil {
		return "", err
	}
	if err := store.Save(m); err != nil {
		return "", err
	}
	return store.Path(), nil
}
