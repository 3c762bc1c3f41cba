package repo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/androidleak/leak-triage/internal/ml"
	"github.com/androidleak/leak-triage/internal/utils"
)

// ModelCache keeps decoded model bundles keyed by file identity, so a bundle
// replaced on disk is never served stale.
type ModelCache struct {
	entries *lru.Cache[string, *ml.Model]
}

// NewModelCache builds a cache holding up to size bundles. A size below one disables caching.
func NewModelCache(size int) *ModelCache {
	if size < 1 {
		return &ModelCache{}
	}
	entries, _ := lru.New[string, *ml.Model](size)
	return &ModelCache{entries: entries}
}

func (c *ModelCache) get(key string) (*ml.Model, bool) {
	if c == nil || c.entries == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *ModelCache) add(key string, m *ml.Model) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Add(key, m)
}

// Len returns the number of cached bundles.
func (c *ModelCache) Len() int {
	if c == nil || c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// ModelStore persists a model bundle as zstd-compressed JSON.
type ModelStore struct {
	path   string
	cache  *ModelCache
	logger *slog.Logger
}

// NewModelStore constructs a store for the bundle at path. cache may be nil.
func NewModelStore(path string, cache *ModelCache, logger *slog.Logger) *ModelStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelStore{path: path, cache: cache, logger: logger}
}

// Path returns the bundle location.
func (s *ModelStore) Path() string {
	return s.path
}

// Load decodes the bundle, failing with NotFound when it does not exist.
func (s *ModelStore) Load() (*ml.Model, error) {
	const op = "load model"
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, utils.NotFoundError(op, "model", s.path, err)
		}
		return nil, utils.NewAppError(op, "stat "+s.path, err)
	}

	key := fmt.Sprintf("%s|%d|%d", s.path, info.ModTime().UnixNano(), info.Size())
	if m, ok := s.cache.get(key); ok {
		return m, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, utils.NewAppError(op, "open "+s.path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, &utils.AppError{Op: op, Msg: "open zstd stream", Kind: utils.KindData, Err: err}
	}
	defer dec.Close()

	var m ml.Model
	if err := json.NewDecoder(dec).Decode(&m); err != nil {
		return nil, &utils.AppError{Op: op, Msg: "decode " + s.path, Kind: utils.KindData, Err: err}
	}
	if err := m.Validate(); err != nil {
		return nil, &utils.AppError{Op: op, Msg: "invalid bundle " + s.path, Kind: utils.KindData, Err: err}
	}

	s.cache.add(key, &m)
	s.logger.Debug("model loaded", slog.String("path", s.path), slog.String("version", m.Version), slog.Int("features", len(m.Features)))
	return &m, nil
}

// Save atomically replaces the bundle.
func (s *ModelStore) Save(m *ml.Model) error {
	const op = "save model"
	if err := m.Validate(); err != nil {
		return &utils.AppError{Op: op, Msg: "refusing to save invalid bundle", Kind: utils.KindData, Err: err}
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return utils.NewAppError(op, "open zstd stream", err)
	}
	if err := json.NewEncoder(enc).Encode(m); err != nil {
		enc.Close()
		return utils.NewAppError(op, "encode bundle", err)
	}
	if err := enc.Close(); err != nil {
		return utils.NewAppError(op, "flush zstd stream", err)
	}

	if err := writeFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return utils.NewAppError(op, "write "+s.path, err)
	}
	s.logger.Info("model saved",
		slog.String("path", s.path),
		slog.String("version", m.Version),
		slog.Int("training_rows", m.TrainingRows),
		slog.Int("bytes", buf.Len()),
	)
	return nil
}
