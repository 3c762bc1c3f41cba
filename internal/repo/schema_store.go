package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// featureListSchema describes the on-disk feature list: a JSON array of unique names.
const featureListSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "uniqueItems": true,
  "items": {"type": "string", "minLength": 1}
}`

// SchemaStore persists the feature schema as a JSON array of strings.
type SchemaStore struct {
	path      string
	logger    *slog.Logger
	validator *gojsonschema.Schema
}

// NewSchemaStore constructs a store for the feature list at path.
func NewSchemaStore(path string, logger *slog.Logger) (*SchemaStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(featureListSchema))
	if err != nil {
		return nil, fmt.Errorf("compile feature list schema: %w", err)
	}
	return &SchemaStore{path: path, logger: logger, validator: validator}, nil
}

// Path returns the feature list location.
func (s *SchemaStore) Path() string {
	return s.path
}

// Load reads and validates the feature list.
func (s *SchemaStore) Load() (models.FeatureSchema, error) {
	const op = "load feature schema"
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.FeatureSchema{}, utils.NotFoundError(op, "feature schema", s.path, err)
		}
		return models.FeatureSchema{}, utils.NewAppError(op, "read "+s.path, err)
	}

	result, err := s.validator.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return models.FeatureSchema{}, &utils.AppError{Op: op, Msg: "parse " + s.path, Kind: utils.KindData, Err: err}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return models.FeatureSchema{}, utils.DataError(op, fmt.Sprintf("%s is not a feature list: %s", s.path, strings.Join(problems, "; ")))
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return models.FeatureSchema{}, &utils.AppError{Op: op, Msg: "decode " + s.path, Kind: utils.KindData, Err: err}
	}
	return models.FeatureSchema{Names: names}, nil
}

// Save atomically replaces the feature list.
func (s *SchemaStore) Save(schema models.FeatureSchema) error {
	if err := schema.Validate(); err != nil {
		return utils.DataError("save feature schema", err.Error())
	}
	data, err := json.Marshal(schema.Names)
	if err != nil {
		return utils.NewAppError("save feature schema", "encode", err)
	}
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return utils.NewAppError("save feature schema", "write "+s.path, err)
	}
	s.logger.Info("feature schema saved", slog.String("path", s.path), slog.Int("features", schema.Len()), slog.String("hash", schema.Hash()[:12]))
	return nil
}
