package ml

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// Model bundles a forest with the scaler fit in the same run and the schema
// it was trained against. It is persisted and replaced as one artifact.
type Model struct {
	Version      string                      `json:"version"`
	CreatedAt    time.Time                   `json:"created_at"`
	Features     []string                    `json:"features"`
	SchemaHash   string                      `json:"schema_hash"`
	TrainingRows int                         `json:"training_rows"`
	Scaler       *Scaler                     `json:"scaler"`
	Forest       *Forest                     `json:"forest"`
	Report       models.ClassificationReport `json:"report"`
}

// NewModel stamps a training result with a fresh version and the schema hash.
func NewModel(schema models.FeatureSchema, result *TrainResult, rows int) *Model {
	return &Model{
		Version:      uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		Features:     append([]string(nil), schema.Names...),
		SchemaHash:   schema.Hash(),
		TrainingRows: rows,
		Scaler:       result.Scaler,
		Forest:       result.Forest,
		Report:       result.Report,
	}
}

// Schema returns the feature schema recorded in the bundle.
func (m *Model) Schema() models.FeatureSchema {
	return models.FeatureSchema{Names: append([]string(nil), m.Features...)}
}

// Validate checks internal consistency of a decoded bundle.
func (m *Model) Validate() error {
	if m.Scaler == nil || m.Forest == nil {
		return fmt.Errorf("model %s is missing its scaler or forest", m.Version)
	}
	if m.Scaler.Width() != len(m.Features) || m.Forest.Width != len(m.Features) {
		return fmt.Errorf("model %s: scaler width %d, forest width %d, %d features",
			m.Version, m.Scaler.Width(), m.Forest.Width, len(m.Features))
	}
	if m.SchemaHash != m.Schema().Hash() {
		return fmt.Errorf("model %s: recorded schema hash does not match its feature list", m.Version)
	}
	return nil
}

// Check fails with a mismatch error when schema differs from the training schema.
func (m *Model) Check(schema models.FeatureSchema) error {
	if schema.Hash() != m.SchemaHash {
		return utils.MismatchError("check model",
			fmt.Sprintf("model %s was trained on schema %.12s, current schema is %.12s", m.Version, m.SchemaHash, schema.Hash()))
	}
	return nil
}

// Score transforms X with the bundled scaler and returns labels and class-1 probabilities.
func (m *Model) Score(X [][]float64) ([]int, []float64, error) {
	scaled, err := m.Scaler.Transform(X)
	if err != nil {
		return nil, nil, utils.NewAppError("score", "scale features", err)
	}
	probs, err := m.Forest.PredictProba(scaled)
	if err != nil {
		return nil, nil, utils.NewAppError("score", "predict", err)
	}
	return Threshold(probs), probs, nil
}
