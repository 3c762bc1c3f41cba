package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/androidleak/leak-triage/internal/bus"
	"github.com/androidleak/leak-triage/internal/extractors"
	"github.com/androidleak/leak-triage/internal/ml"
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// SchemaStore persists the deployed feature schema.
type SchemaStore interface {
	Load() (models.FeatureSchema, error)
	Save(schema models.FeatureSchema) error
}

// ModelStore persists the deployed model bundle.
type ModelStore interface {
	Load() (*ml.Model, error)
	Save(m *ml.Model) error
}

// CorpusStore is the shared append-only training corpus.
type CorpusStore interface {
	Load(ctx context.Context) (*models.LogTable, error)
	Append(ctx context.Context, batch models.CorpusBatch) (int, error)
}

// CaseStore reads case inputs and writes case outputs.
type CaseStore interface {
	MasterLister
	LoadLog(caseID string) (*models.LogTable, error)
	WriteFlagged(caseID string, header []string, records [][]string) (string, error)
	WriteRanked(caseID string, header []string, records [][]string) (string, error)
	SaveModel(caseID string, m *ml.Model) (string, error)
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(subject string, payload any) error
}

// Locker serialises replacement of the deployed schema and model across processes.
type Locker interface {
	Acquire(ctx context.Context) (func(), error)
}

// Options tunes training and feature derivation.
type Options struct {
	Features              extractors.Options
	Trees                 int
	Seed                  int64
	CaseTestFraction      float64
	GlobalTestFraction    float64
	ExcludeModelPredicted bool
}

// DefaultOptions mirrors the investigator tooling: 100 trees, seed 42, 70/30
// per-case and 75/25 global splits.
func DefaultOptions() Options {
	return Options{
		Features:           extractors.DefaultOptions(),
		Trees:              100,
		Seed:               42,
		CaseTestFraction:   0.3,
		GlobalTestFraction: 0.25,
	}
}

// Pipeline runs case scoring, per-case training and global retraining.
// Scoring and per-case training share the deployed artifacts for reading;
// retraining replaces them and runs exclusively.
type Pipeline struct {
	logger    *slog.Logger
	schemas   SchemaStore
	models    ModelStore
	corpus    CorpusStore
	cases     CaseStore
	publisher Publisher
	lock      Locker
	engineer  *extractors.Engineer
	opts      Options
	mu        sync.RWMutex
}

// NewPipeline constructs a pipeline. publisher and lock may be nil.
func NewPipeline(
	logger *slog.Logger,
	schemas SchemaStore,
	modelStore ModelStore,
	corpus CorpusStore,
	cases CaseStore,
	publisher Publisher,
	lock Locker,
	opts Options,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		schemas:   schemas,
		models:    modelStore,
		corpus:    corpus,
		cases:     cases,
		publisher: publisher,
		lock:      lock,
		engineer:  extractors.NewEngineer(logger, opts.Features),
		opts:      opts,
	}
}

// ScoreCase applies the deployed model to a case log, writes the flagged and
// ranked outputs, and appends the rows to the corpus labelled by prediction.
func (p *Pipeline) ScoreCase(ctx context.Context, req models.CaseRequest) (models.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ScoreResult{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := models.ScoreResult{RunID: uuid.NewString(), Case: req.Case, StartedAt: time.Now().UTC()}
	logger := p.logger.With(slog.String("run_id", result.RunID), slog.String("case", req.Case), slog.String("operation", "score"))

	schema, err := p.schemas.Load()
	if err != nil {
		return result, err
	}
	model, err := p.models.Load()
	if err != nil {
		return result, err
	}
	if err := model.Check(schema); err != nil {
		return result, err
	}
	result.ModelVersion = model.Version

	table, err := p.loadCase(req.Case)
	if err != nil {
		return result, err
	}
	aligned, X := p.prepare(logger, table, schema)

	preds, probs, err := model.Score(X)
	if err != nil {
		return result, err
	}

	if err := p.writeOutputs(req.Case, aligned, nil, preds, probs, &result); err != nil {
		return result, err
	}

	batch := corpusBatch(schema, X, models.LabelModelPredicted, func(i int) bool { return preds[i] == 1 })
	if result.CorpusRows, err = p.corpus.Append(ctx, batch); err != nil {
		return result, err
	}

	result.Duration = time.Since(result.StartedAt)
	logger.Info("case scored",
		slog.String("model_version", model.Version),
		slog.Int("rows", result.Rows),
		slog.Int("flagged_rows", result.FlaggedRows),
		slog.Int("ranked_ips", len(result.Ranked)),
		slog.Duration("duration", result.Duration),
	)
	p.publish(logger, bus.SubjectCaseScored, caseEvent(result))
	return result, nil
}

// TrainCase fits a model on one case using resolved labels, scores every row
// with it, saves the bundle in the case folder, and appends the labelled rows
// to the corpus as ground truth.
func (p *Pipeline) TrainCase(ctx context.Context, req models.CaseRequest) (models.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ScoreResult{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := models.ScoreResult{RunID: uuid.NewString(), Case: req.Case, StartedAt: time.Now().UTC()}
	logger := p.logger.With(slog.String("run_id", result.RunID), slog.String("case", req.Case), slog.String("operation", "train"))

	schema, err := p.schemas.Load()
	if err != nil {
		return result, err
	}
	table, err := p.loadCase(req.Case)
	if err != nil {
		return result, err
	}
	aligned, X := p.prepare(logger, table, schema)

	labels, origin, err := ResolveLabels(table, req.Case, p.cases)
	if err != nil {
		return result, err
	}
	logger.Info("labels resolved", slog.String("origin", string(origin)), slog.Int("positive", countTrue(labels)))

	trained, err := ml.Train(X, intLabels(labels), ml.TrainOptions{
		TestFraction: p.opts.CaseTestFraction,
		Seed:         p.opts.Seed,
		Trees:        p.opts.Trees,
	})
	if err != nil {
		return result, err
	}
	model := ml.NewModel(schema, trained, len(X))
	result.ModelVersion = model.Version
	result.Report = &model.Report
	logger.Debug("classification report\n" + ml.FormatReport(model.Report))

	preds, probs, err := model.Score(X)
	if err != nil {
		return result, err
	}
	if err := p.writeOutputs(req.Case, aligned, labels, preds, probs, &result); err != nil {
		return result, err
	}
	if result.ModelPath, err = p.cases.SaveModel(req.Case, model); err != nil {
		return result, err
	}

	batch := corpusBatch(schema, X, models.LabelGroundTruth, func(i int) bool { return labels[i] })
	if result.CorpusRows, err = p.corpus.Append(ctx, batch); err != nil {
		return result, err
	}

	result.Duration = time.Since(result.StartedAt)
	logger.Info("case model trained",
		slog.String("model_version", model.Version),
		slog.Int("rows", result.Rows),
		slog.Int("flagged_rows", result.FlaggedRows),
		slog.Float64("accuracy", model.Report.Accuracy),
		slog.Duration("duration", result.Duration),
	)
	p.publish(logger, bus.SubjectCaseTrained, caseEvent(result))
	return result, nil
}

// Retrain fits a new global model on the whole corpus and replaces the deployed
// schema and model.
func (p *Pipeline) Retrain(ctx context.Context) (models.RetrainResult, error) {
	const op = "retrain"
	if err := ctx.Err(); err != nil {
		return models.RetrainResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	result := models.RetrainResult{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := p.logger.With(slog.String("run_id", result.RunID), slog.String("operation", op))

	corpus, err := p.corpus.Load(ctx)
	if err != nil {
		return result, err
	}
	if !corpus.Caps.Label {
		return result, utils.DataError(op, fmt.Sprintf("%q column not found; it is required for training", models.ColumnLabel))
	}

	corpus, result.ExcludedRows = p.filterCorpus(corpus)
	if corpus.Len() == 0 {
		return result, utils.DataError(op, "no corpus rows left to train on")
	}
	logger.Info("corpus loaded", slog.Int("rows", corpus.Len()), slog.Int("excluded_rows", result.ExcludedRows))

	schema := models.DefaultFeatureSchema()
	_, X := p.prepare(logger, corpus, schema)
	labels, _, err := ResolveLabels(corpus, "", p.cases)
	if err != nil {
		return result, err
	}

	trained, err := ml.Train(X, intLabels(labels), ml.TrainOptions{
		TestFraction: p.opts.GlobalTestFraction,
		Seed:         p.opts.Seed,
		Trees:        p.opts.Trees,
	})
	if err != nil {
		return result, err
	}
	model := ml.NewModel(schema, trained, len(X))
	logger.Debug("classification report\n" + ml.FormatReport(model.Report))

	if p.lock != nil {
		release, err := p.lock.Acquire(ctx)
		if err != nil {
			return result, utils.NewAppError(op, "acquire artifact lock", err)
		}
		defer release()
	}
	if err := p.schemas.Save(schema); err != nil {
		return result, err
	}
	if err := p.models.Save(model); err != nil {
		return result, err
	}

	result.ModelVersion = model.Version
	result.Rows = len(X)
	result.Schema = schema
	result.Report = model.Report
	result.Duration = time.Since(result.StartedAt)
	logger.Info("global model replaced",
		slog.String("model_version", model.Version),
		slog.Int("rows", result.Rows),
		slog.Float64("accuracy", model.Report.Accuracy),
		slog.Duration("duration", result.Duration),
	)
	p.publish(logger, bus.SubjectModelRetrained, bus.RetrainEvent{
		RunID:        result.RunID,
		ModelVersion: result.ModelVersion,
		Rows:         result.Rows,
		ExcludedRows: result.ExcludedRows,
		SchemaHash:   model.SchemaHash,
		Accuracy:     model.Report.Accuracy,
		FinishedAt:   result.StartedAt.Add(result.Duration),
	})
	return result, nil
}

func (p *Pipeline) loadCase(caseID string) (*models.LogTable, error) {
	table, err := p.cases.LoadLog(caseID)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, utils.DataError("load case", "case log has no rows")
	}
	return table, nil
}

// prepare derives features, aligns them to schema and returns the feature matrix.
func (p *Pipeline) prepare(logger *slog.Logger, table *models.LogTable, schema models.FeatureSchema) (*models.LogTable, [][]float64) {
	derived := p.engineer.Derive(table)
	aligned, stats := extractors.Align(derived, schema)
	if len(stats.Inserted) > 0 {
		logger.Info("schema columns zero-filled", slog.Any("columns", stats.Inserted))
	}
	if stats.Coerced > 0 {
		logger.Warn("non-numeric feature values defaulted to 0", slog.Int("cells", stats.Coerced), slog.Any("columns", stats.Lifted))
	}
	return aligned, aligned.Features.Matrix(schema)
}

func (p *Pipeline) writeOutputs(caseID string, table *models.LogTable, labels []bool, preds []int, probs []float64, result *models.ScoreResult) error {
	header, flagged := flaggedRecords(table, labels, preds, probs)
	path, err := p.cases.WriteFlagged(caseID, header, flagged)
	if err != nil {
		return err
	}
	result.FlaggedPath = path

	ranked := Rank(table, preds, probs)
	if path, err = p.cases.WriteRanked(caseID, RankedHeader, rankedRecords(ranked)); err != nil {
		return err
	}
	result.RankedPath = path
	result.Rows = table.Len()
	result.FlaggedRows = len(flagged)
	result.Ranked = ranked
	result.Distribution = Distribution(ranked)
	return nil
}

// filterCorpus drops model-labelled rows when configured to. Corpora without a
// label_source column are all ground truth.
func (p *Pipeline) filterCorpus(corpus *models.LogTable) (*models.LogTable, int) {
	if !p.opts.ExcludeModelPredicted || !corpus.HasColumn(models.ColumnSource) {
		return corpus, 0
	}
	kept := make([]models.LogRow, 0, corpus.Len())
	for _, row := range corpus.Rows {
		if models.ParseLabelSource(row.Fields[models.ColumnSource]) == models.LabelModelPredicted {
			continue
		}
		kept = append(kept, row)
	}
	return models.NewLogTable(corpus.Columns, kept, corpus.Caps), corpus.Len() - len(kept)
}

func (p *Pipeline) publish(logger *slog.Logger, subject string, payload any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(subject, payload); err != nil {
		logger.Warn("event publish failed", slog.String("subject", subject), slog.Any("error", err))
	}
}

func corpusBatch(schema models.FeatureSchema, X [][]float64, source models.LabelSource, label func(int) bool) models.CorpusBatch {
	batch := models.CorpusBatch{Schema: schema, Rows: make([]models.CorpusRow, len(X))}
	for i, row := range X {
		batch.Rows[i] = models.CorpusRow{Features: row, Label: label(i), Source: source}
	}
	return batch
}

func caseEvent(r models.ScoreResult) bus.CaseEvent {
	tiers := make(map[string]int, len(r.Distribution))
	for tier, n := range r.Distribution {
		tiers[string(tier)] = n
	}
	return bus.CaseEvent{
		RunID:        r.RunID,
		Case:         r.Case,
		ModelVersion: r.ModelVersion,
		Rows:         r.Rows,
		FlaggedRows:  r.FlaggedRows,
		RankedIPs:    len(r.Ranked),
		Tiers:        tiers,
		RankedPath:   r.RankedPath,
		FinishedAt:   r.StartedAt.Add(r.Duration),
	}
}

func intLabels(labels []bool) []int {
	y := make([]int, len(labels))
	for i, l := range labels {
		if l {
			y[i] = 1
		}
	}
	return y
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}
