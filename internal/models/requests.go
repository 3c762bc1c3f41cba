package models

import "time"

// CaseRequest identifies the case folder an operation runs against.
type CaseRequest struct {
	Case string
}

// ScoreResult summarises a scoring or per-case training run.
type ScoreResult struct {
	RunID        string
	Case         string
	ModelVersion string
	Rows         int
	FlaggedRows  int
	Ranked       []RankedIP
	Distribution TierDistribution
	FlaggedPath  string
	RankedPath   string
	// ModelPath is the per-case bundle written by training.
	ModelPath    string
	CorpusRows   int
	// Report is set only when the run trained a model.
	Report    *ClassificationReport
	StartedAt time.Time
	Duration  time.Duration
}

// RetrainResult summarises a global retraining run.
type RetrainResult struct {
	RunID        string
	ModelVersion string
	Rows         int
	ExcludedRows int
	Schema       FeatureSchema
	Report       ClassificationReport
	StartedAt    time.Time
	Duration     time.Duration
}
