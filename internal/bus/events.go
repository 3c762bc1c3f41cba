package bus

import "time"

// CaseEvent announces a finished scoring or per-case training run.
type CaseEvent struct {
	RunID        string         `json:"run_id"`
	Case         string         `json:"case"`
	ModelVersion string         `json:"model_version"`
	Rows         int            `json:"rows"`
	FlaggedRows  int            `json:"flagged_rows"`
	RankedIPs    int            `json:"ranked_ips"`
	Tiers        map[string]int `json:"tiers"`
	RankedPath   string         `json:"ranked_path"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// RetrainEvent announces a newly deployed global model.
type RetrainEvent struct {
	RunID        string    `json:"run_id"`
	ModelVersion string    `json:"model_version"`
	Rows         int       `json:"rows"`
	ExcludedRows int       `json:"excluded_rows"`
	SchemaHash   string    `json:"schema_hash"`
	Accuracy     float64   `json:"accuracy"`
	FinishedAt   time.Time `json:"finished_at"`
}
