package models

// LabelSource records where a corpus row's label came from.
type LabelSource string

const (
	// LabelGroundTruth covers labels from the case data or the investigator's master list.
	LabelGroundTruth LabelSource = "ground_truth"
	// LabelModelPredicted covers labels the deployed model assigned itself.
	LabelModelPredicted LabelSource = "model_predicted"
)

// ParseLabelSource accepts the stored value; blank (legacy corpora) means ground truth.
func ParseLabelSource(v string) LabelSource {
	if LabelSource(v) == LabelModelPredicted {
		return LabelModelPredicted
	}
	return LabelGroundTruth
}

// CorpusRow is one labelled feature vector in schema order.
type CorpusRow struct {
	Features []float64
	Label    bool
	Source   LabelSource
}

// CorpusBatch is a set of rows sharing a feature schema.
type CorpusBatch struct {
	Schema FeatureSchema
	Rows   []CorpusRow
}

// Header returns the CSV header a new corpus is created with.
func (b CorpusBatch) Header() []string {
	header := append([]string(nil), b.Schema.Names...)
	return append(header, ColumnLabel, ColumnSource)
}
