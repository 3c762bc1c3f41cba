package api

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// FromStructCaseRequest maps a {"case": "..."} document into a CaseRequest.
func FromStructCaseRequest(req *structpb.Struct) (models.CaseRequest, error) {
	if req == nil {
		return models.CaseRequest{}, fmt.Errorf("request is nil")
	}
	v, ok := req.GetFields()["case"]
	if !ok {
		return models.CaseRequest{}, fmt.Errorf("case is required")
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || strings.TrimSpace(s.StringValue) == "" {
		return models.CaseRequest{}, fmt.Errorf("case must be a non-empty string")
	}
	return models.CaseRequest{Case: strings.TrimSpace(s.StringValue)}, nil
}

// ToStructScoreResult converts a scoring or per-case training result.
func ToStructScoreResult(res models.ScoreResult) (*structpb.Struct, error) {
	ranked := make([]interface{}, 0, len(res.Ranked))
	for _, r := range res.Ranked {
		domains := make([]interface{}, len(r.Domains))
		for i, d := range r.Domains {
			domains[i] = d
		}
		ranked = append(ranked, map[string]interface{}{
			"ip":          r.IP,
			"probability": r.Probability,
			"first_seen":  utils.FormatTimestamp(r.FirstSeen),
			"domains":     domains,
			"event_count": r.EventCount,
			"risk_level":  string(r.Tier),
		})
	}
	tiers := make(map[string]interface{}, len(models.Tiers))
	for _, tier := range models.Tiers {
		tiers[string(tier)] = res.Distribution[tier]
	}

	fields := map[string]interface{}{
		"run_id":        res.RunID,
		"case":          res.Case,
		"model_version": res.ModelVersion,
		"rows":          res.Rows,
		"flagged_rows":  res.FlaggedRows,
		"corpus_rows":   res.CorpusRows,
		"ranked":        ranked,
		"distribution":  tiers,
		"flagged_path":  res.FlaggedPath,
		"ranked_path":   res.RankedPath,
		"started_at":    res.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		"duration_ms":   res.Duration.Milliseconds(),
	}
	if res.ModelPath != "" {
		fields["model_path"] = res.ModelPath
	}
	if res.Report != nil {
		fields["report"] = reportFields(*res.Report)
	}
	return structpb.NewStruct(fields)
}

// ToStructRetrainResult converts a global retraining result.
func ToStructRetrainResult(res models.RetrainResult) (*structpb.Struct, error) {
	features := make([]interface{}, len(res.Schema.Names))
	for i, name := range res.Schema.Names {
		features[i] = name
	}
	return structpb.NewStruct(map[string]interface{}{
		"run_id":        res.RunID,
		"model_version": res.ModelVersion,
		"rows":          res.Rows,
		"excluded_rows": res.ExcludedRows,
		"features":      features,
		"report":        reportFields(res.Report),
		"started_at":    res.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		"duration_ms":   res.Duration.Milliseconds(),
	})
}

func reportFields(r models.ClassificationReport) map[string]interface{} {
	classes := make(map[string]interface{}, len(r.Classes))
	for name, m := range r.Classes {
		classes[name] = classFields(m)
	}
	return map[string]interface{}{
		"accuracy":     r.Accuracy,
		"classes":      classes,
		"macro_avg":    classFields(r.MacroAvg),
		"weighted_avg": classFields(r.WeightedAvg),
		"train_rows":   r.TrainRows,
		"test_rows":    r.TestRows,
	}
}

func classFields(m models.ClassMetrics) map[string]interface{} {
	return map[string]interface{}{
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
		"support":   m.Support,
	}
}
