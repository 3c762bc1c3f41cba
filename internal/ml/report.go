package ml

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/androidleak/leak-triage/internal/models"
)

// Evaluate computes per-class precision, recall and F1 for binary labels.
// Undefined ratios are reported as 0.
func Evaluate(yTrue, yPred []int) models.ClassificationReport {
	report := models.ClassificationReport{Classes: make(map[string]models.ClassMetrics)}
	if len(yTrue) == 0 {
		return report
	}

	present := map[int]struct{}{}
	for i := range yTrue {
		present[yTrue[i]] = struct{}{}
		present[yPred[i]] = struct{}{}
	}
	classes := make([]int, 0, len(present))
	for c := range present {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(yTrue))

	var macro, weighted models.ClassMetrics
	total := 0
	for _, c := range classes {
		tp, fp, fn, support := 0, 0, 0, 0
		for i := range yTrue {
			switch {
			case yTrue[i] == c && yPred[i] == c:
				tp++
			case yTrue[i] != c && yPred[i] == c:
				fp++
			case yTrue[i] == c && yPred[i] != c:
				fn++
			}
			if yTrue[i] == c {
				support++
			}
		}
		m := models.ClassMetrics{
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes[strconv.Itoa(c)] = m

		macro.Precision += m.Precision / float64(len(classes))
		macro.Recall += m.Recall / float64(len(classes))
		macro.F1 += m.F1 / float64(len(classes))
		w := float64(support)
		weighted.Precision += m.Precision * w
		weighted.Recall += m.Recall * w
		weighted.F1 += m.F1 * w
		total += support
	}
	macro.Support = total
	weighted.Support = total
	weighted.Precision /= float64(total)
	weighted.Recall /= float64(total)
	weighted.F1 /= float64(total)
	report.MacroAvg = macro
	report.WeightedAvg = weighted
	return report
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// FormatReport renders the report as an aligned text table.
func FormatReport(r models.ClassificationReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	classes := make([]string, 0, len(r.Classes))
	for c := range r.Classes {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		m := r.Classes[c]
		fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", c, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "%14s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%14s %9.2f %9.2f %9.2f %9d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return b.String()
}
