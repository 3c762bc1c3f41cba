package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/androidleak/leak-triage/internal/models"
)

const (
	// OutcomeSuccess labels completed runs.
	OutcomeSuccess = "success"
	// OutcomeError labels failed runs.
	OutcomeError = "error"
)

// Operation labels.
const (
	OperationScore   = "score"
	OperationTrain   = "train"
	OperationRetrain = "retrain"
)

var (
	casesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leak_triage",
			Name:      "cases_total",
			Help:      "Total number of case runs, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leak_triage",
			Name:      "operation_seconds",
			Help:      "Scoring, training and retraining latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	flaggedIPsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leak_triage",
			Name:      "flagged_ips_total",
			Help:      "Ranked suspicious IPs produced, partitioned by risk tier.",
		},
		[]string{"tier"},
	)

	corpusRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leak_triage",
			Name:      "corpus_rows_total",
			Help:      "Rows appended to the training corpus, partitioned by label source.",
		},
		[]string{"label_source"},
	)

	retrainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leak_triage",
			Name:      "retrains_total",
			Help:      "Global retraining runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches leak-triage collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		casesTotal,
		operationSeconds,
		flaggedIPsTotal,
		corpusRowsTotal,
		retrainsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCase records a scoring or per-case training run.
func ObserveCase(operation string, duration time.Duration, outcome string) {
	casesTotal.WithLabelValues(operation, normalise(outcome)).Inc()
	observeDuration(operation, duration)
}

// ObserveRetrain records a global retraining run.
func ObserveRetrain(duration time.Duration, outcome string) {
	retrainsTotal.WithLabelValues(normalise(outcome)).Inc()
	observeDuration(OperationRetrain, duration)
}

// ObserveRanked counts ranked IPs per tier.
func ObserveRanked(dist models.TierDistribution) {
	for tier, n := range dist {
		if n > 0 {
			flaggedIPsTotal.WithLabelValues(string(tier)).Add(float64(n))
		}
	}
}

// ObserveCorpusRows counts appended corpus rows.
func ObserveCorpusRows(source models.LabelSource, n int) {
	if n > 0 {
		corpusRowsTotal.WithLabelValues(string(source)).Add(float64(n))
	}
}

func observeDuration(operation string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	operationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

func normalise(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return outcome
}
