package extractors

import (
	"log/slog"

	"github.com/androidleak/leak-triage/internal/models"
)

// Options tunes feature derivation.
type Options struct {
	OddHourStart int
	OddHourEnd   int
	CommonTLDs   []string
}

// DefaultOptions flags 22:00-04:59 as odd hours.
func DefaultOptions() Options {
	return Options{OddHourStart: 22, OddHourEnd: 5, CommonTLDs: DefaultCommonTLDs}
}

// Engineer runs every extractor over a log table.
type Engineer struct {
	logger *slog.Logger
	time   *TimeExtractor
	domain *DomainExtractor
}

// NewEngineer constructs an Engineer.
func NewEngineer(logger *slog.Logger, opts Options) *Engineer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engineer{
		logger: logger,
		time:   NewTimeExtractor(opts.OddHourStart, opts.OddHourEnd),
		domain: NewDomainExtractor(opts.CommonTLDs),
	}
}

// Derive returns a copy of table augmented with derived feature columns.
func (e *Engineer) Derive(table *models.LogTable) *models.LogTable {
	out := table.Clone()
	if !out.Caps.Timestamp {
		e.logger.Debug("no timestamp column, time features left to alignment")
	} else {
		parsed := e.time.Apply(out)
		e.logger.Debug("time features derived", slog.Int("rows", out.Len()), slog.Int("with_timestamp", parsed))
	}
	e.domain.Apply(out)
	return out
}
