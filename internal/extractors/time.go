package extractors

import (
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// TimeExtractor derives clock and calendar signals from row timestamps.
type TimeExtractor struct {
	oddHourStart int
	oddHourEnd   int
}

// NewTimeExtractor builds an extractor flagging hours h < oddHourEnd or h >= oddHourStart.
// An oddHourStart of 24 or more only flags the early-morning window.
func NewTimeExtractor(oddHourStart, oddHourEnd int) *TimeExtractor {
	return &TimeExtractor{oddHourStart: oddHourStart, oddHourEnd: oddHourEnd}
}

// IsOddHour reports whether h falls in the flagged window.
func (e *TimeExtractor) IsOddHour(h int) bool {
	return h < e.oddHourEnd || h >= e.oddHourStart
}

// Apply writes hour, dayofweek, is_weekend and flag_odd_hour into the feature table.
// Tables without a timestamp column are left untouched. Rows whose timestamp is
// missing or unparseable get null hour/dayofweek and false flags.
func (e *TimeExtractor) Apply(table *models.LogTable) int {
	if !table.Caps.Timestamp {
		return 0
	}

	n := table.Len()
	hour := make([]models.NullFloat, n)
	day := make([]models.NullFloat, n)
	weekend := make([]models.NullFloat, n)
	odd := make([]models.NullFloat, n)

	parsed := 0
	for i, row := range table.Rows {
		if !row.HasTimestamp() {
			hour[i] = models.Null
			day[i] = models.Null
			weekend[i] = models.Bool(false)
			odd[i] = models.Bool(false)
			continue
		}
		parsed++
		h := row.Timestamp.Hour()
		d := utils.MondayWeekday(row.Timestamp)
		hour[i] = models.Float(float64(h))
		day[i] = models.Float(float64(d))
		weekend[i] = models.Bool(d >= 5)
		odd[i] = models.Bool(e.IsOddHour(h))
	}

	table.Features.Set(models.FeatureHour, hour)
	table.Features.Set(models.FeatureDayOfWeek, day)
	table.Features.Set(models.FeatureIsWeekend, weekend)
	table.Features.Set(models.FeatureOddHour, odd)
	return parsed
}
