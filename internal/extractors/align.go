package extractors

import (
	"math"
	"strconv"
	"strings"

	"github.com/androidleak/leak-triage/internal/ingest"
	"github.com/androidleak/leak-triage/internal/models"
)

// AlignStats describes what alignment had to do.
type AlignStats struct {
	// Inserted lists schema columns that were absent and zero-filled.
	Inserted []string
	// Lifted lists schema columns read from the raw table and coerced to numbers.
	Lifted []string
	// Coerced counts raw cells that failed coercion and were defaulted to 0.
	Coerced int
}

// Align guarantees every schema column exists in the returned table's features.
// Present feature columns pass through unchanged, raw columns with a schema name
// are coerced to numbers, and anything else is inserted as constant 0. Columns
// outside the schema are kept. Align never fails.
func Align(table *models.LogTable, schema models.FeatureSchema) (*models.LogTable, AlignStats) {
	out := table.Clone()
	var stats AlignStats

	for _, name := range schema.Names {
		if out.Features.Has(name) {
			continue
		}
		if out.HasColumn(name) {
			values := make([]models.NullFloat, out.Len())
			for i := range out.Rows {
				raw, _ := out.Raw(i, name)
				v, ok := Coerce(raw)
				if !ok {
					stats.Coerced++
				}
				values[i] = v
			}
			out.Features.Set(name, values)
			stats.Lifted = append(stats.Lifted, name)
			continue
		}
		out.Features.Fill(name, models.Float(0))
		stats.Inserted = append(stats.Inserted, name)
	}
	return out, stats
}

// Coerce converts a raw cell into a feature value. Blank cells become null;
// values that are neither numeric nor boolean become 0 and report ok=false.
func Coerce(raw string) (models.NullFloat, bool) {
	v := ingest.Value(raw)
	if v == "" {
		return models.Null, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return models.Float(0), false
		}
		return models.Float(f), true
	}
	switch strings.ToLower(v) {
	case "true", "yes":
		return models.Float(1), true
	case "false", "no":
		return models.Float(0), true
	}
	return models.Float(0), false
}
