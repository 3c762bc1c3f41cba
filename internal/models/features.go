package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Feature names produced or expected by the scoring model.
const (
	FeatureUncommonTLD = "flag_uncommon_tld"
	FeatureDomainCount = "domain_count"
	FeatureIPCount     = "ip_count"
	FeatureForeignIP   = "flag_foreign_ip"
	FeatureAbuseScore  = "abuse_score"
	FeatureHour        = "hour"
	FeatureDayOfWeek   = "dayofweek"
	FeatureIsWeekend   = "is_weekend"
	FeatureOddHour     = "flag_odd_hour"
)

// DefaultFeatureNames is the fixed list written by every retraining run.
var DefaultFeatureNames = []string{
	FeatureUncommonTLD,
	FeatureDomainCount,
	FeatureIPCount,
	FeatureForeignIP,
	FeatureAbuseScore,
	FeatureHour,
	FeatureDayOfWeek,
	FeatureIsWeekend,
	FeatureOddHour,
}

// FeatureSchema is the ordered list of feature names a model expects.
type FeatureSchema struct {
	Names []string
}

// DefaultFeatureSchema returns a copy of the retraining feature list.
func DefaultFeatureSchema() FeatureSchema {
	return FeatureSchema{Names: append([]string(nil), DefaultFeatureNames...)}
}

// Validate enforces a non-empty list of unique, non-blank names.
func (s FeatureSchema) Validate() error {
	if len(s.Names) == 0 {
		return fmt.Errorf("feature schema is empty")
	}
	seen := make(map[string]struct{}, len(s.Names))
	for i, name := range s.Names {
		if name == "" {
			return fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("feature %q listed twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Hash fingerprints the ordered names; model bundles record it at training time.
func (s FeatureSchema) Hash() string {
	data, _ := json.Marshal(s.Names)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Len returns the number of features.
func (s FeatureSchema) Len() int {
	return len(s.Names)
}

// NullFloat is a feature cell that may be missing.
type NullFloat struct {
	Value float64
	Valid bool
}

// Float wraps v as a present value.
func Float(v float64) NullFloat {
	return NullFloat{Value: v, Valid: true}
}

// Bool encodes b as 1 or 0.
func Bool(b bool) NullFloat {
	if b {
		return Float(1)
	}
	return Float(0)
}

// Null is a missing value.
var Null = NullFloat{}

// OrZero returns the value or 0 when missing.
func (n NullFloat) OrZero() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}

// FeatureTable is a column-oriented numeric view over a table's rows.
type FeatureTable struct {
	rows  int
	names []string
	cols  map[string][]NullFloat
}

// NewFeatureTable creates an empty table sized for rows.
func NewFeatureTable(rows int) *FeatureTable {
	return &FeatureTable{rows: rows, cols: make(map[string][]NullFloat)}
}

// Rows returns the row count.
func (f *FeatureTable) Rows() int {
	return f.rows
}

// Names returns the columns in insertion order.
func (f *FeatureTable) Names() []string {
	return append([]string(nil), f.names...)
}

// Has reports whether a column exists.
func (f *FeatureTable) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns the values of name, or nil when absent.
func (f *FeatureTable) Column(name string) []NullFloat {
	return f.cols[name]
}

// Set inserts or replaces a column; values must match the row count.
func (f *FeatureTable) Set(name string, values []NullFloat) {
	if len(values) != f.rows {
		panic(fmt.Sprintf("feature column %q has %d values for %d rows", name, len(values), f.rows))
	}
	if _, ok := f.cols[name]; !ok {
		f.names = append(f.names, name)
	}
	f.cols[name] = values
}

// Fill inserts a constant column.
func (f *FeatureTable) Fill(name string, v NullFloat) {
	values := make([]NullFloat, f.rows)
	for i := range values {
		values[i] = v
	}
	f.Set(name, values)
}

// Clone deep-copies the table.
func (f *FeatureTable) Clone() *FeatureTable {
	out := NewFeatureTable(f.rows)
	for _, name := range f.names {
		out.Set(name, append([]NullFloat(nil), f.cols[name]...))
	}
	return out
}

// Matrix projects the table onto schema order with missing values filled by 0.
// Columns the table lacks are read as 0 as well.
func (f *FeatureTable) Matrix(schema FeatureSchema) [][]float64 {
	out := make([][]float64, f.rows)
	for i := range out {
		out[i] = make([]float64, len(schema.Names))
	}
	for j, name := range schema.Names {
		col := f.cols[name]
		if col == nil {
			continue
		}
		for i := range out {
			out[i][j] = col[i].OrZero()
		}
	}
	return out
}
