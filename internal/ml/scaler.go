package ml

import (
	"fmt"
	"math"
)

// Scaler standardises each column to zero mean and unit variance.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Var   []float64 `json:"var"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population variance. Constant
// columns get a scale of 1 so they transform to 0.
func FitScaler(X [][]float64) (*Scaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit scaler: no rows")
	}
	cols := len(X[0])
	s := &Scaler{
		Mean:  make([]float64, cols),
		Var:   make([]float64, cols),
		Scale: make([]float64, cols),
	}
	n := float64(len(X))
	for _, row := range X {
		if len(row) != cols {
			return nil, fmt.Errorf("fit scaler: ragged row with %d columns, want %d", len(row), cols)
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}
	for _, row := range X {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Var[j] += d * d
		}
	}
	for j := range s.Var {
		s.Var[j] /= n
		s.Scale[j] = math.Sqrt(s.Var[j])
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return s, nil
}

// Width returns the number of columns the scaler was fit on.
func (s *Scaler) Width() int {
	return len(s.Mean)
}

// Transform returns (x-mean)/scale for every cell. It never refits.
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != s.Width() {
			return nil, fmt.Errorf("transform: row %d has %d columns, scaler expects %d", i, len(row), s.Width())
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}
