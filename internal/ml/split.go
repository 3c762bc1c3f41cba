package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit shuffles row indices with seed and holds out ceil(n*testFraction) rows.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v outside (0,1)", testFraction)
	}
	nTest := int(math.Ceil(float64(n)*testFraction - 1e-9))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("%d rows cannot be split %.0f/%.0f", n, (1-testFraction)*100, testFraction*100)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func pickRows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func pickLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
