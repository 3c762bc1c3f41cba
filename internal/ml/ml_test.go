package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// separable returns rows where label 1 iff the first column exceeds 5.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		v := rng.Float64() * 10
		X[i] = []float64{v, rng.Float64(), float64(rng.Intn(3))}
		if v > 5 {
			y[i] = 1
		}
	}
	return X, y
}

func TestScalerStandardises(t *testing.T) {
	X := [][]float64{{1, 10, 7}, {2, 20, 7}, {3, 30, 7}, {6, 40, 7}}
	s, err := FitScaler(X)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 25, 7}, s.Mean)
	assert.Equal(t, 1.0, s.Scale[2], "constant column keeps unit scale")

	out, err := s.Transform(X)
	require.NoError(t, err)
	for i, row := range X {
		for j, v := range row {
			assert.Equal(t, (v-s.Mean[j])/s.Scale[j], out[i][j], "cell %d,%d", i, j)
		}
	}

	sum := 0.0
	for _, row := range out {
		sum += row[0]
	}
	assert.InDelta(t, 0, sum, 1e-12)
}

func TestScalerTransformUsesFitStatistics(t *testing.T) {
	s, err := FitScaler([][]float64{{0}, {2}})
	require.NoError(t, err)
	out, err := s.Transform([][]float64{{100}})
	require.NoError(t, err)
	assert.Equal(t, 99.0, out[0][0])

	_, err = s.Transform([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	train1, test1, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)
	train2, test2, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)

	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)
	assert.Len(t, test1, 3)
	assert.Len(t, train1, 7)

	seen := map[int]bool{}
	for _, i := range append(append([]int(nil), train1...), test1...) {
		assert.False(t, seen[i], "index %d duplicated", i)
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	_, test, err := TrainTestSplit(8, 0.25, 42)
	require.NoError(t, err)
	assert.Len(t, test, 2)

	_, _, err = TrainTestSplit(1, 0.3, 42)
	assert.Error(t, err)
}

func TestForestLearnsSeparableData(t *testing.T) {
	X, y := separable(200, 1)
	forest, err := FitForest(X, y, ForestConfig{Trees: 25, Seed: 42})
	require.NoError(t, err)

	probs, err := forest.PredictProba([][]float64{{9.5, 0.5, 1}, {0.5, 0.5, 1}})
	require.NoError(t, err)
	assert.Greater(t, probs[0], 0.9)
	assert.Less(t, probs[1], 0.1)

	preds, err := forest.Predict(X)
	require.NoError(t, err)
	correct := 0
	for i := range y {
		if preds[i] == y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, float64(correct)/float64(len(y)), 0.95)
}

func TestForestIsReproducible(t *testing.T) {
	X, y := separable(80, 7)
	a, err := FitForest(X, y, ForestConfig{Trees: 10, Seed: 42})
	require.NoError(t, err)
	b, err := FitForest(X, y, ForestConfig{Trees: 10, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForestSingleClass(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	forest, err := FitForest(X, []int{0, 0, 0}, ForestConfig{Trees: 5, Seed: 1})
	require.NoError(t, err)
	probs, err := forest.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, probs)
}

func TestForestSplitsAdjacentFloats(t *testing.T) {
	lo, hi := 1.0, math.Nextafter(1.0, 2)
	assert.Equal(t, lo, midpoint(lo, hi))
	assert.Equal(t, 1.5, midpoint(1, 2))

	var X [][]float64
	var y []int
	for i := 0; i < 20; i++ {
		X = append(X, []float64{lo}, []float64{hi})
		y = append(y, 0, 1)
	}
	forest, err := FitForest(X, y, ForestConfig{Trees: 10, Seed: 42})
	require.NoError(t, err)

	probs, err := forest.PredictProba([][]float64{{lo}, {hi}})
	require.NoError(t, err)
	for _, p := range probs {
		assert.False(t, math.IsNaN(p))
	}
	assert.Less(t, probs[0], probs[1])

	_, err = json.Marshal(forest)
	require.NoError(t, err)
}

func TestEvaluate(t *testing.T) {
	report := Evaluate([]int{1, 1, 0, 0}, []int{1, 0, 0, 0})

	assert.Equal(t, 0.75, report.Accuracy)
	one := report.Classes["1"]
	assert.Equal(t, 1.0, one.Precision)
	assert.Equal(t, 0.5, one.Recall)
	assert.InDelta(t, 2.0/3.0, one.F1, 1e-12)
	assert.Equal(t, 2, one.Support)

	zero := report.Classes["0"]
	assert.InDelta(t, 2.0/3.0, zero.Precision, 1e-12)
	assert.Equal(t, 1.0, zero.Recall)
	assert.Equal(t, 4, report.WeightedAvg.Support)
	assert.Contains(t, FormatReport(report), "weighted avg")
}

func TestTrainErrors(t *testing.T) {
	_, err := Train([][]float64{{1}}, nil, TrainOptions{TestFraction: 0.3, Seed: 42, Trees: 5})
	assert.ErrorIs(t, err, utils.ErrData)

	_, err = Train(nil, []int{}, TrainOptions{TestFraction: 0.3, Seed: 42, Trees: 5})
	assert.ErrorIs(t, err, utils.ErrData)

	_, err = Train([][]float64{{1}}, []int{1}, TrainOptions{TestFraction: 0.3, Seed: 42, Trees: 5})
	assert.ErrorIs(t, err, utils.ErrData)
}

func TestTrainAndScoreModel(t *testing.T) {
	X, y := separable(120, 3)
	result, err := Train(X, y, TrainOptions{TestFraction: 0.25, Seed: 42, Trees: 20})
	require.NoError(t, err)
	assert.Equal(t, 90, result.Report.TrainRows)
	assert.Equal(t, 30, result.Report.TestRows)
	assert.Greater(t, result.Report.Accuracy, 0.85)

	schema := models.FeatureSchema{Names: []string{"a", "b", "c"}}
	model := NewModel(schema, result, len(X))
	require.NoError(t, model.Validate())
	require.NoError(t, model.Check(schema))
	assert.ErrorIs(t, model.Check(models.FeatureSchema{Names: []string{"c", "b", "a"}}), utils.ErrMismatch)

	preds, probs, err := model.Score([][]float64{{9.9, 0.1, 0}, {0.1, 0.1, 0}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, preds)
	assert.False(t, math.IsNaN(probs[0]))
}
