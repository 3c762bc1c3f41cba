package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// ForestConfig controls random forest growth.
type ForestConfig struct {
	Trees int
	Seed  int64
	// MaxFeatures is the number of candidate features per split; 0 means sqrt(width).
	MaxFeatures     int
	MinSamplesSplit int
	// MaxDepth of 0 grows trees until leaves are pure.
	MaxDepth int
}

// Forest is a bagged ensemble of CART trees.
type Forest struct {
	Width int    `json:"width"`
	Trees []Tree `json:"trees"`
}

// FitForest grows cfg.Trees trees on bootstrap samples of (X, y), labels 0 or 1.
// Each tree gets its own seed drawn from cfg.Seed, so the result is identical
// regardless of how many goroutines build it.
func FitForest(X [][]float64, y []int, cfg ForestConfig) (*Forest, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit forest: no rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("fit forest: %d rows but %d labels", len(X), len(y))
	}
	if cfg.Trees <= 0 {
		cfg.Trees = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	width := len(X[0])
	maxFeatures := cfg.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(width)))))
	}
	if maxFeatures > width {
		maxFeatures = width
	}

	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	forest := &Forest{Width: width, Trees: make([]Tree, cfg.Trees)}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				forest.Trees[i] = growTree(X, y, seeds[i], maxFeatures, cfg)
			}
		}()
	}
	for i := 0; i < cfg.Trees; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return forest, nil
}

func growTree(X [][]float64, y []int, seed int64, maxFeatures int, cfg ForestConfig) Tree {
	rng := rand.New(rand.NewSource(seed))
	sample := make([]int, len(X))
	for i := range sample {
		sample[i] = rng.Intn(len(X))
	}
	b := &treeBuilder{
		X:           X,
		y:           y,
		rng:         rng,
		maxFeatures: maxFeatures,
		minSplit:    cfg.MinSamplesSplit,
		maxDepth:    cfg.MaxDepth,
	}
	b.build(sample, 0)
	return Tree{Nodes: b.nodes}
}

// PredictProba averages the trees' class-1 probabilities per row.
func (f *Forest) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		if len(x) != f.Width {
			return nil, fmt.Errorf("predict: row %d has %d columns, forest expects %d", i, len(x), f.Width)
		}
		sum := 0.0
		for t := range f.Trees {
			sum += f.Trees[t].Predict(x)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out, nil
}

// Predict labels a row 1 when its class-1 probability exceeds one half.
func (f *Forest) Predict(X [][]float64) ([]int, error) {
	probs, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(probs), nil
}

// Threshold converts probabilities to labels; ties go to class 0.
func Threshold(probs []float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out
}
