package ml

import (
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// TrainOptions fixes the split ratio, seed and ensemble size.
type TrainOptions struct {
	TestFraction float64
	Seed         int64
	Trees        int
}

// TrainResult is a matched scaler/forest pair plus its held-out evaluation.
type TrainResult struct {
	Scaler *Scaler
	Forest *Forest
	Report models.ClassificationReport
}

// Train standardises X, splits it deterministically, fits a forest on the
// training partition and evaluates it on the held-out rows. The report is
// informational; training never branches on it.
func Train(X [][]float64, y []int, opts TrainOptions) (*TrainResult, error) {
	const op = "train classifier"
	if y == nil {
		return nil, utils.DataError(op, "label column is absent")
	}
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, utils.DataError(op, "feature matrix is empty")
	}
	if len(X) != len(y) {
		return nil, utils.DataError(op, "feature matrix and labels differ in length")
	}

	scaler, err := FitScaler(X)
	if err != nil {
		return nil, utils.NewAppError(op, "fit scaler", err)
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		return nil, utils.NewAppError(op, "scale features", err)
	}

	trainIdx, testIdx, err := TrainTestSplit(len(scaled), opts.TestFraction, opts.Seed)
	if err != nil {
		return nil, &utils.AppError{Op: op, Msg: "split rows", Kind: utils.KindData, Err: err}
	}

	forest, err := FitForest(pickRows(scaled, trainIdx), pickLabels(y, trainIdx), ForestConfig{
		Trees: opts.Trees,
		Seed:  opts.Seed,
	})
	if err != nil {
		return nil, utils.NewAppError(op, "fit forest", err)
	}

	predicted, err := forest.Predict(pickRows(scaled, testIdx))
	if err != nil {
		return nil, utils.NewAppError(op, "evaluate", err)
	}
	report := Evaluate(pickLabels(y, testIdx), predicted)
	report.TrainRows = len(trainIdx)
	report.TestRows = len(testIdx)

	return &TrainResult{Scaler: scaler, Forest: forest, Report: report}, nil
}
