package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/androidleak/leak-triage/internal/metrics"
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

type pipelineStub struct {
	lastCase string
	trained  bool
	err      error
}

func (p *pipelineStub) ScoreCase(ctx context.Context, req models.CaseRequest) (models.ScoreResult, error) {
	p.lastCase = req.Case
	if p.err != nil {
		return models.ScoreResult{}, p.err
	}
	return models.ScoreResult{
		RunID:        "run-1",
		Case:         req.Case,
		ModelVersion: "v1",
		Rows:         3,
		FlaggedRows:  1,
		Ranked:       []models.RankedIP{{IP: "6.6.6.6", Probability: 0.95, EventCount: 1, Tier: models.RiskHigh}},
		Distribution: models.TierDistribution{models.RiskHigh: 1, models.RiskMedium: 0, models.RiskLow: 0},
		CorpusRows:   3,
		StartedAt:    time.Now(),
	}, nil
}

func (p *pipelineStub) TrainCase(ctx context.Context, req models.CaseRequest) (models.ScoreResult, error) {
	p.trained = true
	res, err := p.ScoreCase(ctx, req)
	res.Report = &models.ClassificationReport{Accuracy: 1}
	return res, err
}

func (p *pipelineStub) Retrain(ctx context.Context) (models.RetrainResult, error) {
	if p.err != nil {
		return models.RetrainResult{}, p.err
	}
	return models.RetrainResult{RunID: "run-2", ModelVersion: "v2", Rows: 40, Schema: models.DefaultFeatureSchema()}, nil
}

func caseRequest(t *testing.T, name string) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]interface{}{"case": name})
	require.NoError(t, err)
	return req
}

func TestScoreCase(t *testing.T) {
	stub := &pipelineStub{}
	svc := NewTriageService(nil, stub)

	out, err := svc.ScoreCase(context.Background(), caseRequest(t, " case-01 "))
	require.NoError(t, err)
	assert.Equal(t, "case-01", stub.lastCase)
	assert.Equal(t, "v1", out.GetFields()["model_version"].GetStringValue())

	ranked := out.GetFields()["ranked"].GetListValue().GetValues()
	require.Len(t, ranked, 1)
	assert.Equal(t, "High", ranked[0].GetStructValue().GetFields()["risk_level"].GetStringValue())
	assert.Positive(t, svc.LatencyP95(metrics.OperationScore))
}

func TestTrainCaseIncludesReport(t *testing.T) {
	stub := &pipelineStub{}
	svc := NewTriageService(nil, stub)

	out, err := svc.TrainCase(context.Background(), caseRequest(t, "case-01"))
	require.NoError(t, err)
	assert.True(t, stub.trained)
	assert.Equal(t, 1.0, out.GetFields()["report"].GetStructValue().GetFields()["accuracy"].GetNumberValue())
}

func TestCaseRequestValidation(t *testing.T) {
	svc := NewTriageService(nil, &pipelineStub{})

	_, err := svc.ScoreCase(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	empty, _ := structpb.NewStruct(map[string]interface{}{"case": ""})
	_, err = svc.TrainCase(context.Background(), empty)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = NewTriageService(nil, nil).ScoreCase(context.Background(), caseRequest(t, "x"))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{utils.NotFoundError("load", "feature schema", "/m/feature_list.json", nil), codes.NotFound},
		{utils.DataError("retrain", "no label column"), codes.FailedPrecondition},
		{utils.MismatchError("check model", "schema changed"), codes.FailedPrecondition},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{assert.AnError, codes.Internal},
	}
	for _, tc := range cases {
		svc := NewTriageService(nil, &pipelineStub{err: tc.err})
		_, err := svc.ScoreCase(context.Background(), caseRequest(t, "case-01"))
		assert.Equal(t, tc.code, status.Code(err), tc.err.Error())

		_, err = svc.Retrain(context.Background(), &emptypb.Empty{})
		assert.Equal(t, tc.code, status.Code(err), tc.err.Error())
	}
}

func TestRetrain(t *testing.T) {
	svc := NewTriageService(nil, &pipelineStub{})
	out, err := svc.Retrain(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "v2", out.GetFields()["model_version"].GetStringValue())
	assert.Len(t, out.GetFields()["features"].GetListValue().GetValues(), len(models.DefaultFeatureNames))
}
