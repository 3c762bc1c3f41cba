package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/androidleak/leak-triage/internal/api"
	"github.com/androidleak/leak-triage/internal/metrics"
	"github.com/androidleak/leak-triage/internal/models"
	"github.com/androidleak/leak-triage/internal/utils"
)

// Pipeline is the triage engine behaviour exposed over gRPC.
type Pipeline interface {
	ScoreCase(ctx context.Context, req models.CaseRequest) (models.ScoreResult, error)
	TrainCase(ctx context.Context, req models.CaseRequest) (models.ScoreResult, error)
	Retrain(ctx context.Context) (models.RetrainResult, error)
}

// TriageService implements the gRPC TriageEngine service.
type TriageService struct {
	api.UnimplementedTriageEngineServer

	logger    *slog.Logger
	pipeline  Pipeline
	latencies *utils.LatencyTracker
}

// NewTriageService constructs the service facade.
func NewTriageService(logger *slog.Logger, pipeline Pipeline) *TriageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriageService{
		logger:    logger,
		pipeline:  pipeline,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// ScoreCase scores a case with the deployed model.
func (s *TriageService) ScoreCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.runCase(ctx, metrics.OperationScore, req)
}

// TrainCase trains a case-local model from resolved labels.
func (s *TriageService) TrainCase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.runCase(ctx, metrics.OperationTrain, req)
}

// Retrain rebuilds the global model from the corpus.
func (s *TriageService) Retrain(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	start := time.Now()
	result, err := s.pipeline.Retrain(ctx)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveRetrain(duration, metrics.OutcomeError)
		s.logger.Error("retrain failed", slog.Any("error", err))
		return nil, toStatus(err)
	}
	metrics.ObserveRetrain(duration, metrics.OutcomeSuccess)
	s.observeLatency(metrics.OperationRetrain, duration)

	out, err := api.ToStructRetrainResult(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *TriageService) runCase(ctx context.Context, op string, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	domainReq, err := api.FromStructCaseRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.logger.Debug("case run requested", slog.String("operation", op), slog.String("case", domainReq.Case))

	var (
		result models.ScoreResult
		source = models.LabelModelPredicted
	)
	start := time.Now()
	if op == metrics.OperationTrain {
		source = models.LabelGroundTruth
		result, err = s.pipeline.TrainCase(ctx, domainReq)
	} else {
		result, err = s.pipeline.ScoreCase(ctx, domainReq)
	}
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveCase(op, duration, metrics.OutcomeError)
		s.logger.Error("case run failed", slog.String("operation", op), slog.String("case", domainReq.Case), slog.Any("error", err))
		return nil, toStatus(err)
	}
	metrics.ObserveCase(op, duration, metrics.OutcomeSuccess)
	metrics.ObserveRanked(result.Distribution)
	metrics.ObserveCorpusRows(source, result.CorpusRows)
	s.observeLatency(op, duration)

	out, err := api.ToStructScoreResult(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *TriageService) observeLatency(op string, d time.Duration) {
	s.latencies.Observe(op, d)
	if count := s.latencies.Count(op); count >= 20 && count%20 == 0 {
		s.logger.Info("operation latency",
			slog.String("operation", op),
			slog.Duration("p95", s.latencies.Percentile(op, 95)),
			slog.Int("samples", count),
		)
	}
}

// LatencyP95 returns the current p95 latency of op.
func (s *TriageService) LatencyP95(op string) time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(op, 95)
}

// toStatus maps pipeline errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	switch utils.KindOf(err) {
	case utils.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case utils.KindData, utils.KindMismatch:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
