package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/domain/repository"
	"github.com/isectech/hospital-threat-engine/domain/service"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

// Defaults for batch classification
const (
	DefaultMaxBatchSize = 1000
	DefaultBatchWorkers = 8
)

// ClassifyEventUseCase classifies events, records them in the history and
// publishes them downstream
type ClassifyEventUseCase struct {
	classifier   service.ThreatClassifier
	history      repository.ClassificationRepository
	publisher    repository.ResultPublisher
	logger       *logging.Logger
	metrics      *metrics.Collector
	maxBatchSize int
	batchWorkers int
}

// ClassifyOption configures a ClassifyEventUseCase
type ClassifyOption func(*ClassifyEventUseCase)

// WithHistory records every result in history
func WithHistory(history repository.ClassificationRepository) ClassifyOption {
	return func(uc *ClassifyEventUseCase) { uc.history = history }
}

// WithPublisher publishes every result through publisher
func WithPublisher(publisher repository.ResultPublisher) ClassifyOption {
	return func(uc *ClassifyEventUseCase) { uc.publisher = publisher }
}

// WithBatchLimits bounds batch size and the number of concurrent classifications
func WithBatchLimits(maxBatchSize, workers int) ClassifyOption {
	return func(uc *ClassifyEventUseCase) {
		if maxBatchSize > 0 {
			uc.maxBatchSize = maxBatchSize
		}
		if workers > 0 {
			uc.batchWorkers = workers
		}
	}
}

// NewClassifyEventUseCase creates a new ClassifyEventUseCase. collector may be nil.
func NewClassifyEventUseCase(
	classifier service.ThreatClassifier,
	logger *logging.Logger,
	collector *metrics.Collector,
	opts ...ClassifyOption,
) *ClassifyEventUseCase {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	uc := &ClassifyEventUseCase{
		classifier:   classifier,
		logger:       logger.WithComponent("classify_event"),
		metrics:      collector,
		maxBatchSize: DefaultMaxBatchSize,
		batchWorkers: DefaultBatchWorkers,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ClassifyEventRequest represents a request to classify one event
type ClassifyEventRequest struct {
	Event          *entity.RawEvent      `json:"event"`
	RequestContext *types.RequestContext `json:"request_context,omitempty"`
}

// ClassifyEventResponse carries the result and any downstream warnings
type ClassifyEventResponse struct {
	Result   *entity.ClassificationResult `json:"result"`
	Warnings []ProcessingWarning          `json:"warnings,omitempty"`
	Duration time.Duration                `json:"duration"`
}

// ProcessingWarning reports a non-fatal failure after classification
type ProcessingWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Step    string `json:"step"`
}

// Processing steps reported in warnings
const (
	StepPersist = "persist"
	StepPublish = "publish"
)

// Execute classifies one event. Classification itself never fails; history
// and publisher failures are returned as warnings.
func (uc *ClassifyEventUseCase) Execute(ctx context.Context, req *ClassifyEventRequest) (*ClassifyEventResponse, error) {
	start := time.Now()

	if req == nil || req.Event == nil {
		return nil, common.ErrInvalidInput("event")
	}
	logger := uc.logger.WithRequestContext(req.RequestContext)

	result := uc.classifier.Classify(*req.Event)

	warnings := uc.deliver(ctx, logger, result)

	return &ClassifyEventResponse{
		Result:   result,
		Warnings: warnings,
		Duration: time.Since(start),
	}, nil
}

// ExecuteBatch classifies events concurrently and returns results in input order
func (uc *ClassifyEventUseCase) ExecuteBatch(
	ctx context.Context,
	events []entity.RawEvent,
	reqCtx *types.RequestContext,
) ([]*entity.ClassificationResult, []ProcessingWarning, error) {
	if len(events) == 0 {
		return nil, nil, common.ErrValidationFailed("batch must contain at least one event")
	}
	if len(events) > uc.maxBatchSize {
		return nil, nil, common.NewAppErrorWithDetails(common.ErrCodeOutOfRange, "batch too large",
			fmt.Sprintf("at most %d events per batch", uc.maxBatchSize))
	}
	logger := uc.logger.WithRequestContext(reqCtx)

	results := make([]*entity.ClassificationResult, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.batchWorkers)
	for i := range events {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = uc.classifier.Classify(events[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, common.WrapError(err, common.ErrCodeTimeout, "batch classification interrupted")
	}

	warnings := uc.deliver(ctx, logger, results...)

	logger.Info("Batch classified",
		logging.Int("events", len(events)),
		logging.Int("warnings", len(warnings)),
	)
	return results, warnings, nil
}

// Recent returns the latest results from the history, newest first
func (uc *ClassifyEventUseCase) Recent(ctx context.Context, limit int) ([]*entity.ClassificationResult, error) {
	if uc.history == nil {
		return []*entity.ClassificationResult{}, nil
	}
	return uc.history.Recent(ctx, limit)
}

// deliver saves and publishes results. Failures become warnings.
func (uc *ClassifyEventUseCase) deliver(
	ctx context.Context,
	logger *logging.Logger,
	results ...*entity.ClassificationResult,
) []ProcessingWarning {
	var warnings []ProcessingWarning

	if uc.history != nil {
		for _, result := range results {
			if err := uc.history.Save(ctx, result); err != nil {
				warnings = append(warnings, uc.warn(logger, StepPersist, err,
					logging.String("classification_id", result.ID)))
			}
		}
	}

	if uc.publisher != nil {
		if err := uc.publisher.Publish(ctx, results...); err != nil {
			warnings = append(warnings, uc.warn(logger, StepPublish, err,
				logging.Int("results", len(results))))
		}
	}

	return warnings
}

func (uc *ClassifyEventUseCase) warn(logger *logging.Logger, step string, err error, fields ...logging.Field) ProcessingWarning {
	logger.Warn("Classification delivery failed",
		append([]logging.Field{logging.String("step", step), logging.Error(err)}, fields...)...)
	if uc.metrics != nil {
		uc.metrics.RecordError(step+"_error", "classify_event")
	}

	code := string(common.ErrCodeInternal)
	if appErr := common.GetAppError(err); appErr != nil {
		code = string(appErr.Code)
	}
	return ProcessingWarning{Code: code, Message: err.Error(), Step: step}
}
