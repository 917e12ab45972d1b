package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/database"
	"github.com/isectech/hospital-threat-engine/infrastructure/modelstore"
	classifier "github.com/isectech/hospital-threat-engine/infrastructure/service"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []*entity.ClassificationResult
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, results ...*entity.ClassificationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, results...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type memorySnapshots struct {
	saved *entity.ModelSnapshot
	err   error
}

func (m *memorySnapshots) Save(ctx context.Context, s entity.ModelSnapshot) error {
	if m.err != nil {
		return m.err
	}
	m.saved = &s
	return nil
}

func (m *memorySnapshots) Load(ctx context.Context) (entity.ModelSnapshot, error) {
	if m.err != nil {
		return entity.ModelSnapshot{}, m.err
	}
	if m.saved == nil {
		return entity.ModelSnapshot{}, common.ErrNotFound("model snapshot")
	}
	return *m.saved, nil
}

func (m *memorySnapshots) Ping(ctx context.Context) error { return m.err }
func (m *memorySnapshots) Close() error                   { return nil }

func testLogger(t *testing.T) *logging.Logger {
	return logging.FromZap(zaptest.NewLogger(t), "test")
}

func newStore(t *testing.T) *modelstore.Store {
	t.Helper()
	store, err := modelstore.New(modelstore.WithLogger(testLogger(t)), modelstore.WithRetrainInterval(3))
	require.NoError(t, err)
	return store
}

func benignSample() entity.TrainingSample {
	return entity.TrainingSample{
		Features:   entity.FeatureVector{SourceReputation: 0.5, DestinationReputation: 0.5, UniquePorts: 1},
		Label:      entity.ThreatLabelBenign,
		Confidence: 0.9,
	}
}

func flood(i int) entity.RawEvent {
	return entity.RawEvent{
		SourceIP:         fmt.Sprintf("203.0.113.%d", i),
		DestinationIP:    "192.168.1.20",
		PacketsPerSecond: 5000,
	}
}

func TestClassifyEvent_PersistsAndPublishes(t *testing.T) {
	history, err := database.NewMemoryClassificationRepository(10)
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	uc := NewClassifyEventUseCase(
		classifier.NewThreatClassifier(newStore(t), nil, testLogger(t), nil),
		testLogger(t), nil,
		WithHistory(history), WithPublisher(publisher),
	)
	ctx := context.Background()

	event := flood(1)
	resp, err := uc.Execute(ctx, &ClassifyEventRequest{
		Event:          &event,
		RequestContext: types.NewRequestContext("threat-classifier", "test"),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, "203.0.113.1", resp.Result.SourceIP)

	recent, err := uc.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, resp.Result.ID, recent[0].ID)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, resp.Result.ID, publisher.published[0].ID)
}

func TestClassifyEvent_DeliveryFailuresAreWarnings(t *testing.T) {
	publisher := &recordingPublisher{err: common.ErrExternalService("kafka", fmt.Errorf("broker down"))}
	collector := metrics.NewCollector("test")
	uc := NewClassifyEventUseCase(
		classifier.NewThreatClassifier(newStore(t), nil, nil, nil),
		testLogger(t), collector,
		WithPublisher(publisher),
	)

	event := flood(2)
	resp, err := uc.Execute(context.Background(), &ClassifyEventRequest{Event: &event})

	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, StepPublish, resp.Warnings[0].Step)
	assert.Equal(t, string(common.ErrCodeExternalService), resp.Warnings[0].Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ErrorsTotal.WithLabelValues("publish_error", "classify_event")))
}

func TestClassifyEvent_RequiresEvent(t *testing.T) {
	uc := NewClassifyEventUseCase(classifier.NewThreatClassifier(newStore(t), nil, nil, nil), nil, nil)

	_, err := uc.Execute(context.Background(), &ClassifyEventRequest{})

	assert.True(t, common.HasErrorCode(err, common.ErrCodeInvalidInput))
}

func TestClassifyBatch_PreservesOrder(t *testing.T) {
	publisher := &recordingPublisher{}
	uc := NewClassifyEventUseCase(
		classifier.NewThreatClassifier(newStore(t), nil, nil, nil),
		testLogger(t), nil,
		WithPublisher(publisher), WithBatchLimits(50, 4),
	)

	events := make([]entity.RawEvent, 20)
	for i := range events {
		events[i] = flood(i)
	}

	results, warnings, err := uc.ExecuteBatch(context.Background(), events, nil)

	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, events[i].SourceIP, r.SourceIP)
	}
	assert.Len(t, publisher.published, 20)
}

func TestClassifyBatch_Limits(t *testing.T) {
	uc := NewClassifyEventUseCase(
		classifier.NewThreatClassifier(newStore(t), nil, nil, nil),
		nil, nil, WithBatchLimits(2, 1),
	)
	ctx := context.Background()

	_, _, err := uc.ExecuteBatch(ctx, nil, nil)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))

	_, _, err = uc.ExecuteBatch(ctx, []entity.RawEvent{flood(1), flood(2), flood(3)}, nil)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeOutOfRange))
}

func TestModelManagement_RetrainLifecycle(t *testing.T) {
	collector := metrics.NewCollector("test")
	uc := NewModelManagementUseCase(newStore(t), nil, testLogger(t), collector)

	_, err := uc.Retrain(context.Background())
	assert.True(t, common.HasErrorCode(err, common.ErrCodeInsufficientData))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Retrains.WithLabelValues(TriggerManual, "failure")))

	// Retrain interval is 3, so the third append retrains once 10 samples exist.
	var retrained bool
	for i := 0; i < 6; i++ {
		resp, err := uc.AddTrainingSample(context.Background(), benignSample())
		require.NoError(t, err)
		retrained = retrained || resp.Retrained
	}

	assert.True(t, retrained)
	assert.True(t, uc.Metrics().IsModelTrained)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ModelTrained))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.TrainingSamples))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Retrains.WithLabelValues(TriggerAutomatic, "success")))
}

func TestModelManagement_InvalidSample(t *testing.T) {
	uc := NewModelManagementUseCase(newStore(t), nil, nil, nil)

	_, err := uc.AddTrainingSample(context.Background(), entity.TrainingSample{Label: "worm"})

	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))
}

func TestModelManagement_PersistAndRestore(t *testing.T) {
	snapshots := &memorySnapshots{}
	source := NewModelManagementUseCase(newStore(t), snapshots, testLogger(t), nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := source.AddTrainingSample(ctx, benignSample())
		require.NoError(t, err)
	}
	require.NoError(t, source.PersistSnapshot(ctx))

	target := NewModelManagementUseCase(newStore(t), snapshots, testLogger(t), nil)
	m, err := target.RestoreSnapshot(ctx)

	require.NoError(t, err)
	assert.True(t, m.IsModelTrained)
	assert.Equal(t, source.Metrics(), m)
}

func TestModelManagement_RestoreFailures(t *testing.T) {
	ctx := context.Background()

	unconfigured := NewModelManagementUseCase(newStore(t), nil, nil, nil)
	_, err := unconfigured.RestoreSnapshot(ctx)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeServiceUnavailable))
	assert.NoError(t, unconfigured.Ready(ctx))

	empty := NewModelManagementUseCase(newStore(t), &memorySnapshots{}, nil, nil)
	_, err = empty.RestoreSnapshot(ctx)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeNotFound))

	corrupt := &memorySnapshots{saved: &entity.ModelSnapshot{SchemaVersion: 9}}
	uc := NewModelManagementUseCase(newStore(t), corrupt, nil, nil)
	before := uc.Metrics()
	_, err = uc.RestoreSnapshot(ctx)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeCorruptSnapshot))
	assert.Equal(t, before, uc.Metrics())
}

func TestModelManagement_ImportExport(t *testing.T) {
	collector := metrics.NewCollector("test")
	uc := NewModelManagementUseCase(newStore(t), nil, nil, collector)
	ctx := context.Background()

	snap := uc.ExportSnapshot(ctx)
	_, err := uc.ImportSnapshot(ctx, snap)

	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SnapshotOps.WithLabelValues(SnapshotExport, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SnapshotOps.WithLabelValues(SnapshotImport, "success")))
}
