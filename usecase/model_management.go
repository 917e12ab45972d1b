package usecase

import (
	"context"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/domain/repository"
	"github.com/isectech/hospital-threat-engine/domain/service"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// Snapshot operations recorded in metrics
const (
	SnapshotExport  = "export"
	SnapshotImport  = "import"
	SnapshotPersist = "persist"
	SnapshotRestore = "restore"
)

// Retrain triggers recorded in metrics
const (
	TriggerManual    = "manual"
	TriggerAutomatic = "automatic"
)

// ModelManagementUseCase exposes the model store lifecycle and keeps the
// model gauges current
type ModelManagementUseCase struct {
	store     service.ModelStore
	snapshots repository.SnapshotRepository
	logger    *logging.Logger
	metrics   *metrics.Collector
}

// NewModelManagementUseCase creates a new ModelManagementUseCase. snapshots
// and collector may be nil.
func NewModelManagementUseCase(
	store service.ModelStore,
	snapshots repository.SnapshotRepository,
	logger *logging.Logger,
	collector *metrics.Collector,
) *ModelManagementUseCase {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	uc := &ModelManagementUseCase{
		store:     store,
		snapshots: snapshots,
		logger:    logger.WithComponent("model_management"),
		metrics:   collector,
	}
	uc.refreshGauges()
	return uc
}

// AddTrainingSampleResponse reports whether the append retrained the model
type AddTrainingSampleResponse struct {
	Retrained bool                `json:"retrained"`
	Metrics   entity.ModelMetrics `json:"metrics"`
}

// Metrics returns the current model metrics
func (uc *ModelManagementUseCase) Metrics() entity.ModelMetrics {
	return uc.store.GetModelMetrics()
}

// Retrain rebuilds the ensemble from the stored samples
func (uc *ModelManagementUseCase) Retrain(ctx context.Context) (entity.ModelMetrics, error) {
	err := uc.store.Retrain()
	uc.recordRetrain(TriggerManual, err == nil)
	if err != nil {
		return uc.store.GetModelMetrics(), err
	}
	return uc.refreshGauges(), nil
}

// AddTrainingSample validates and appends sample, which may trigger an
// automatic retrain
func (uc *ModelManagementUseCase) AddTrainingSample(ctx context.Context, sample entity.TrainingSample) (*AddTrainingSampleResponse, error) {
	retrained, err := uc.store.AddTrainingSample(sample)
	if err != nil {
		return nil, err
	}
	if retrained {
		uc.recordRetrain(TriggerAutomatic, true)
	}

	return &AddTrainingSampleResponse{
		Retrained: retrained,
		Metrics:   uc.refreshGauges(),
	}, nil
}

// ExportSnapshot returns a snapshot of the current model state
func (uc *ModelManagementUseCase) ExportSnapshot(ctx context.Context) entity.ModelSnapshot {
	snap := uc.store.ExportSnapshot()
	uc.recordSnapshot(SnapshotExport, true)
	return snap
}

// ImportSnapshot replaces the model state with snap. A rejected snapshot
// leaves the state untouched.
func (uc *ModelManagementUseCase) ImportSnapshot(ctx context.Context, snap entity.ModelSnapshot) (entity.ModelMetrics, error) {
	err := uc.store.ImportSnapshot(snap)
	uc.recordSnapshot(SnapshotImport, err == nil)
	if err != nil {
		return uc.store.GetModelMetrics(), err
	}
	return uc.refreshGauges(), nil
}

// PersistSnapshot saves the current snapshot to the snapshot repository
func (uc *ModelManagementUseCase) PersistSnapshot(ctx context.Context) error {
	if uc.snapshots == nil {
		return common.NewAppError(common.ErrCodeServiceUnavailable, "snapshot repository is not configured")
	}

	snap := uc.store.ExportSnapshot()
	err := uc.snapshots.Save(ctx, snap)
	uc.recordSnapshot(SnapshotPersist, err == nil)
	if err != nil {
		return err
	}

	uc.logger.LogModelEvent(SnapshotPersist, true,
		logging.Bool("trained", snap.IsModelTrained),
		logging.Int("training_samples", len(snap.TrainingData)),
	)
	return nil
}

// RestoreSnapshot loads the saved snapshot and imports it
func (uc *ModelManagementUseCase) RestoreSnapshot(ctx context.Context) (entity.ModelMetrics, error) {
	if uc.snapshots == nil {
		return uc.store.GetModelMetrics(), common.NewAppError(common.ErrCodeServiceUnavailable, "snapshot repository is not configured")
	}

	snap, err := uc.snapshots.Load(ctx)
	if err != nil {
		uc.recordSnapshot(SnapshotRestore, false)
		return uc.store.GetModelMetrics(), err
	}

	if err := uc.store.ImportSnapshot(snap); err != nil {
		uc.recordSnapshot(SnapshotRestore, false)
		return uc.store.GetModelMetrics(), err
	}
	uc.recordSnapshot(SnapshotRestore, true)

	uc.logger.LogModelEvent(SnapshotRestore, true, logging.Bool("trained", snap.IsModelTrained))
	return uc.refreshGauges(), nil
}

// Ready reports whether the snapshot repository, if any, is reachable
func (uc *ModelManagementUseCase) Ready(ctx context.Context) error {
	if uc.snapshots == nil {
		return nil
	}
	return uc.snapshots.Ping(ctx)
}

func (uc *ModelManagementUseCase) refreshGauges() entity.ModelMetrics {
	m := uc.store.GetModelMetrics()
	if uc.metrics != nil {
		ensembleSize := 0
		if m.IsModelTrained {
			ensembleSize = m.NumTrees
		}
		uc.metrics.SetModelState(m.IsModelTrained, m.TrainingDataSize, ensembleSize)
	}
	return m
}

func (uc *ModelManagementUseCase) recordRetrain(trigger string, success bool) {
	if uc.metrics != nil {
		uc.metrics.RecordRetrain(trigger, success)
	}
}

func (uc *ModelManagementUseCase) recordSnapshot(operation string, success bool) {
	if uc.metrics != nil {
		uc.metrics.RecordSnapshotOperation(operation, success)
	}
}
