package service

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// ThreatClassifier turns network events into threat assessments.
// Calls are synchronous, CPU-bound and never fail.
type ThreatClassifier interface {
	Classify(event entity.RawEvent) *entity.ClassificationResult
	ClassifyFeatures(features entity.FeatureVector) *entity.ClassificationResult
}

// ModelStore owns the ensemble, its feature weights and the training samples
type ModelStore interface {
	// Model lifecycle
	IsTrained() bool
	Retrain() error
	AddTrainingSample(sample entity.TrainingSample) (retrained bool, err error)

	// Snapshot
	ExportSnapshot() entity.ModelSnapshot
	ImportSnapshot(snapshot entity.ModelSnapshot) error

	// Reporting
	GetModelMetrics() entity.ModelMetrics
}
