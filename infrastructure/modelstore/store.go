package modelstore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/ensemble"
	"github.com/isectech/hospital-threat-engine/infrastructure/snapshot"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// Store defaults
const (
	DefaultMinTrainingSamples = 10
	DefaultRetrainInterval    = 50
)

// Retrain triggers, used as log and metric labels
const (
	TriggerManual    = "manual"
	TriggerAutomatic = "automatic"
)

// modelState is never mutated after it is published
type modelState struct {
	model   entity.Model
	weights entity.FeatureWeights
	trained bool
}

// Store holds the ensemble, feature weights and training samples.
//
// Classification reads the published modelState through an atomic pointer
// and never blocks. Retrain and import serialize on writeMu. Samples have
// their own lock so appends interleave with classification.
type Store struct {
	state   atomic.Pointer[modelState]
	writeMu sync.Mutex

	samplesMu sync.RWMutex
	samples   []entity.TrainingSample
	appended  int

	builder            ensemble.TreeBuilder
	thresholds         entity.ThreatThresholds
	minTrainingSamples int
	retrainInterval    int
	retrains           atomic.Int64

	logger *logging.Logger
	now    func() time.Time
}

type options struct {
	seeds              []entity.TrainingSample
	weights            entity.FeatureWeights
	model              entity.Model
	builder            ensemble.TreeBuilder
	thresholds         entity.ThreatThresholds
	minTrainingSamples int
	retrainInterval    int
	logger             *logging.Logger
	now                func() time.Time
}

// Option configures a Store
type Option func(*options)

// WithSeedSamples replaces the built-in seed samples. An empty slice starts
// the store without samples.
func WithSeedSamples(samples []entity.TrainingSample) Option {
	return func(o *options) {
		o.seeds = append([]entity.TrainingSample{}, samples...)
	}
}

// WithFeatureWeights replaces the default feature weights
func WithFeatureWeights(weights entity.FeatureWeights) Option {
	return func(o *options) {
		o.weights = weights.Clone()
	}
}

// WithModelParams sets the ensemble size and tree parameters
func WithModelParams(treeCount, maxDepth, minLeafSamples int) Option {
	return func(o *options) {
		o.model = entity.NewModel(treeCount, maxDepth, minLeafSamples)
	}
}

// WithTreeBuilder replaces the rule builder used by Retrain
func WithTreeBuilder(builder ensemble.TreeBuilder) Option {
	return func(o *options) {
		o.builder = builder
	}
}

// WithThreatThresholds replaces the display thresholds reported by GetModelMetrics
func WithThreatThresholds(thresholds entity.ThreatThresholds) Option {
	return func(o *options) {
		o.thresholds = thresholds
	}
}

// WithMinTrainingSamples sets the sample count Retrain requires
func WithMinTrainingSamples(n int) Option {
	return func(o *options) {
		o.minTrainingSamples = n
	}
}

// WithRetrainInterval sets how many appends trigger an automatic retrain.
// Zero disables automatic retraining.
func WithRetrainInterval(n int) Option {
	return func(o *options) {
		o.retrainInterval = n
	}
}

// WithLogger sets the store logger
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source for snapshot timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a model store. Without options it holds the four built-in
// seed samples, the default weights and an untrained 100-tree model.
func New(opts ...Option) (*Store, error) {
	o := options{
		model:              entity.NewModel(entity.DefaultTreeCount, entity.DefaultMaxDepth, entity.DefaultMinLeafSamples),
		weights:            entity.DefaultFeatureWeights(),
		builder:            ensemble.FixedPolicyBuilder{},
		thresholds:         entity.DefaultThreatThresholds(),
		minTrainingSamples: DefaultMinTrainingSamples,
		retrainInterval:    DefaultRetrainInterval,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.seeds == nil {
		o.seeds = DefaultSeedSamples()
	}
	if o.logger == nil {
		o.logger = logging.NewNopLogger()
	}
	if o.builder == nil {
		o.builder = ensemble.FixedPolicyBuilder{}
	}

	if err := o.weights.Validate(); err != nil {
		return nil, common.ErrValidationFailed(err.Error())
	}
	if err := snapshot.ValidateModelParams(o.model); err != nil {
		return nil, common.ErrValidationFailed(err.Error())
	}
	if o.minTrainingSamples < 1 || o.retrainInterval < 0 {
		return nil, common.ErrValidationFailed(fmt.Sprintf("invalid training limits: min %d, interval %d",
			o.minTrainingSamples, o.retrainInterval))
	}
	for i, sample := range o.seeds {
		if err := sample.Validate(); err != nil {
			return nil, common.ErrValidationFailed(fmt.Sprintf("seed sample %d: %v", i, err))
		}
	}

	s := &Store{
		samples:            o.seeds,
		builder:            o.builder,
		thresholds:         o.thresholds,
		minTrainingSamples: o.minTrainingSamples,
		retrainInterval:    o.retrainInterval,
		logger:             o.logger.WithComponent("model_store"),
		now:                o.now,
	}
	s.state.Store(&modelState{model: o.model, weights: o.weights})

	return s, nil
}

// IsTrained reports whether a retrain or import has produced a usable ensemble
func (s *Store) IsTrained() bool {
	return s.state.Load().trained
}

// ActiveModel returns the published model and trained flag as one
// consistent view. The returned model must not be modified.
func (s *Store) ActiveModel() (entity.Model, bool) {
	st := s.state.Load()
	return st.model, st.trained
}

// Retrains returns how many retrains have succeeded since creation
func (s *Store) Retrains() int64 {
	return s.retrains.Load()
}

// Retrain rebuilds the ensemble from all accumulated samples. It fails with
// INSUFFICIENT_DATA and leaves the model untouched when fewer than the
// minimum number of samples are held.
func (s *Store) Retrain() error {
	return s.retrain(TriggerManual)
}

func (s *Store) retrain(trigger string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.samplesMu.RLock()
	samples := make([]entity.TrainingSample, len(s.samples))
	copy(samples, s.samples)
	s.samplesMu.RUnlock()

	if len(samples) < s.minTrainingSamples {
		s.logger.LogModelEvent("retrain", false,
			logging.String("trigger", trigger),
			logging.Int("samples", len(samples)),
			logging.Int("required", s.minTrainingSamples),
		)
		return common.ErrInsufficientData(len(samples), s.minTrainingSamples)
	}

	timer := time.Now()
	current := s.state.Load()
	model := ensemble.Train(s.builder, current.model, samples)

	s.state.Store(&modelState{
		model:   model,
		weights: current.weights,
		trained: true,
	})
	s.retrains.Add(1)

	s.logger.LogModelEvent("retrain", true,
		logging.String("trigger", trigger),
		logging.Int("samples", len(samples)),
		logging.Int("trees", len(model.Trees)),
		logging.Duration("duration", time.Since(timer)),
	)
	return nil
}

// AddTrainingSample validates and appends sample. Every Nth append since
// the store was created (seed samples excluded) retrains automatically;
// retrained reports whether that happened.
func (s *Store) AddTrainingSample(sample entity.TrainingSample) (retrained bool, err error) {
	if err := sample.Validate(); err != nil {
		return false, common.ErrValidationFailed(err.Error())
	}

	s.samplesMu.Lock()
	s.samples = append(s.samples, sample)
	s.appended++
	due := s.retrainInterval > 0 && s.appended%s.retrainInterval == 0
	s.samplesMu.Unlock()

	if !due {
		return false, nil
	}

	// The sample is kept even if the automatic retrain is refused.
	if err := s.retrain(TriggerAutomatic); err != nil {
		s.logger.Warn("Automatic retrain skipped", logging.Error(err))
		return false, nil
	}
	return true, nil
}

// ExportSnapshot returns a deep copy of the full store state
func (s *Store) ExportSnapshot() entity.ModelSnapshot {
	s.samplesMu.RLock()
	st := s.state.Load()
	samples := make([]entity.TrainingSample, len(s.samples))
	copy(samples, s.samples)
	s.samplesMu.RUnlock()

	return entity.ModelSnapshot{
		SchemaVersion:  entity.CurrentSnapshotVersion,
		Model:          st.model.Clone(),
		TrainingData:   samples,
		FeatureWeights: st.weights.Clone(),
		IsModelTrained: st.trained,
		ExportedAt:     s.now().UTC(),
	}
}

// ImportSnapshot replaces model, samples, weights and the trained flag in
// one step. An invalid snapshot is rejected with CORRUPT_SNAPSHOT and the
// current state is kept.
func (s *Store) ImportSnapshot(snap entity.ModelSnapshot) error {
	if err := snapshot.Validate(snap); err != nil {
		s.logger.LogModelEvent("import", false, logging.Error(err))
		return common.ErrCorruptSnapshot(err)
	}

	next := &modelState{
		model:   snap.Model.Clone(),
		weights: snap.FeatureWeights.Clone(),
		trained: snap.IsModelTrained,
	}
	samples := make([]entity.TrainingSample, len(snap.TrainingData))
	copy(samples, snap.TrainingData)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.samplesMu.Lock()
	s.samples = samples
	s.state.Store(next)
	s.samplesMu.Unlock()

	s.logger.LogModelEvent("import", true,
		logging.Int("samples", len(samples)),
		logging.Int("trees", len(next.model.Trees)),
		logging.Bool("trained", next.trained),
	)
	return nil
}

// GetModelMetrics returns a read-only summary of the store
func (s *Store) GetModelMetrics() entity.ModelMetrics {
	s.samplesMu.RLock()
	st := s.state.Load()
	size := len(s.samples)
	s.samplesMu.RUnlock()

	thresholds := make(entity.ThreatThresholds, len(s.thresholds))
	for label, v := range s.thresholds {
		thresholds[label] = v
	}

	return entity.ModelMetrics{
		IsModelTrained:   st.trained,
		TrainingDataSize: size,
		NumTrees:         st.model.TreeCount,
		FeatureWeights:   st.weights.Clone(),
		ThreatThresholds: thresholds,
	}
}

// Fallback classifies without the ensemble. See the package-level Fallback.
func (s *Store) Fallback(f entity.FeatureVector) entity.ClassificationResult {
	return Fallback(f)
}
