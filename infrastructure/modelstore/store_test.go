package modelstore

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/ensemble"
	"github.com/isectech/hospital-threat-engine/infrastructure/snapshot"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{
		WithLogger(logging.FromZap(zaptest.NewLogger(t), "test")),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	s, err := New(opts...)
	require.NoError(t, err)
	return s
}

func sample(label entity.ThreatLabel) entity.TrainingSample {
	return entity.TrainingSample{
		Features:   entity.FeatureVector{PacketsPerSecond: 10, SourceReputation: 0.5, DestinationReputation: 0.5, UniquePorts: 1},
		Label:      label,
		Confidence: 0.8,
	}
}

func addSamples(t *testing.T, s *Store, n int) int {
	t.Helper()
	retrains := 0
	for i := 0; i < n; i++ {
		retrained, err := s.AddTrainingSample(sample(entity.ThreatLabelBenign))
		require.NoError(t, err)
		if retrained {
			retrains++
		}
	}
	return retrains
}

func TestNew_Defaults(t *testing.T) {
	s := newTestStore(t)

	m := s.GetModelMetrics()
	assert.False(t, m.IsModelTrained)
	assert.Equal(t, 4, m.TrainingDataSize)
	assert.Equal(t, entity.DefaultTreeCount, m.NumTrees)
	assert.Equal(t, entity.DefaultFeatureWeights(), m.FeatureWeights)
	assert.Equal(t, entity.DefaultThreatThresholds(), m.ThreatThresholds)
	assert.False(t, s.IsTrained())
}

func TestNew_RejectsInvalidState(t *testing.T) {
	_, err := New(WithFeatureWeights(entity.FeatureWeights{"packetSize": 0.5}))
	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))

	_, err = New(WithModelParams(0, 10, 2))
	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))

	_, err = New(WithSeedSamples([]entity.TrainingSample{{Label: "worm", Confidence: 0.5}}))
	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))
}

func TestRetrain_InsufficientData(t *testing.T) {
	s := newTestStore(t)
	before := s.ExportSnapshot()

	err := s.Retrain()

	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeInsufficientData))
	assert.False(t, s.IsTrained())
	assert.Equal(t, before, s.ExportSnapshot())
	assert.Zero(t, s.Retrains())
}

func TestRetrain_Success(t *testing.T) {
	s := newTestStore(t)
	addSamples(t, s, 6)

	require.NoError(t, s.Retrain())

	assert.True(t, s.IsTrained())
	model, trained := s.ActiveModel()
	assert.True(t, trained)
	assert.Len(t, model.Trees, entity.DefaultTreeCount)
	assert.Equal(t, int64(1), s.Retrains())
}

func TestRetrain_IsDeterministic(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)
	addSamples(t, a, 6)
	addSamples(t, b, 6)

	require.NoError(t, a.Retrain())
	require.NoError(t, b.Retrain())

	assert.Equal(t, a.ExportSnapshot(), b.ExportSnapshot())
}

func TestAddTrainingSample_AutomaticRetrain(t *testing.T) {
	t.Run("49 appends do not retrain", func(t *testing.T) {
		s := newTestStore(t)
		assert.Zero(t, addSamples(t, s, 49))
		assert.Zero(t, s.Retrains())
		assert.False(t, s.IsTrained())
	})

	t.Run("50 appends retrain exactly once", func(t *testing.T) {
		s := newTestStore(t)
		assert.Equal(t, 1, addSamples(t, s, 50))
		assert.Equal(t, int64(1), s.Retrains())
		assert.True(t, s.IsTrained())
		assert.Equal(t, 54, s.GetModelMetrics().TrainingDataSize)
	})

	t.Run("count is since creation, not since last retrain", func(t *testing.T) {
		s := newTestStore(t)
		addSamples(t, s, 6)
		require.NoError(t, s.Retrain())

		assert.Equal(t, 1, addSamples(t, s, 44))
		assert.Equal(t, int64(2), s.Retrains())
	})

	t.Run("interval can be disabled", func(t *testing.T) {
		s := newTestStore(t, WithRetrainInterval(0))
		assert.Zero(t, addSamples(t, s, 100))
		assert.False(t, s.IsTrained())
	})
}

func TestAddTrainingSample_AutomaticRetrainRefused(t *testing.T) {
	s := newTestStore(t, WithSeedSamples(nil), WithMinTrainingSamples(20), WithRetrainInterval(5))

	retrains := addSamples(t, s, 5)

	assert.Zero(t, retrains)
	assert.False(t, s.IsTrained())
	assert.Equal(t, 5, s.GetModelMetrics().TrainingDataSize, "samples are kept")
}

func TestAddTrainingSample_Validation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AddTrainingSample(entity.TrainingSample{Label: entity.ThreatLabelDDoS, Confidence: 1.5})
	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))

	_, err = s.AddTrainingSample(entity.TrainingSample{Label: "worm", Confidence: 0.5})
	assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))

	assert.Equal(t, 4, s.GetModelMetrics().TrainingDataSize)
}

func TestAddTrainingSample_RejectsOutOfRangeFeatures(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name     string
		features entity.FeatureVector
	}{
		{"time of day", entity.FeatureVector{TimeOfDay: 24}},
		{"day of week", entity.FeatureVector{DayOfWeek: 7}},
		{"negative suspicious strings", entity.FeatureVector{SuspiciousStrings: -1}},
		{"entropy above 8", entity.FeatureVector{PayloadEntropy: 9}},
		{"negative entropy", entity.FeatureVector{PayloadEntropy: -0.1}},
		{"not a number", entity.FeatureVector{PacketsPerSecond: math.NaN()}},
		{"infinite", entity.FeatureVector{GeographicDistance: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddTrainingSample(entity.TrainingSample{
				Features:   tt.features,
				Label:      entity.ThreatLabelBenign,
				Confidence: 0.5,
			})
			assert.True(t, common.HasErrorCode(err, common.ErrCodeValidationFailed))
		})
	}

	assert.Equal(t, 4, s.GetModelMetrics().TrainingDataSize)
}

func TestSnapshot_EncodedExportImports(t *testing.T) {
	codec, err := snapshot.NewCodec()
	require.NoError(t, err)

	src := newTestStore(t)
	edge := entity.TrainingSample{
		Features: entity.FeatureVector{
			TimeOfDay: 23, DayOfWeek: 6, PayloadEntropy: 8,
			SourceReputation: 0.5, DestinationReputation: 0.5, UniquePorts: 1,
		},
		Label:      entity.ThreatLabelMalware,
		Confidence: 1,
	}
	_, err = src.AddTrainingSample(edge)
	require.NoError(t, err)
	addSamples(t, src, 5)
	require.NoError(t, src.Retrain())

	doc, err := codec.EncodeJSON(src.ExportSnapshot())
	require.NoError(t, err)
	decoded, err := codec.DecodeJSON(doc)
	require.NoError(t, err)

	dst := newTestStore(t)
	require.NoError(t, dst.ImportSnapshot(decoded))
	assert.Equal(t, src.GetModelMetrics(), dst.GetModelMetrics())
	assert.Equal(t, edge, dst.ExportSnapshot().TrainingData[4])
}

func TestSnapshot_RoundTrip(t *testing.T) {
	src := newTestStore(t)
	addSamples(t, src, 8)
	require.NoError(t, src.Retrain())

	dst := newTestStore(t)
	require.NoError(t, dst.ImportSnapshot(src.ExportSnapshot()))

	assert.Equal(t, src.GetModelMetrics(), dst.GetModelMetrics())
	assert.Equal(t, src.ExportSnapshot(), dst.ExportSnapshot())
	assert.True(t, dst.IsTrained())
}

func TestSnapshot_ExportIsACopy(t *testing.T) {
	s := newTestStore(t)
	addSamples(t, s, 6)
	require.NoError(t, s.Retrain())

	snap := s.ExportSnapshot()
	snap.FeatureWeights[entity.FeaturePacketSize] = 0.99
	snap.TrainingData[0].Label = entity.ThreatLabelMalware
	snap.Model.Trees[0].Kind = entity.RuleKindLeaf

	fresh := s.ExportSnapshot()
	assert.Equal(t, 0.08, fresh.FeatureWeights[entity.FeaturePacketSize])
	assert.Equal(t, entity.ThreatLabelBenign, fresh.TrainingData[0].Label)
	assert.Equal(t, entity.RuleKindFixedPolicy, fresh.Model.Trees[0].Kind)
	assert.Equal(t, fixedNow, fresh.ExportedAt)
}

func TestImportSnapshot_MissingModelLeavesStateUntouched(t *testing.T) {
	s := newTestStore(t)
	addSamples(t, s, 6)
	require.NoError(t, s.Retrain())
	before := s.GetModelMetrics()

	snap := s.ExportSnapshot()
	snap.Model = entity.Model{}
	snap.TrainingData = nil

	err := s.ImportSnapshot(snap)

	require.Error(t, err)
	assert.True(t, common.HasErrorCode(err, common.ErrCodeCorruptSnapshot))
	assert.Equal(t, before, s.GetModelMetrics())
}

func TestImportSnapshot_RejectsSchemaDrift(t *testing.T) {
	s := newTestStore(t)

	snap := s.ExportSnapshot()
	snap.SchemaVersion = 2
	assert.True(t, common.HasErrorCode(s.ImportSnapshot(snap), common.ErrCodeCorruptSnapshot))

	snap = s.ExportSnapshot()
	delete(snap.FeatureWeights, entity.FeatureHIPAARelevant)
	assert.True(t, common.HasErrorCode(s.ImportSnapshot(snap), common.ErrCodeCorruptSnapshot))

	snap = s.ExportSnapshot()
	snap.IsModelTrained = true
	assert.True(t, common.HasErrorCode(s.ImportSnapshot(snap), common.ErrCodeCorruptSnapshot),
		"trained flag without trees")

	assert.False(t, s.IsTrained())
}

func TestImportSnapshot_UsesImportedParamsOnRetrain(t *testing.T) {
	s := newTestStore(t)

	snap := s.ExportSnapshot()
	snap.Model = entity.NewModel(7, 3, 1)
	require.NoError(t, s.ImportSnapshot(snap))
	addSamples(t, s, 6)
	require.NoError(t, s.Retrain())

	model, _ := s.ActiveModel()
	assert.Len(t, model.Trees, 7)
	assert.Equal(t, 7, s.GetModelMetrics().NumTrees)
}

func TestWithTreeBuilder(t *testing.T) {
	builder := ensemble.TreeBuilderFunc(func(_ []entity.TrainingSample, _ int, _ ensemble.BuildParams) entity.DecisionRule {
		return *entity.LeafRule(entity.ThreatLabelIntrusion)
	})
	s := newTestStore(t, WithTreeBuilder(builder), WithModelParams(3, 2, 1))
	addSamples(t, s, 6)

	require.NoError(t, s.Retrain())

	model, _ := s.ActiveModel()
	require.Len(t, model.Trees, 3)
	assert.Equal(t, entity.RuleKindLeaf, model.Trees[0].Kind)
}

func TestFallback(t *testing.T) {
	t.Run("medical device with suspicious strings", func(t *testing.T) {
		r := Fallback(entity.FeatureVector{IsMedicalDevice: true, SuspiciousStrings: 1, HIPAARelevant: true})
		assert.Equal(t, entity.ThreatLabelMedicalDeviceAttack, r.ThreatType)
		assert.Equal(t, 0.7, r.Confidence)
		assert.Equal(t, types.SeverityCritical, r.Severity)
		assert.Equal(t, 85, r.RiskScore)
		assert.Equal(t, entity.PatientSafetyCritical, r.PatientSafety)
		assert.True(t, r.HIPAAImpact)
		assert.Equal(t, []string{"Isolate medical device immediately", "Notify clinical staff"}, r.Recommendations)
		assert.Equal(t, entity.MethodFallback, r.Method)
	})

	t.Run("patient data", func(t *testing.T) {
		r := Fallback(entity.FeatureVector{IsPatientData: true, HIPAARelevant: true})
		assert.Equal(t, entity.ThreatLabelDataBreach, r.ThreatType)
		assert.Equal(t, 0.6, r.Confidence)
		assert.Equal(t, types.SeverityHigh, r.Severity)
		assert.Equal(t, 75, r.RiskScore)
		assert.Equal(t, entity.PatientSafetyConcern, r.PatientSafety)
	})

	t.Run("medical device without suspicious strings", func(t *testing.T) {
		r := Fallback(entity.FeatureVector{IsMedicalDevice: true, HIPAARelevant: true})
		assert.Equal(t, entity.ThreatLabelBenign, r.ThreatType)
		assert.True(t, r.HIPAAImpact, "hipaa impact mirrors the feature")
	})

	t.Run("everything else", func(t *testing.T) {
		r := Fallback(entity.FeatureVector{PacketsPerSecond: 9000})
		assert.Equal(t, entity.ThreatLabelBenign, r.ThreatType)
		assert.Equal(t, 0.5, r.Confidence)
		assert.Equal(t, types.SeverityLow, r.Severity)
		assert.Equal(t, 20, r.RiskScore)
		assert.Equal(t, entity.PatientSafetySafe, r.PatientSafety)
		assert.Equal(t, []string{"Continue monitoring"}, r.Recommendations)
		assert.False(t, r.HIPAAImpact)
	})
}

func TestStore_ConcurrentReadersSeeCompleteModels(t *testing.T) {
	s := newTestStore(t, WithRetrainInterval(10))
	snap := s.ExportSnapshot()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				model, trained := s.ActiveModel()
				if trained {
					assert.Len(t, model.Trees, model.TreeCount)
				} else {
					assert.Empty(t, model.Trees)
				}
				_ = s.GetModelMetrics()
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := s.AddTrainingSample(sample(entity.ThreatLabelDDoS))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, s.ImportSnapshot(snap))
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestDefaultSeedSamples(t *testing.T) {
	seeds := DefaultSeedSamples()
	require.Len(t, seeds, 4)

	labels := make([]entity.ThreatLabel, 0, len(seeds))
	for _, s := range seeds {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []entity.ThreatLabel{
		entity.ThreatLabelBenign,
		entity.ThreatLabelMedicalDeviceAttack,
		entity.ThreatLabelDataBreach,
		entity.ThreatLabelDDoS,
	}, labels)
	assert.Equal(t, 10000.0, seeds[3].Features.PacketsPerSecond)
	assert.Equal(t, 0.92, seeds[1].Confidence)
}

func TestParseSeedSamples_Errors(t *testing.T) {
	_, err := ParseSeedSamples([]byte("samples: [unterminated"))
	assert.Error(t, err)

	_, err = ParseSeedSamples([]byte("samples:\n  - label: benign\n    confidence: 2\n"))
	assert.Error(t, err)
}
