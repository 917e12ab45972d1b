package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/ensemble"
	"github.com/isectech/hospital-threat-engine/infrastructure/features"
	"github.com/isectech/hospital-threat-engine/infrastructure/modelstore"
	"github.com/isectech/hospital-threat-engine/infrastructure/scoring"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

// ThreatClassifier composes feature extraction, ensemble voting, scoring
// and recommendations into one synchronous call
type ThreatClassifier struct {
	extractor *features.Extractor
	store     *modelstore.Store
	logger    *logging.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewThreatClassifier creates a classifier over store. collector may be nil.
func NewThreatClassifier(
	store *modelstore.Store,
	extractor *features.Extractor,
	logger *logging.Logger,
	collector *metrics.Collector,
) *ThreatClassifier {
	if extractor == nil {
		extractor = features.NewExtractor()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &ThreatClassifier{
		extractor: extractor,
		store:     store,
		logger:    logger.WithComponent("threat_classifier"),
		metrics:   collector,
		now:       time.Now,
	}
}

// Extractor returns the feature extractor used by Classify
func (c *ThreatClassifier) Extractor() *features.Extractor {
	return c.extractor
}

// Classify extracts features from event and classifies them
func (c *ThreatClassifier) Classify(event entity.RawEvent) *entity.ClassificationResult {
	result := c.ClassifyFeatures(c.extractor.Extract(event))
	result.SourceIP = event.SourceIP
	result.DestinationIP = event.DestinationIP
	return result
}

// ClassifyFeatures classifies an already extracted feature vector. An
// untrained store routes to the fallback rule.
func (c *ThreatClassifier) ClassifyFeatures(f entity.FeatureVector) *entity.ClassificationResult {
	start := time.Now()

	// One load: the whole call sees a single model version.
	model, trained := c.store.ActiveModel()

	var result entity.ClassificationResult
	if trained {
		result = assess(model, f)
	} else {
		result = modelstore.Fallback(f)
	}
	result.ID = uuid.NewString()
	result.ClassifiedAt = c.now().UTC()

	c.observe(&result, time.Since(start))
	return &result
}

// assess runs the ensemble path: predict, score, derive impact, recommend
func assess(model entity.Model, f entity.FeatureVector) entity.ClassificationResult {
	prediction := ensemble.Predict(model, f)
	riskScore := scoring.RiskScore(prediction.Label, f)

	return entity.ClassificationResult{
		ThreatType:      prediction.Label,
		Confidence:      prediction.Confidence,
		RiskScore:       riskScore,
		Severity:        scoring.Severity(riskScore, f),
		PatientSafety:   scoring.PatientSafety(prediction.Label, f),
		HIPAAImpact:     scoring.HIPAAImpact(f),
		Recommendations: scoring.Recommendations(prediction.Label, f),
		Method:          entity.MethodEnsemble,
		Features:        f,
	}
}

func (c *ThreatClassifier) observe(result *entity.ClassificationResult, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordClassification(string(result.ThreatType), string(result.Severity),
			string(result.Method), result.RiskScore, duration)
	}

	if result.Severity.AtLeast(types.SeverityHigh) {
		c.logger.LogThreatDetection(string(result.ThreatType), string(result.Severity),
			"network event classified as threat",
			logging.String("classification_id", result.ID),
			logging.String("method", string(result.Method)),
			logging.Int("risk_score", result.RiskScore),
			logging.Float64("confidence", result.Confidence),
			logging.String("patient_safety", string(result.PatientSafety)),
			logging.Bool("hipaa_impact", result.HIPAAImpact),
		)
		return
	}

	c.logger.LogPerformance("classify", duration,
		logging.String("threat_type", string(result.ThreatType)),
		logging.String("method", string(result.Method)),
	)
}
