package modelstore

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/scoring"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

// Fixed fallback outcomes
const (
	fallbackDeviceConfidence = 0.7
	fallbackDeviceRisk       = 85
	fallbackPHIConfidence    = 0.6
	fallbackPHIRisk          = 75
	fallbackBenignConfidence = 0.5
	fallbackBenignRisk       = 20
)

// Fallback is the rule used while no ensemble has been trained. It
// bypasses prediction and scoring entirely:
//
//	medical device with any suspicious token -> medical_device_attack, critical
//	patient data                              -> data_breach, high
//	anything else                             -> benign, low
//
// hipaaImpact still mirrors the hipaaRelevant feature.
func Fallback(f entity.FeatureVector) entity.ClassificationResult {
	result := entity.ClassificationResult{
		Method:      entity.MethodFallback,
		HIPAAImpact: scoring.HIPAAImpact(f),
		Features:    f,
	}

	switch {
	case f.IsMedicalDevice && f.SuspiciousStrings > 0:
		result.ThreatType = entity.ThreatLabelMedicalDeviceAttack
		result.Confidence = fallbackDeviceConfidence
		result.Severity = types.SeverityCritical
		result.RiskScore = fallbackDeviceRisk
		result.PatientSafety = entity.PatientSafetyCritical
		result.Recommendations = []string{"Isolate medical device immediately", "Notify clinical staff"}
	case f.IsPatientData:
		result.ThreatType = entity.ThreatLabelDataBreach
		result.Confidence = fallbackPHIConfidence
		result.Severity = types.SeverityHigh
		result.RiskScore = fallbackPHIRisk
		result.PatientSafety = entity.PatientSafetyConcern
		result.Recommendations = []string{"Activate HIPAA breach protocol", "Secure patient data"}
	default:
		result.ThreatType = entity.ThreatLabelBenign
		result.Confidence = fallbackBenignConfidence
		result.Severity = types.SeverityLow
		result.RiskScore = fallbackBenignRisk
		result.PatientSafety = entity.PatientSafetySafe
		result.Recommendations = []string{"Continue monitoring"}
	}

	return result
}
