package scoring

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

// Severity derives the severity tier. Medical devices and PHI escalate to
// critical at lower scores than other traffic.
func Severity(riskScore int, f entity.FeatureVector) types.Severity {
	switch {
	case f.IsMedicalDevice && riskScore > 60,
		f.IsPatientData && riskScore > 50,
		riskScore >= 80:
		return types.SeverityCritical
	case riskScore >= 60:
		return types.SeverityHigh
	case riskScore >= 40:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// PatientSafety derives the clinical risk tier
func PatientSafety(label entity.ThreatLabel, f entity.FeatureVector) entity.PatientSafety {
	switch {
	case label == entity.ThreatLabelMedicalDeviceAttack:
		return entity.PatientSafetyCritical
	case f.IsMedicalDevice && label != entity.ThreatLabelBenign:
		return entity.PatientSafetyRisk
	case f.IsPatientData:
		return entity.PatientSafetyConcern
	default:
		return entity.PatientSafetySafe
	}
}

// HIPAAImpact passes hipaaRelevant through
func HIPAAImpact(f entity.FeatureVector) bool {
	return f.HIPAARelevant
}
