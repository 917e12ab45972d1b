package scoring

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// Context lines appended after the label-specific actions
const (
	RecommendationClinicalCoordination = "Coordinate with clinical staff for device safety"
	RecommendationHIPAADocumentation   = "Document incident for HIPAA compliance"
)

var labelRecommendations = map[entity.ThreatLabel][]string{
	entity.ThreatLabelMedicalDeviceAttack: {
		"Immediately isolate affected medical device",
		"Notify biomedical engineering team",
		"Check patient safety protocols",
		"Review device firmware and security patches",
	},
	entity.ThreatLabelDataBreach: {
		"Activate HIPAA breach response protocol",
		"Identify and secure affected patient records",
		"Notify privacy officer and legal team",
		"Prepare breach notification documentation",
	},
	entity.ThreatLabelDDoS: {
		"Activate DDoS mitigation protocols",
		"Ensure critical systems remain accessible",
		"Monitor patient care system availability",
	},
	entity.ThreatLabelMalware: {
		"Isolate infected systems immediately",
		"Run comprehensive malware scan",
		"Check for lateral movement to medical devices",
	},
	entity.ThreatLabelIntrusion: {
		"Change all administrative passwords",
		"Review access logs for unauthorized activity",
		"Audit user permissions and access controls",
	},
}

// Recommendations returns the ordered remediation actions for label. The
// returned slice is always freshly allocated.
func Recommendations(label entity.ThreatLabel, f entity.FeatureVector) []string {
	actions := labelRecommendations[label]
	out := make([]string, 0, len(actions)+2)
	out = append(out, actions...)

	if f.IsMedicalDevice {
		out = append(out, RecommendationClinicalCoordination)
	}
	if f.IsPatientData {
		out = append(out, RecommendationHIPAADocumentation)
	}
	return out
}
