package entity

import (
	"time"

	"github.com/isectech/hospital-threat-engine/shared/types"
)

// ThreatLabel is the categorical output of the classifier
type ThreatLabel string

// Threat labels in canonical order. The order breaks vote ties.
const (
	ThreatLabelBenign              ThreatLabel = "benign"
	ThreatLabelMalware             ThreatLabel = "malware"
	ThreatLabelIntrusion           ThreatLabel = "intrusion"
	ThreatLabelDDoS                ThreatLabel = "ddos"
	ThreatLabelDataBreach          ThreatLabel = "data_breach"
	ThreatLabelMedicalDeviceAttack ThreatLabel = "medical_device_attack"
)

var threatLabels = []ThreatLabel{
	ThreatLabelBenign,
	ThreatLabelMalware,
	ThreatLabelIntrusion,
	ThreatLabelDDoS,
	ThreatLabelDataBreach,
	ThreatLabelMedicalDeviceAttack,
}

// ThreatLabels returns all labels in canonical order
func ThreatLabels() []ThreatLabel {
	labels := make([]ThreatLabel, len(threatLabels))
	copy(labels, threatLabels)
	return labels
}

// Rank returns the canonical position of the label, -1 if unknown
func (l ThreatLabel) Rank() int {
	for i, known := range threatLabels {
		if l == known {
			return i
		}
	}
	return -1
}

// IsValid reports whether l is a known label
func (l ThreatLabel) IsValid() bool {
	return l.Rank() >= 0
}

// PatientSafety is the clinical risk tier of a classified event
type PatientSafety string

const (
	PatientSafetySafe     PatientSafety = "safe"
	PatientSafetyConcern  PatientSafety = "concern"
	PatientSafetyRisk     PatientSafety = "risk"
	PatientSafetyCritical PatientSafety = "critical"
)

// ClassificationMethod records which path produced a result
type ClassificationMethod string

const (
	MethodEnsemble ClassificationMethod = "ensemble"
	MethodFallback ClassificationMethod = "fallback"
)

// ClassificationResult is the threat assessment of one event
type ClassificationResult struct {
	ID              string               `json:"id" bson:"_id"`
	ThreatType      ThreatLabel          `json:"threatType" bson:"threat_type"`
	Confidence      float64              `json:"confidence" bson:"confidence"`
	Severity        types.Severity       `json:"severity" bson:"severity"`
	RiskScore       int                  `json:"riskScore" bson:"risk_score"`
	HIPAAImpact     bool                 `json:"hipaaImpact" bson:"hipaa_impact"`
	PatientSafety   PatientSafety        `json:"patientSafety" bson:"patient_safety"`
	Recommendations []string             `json:"recommendations" bson:"recommendations"`
	Method          ClassificationMethod `json:"method" bson:"method"`
	SourceIP        string               `json:"sourceIP,omitempty" bson:"source_ip,omitempty"`
	DestinationIP   string               `json:"destinationIP,omitempty" bson:"destination_ip,omitempty"`
	Features        FeatureVector        `json:"features" bson:"features"`
	ClassifiedAt    time.Time            `json:"classifiedAt" bson:"classified_at"`
}

// IsAlert reports whether the result must be raised as a security alert
func (r *ClassificationResult) IsAlert(minSeverity types.Severity) bool {
	return r.Severity.AtLeast(minSeverity)
}
