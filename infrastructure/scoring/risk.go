package scoring

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// Risk score bounds
const (
	MinRiskScore = 0
	MaxRiskScore = 100
)

// UnknownLabelBaseScore is used for labels outside the known set
const UnknownLabelBaseScore = 50

var baseScores = map[entity.ThreatLabel]int{
	entity.ThreatLabelBenign:              10,
	entity.ThreatLabelMalware:             60,
	entity.ThreatLabelIntrusion:           70,
	entity.ThreatLabelDDoS:                65,
	entity.ThreatLabelDataBreach:          85,
	entity.ThreatLabelMedicalDeviceAttack: 90,
}

// Feature adjustments
const (
	suspiciousAdjustment     = 15
	entropyAdjustment        = 10
	packetRateAdjustment     = 12
	lowReputationAdjustment  = 20
	largeTransferAdjustment  = 15
	suspiciousCutoff         = 3
	entropyCutoff            = 7.0
	packetRateCutoff         = 500
	lowReputationCutoff      = 0.3
	largeTransferBytesCutoff = 1000000
)

// Hospital context surcharges
const (
	MedicalDeviceSurcharge = 20
	PatientDataSurcharge   = 30
	HIPAASurcharge         = 25
)

// BaseScore returns the label's base score plus the feature adjustments,
// clamped to [0,100]
func BaseScore(label entity.ThreatLabel, f entity.FeatureVector) int {
	score, ok := baseScores[label]
	if !ok {
		score = UnknownLabelBaseScore
	}

	if f.SuspiciousStrings > suspiciousCutoff {
		score += suspiciousAdjustment
	}
	if f.PayloadEntropy > entropyCutoff {
		score += entropyAdjustment
	}
	if f.PacketsPerSecond > packetRateCutoff {
		score += packetRateAdjustment
	}
	if f.SourceReputation < lowReputationCutoff {
		score += lowReputationAdjustment
	}
	if f.BytesTransferred > largeTransferBytesCutoff {
		score += largeTransferAdjustment
	}

	return common.Clamp(score, MinRiskScore, MaxRiskScore)
}

// HospitalSurcharge is the extra risk carried by medical devices, PHI and HIPAA scope
func HospitalSurcharge(f entity.FeatureVector) int {
	surcharge := 0
	if f.IsMedicalDevice {
		surcharge += MedicalDeviceSurcharge
	}
	if f.IsPatientData {
		surcharge += PatientDataSurcharge
	}
	if f.HIPAARelevant {
		surcharge += HIPAASurcharge
	}
	return surcharge
}

// RiskScore is BaseScore plus HospitalSurcharge, clamped to [0,100]
func RiskScore(label entity.ThreatLabel, f entity.FeatureVector) int {
	return common.Clamp(BaseScore(label, f)+HospitalSurcharge(f), MinRiskScore, MaxRiskScore)
}
