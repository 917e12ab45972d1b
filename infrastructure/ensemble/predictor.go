package ensemble

import (
	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// Decision list cutoffs
const (
	MedicalDeviceSuspiciousCutoff = 2
	DataBreachBytesCutoff         = 100000
	DDoSPacketRateCutoff          = 1000
	MalwareEntropyCutoff          = 7.5
	IntrusionSuspiciousCutoff     = 5
)

// Prediction is the ensemble vote for one feature vector
type Prediction struct {
	Label      entity.ThreatLabel         `json:"label"`
	Confidence float64                    `json:"confidence"`
	Votes      map[entity.ThreatLabel]int `json:"votes"`
	TotalRules int                        `json:"totalRules"`
}

// FixedPolicy evaluates the priority decision list, first match wins
func FixedPolicy(f entity.FeatureVector) entity.ThreatLabel {
	switch {
	case f.IsMedicalDevice && f.SuspiciousStrings > MedicalDeviceSuspiciousCutoff:
		return entity.ThreatLabelMedicalDeviceAttack
	case f.IsPatientData && f.BytesTransferred > DataBreachBytesCutoff:
		return entity.ThreatLabelDataBreach
	case f.PacketsPerSecond > DDoSPacketRateCutoff:
		return entity.ThreatLabelDDoS
	case f.PayloadEntropy > MalwareEntropyCutoff:
		return entity.ThreatLabelMalware
	case f.SuspiciousStrings > IntrusionSuspiciousCutoff:
		return entity.ThreatLabelIntrusion
	default:
		return entity.ThreatLabelBenign
	}
}

// Evaluate returns the label rule votes for f. Malformed rules (nil child,
// unknown kind) vote benign; snapshot import rejects them up front.
func Evaluate(rule *entity.DecisionRule, f entity.FeatureVector) entity.ThreatLabel {
	for rule != nil {
		switch rule.Kind {
		case entity.RuleKindFixedPolicy:
			return FixedPolicy(f)
		case entity.RuleKindLeaf:
			return rule.Label
		case entity.RuleKindThreshold:
			value, ok := f.Value(rule.Feature)
			if !ok || rule.Threshold == nil {
				return entity.ThreatLabelBenign
			}
			if value <= *rule.Threshold {
				rule = rule.Left
			} else {
				rule = rule.Right
			}
		default:
			return entity.ThreatLabelBenign
		}
	}
	return entity.ThreatLabelBenign
}

// Predict runs every rule of the model and returns the majority label.
// Confidence is the winner's vote share. Ties go to the label that comes
// first in canonical order. An empty ensemble predicts benign with zero
// confidence.
func Predict(model entity.Model, f entity.FeatureVector) Prediction {
	votes := make(map[entity.ThreatLabel]int)
	if len(model.Trees) == 0 {
		return Prediction{Label: entity.ThreatLabelBenign, Votes: votes}
	}

	for i := range model.Trees {
		votes[Evaluate(&model.Trees[i], f)]++
	}

	winner := entity.ThreatLabelBenign
	best := -1
	for _, label := range entity.ThreatLabels() {
		if n := votes[label]; n > best {
			winner, best = label, n
		}
	}

	return Prediction{
		Label:      winner,
		Confidence: float64(best) / float64(len(model.Trees)),
		Votes:      votes,
		TotalRules: len(model.Trees),
	}
}
