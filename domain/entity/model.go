package entity

import (
	"fmt"
	"time"
)

// RuleKind tags the variant held by a DecisionRule
type RuleKind string

const (
	// RuleKindFixedPolicy evaluates the built-in priority decision list
	RuleKindFixedPolicy RuleKind = "fixed_policy"
	// RuleKindThreshold compares one feature to a cutoff and descends
	RuleKindThreshold RuleKind = "threshold"
	// RuleKindLeaf yields its label
	RuleKindLeaf RuleKind = "leaf"
)

// DecisionRule is one voter of the ensemble. Threshold rules send
// features with Value(Feature) <= Threshold to Left, everything else to Right.
type DecisionRule struct {
	Kind      RuleKind      `json:"kind"`
	Feature   string        `json:"feature,omitempty"`
	Threshold *float64      `json:"threshold,omitempty"`
	Left      *DecisionRule `json:"left,omitempty"`
	Right     *DecisionRule `json:"right,omitempty"`
	Label     ThreatLabel   `json:"label,omitempty"`
}

// FixedPolicyRule returns a rule evaluating the built-in decision list
func FixedPolicyRule() DecisionRule {
	return DecisionRule{Kind: RuleKindFixedPolicy}
}

// LeafRule returns a rule that always votes label
func LeafRule(label ThreatLabel) *DecisionRule {
	return &DecisionRule{Kind: RuleKindLeaf, Label: label}
}

// ThresholdRule returns a rule splitting on feature <= cutoff
func ThresholdRule(feature string, cutoff float64, left, right *DecisionRule) *DecisionRule {
	return &DecisionRule{
		Kind:      RuleKindThreshold,
		Feature:   feature,
		Threshold: &cutoff,
		Left:      left,
		Right:     right,
	}
}

// Validate checks the rule tree shape down to maxDepth levels
func (r *DecisionRule) Validate(maxDepth int) error {
	if r == nil {
		return fmt.Errorf("missing rule")
	}
	if maxDepth < 0 {
		return fmt.Errorf("rule tree deeper than allowed")
	}

	switch r.Kind {
	case RuleKindFixedPolicy:
		return nil
	case RuleKindLeaf:
		if !r.Label.IsValid() {
			return fmt.Errorf("leaf has unknown label %q", r.Label)
		}
		return nil
	case RuleKindThreshold:
		if !IsFeatureName(r.Feature) {
			return fmt.Errorf("threshold on unknown feature %q", r.Feature)
		}
		if r.Threshold == nil {
			return fmt.Errorf("threshold rule on %s has no cutoff", r.Feature)
		}
		if err := r.Left.Validate(maxDepth - 1); err != nil {
			return fmt.Errorf("left: %w", err)
		}
		if err := r.Right.Validate(maxDepth - 1); err != nil {
			return fmt.Errorf("right: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

// Model is the trained ensemble
type Model struct {
	Trees          []DecisionRule `json:"trees"`
	TreeCount      int            `json:"treeCount"`
	MaxDepth       int            `json:"maxDepth"`
	MinLeafSamples int            `json:"minLeafSamples"`
}

// Default ensemble parameters
const (
	DefaultTreeCount      = 100
	DefaultMaxDepth       = 10
	DefaultMinLeafSamples = 2
)

// NewModel returns an empty, untrained model with the given parameters
func NewModel(treeCount, maxDepth, minLeafSamples int) Model {
	return Model{
		Trees:          []DecisionRule{},
		TreeCount:      treeCount,
		MaxDepth:       maxDepth,
		MinLeafSamples: minLeafSamples,
	}
}

// Clone returns a deep copy of the model
func (m Model) Clone() Model {
	out := m
	out.Trees = make([]DecisionRule, len(m.Trees))
	for i := range m.Trees {
		out.Trees[i] = *m.Trees[i].clone()
	}
	return out
}

func (r *DecisionRule) clone() *DecisionRule {
	if r == nil {
		return nil
	}
	out := *r
	if r.Threshold != nil {
		cutoff := *r.Threshold
		out.Threshold = &cutoff
	}
	out.Left = r.Left.clone()
	out.Right = r.Right.clone()
	return &out
}

// FeatureWeights maps feature name to an importance weight in [0,1].
// Weights are reported, never used for scoring.
type FeatureWeights map[string]float64

// DefaultFeatureWeights returns the stock importance table
func DefaultFeatureWeights() FeatureWeights {
	return FeatureWeights{
		FeaturePacketSize:            0.08,
		FeatureConnectionDuration:    0.06,
		FeatureBytesTransferred:      0.12,
		FeaturePacketsPerSecond:      0.15,
		FeatureUniquePorts:           0.09,
		FeatureProtocolDiversity:     0.07,
		FeaturePayloadEntropy:        0.11,
		FeatureSuspiciousStrings:     0.13,
		FeatureTimeOfDay:             0.03,
		FeatureDayOfWeek:             0.02,
		FeatureSourceReputation:      0.10,
		FeatureDestinationReputation: 0.08,
		FeatureGeographicDistance:    0.04,
		FeatureIsEncrypted:           0.05,
		FeatureHasBase64:             0.06,
		FeatureIsMedicalDevice:       0.18,
		FeatureIsPatientData:         0.20,
		FeatureHIPAARelevant:         0.17,
	}
}

// Clone returns a copy of the weights
func (w FeatureWeights) Clone() FeatureWeights {
	out := make(FeatureWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Validate checks that keys are exactly the feature names and values lie in [0,1]
func (w FeatureWeights) Validate() error {
	if len(w) != len(featureNames) {
		return fmt.Errorf("expected %d feature weights, got %d", len(featureNames), len(w))
	}
	for _, name := range featureNames {
		v, ok := w[name]
		if !ok {
			return fmt.Errorf("missing weight for %s", name)
		}
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("weight for %s is %v, want [0,1]", name, v)
		}
	}
	return nil
}

// ThreatThresholds are per-label display thresholds
type ThreatThresholds map[ThreatLabel]float64

// DefaultThreatThresholds returns the stock display thresholds
func DefaultThreatThresholds() ThreatThresholds {
	return ThreatThresholds{
		ThreatLabelBenign:              0.3,
		ThreatLabelMalware:             0.6,
		ThreatLabelIntrusion:           0.7,
		ThreatLabelDDoS:                0.8,
		ThreatLabelDataBreach:          0.9,
		ThreatLabelMedicalDeviceAttack: 0.95,
	}
}

// ModelMetrics is the read-only summary of the model store
type ModelMetrics struct {
	IsModelTrained   bool             `json:"isModelTrained"`
	TrainingDataSize int              `json:"trainingDataSize"`
	NumTrees         int              `json:"numTrees"`
	FeatureWeights   FeatureWeights   `json:"featureWeights"`
	ThreatThresholds ThreatThresholds `json:"threatThresholds"`
}

// CurrentSnapshotVersion is the schema version written by ExportSnapshot
const CurrentSnapshotVersion = 1

// ModelSnapshot is the complete exportable state of the model store
type ModelSnapshot struct {
	SchemaVersion  int              `json:"schemaVersion"`
	Model          Model            `json:"model"`
	TrainingData   []TrainingSample `json:"trainingData"`
	FeatureWeights FeatureWeights   `json:"featureWeights"`
	IsModelTrained bool             `json:"isModelTrained"`
	ExportedAt     time.Time        `json:"exportedAt"`
}
