package entity

import (
	"fmt"
	"math"
)

// TrainingSample is one labelled feature vector
type TrainingSample struct {
	Features   FeatureVector `json:"features" yaml:"features"`
	Label      ThreatLabel   `json:"label" yaml:"label"`
	Confidence float64       `json:"confidence" yaml:"confidence"`
}

// Validate checks the label, the confidence range and the feature ranges
func (s TrainingSample) Validate() error {
	if !s.Label.IsValid() {
		return fmt.Errorf("unknown threat label %q", s.Label)
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", s.Confidence)
	}
	if err := s.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	return nil
}
