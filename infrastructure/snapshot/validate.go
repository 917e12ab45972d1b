package snapshot

import (
	"fmt"

	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// ValidateModelParams checks the ensemble parameters
func ValidateModelParams(m entity.Model) error {
	if m.TreeCount < 1 {
		return fmt.Errorf("treeCount must be positive, got %d", m.TreeCount)
	}
	if m.MaxDepth < 1 {
		return fmt.Errorf("maxDepth must be positive, got %d", m.MaxDepth)
	}
	if m.MinLeafSamples < 1 {
		return fmt.Errorf("minLeafSamples must be positive, got %d", m.MinLeafSamples)
	}
	return nil
}

// Validate applies the semantic checks a JSON Schema cannot express. It is
// run on every decoded snapshot and again by the model store on import.
func Validate(s entity.ModelSnapshot) error {
	if s.SchemaVersion != entity.CurrentSnapshotVersion {
		return fmt.Errorf("unsupported schema version %d", s.SchemaVersion)
	}
	if s.ExportedAt.IsZero() {
		return fmt.Errorf("exportedAt is missing")
	}
	if err := ValidateModelParams(s.Model); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if s.IsModelTrained && len(s.Model.Trees) == 0 {
		return fmt.Errorf("model marked trained but has no trees")
	}
	for i := range s.Model.Trees {
		if err := s.Model.Trees[i].Validate(s.Model.MaxDepth); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	for i, sample := range s.TrainingData {
		if err := sample.Validate(); err != nil {
			return fmt.Errorf("training sample %d: %w", i, err)
		}
	}
	if err := s.FeatureWeights.Validate(); err != nil {
		return fmt.Errorf("featureWeights: %w", err)
	}
	return nil
}
