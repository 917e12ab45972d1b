package modelstore

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/isectech/hospital-threat-engine/domain/entity"
)

//go:embed seed_samples.yaml
var seedSamplesYAML []byte

type seedDocument struct {
	Samples []entity.TrainingSample `yaml:"samples"`
}

// ParseSeedSamples decodes a YAML seed document and validates every sample
func ParseSeedSamples(data []byte) ([]entity.TrainingSample, error) {
	var doc seedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed samples: %w", err)
	}
	for i, sample := range doc.Samples {
		if err := sample.Validate(); err != nil {
			return nil, fmt.Errorf("seed sample %d: %w", i, err)
		}
	}
	return doc.Samples, nil
}

// DefaultSeedSamples returns the four built-in reference samples
func DefaultSeedSamples() []entity.TrainingSample {
	samples, err := ParseSeedSamples(seedSamplesYAML)
	if err != nil {
		// The document is compiled in; a parse failure is a build defect.
		panic(err)
	}
	return samples
}
