package main

import (
	"fmt"
	"os"

	"github.com/isectech/hospital-threat-engine/config"
	"github.com/isectech/hospital-threat-engine/infrastructure/features"
	"github.com/isectech/hospital-threat-engine/infrastructure/modelstore"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
)

// buildEngine creates the model store and feature extractor described by cfg
func buildEngine(cfg config.EngineConfig, logger *logging.Logger) (*modelstore.Store, *features.Extractor, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid time zone %q: %w", cfg.TimeZone, err)
	}

	opts := []modelstore.Option{
		modelstore.WithLogger(logger),
		modelstore.WithModelParams(cfg.TreeCount, cfg.MaxDepth, cfg.MinLeafSamples),
		modelstore.WithMinTrainingSamples(cfg.MinTrainingSamples),
		modelstore.WithRetrainInterval(cfg.RetrainInterval),
	}
	if weights := cfg.Weights(); weights != nil {
		opts = append(opts, modelstore.WithFeatureWeights(weights))
	}
	if cfg.SeedSamplesFile != "" {
		data, err := os.ReadFile(cfg.SeedSamplesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read seed samples: %w", err)
		}
		seeds, err := modelstore.ParseSeedSamples(data)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, modelstore.WithSeedSamples(seeds))
	}

	store, err := modelstore.New(opts...)
	if err != nil {
		return nil, nil, err
	}

	extractorOpts := []features.Option{features.WithLocation(loc)}
	if len(cfg.MedicalDevicePrefixes) > 0 {
		extractorOpts = append(extractorOpts, features.WithMedicalDevicePrefixes(cfg.MedicalDevicePrefixes))
	}
	return store, features.NewExtractor(extractorOpts...), nil
}
