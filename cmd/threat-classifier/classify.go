package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isectech/hospital-threat-engine/config"
	"github.com/isectech/hospital-threat-engine/domain/entity"
	classifier "github.com/isectech/hospital-threat-engine/infrastructure/service"
	"github.com/isectech/hospital-threat-engine/infrastructure/snapshot"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
)

func newClassifyCommand() *cobra.Command {
	var (
		eventFile    string
		snapshotFile string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one event locally and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			data, err := os.ReadFile(eventFile)
			if err != nil {
				return fmt.Errorf("failed to read event: %w", err)
			}
			var event entity.RawEvent
			if err := json.Unmarshal(data, &event); err != nil {
				return fmt.Errorf("failed to parse event: %w", err)
			}

			logger := logging.NewNopLogger()
			store, extractor, err := buildEngine(cfg.Engine, logger)
			if err != nil {
				return err
			}

			if snapshotFile != "" {
				snap, err := readSnapshot(snapshotFile)
				if err != nil {
					return err
				}
				if err := store.ImportSnapshot(snap); err != nil {
					return err
				}
			}

			result := classifier.NewThreatClassifier(store, extractor, logger, nil).Classify(event)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&eventFile, "file", "f", "", "JSON file holding one network event")
	cmd.Flags().StringVar(&snapshotFile, "snapshot", "", "Model snapshot to load before classifying")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Model snapshot utilities",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check a snapshot document against the schema and model invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot valid: schemaVersion=%d trained=%t trees=%d trainingSamples=%d\n",
				snap.SchemaVersion, snap.IsModelTrained, len(snap.Model.Trees), len(snap.TrainingData))
			return nil
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "Snapshot document to validate")
	_ = validate.MarkFlagRequired("file")

	cmd.AddCommand(validate)
	return cmd
}

func readSnapshot(path string) (entity.ModelSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entity.ModelSnapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	codec, err := snapshot.NewCodec()
	if err != nil {
		return entity.ModelSnapshot{}, err
	}
	return codec.DecodeJSON(data)
}
