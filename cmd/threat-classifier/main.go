package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	serviceName = "threat-classifier"
	version     = "1.0.0"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Hospital network threat classification engine",
		Long: `Classifies hospital network telemetry into threat categories with a
rule-based decision ensemble, and scores risk, severity, HIPAA impact and
patient-safety impact for every event.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Directory containing config.yaml")

	root.AddCommand(newServeCommand())
	root.AddCommand(newClassifyCommand())
	root.AddCommand(newSnapshotCommand())
	return root
}
