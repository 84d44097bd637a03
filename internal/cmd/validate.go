package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gocondense/internal/config"
	"github.com/3leaps/gocondense/internal/observability"
	"github.com/3leaps/gocondense/pkg/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a workflow manifest",
	Long: `Validate a workflow manifest against the schema and build its jobs and DAG.

Schema errors, duplicate job names, unknown DAG prerequisites and dependency
cycles are all reported. Nothing is written or submitted, although missing
log directories are created.

Example:
  gocondense validate -m workflow.yaml`,
	RunE: runValidate,
}

var validateManifestPath string

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateManifestPath, "manifest", "m", "", "Path to workflow manifest (required)")
	_ = validateCmd.MarkFlagRequired("manifest")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	m, w, err := loadManifestWorkflow(cfg, validateManifestPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Manifest valid: %s\n", validateManifestPath)
	if w.Name != "" {
		_, _ = fmt.Fprintf(out, "  name:     %s\n", w.Name)
	}
	_, _ = fmt.Fprintf(out, "  job sets: %d\n", len(w.JobSets))
	_, _ = fmt.Fprintf(out, "  jobs:     %d\n", m.JobCount())
	if w.DAG != nil {
		_, _ = fmt.Fprintf(out, "  dag:      %s (%d nodes)\n", w.DAG.DAGFile(), w.DAG.Len())
	}
	return nil
}

// loadManifestWorkflow wraps loadWorkflow with CLI exit codes.
func loadManifestWorkflow(cfg *config.Config, path string) (*manifest.Manifest, *manifest.Workflow, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil, exitError(foundry.ExitFileNotFound, "Manifest not found", err)
	}
	m, w, err := loadWorkflow(cfg, path)
	if err != nil {
		observability.CLILogger.Error("Invalid manifest", zap.String("path", path), zap.Error(err))
		return nil, nil, exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}
	return m, w, nil
}
