package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Write submit descriptors without submitting",
	Long: `Write the HTCondor submit descriptors, and the DAG file when the manifest
has a dag section, next to the manifest. Inputs are not copied to shared
storage and nothing is submitted.

Example:
  gocondense render -m workflow.yaml`,
	RunE: runRender,
}

var renderManifestPath string

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderManifestPath, "manifest", "m", "", "Path to workflow manifest (required)")
	_ = renderCmd.MarkFlagRequired("manifest")
}

func runRender(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	_, w, err := loadManifestWorkflow(cfg, renderManifestPath)
	if err != nil {
		return err
	}
	if err := w.Write(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write descriptors", err)
	}
	for _, f := range w.Descriptors() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}
