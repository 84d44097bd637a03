package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/gocondense/pkg/jobregistry"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect recorded submissions",
	Long: `Inspect the submission records written by 'gocondense submit'.

Records live under <data_dir>/submissions/<submission_id>/submission.json.
Ids may be abbreviated to any unique prefix.`,
}

var submissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded submissions",
	RunE:  runSubmissionsList,
}

var submissionsStatusCmd = &cobra.Command{
	Use:   "status <submission_id>",
	Short: "Show one submission record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmissionsStatus,
}

func init() {
	rootCmd.AddCommand(submissionsCmd)
	submissionsCmd.AddCommand(submissionsListCmd)
	submissionsCmd.AddCommand(submissionsStatusCmd)

	submissionsListCmd.Flags().Bool("json", false, "Output as JSON")
	submissionsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSubmissionsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	records, err := submissionsStore(cfg).List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read submissions", err)
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No submissions found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "SUBMISSION ID\tNAME\tKIND\tSTATE\tSUBMITTED\tJOBS\tFILE")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortSubmissionID(r.SubmissionID),
			orDash(r.Name),
			r.Kind,
			r.State,
			r.SubmittedAt.UTC().Format(time.RFC3339),
			len(r.Jobs),
			r.File,
		)
	}
	return nil
}

func runSubmissionsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	id := strings.TrimSpace(args[0])
	if id == "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid submission id", fmt.Errorf("submission_id is required"))
	}
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	rec, err := submissionsStore(cfg).Find(id)
	switch {
	case errors.Is(err, jobregistry.ErrNotFound):
		return exitError(foundry.ExitFileNotFound, "Submission not found", err)
	case errors.Is(err, jobregistry.ErrAmbiguous):
		return exitError(foundry.ExitInvalidArgument, "Ambiguous submission id", err)
	case err != nil:
		return exitError(foundry.ExitFileReadError, "Failed to read submission", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(out, "submission_id=%s\n", rec.SubmissionID)
	if rec.Name != "" {
		_, _ = fmt.Fprintf(out, "name=%s\n", rec.Name)
	}
	_, _ = fmt.Fprintf(out, "kind=%s\n", rec.Kind)
	_, _ = fmt.Fprintf(out, "state=%s\n", rec.State)
	_, _ = fmt.Fprintf(out, "file=%s\n", rec.File)
	for _, d := range rec.Descriptors {
		_, _ = fmt.Fprintf(out, "descriptor=%s\n", d)
	}
	_, _ = fmt.Fprintf(out, "jobs=%s\n", strings.Join(rec.Jobs, ","))
	if rec.StatusFile != "" {
		_, _ = fmt.Fprintf(out, "status_file=%s\n", rec.StatusFile)
	}
	if rec.ManifestPath != "" {
		_, _ = fmt.Fprintf(out, "manifest_path=%s\n", rec.ManifestPath)
	}
	_, _ = fmt.Fprintf(out, "submitted_at=%s\n", rec.SubmittedAt.UTC().Format(time.RFC3339))
	if rec.Error != "" {
		_, _ = fmt.Fprintf(out, "error=%s\n", rec.Error)
	}
	return nil
}

func shortSubmissionID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
