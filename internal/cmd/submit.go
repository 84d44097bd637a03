package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/gocondense/internal/observability"
	"github.com/3leaps/gocondense/pkg/jobregistry"
	"github.com/3leaps/gocondense/pkg/manifest"
	"github.com/3leaps/gocondense/pkg/output"
	"github.com/3leaps/gocondense/pkg/provider"
	"github.com/3leaps/gocondense/pkg/scheduler"
	"github.com/3leaps/gocondense/pkg/workflow"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Stage inputs and submit a workflow",
	Long: `Write descriptors, copy job inputs to shared storage and submit the workflow
to HTCondor. With a dag section the DAG is submitted once; otherwise every job
set is submitted in manifest order, stopping at the first failure.

Each attempt is recorded under <data_dir>/submissions; see 'gocondense submissions'.

Example:
  gocondense submit -m workflow.yaml
  gocondense submit -m workflow.yaml --plan
  gocondense submit -m workflow.yaml --dry-run`,
	RunE: runSubmit,
}

var (
	submitManifestPath string
	submitPlan         bool
	submitDryRun       bool
	submitJSON         bool
	submitEvents       string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitManifestPath, "manifest", "m", "", "Path to workflow manifest (required)")
	submitCmd.Flags().BoolVar(&submitPlan, "plan", false, "Show what would be submitted without writing anything")
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "Write descriptors but do not copy inputs or submit")
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "Output submissions as JSON")
	submitCmd.Flags().StringVar(&submitEvents, "events", "", "Write JSONL transfer/submission events to a file ('-' for stdout)")

	_ = submitCmd.MarkFlagRequired("manifest")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	out := cmd.OutOrStdout()

	if submitPlan || submitDryRun {
		_, w, err := loadManifestWorkflow(cfg, submitManifestPath)
		if err != nil {
			return err
		}
		if submitDryRun {
			if err := w.Write(); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write descriptors", err)
			}
		}
		return printSubmissions(out, w.Plan(), submitJSON)
	}

	if _, err := os.Stat(submitManifestPath); err != nil {
		return exitError(foundry.ExitFileNotFound, "Manifest not found", err)
	}
	m, err := manifest.Load(submitManifestPath)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	runner := newRunner(cfg)
	store, err := newProvider(ctx, cfg, runner)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to shared storage", err)
	}
	defer func() { _ = store.Close() }()

	submitter, err := scheduler.NewSubmitter(runner, scheduler.SubmitterConfig{
		SubmitCommand:    cfg.Scheduler.SubmitCommand,
		SubmitDAGCommand: cfg.Scheduler.SubmitDAGCommand,
	}, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid scheduler command", err)
	}

	manifestPath, _ := filepath.Abs(submitManifestPath)
	recorder := jobregistry.NewRecorder(submissionsStore(cfg),
		jobregistry.WithSource(m.Name, manifestPath),
		jobregistry.WithIdentity(storeIdentity(cfg)),
	)

	opts := baseBuildOptions(cfg, submitManifestPath)
	opts.Provider = store

	var (
		events    *output.JSONLWriter
		reporting *output.ReportingProvider
	)
	if submitEvents != "" {
		ew, closeEvents, err := openEvents(out, submitEvents)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to open events output", err)
		}
		defer closeEvents()
		events = output.NewJSONLWriter(ew, uuid.New().String(), m.Name)
		defer func() { _ = events.Close() }()
		reporting = output.NewReportingProvider(store, events, nil, observability.CLILogger)
		opts.Provider = reporting
	}
	opts.Submitter = submitter
	opts.Recorder = recorder
	w, err := manifest.Build(m, opts)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Scheduler.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scheduler.Timeout)
		defer cancel()
	}

	start := time.Now()
	subs, err := w.Submit(ctx)
	if events != nil {
		writeEvents(events, reporting, subs, err, time.Since(start))
	}
	if err != nil {
		recordFailure(recorder, w.Plan(), len(subs), err)
		if errors.Is(ctx.Err(), context.Canceled) {
			return exitError(foundry.ExitSignalInt, "Submission cancelled", err)
		}
		return submitError(err)
	}
	if submitEvents == "-" {
		return nil
	}
	return printSubmissions(out, derefSubmissions(subs), submitJSON)
}

func openEvents(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// writeEvents emits one submission record per accepted submission, an error
// record when the run failed, and the summary.
func writeEvents(events output.Writer, reporting *output.ReportingProvider, subs []*workflow.Submission, runErr error, elapsed time.Duration) {
	ctx := context.Background()
	sum := &output.SummaryRecord{
		Submissions:   len(subs),
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
		Failed:        runErr != nil,
	}
	for _, s := range subs {
		sum.Jobs += len(s.Jobs)
		if err := events.WriteSubmission(ctx, &output.SubmissionRecord{Submission: *s}); err != nil {
			observability.CLILogger.Warn("Failed to write submission event", zap.Error(err))
		}
	}
	if runErr != nil {
		rec := &output.ErrorRecord{Code: output.ErrorCode(runErr), Message: runErr.Error()}
		var provErr *provider.ProviderError
		if errors.As(runErr, &provErr) {
			rec.Path = provErr.Path
		}
		if err := events.WriteError(ctx, rec); err != nil {
			observability.CLILogger.Warn("Failed to write error event", zap.Error(err))
		}
	}
	reporting.Summarize(sum)
	if err := events.WriteSummary(ctx, sum); err != nil {
		observability.CLILogger.Warn("Failed to write summary event", zap.Error(err))
	}
}

// recordFailure records the first planned submission that was not accepted.
func recordFailure(rec *jobregistry.Recorder, plan []workflow.Submission, accepted int, cause error) {
	if accepted >= len(plan) {
		return
	}
	r, err := rec.RecordFailure(context.Background(), plan[accepted], cause)
	if err != nil {
		observability.CLILogger.Warn("Failed to record submission failure", zap.Error(err))
		return
	}
	observability.CLILogger.Info("Recorded failed submission", zap.String("submission_id", r.SubmissionID))
}

func submitError(err error) error {
	var cmdErr *scheduler.CommandError
	var provErr *provider.ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return exitError(foundry.ExitExternalServiceUnavailable, "Submission timed out", err)
	case errors.As(err, &provErr):
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to stage inputs", err)
	case errors.As(err, &cmdErr):
		return exitError(foundry.ExitExternalServiceUnavailable, "Scheduler command failed", err)
	default:
		return exitError(foundry.ExitFileWriteError, "Failed to prepare submission", err)
	}
}

func derefSubmissions(subs []*workflow.Submission) []workflow.Submission {
	out := make([]workflow.Submission, 0, len(subs))
	for _, s := range subs {
		out = append(out, *s)
	}
	return out
}

func printSubmissions(w io.Writer, subs []workflow.Submission, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(subs)
	}
	for _, s := range subs {
		_, _ = fmt.Fprintf(w, "%s %s (%d jobs)\n", s.Kind, s.File, len(s.Jobs))
		for _, d := range s.Descriptors {
			_, _ = fmt.Fprintf(w, "  descriptor: %s\n", d)
		}
		if s.StatusFile != "" {
			_, _ = fmt.Fprintf(w, "  status:     %s\n", s.StatusFile)
		}
		for _, o := range s.Outputs {
			if o.Shared() {
				_, _ = fmt.Fprintf(w, "  logs:       %s\n", o.Stdout)
				continue
			}
			_, _ = fmt.Fprintf(w, "  stdout:     %s\n  stderr:     %s\n  log:        %s\n", o.Stdout, o.Stderr, o.Log)
		}
	}
	return nil
}
