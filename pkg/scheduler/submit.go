package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// Default HTCondor submission commands.
const (
	DefaultSubmitCommand    = "condor_submit"
	DefaultSubmitDAGCommand = "condor_submit_dag"
)

// Submitter hands descriptor files to the external scheduler.
type Submitter struct {
	runner    Runner
	submit    []string
	submitDAG []string
	logger    *zap.Logger
}

type SubmitterConfig struct {
	// SubmitCommand submits a job descriptor; the file is appended as the last argument.
	SubmitCommand string

	// SubmitDAGCommand submits a DAG descriptor; the file is appended as the last argument.
	SubmitDAGCommand string
}

// NewSubmitter parses the configured command lines. Empty commands fall back
// to the HTCondor defaults.
func NewSubmitter(runner Runner, cfg SubmitterConfig, logger *zap.Logger) (*Submitter, error) {
	if cfg.SubmitCommand == "" {
		cfg.SubmitCommand = DefaultSubmitCommand
	}
	if cfg.SubmitDAGCommand == "" {
		cfg.SubmitDAGCommand = DefaultSubmitDAGCommand
	}
	submit, err := SplitCommand(cfg.SubmitCommand)
	if err != nil {
		return nil, err
	}
	submitDAG, err := SplitCommand(cfg.SubmitDAGCommand)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{runner: runner, submit: submit, submitDAG: submitDAG, logger: logger}, nil
}

// SubmitJobs runs the job-submit command on a descriptor file.
func (s *Submitter) SubmitJobs(ctx context.Context, descriptor string) error {
	return s.run(ctx, s.submit, descriptor)
}

// SubmitDAG runs the DAG-submit command on a DAG descriptor file.
func (s *Submitter) SubmitDAG(ctx context.Context, dagFile string) error {
	return s.run(ctx, s.submitDAG, dagFile)
}

func (s *Submitter) run(ctx context.Context, argv []string, file string) error {
	args := append(append([]string{}, argv[1:]...), file)
	s.logger.Info("Submitting", zap.String("command", argv[0]), zap.String("file", file))
	return s.runner.Run(ctx, argv[0], args...)
}
