package workflow

import (
	"context"

	"go.uber.org/zap"
)

// Submitter hands descriptor files to the external scheduler.
// *scheduler.Submitter satisfies it.
type Submitter interface {
	SubmitJobs(ctx context.Context, descriptor string) error
	SubmitDAG(ctx context.Context, dagFile string) error
}

// Recorder persists a Submission after the scheduler accepted it.
type Recorder interface {
	RecordSubmission(ctx context.Context, s Submission) error
}

// KeyValue is one free-form descriptor option, rendered as `key = value`.
type KeyValue struct {
	Key   string
	Value string
}

// services are the collaborators shared by JobSet and DAGMan.
type services struct {
	logger    *zap.Logger
	submitter Submitter
	recorder  Recorder
}

func defaultServices() services {
	return services{logger: zap.NewNop()}
}

// JobSetOption configures a JobSet.
type JobSetOption interface {
	applyJobSet(*JobSet)
}

// DAGOption configures a DAGMan.
type DAGOption interface {
	applyDAG(*DAGMan)
}

// Option configures either a JobSet or a DAGMan.
type Option interface {
	JobSetOption
	DAGOption
}

type jobSetOptionFunc func(*JobSet)

func (f jobSetOptionFunc) applyJobSet(s *JobSet) { f(s) }

type dagOptionFunc func(*DAGMan)

func (f dagOptionFunc) applyDAG(d *DAGMan) { f(d) }

type servicesOption func(*services)

func (f servicesOption) applyJobSet(s *JobSet) { f(&s.services) }
func (f servicesOption) applyDAG(d *DAGMan)    { f(&d.services) }

// WithLogger sets the event sink. The default discards events.
func WithLogger(l *zap.Logger) Option {
	return servicesOption(func(s *services) {
		if l != nil {
			s.logger = l
		}
	})
}

// WithSubmitter sets the scheduler used by Submit.
func WithSubmitter(sub Submitter) Option {
	return servicesOption(func(s *services) { s.submitter = sub })
}

// WithRecorder records accepted submissions.
func WithRecorder(r Recorder) Option {
	return servicesOption(func(s *services) { s.recorder = r })
}
