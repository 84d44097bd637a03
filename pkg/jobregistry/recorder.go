package jobregistry

import (
	"context"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/3leaps/gocondense/pkg/workflow"
)

// Recorder writes a SubmissionRecord for each submission attempt.
type Recorder struct {
	store    *Store
	clock    clock.Clock
	name     string
	manifest string
	identity *StoreIdentity
	newID    func() string
}

var _ workflow.Recorder = (*Recorder)(nil)

type RecorderOption func(*Recorder)

// WithClock sets the clock used for SubmittedAt.
func WithClock(c clock.Clock) RecorderOption {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithSource tags records with a workflow name and manifest path.
func WithSource(name, manifestPath string) RecorderOption {
	return func(r *Recorder) {
		r.name = strings.TrimSpace(name)
		r.manifest = strings.TrimSpace(manifestPath)
	}
}

// WithIdentity records which shared storage the submission used.
func WithIdentity(id *StoreIdentity) RecorderOption {
	return func(r *Recorder) { r.identity = id }
}

func NewRecorder(store *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		clock: clock.New(),
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Store() *Store {
	return r.store
}

// RecordSubmission persists an accepted submission.
func (r *Recorder) RecordSubmission(_ context.Context, s workflow.Submission) error {
	_, err := r.write(s, SubmissionStateSubmitted, nil)
	return err
}

// RecordFailure persists a submission attempt that failed with cause.
func (r *Recorder) RecordFailure(_ context.Context, s workflow.Submission, cause error) (*SubmissionRecord, error) {
	return r.write(s, SubmissionStateFailed, cause)
}

func (r *Recorder) write(s workflow.Submission, state SubmissionState, cause error) (*SubmissionRecord, error) {
	rec := &SubmissionRecord{
		SubmissionID: r.newID(),
		Name:         r.name,
		Kind:         s.Kind,
		State:        state,
		File:         s.File,
		Descriptors:  s.Descriptors,
		Jobs:         s.Jobs,
		StatusFile:   s.StatusFile,
		Outputs:      s.Outputs,
		ManifestPath: r.manifest,
		SubmittedAt:  r.clock.Now().UTC(),
		Identity:     r.identity,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := r.store.Write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
