package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type copyCall struct {
	src, dst string
}

type fakeProvider struct {
	copies  []copyCall
	mkdirs  []string
	copyErr error
}

func (f *fakeProvider) CopyFromLocal(_ context.Context, src, dst string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	f.copies = append(f.copies, copyCall{src: src, dst: dst})
	return nil
}

func (f *fakeProvider) MkdirAll(_ context.Context, dir string) error {
	f.mkdirs = append(f.mkdirs, dir)
	return nil
}

func (f *fakeProvider) Close() error { return nil }

type fakeSubmitter struct {
	jobs []string
	dags []string
	err  error
}

func (f *fakeSubmitter) SubmitJobs(_ context.Context, descriptor string) error {
	f.jobs = append(f.jobs, descriptor)
	return f.err
}

func (f *fakeSubmitter) SubmitDAG(_ context.Context, dagFile string) error {
	f.dags = append(f.dags, dagFile)
	return f.err
}

type fakeRecorder struct {
	subs []Submission
}

func (f *fakeRecorder) RecordSubmission(_ context.Context, s Submission) error {
	f.subs = append(f.subs, s)
	return nil
}

// newTestJobSet builds a JobSet whose log dirs live in a temp dir.
func newTestJobSet(t *testing.T, exe string, opts ...JobSetOption) *JobSet {
	t.Helper()
	base := []JobSetOption{
		WithLogDir(t.TempDir()),
		WithSharedRoot("/hdfs/user/alice/work"),
	}
	s, err := NewJobSet(exe, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func mustJob(t *testing.T, name string, opts ...JobOption) *Job {
	t.Helper()
	j, err := NewJob(name, opts...)
	require.NoError(t, err)
	return j
}
