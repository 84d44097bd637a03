package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newChain(t *testing.T, opts ...DAGOption) (*DAGMan, *JobSet, []*Job) {
	t.Helper()
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	jobs := []*Job{mustJob(t, "A"), mustJob(t, "B"), mustJob(t, "C")}
	for _, j := range jobs {
		require.NoError(t, set.Add(j))
	}
	dag := NewDAGMan(opts...)
	require.NoError(t, dag.Add(jobs[0], nil, "", 0))
	require.NoError(t, dag.Add(jobs[1], Names("A"), "", 0))
	require.NoError(t, dag.Add(jobs[2], Jobs(jobs[1]), "", 0))
	return dag, set, jobs
}

func TestDAGMan_AddDuplicate(t *testing.T) {
	dag, _, jobs := newChain(t)
	err := dag.Add(jobs[0], nil, "", 0)
	require.Error(t, err)
	assert.True(t, IsDuplicateName(err))
	assert.Equal(t, 3, dag.Len())
}

func TestDAGMan_AddRequiresOwnedJob(t *testing.T) {
	dag := NewDAGMan()
	err := dag.Add(mustJob(t, "loose"), nil, "", 0)
	require.ErrorIs(t, err, ErrNoOwner)

	err = dag.Add(nil, nil, "", 0)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDAGMan_RequirementsNormalized(t *testing.T) {
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	a, b, c := mustJob(t, "a"), mustJob(t, "b"), mustJob(t, "c")
	for _, j := range []*Job{a, b, c} {
		require.NoError(t, set.Add(j))
	}
	dag := NewDAGMan()
	require.NoError(t, dag.Add(a, nil, "", 0))
	require.NoError(t, dag.Add(b, nil, "", 0))
	require.NoError(t, dag.Add(c, []Requirement{ByName("b"), ByJob(a), ByName("a"), ByJob(b)}, "", 0))

	assert.Equal(t, []string{"b", "a"}, dag.Requires("c"))

	err := dag.Add(mustJob(t, "d"), []Requirement{ByName("")}, "", 0)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDAGMan_ChainIsAcyclic(t *testing.T) {
	dag, _, _ := newChain(t)
	for _, n := range []string{"A", "B", "C"} {
		require.NoError(t, dag.ValidateAcyclic(n))
		require.NoError(t, dag.ValidateRequirements(n))
	}
	require.NoError(t, dag.Validate())
}

func TestDAGMan_CycleDetected(t *testing.T) {
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	jobs := map[string]*Job{}
	for _, n := range []string{"A", "B", "C"} {
		jobs[n] = mustJob(t, n)
		require.NoError(t, set.Add(jobs[n]))
	}
	dag := NewDAGMan()
	require.NoError(t, dag.Add(jobs["A"], Names("C"), "", 0))
	require.NoError(t, dag.Add(jobs["B"], Names("A"), "", 0))
	require.NoError(t, dag.Add(jobs["C"], Names("B"), "", 0))

	failed := 0
	for _, n := range []string{"A", "B", "C"} {
		err := dag.ValidateAcyclic(n)
		if err == nil {
			continue
		}
		failed++
		assert.True(t, IsCyclic(err))

		var cycErr *CyclicDependencyError
		require.True(t, errors.As(err, &cycErr))
		assert.Equal(t, n, cycErr.Node)
		assert.Equal(t, n, cycErr.Parent, "offending edge starts at the node itself")
	}
	assert.Positive(t, failed)

	err := dag.Validate()
	require.Error(t, err)
	assert.True(t, IsCyclic(err))

	_, err = dag.Render()
	require.Error(t, err)
}

func TestDAGMan_SelfDependency(t *testing.T) {
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	a := mustJob(t, "a")
	require.NoError(t, set.Add(a))
	dag := NewDAGMan()
	require.NoError(t, dag.Add(a, Jobs(a), "", 0))

	err := dag.ValidateAcyclic("a")
	var cycErr *CyclicDependencyError
	require.True(t, errors.As(err, &cycErr))
	assert.Equal(t, CyclicDependencyError{Node: "a", Parent: "a", Child: "a"}, *cycErr)
}

func TestDAGMan_DiamondIsAcyclic(t *testing.T) {
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	dag := NewDAGMan()
	for _, spec := range []struct {
		name string
		reqs []string
	}{
		{"root", nil}, {"left", []string{"root"}}, {"right", []string{"root"}}, {"join", []string{"left", "right"}},
	} {
		j := mustJob(t, spec.name)
		require.NoError(t, set.Add(j))
		require.NoError(t, dag.Add(j, Names(spec.reqs...), "", 0))
	}
	require.NoError(t, dag.Validate())
}

func TestDAGMan_UnknownPrerequisite(t *testing.T) {
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	b := mustJob(t, "B")
	require.NoError(t, set.Add(b))
	dag := NewDAGMan()
	require.NoError(t, dag.Add(b, Names("ghost", "phantom"), "", 0))

	err := dag.ValidateRequirements("B")
	require.Error(t, err)
	assert.True(t, IsUnknownPrerequisite(err))

	var upErr *UnknownPrerequisiteError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, []string{"ghost", "phantom"}, upErr.Missing)
	assert.Contains(t, err.Error(), "ghost")

	require.NoError(t, dag.ValidateAcyclic("B"), "dangling edges are not cycles")
	assert.Len(t, multierr.Errors(dag.Validate()), 1)
}

func TestDAGMan_Render(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))

	dag, set, _ := newChain(t,
		WithClock(mock),
		WithStatusFile("run.status", 10),
		WithDotFile("graph.dot"),
		WithDAGOptions(KeyValue{Key: "CONFIG", Value: "dag.config"}),
	)
	other := mustJob(t, "D")
	require.NoError(t, set.Add(other))
	require.NoError(t, dag.Add(other, Names("A", "C"), `extra="1"`, 2))

	got, err := dag.Render()
	require.NoError(t, err)

	want := "# DAG created at 2026-03-14 15:09:26\n" +
		"\n" +
		"JOB A jobs.condor\n" +
		"VARS A jobOpts=\"--exe true --args\"\n" +
		"JOB B jobs.condor\n" +
		"VARS B jobOpts=\"--exe true --args\"\n" +
		"JOB C jobs.condor\n" +
		"VARS C jobOpts=\"--exe true --args\"\n" +
		"JOB D jobs.condor\n" +
		"VARS D extra=\"1\" jobOpts=\"--exe true --args\"\n" +
		"RETRY D 2\n" +
		"PARENT A CHILD B\n" +
		"PARENT B CHILD C\n" +
		"PARENT A C CHILD D\n" +
		"\n" +
		"NODE_STATUS_FILE run.status 10\n" +
		"\n" +
		"# Make a visual representation of this DAG (for PDF format):\n" +
		"# dot -Tpdf graph.dot -o graph.pdf\n" +
		"DOT graph.dot\n" +
		"\n" +
		"CONFIG = dag.config\n"
	assert.Equal(t, want, got)
}

func TestDAGMan_RenderEscapesJobOpts(t *testing.T) {
	dag, set, _ := newChain(t, WithClock(clock.NewMock()))
	quoted := mustJob(t, "Q", WithArgs(`say "hi"`, `a\d+`))
	require.NoError(t, set.Add(quoted))
	require.NoError(t, dag.Add(quoted, nil, "", 0))

	got, err := dag.Render()
	require.NoError(t, err)
	assert.Contains(t, got, "VARS Q jobOpts=\"--exe true --args say \\\"hi\\\" a\\\\d+\"\n")
}

func TestDAGMan_RenderDefaults(t *testing.T) {
	dag, _, _ := newChain(t, WithClock(clock.NewMock()))
	got, err := dag.Render()
	require.NoError(t, err)
	assert.Contains(t, got, "NODE_STATUS_FILE jobs.status 30\n")
	assert.NotContains(t, got, "DOT ")
}

func TestDAGMan_Accessors(t *testing.T) {
	dag, _, jobs := newChain(t)
	got, ok := dag.JobAt(2)
	require.True(t, ok)
	assert.Same(t, jobs[2], got)
	_, ok = dag.JobAt(3)
	assert.False(t, ok)

	got, ok = dag.Job("B")
	require.True(t, ok)
	assert.Same(t, jobs[1], got)
	assert.Nil(t, dag.Requires("missing"))
}

func TestDAGMan_DistinctOwners(t *testing.T) {
	first := newTestJobSet(t, "/bin/a", WithCopyExe(false), WithDescriptorFile("a.condor"))
	second := newTestJobSet(t, "/bin/b", WithCopyExe(false), WithDescriptorFile("b.condor"))
	dag := NewDAGMan()
	for i, owner := range []*JobSet{first, second, first, second} {
		j := mustJob(t, string(rune('a'+i)))
		require.NoError(t, owner.Add(j))
		require.NoError(t, dag.Add(j, nil, "", 0))
	}

	owners := dag.DistinctOwners()
	require.Len(t, owners, 2)
	assert.Same(t, first, owners[0])
	assert.Same(t, second, owners[1])
}

func TestDAGMan_Submit(t *testing.T) {
	dir := t.TempDir()
	store := &fakeProvider{}
	sub := &fakeSubmitter{}
	rec := &fakeRecorder{}

	set := newTestJobSet(t, "/bin/run.sh",
		WithDescriptorFile(filepath.Join(dir, "jobs.condor")),
		WithProvider(store),
	)
	a, b := mustJob(t, "a"), mustJob(t, "b")
	require.NoError(t, set.Add(a))
	require.NoError(t, set.Add(b))

	dagFile := filepath.Join(dir, "jobs.dag")
	dag := NewDAGMan(WithDAGFile(dagFile), WithSubmitter(sub), WithRecorder(rec), WithClock(clock.NewMock()))
	require.NoError(t, dag.Add(a, nil, "", 0))
	require.NoError(t, dag.Add(b, Jobs(a), "", 1))

	got, err := dag.Submit(context.Background())
	require.NoError(t, err)

	dagData, err := os.ReadFile(dagFile)
	require.NoError(t, err)
	assert.Contains(t, string(dagData), "PARENT a CHILD b\n")

	jobData, err := os.ReadFile(filepath.Join(dir, "jobs.condor"))
	require.NoError(t, err)
	assert.Contains(t, string(jobData), "arguments=$(jobOpts)\nqueue\n")

	assert.Equal(t, []string{dagFile}, sub.dags)
	assert.Empty(t, sub.jobs)
	assert.Len(t, store.copies, 2)

	assert.Equal(t, KindDAG, got.Kind)
	assert.Equal(t, []string{"a", "b"}, got.Jobs)
	assert.Equal(t, []string{filepath.Join(dir, "jobs.condor")}, got.Descriptors)
	assert.Equal(t, DefaultStatusFile, got.StatusFile)
	require.Len(t, rec.subs, 1)
}

func TestDAGMan_SubmitInvalidWritesNothing(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false), WithDescriptorFile(filepath.Join(dir, "jobs.condor")))
	a := mustJob(t, "a")
	require.NoError(t, set.Add(a))

	dagFile := filepath.Join(dir, "jobs.dag")
	dag := NewDAGMan(WithDAGFile(dagFile), WithSubmitter(sub))
	require.NoError(t, dag.Add(a, Names("missing"), "", 0))

	_, err := dag.Submit(context.Background())
	require.ErrorIs(t, err, ErrUnknownPrerequisite)

	assert.NoFileExists(t, dagFile)
	assert.NoFileExists(t, filepath.Join(dir, "jobs.condor"))
	assert.Empty(t, sub.dags)
}

func TestDAGMan_SubmitEmpty(t *testing.T) {
	_, err := NewDAGMan(WithSubmitter(&fakeSubmitter{})).Submit(context.Background())
	require.ErrorIs(t, err, ErrNoJobs)
}
