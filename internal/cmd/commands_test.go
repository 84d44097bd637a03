package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gocondense/internal/config"
	"github.com/3leaps/gocondense/pkg/jobregistry"
	"github.com/3leaps/gocondense/pkg/output"
	"github.com/3leaps/gocondense/pkg/scheduler"
	"github.com/3leaps/gocondense/pkg/workflow"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	failOn string
	err    error
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if name == r.failOn {
		return r.err
	}
	return nil
}

func (r *fakeRunner) commands(name string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, c := range r.calls {
		if c[0] == name {
			out = append(out, c)
		}
	}
	return out
}

func useRunner(t *testing.T, r scheduler.Runner) {
	t.Helper()
	orig := newRunner
	newRunner = func(*config.Config) scheduler.Runner { return r }
	t.Cleanup(func() { newRunner = orig })
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	appConfig = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	rootCmd.SetContext(context.Background())

	err := rootCmd.Execute()
	rootCmd.SetArgs(nil)
	rootCmd.SetOut(nil)
	return out.String(), err
}

type site struct {
	dir      string
	config   string
	manifest string
}

func (s site) submissions() *jobregistry.Store {
	return jobregistry.NewStore(filepath.Join(s.dir, "data", "submissions"))
}

const siteManifest = `version: "1.0"
name: demo
job_sets:
  - exe: bin/run.sh
    shared_root: /hdfs/user/test/work
    jobs:
      - name: a
        args: [in.txt]
        input_files: [in.txt]
`

func newSite(t *testing.T, manifestContent string) site {
	t.Helper()
	dir := t.TempDir()
	s := site{
		dir:      dir,
		config:   filepath.Join(dir, "config.yaml"),
		manifest: filepath.Join(dir, "workflow.yaml"),
	}
	cfg := `store:
  backend: command
  copy_command: "hdfs-copy {src} {dst}"
scheduler:
  submit_command: fake_submit
  submit_dag_command: fake_submit_dag
data_dir: ` + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(s.config, []byte(cfg), 0o644))
	require.NoError(t, os.WriteFile(s.manifest, []byte(manifestContent), 0o644))
	return s
}

func TestValidateCommand(t *testing.T) {
	s := newSite(t, siteManifest)

	out, err := execute(t, "--config", s.config, "validate", "-m", s.manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "Manifest valid")
	assert.Contains(t, out, "name:     demo")
	assert.Contains(t, out, "jobs:     1")
	assert.NotContains(t, out, "dag:")
}

func TestValidateCommand_Errors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		s := newSite(t, siteManifest)
		_, err := execute(t, "--config", s.config, "validate", "-m", filepath.Join(s.dir, "nope.yaml"))
		require.Error(t, err)
		assert.Equal(t, int(foundry.ExitFileNotFound), ExitCode(err))
	})

	t.Run("schema violation", func(t *testing.T) {
		s := newSite(t, "version: \"9.9\"\njob_sets: []\n")
		_, err := execute(t, "--config", s.config, "validate", "-m", s.manifest)
		require.Error(t, err)
		assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
	})

	t.Run("bad config", func(t *testing.T) {
		s := newSite(t, siteManifest)
		require.NoError(t, os.WriteFile(s.config, []byte("store:\n  backend: ftp\n"), 0o644))
		_, err := execute(t, "--config", s.config, "validate", "-m", s.manifest)
		require.Error(t, err)
		assert.Equal(t, int(foundry.ExitInvalidArgument), ExitCode(err))
		assert.Contains(t, err.Error(), "Invalid configuration")
	})
}

func TestRenderCommand(t *testing.T) {
	s := newSite(t, siteManifest)
	runner := &fakeRunner{}
	useRunner(t, runner)

	out, err := execute(t, "--config", s.config, "render", "-m", s.manifest)
	require.NoError(t, err)

	descriptor := filepath.Join(s.dir, workflow.DefaultDescriptorFile)
	assert.Contains(t, out, descriptor)
	data, err := os.ReadFile(descriptor)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n# a\n")
	assert.Empty(t, runner.calls)
}

func TestSubmitCommand_Plan(t *testing.T) {
	s := newSite(t, siteManifest)
	runner := &fakeRunner{}
	useRunner(t, runner)

	out, err := execute(t, "--config", s.config, "submit", "-m", s.manifest, "--plan", "--json")
	require.NoError(t, err)

	var plan []workflow.Submission
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan, 1)
	assert.Equal(t, workflow.KindJobSet, plan[0].Kind)
	assert.Equal(t, []string{"a"}, plan[0].Jobs)

	_, err = os.Stat(plan[0].File)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, runner.calls)
}

func TestSubmitCommand_DryRun(t *testing.T) {
	s := newSite(t, siteManifest)
	runner := &fakeRunner{}
	useRunner(t, runner)

	out, err := execute(t, "--config", s.config, "submit", "-m", s.manifest, "--dry-run")
	require.NoError(t, err)

	descriptor := filepath.Join(s.dir, workflow.DefaultDescriptorFile)
	assert.Contains(t, out, "jobset "+descriptor+" (1 jobs)")
	assert.FileExists(t, descriptor)
	assert.Empty(t, runner.calls)
}

func TestSubmitCommand(t *testing.T) {
	s := newSite(t, siteManifest)
	runner := &fakeRunner{}
	useRunner(t, runner)

	out, err := execute(t, "--config", s.config, "submit", "-m", s.manifest)
	require.NoError(t, err)

	descriptor := filepath.Join(s.dir, workflow.DefaultDescriptorFile)
	assert.Contains(t, out, "jobset "+descriptor)
	assert.Len(t, runner.commands("hdfs-copy"), 2)

	// The default mkdir command creates the job's mirror dir before any copy.
	require.GreaterOrEqual(t, len(runner.calls), 2)
	assert.Equal(t, []string{"hadoop", "fs", "-mkdir", "-p", "/user/test/work/a"}, runner.calls[0])
	assert.Equal(t, "hdfs-copy", runner.calls[1][0])

	submits := runner.commands("fake_submit")
	require.Len(t, submits, 1)
	assert.Equal(t, []string{"fake_submit", descriptor}, submits[0])

	records, err := s.submissions().List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, jobregistry.SubmissionStateSubmitted, rec.State)
	assert.Equal(t, "demo", rec.Name)
	assert.Equal(t, descriptor, rec.File)
	assert.Equal(t, s.manifest, rec.ManifestPath)
	require.NotNil(t, rec.Identity)
	assert.Equal(t, "command", rec.Identity.Backend)
}

func TestSubmitCommand_Events(t *testing.T) {
	s := newSite(t, siteManifest)
	useRunner(t, &fakeRunner{})

	out, err := execute(t, "--config", s.config, "submit", "-m", s.manifest, "--events", "-")
	require.NoError(t, err)

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line: %s", line)
		assert.Equal(t, "demo", rec.Workflow)
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{
		output.TypeTransfer,
		output.TypeTransfer,
		output.TypeSubmission,
		output.TypeSummary,
	}, types)
}

func TestSubmitCommand_SchedulerFailure(t *testing.T) {
	s := newSite(t, siteManifest)
	runner := &fakeRunner{
		failOn: "fake_submit",
		err:    &scheduler.CommandError{Command: "fake_submit", ExitCode: 1, Stderr: "schedd unreachable"},
	}
	useRunner(t, runner)

	_, err := execute(t, "--config", s.config, "submit", "-m", s.manifest)
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitExternalServiceUnavailable), ExitCode(err))
	assert.ErrorIs(t, err, scheduler.ErrCommandFailed)

	records, err := s.submissions().List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, jobregistry.SubmissionStateFailed, records[0].State)
	assert.Contains(t, records[0].Error, "schedd unreachable")
}

func TestSubmitCommand_StagingFailure(t *testing.T) {
	s := newSite(t, siteManifest)
	runner := &fakeRunner{failOn: "hdfs-copy", err: &scheduler.CommandError{Command: "hdfs-copy", ExitCode: 255}}
	useRunner(t, runner)

	_, err := execute(t, "--config", s.config, "submit", "-m", s.manifest)
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitExternalServiceUnavailable), ExitCode(err))
	assert.Contains(t, err.Error(), "Failed to stage inputs")
	assert.Empty(t, runner.commands("fake_submit"))
}

func TestSubmissionsCommands(t *testing.T) {
	s := newSite(t, siteManifest)
	useRunner(t, &fakeRunner{})

	out, err := execute(t, "--config", s.config, "submissions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No submissions found")

	_, err = execute(t, "--config", s.config, "submit", "-m", s.manifest)
	require.NoError(t, err)

	out, err = execute(t, "--config", s.config, "submissions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "SUBMISSION ID")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "submitted")

	records, err := s.submissions().List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	id := records[0].SubmissionID

	out, err = execute(t, "--config", s.config, "submissions", "status", id[:8], "--json")
	require.NoError(t, err)
	var rec jobregistry.SubmissionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, id, rec.SubmissionID)
	assert.Equal(t, []string{"a"}, rec.Jobs)

	out, err = execute(t, "--config", s.config, "submissions", "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, "submission_id="+id)
	assert.Contains(t, out, "state=submitted")

	_, err = execute(t, "--config", s.config, "submissions", "status", "ffffffff-nope")
	require.Error(t, err)
	assert.Equal(t, int(foundry.ExitFileNotFound), ExitCode(err))
}

func TestVersionCommand(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "abc123", "2026-10-01")

	s := newSite(t, siteManifest)
	out, err := execute(t, "--config", s.config, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gocondense 1.2.3 (commit abc123, built 2026-10-01")
}
