package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gocondense/pkg/bootstrap"
)

func TestNewJob_Options(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		j := mustJob(t, "a")
		assert.Equal(t, 1, j.Quantity())
		assert.Empty(t, j.Args())
		assert.Nil(t, j.Owner())
	})

	t.Run("arg string splits on whitespace", func(t *testing.T) {
		j := mustJob(t, "a", WithArgString("  -n 5\t--name  x "))
		assert.Equal(t, []string{"-n", "5", "--name", "x"}, j.Args())
	})

	t.Run("arg string treats shell syntax literally", func(t *testing.T) {
		tests := []struct {
			in   string
			want []string
		}{
			{"--sep | --in data.txt", []string{"--sep", "|", "--in", "data.txt"}},
			{`--re a\d+ x`, []string{"--re", `a\d+`, "x"}},
			{"a;b c", []string{"a;b", "c"}},
			{"x > out.txt", []string{"x", ">", "out.txt"}},
			{"run & wait", []string{"run", "&", "wait"}},
			{`--title "two words"`, []string{"--title", `"two`, `words"`}},
		}
		for _, tt := range tests {
			j := mustJob(t, "a", WithArgString(tt.in))
			assert.Equal(t, tt.want, j.Args(), "input %q", tt.in)
		}
	})

	t.Run("arg string round-trips through the worker contract", func(t *testing.T) {
		owner := newTestJobSet(t, "/hdfs/user/alice/bin/run.sh")
		j := mustJob(t, "a", WithArgString("--sep | x > out.txt"))
		require.NoError(t, owner.Add(j))

		s, err := j.ArgumentString()
		require.NoError(t, err)
		parsed, err := bootstrap.ParseString(s)
		require.NoError(t, err)
		assert.Equal(t, j.Args(), parsed.Args)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewJob("")
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("quantity below one", func(t *testing.T) {
		_, err := NewJob("a", WithQuantity(0))
		require.ErrorIs(t, err, ErrConfiguration)

		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "quantity", cfgErr.Field)
	})

	t.Run("args are copied", func(t *testing.T) {
		in := []string{"x"}
		j := mustJob(t, "a", WithArgs(in...))
		in[0] = "y"
		assert.Equal(t, []string{"x"}, j.Args())
	})
}

func TestJob_SumExample(t *testing.T) {
	set := newTestJobSet(t, "/home/alice/bin/sum.sh", WithSharedRoot("/store/alice"))
	job := mustJob(t, "sum",
		WithArgs("--in", "/store/data.txt", "--out", "result.txt"),
		WithInputFiles("/store/data.txt"),
		WithOutputFiles("result.txt"),
	)
	require.NoError(t, set.Add(job))

	got, err := job.ArgumentString()
	require.NoError(t, err)

	assert.Contains(t, got, "--copyToLocal /store/alice/sum/data.txt data.txt")
	assert.Contains(t, got, "--copyFromLocal result.txt /store/alice/sum/result.txt")
	assert.True(t, strings.HasSuffix(got, "--exe sum.sh --args --in data.txt --out result.txt"), got)
}

func TestJob_AttachDerivesMirrors(t *testing.T) {
	set := newTestJobSet(t, "/home/alice/bin/run.sh", WithSetupScript("/home/alice/setup.sh"))
	job := mustJob(t, "j1",
		WithInputFiles("/data/in.txt", "/hdfs/shared/ref.db"),
		WithOutputFiles("out.root"),
	)
	require.NoError(t, set.Add(job))

	assert.Equal(t, "/hdfs/user/alice/work/j1", job.MirrorDir())
	assert.Equal(t, []string{"/data/in.txt", "/hdfs/shared/ref.db", "/home/alice/bin/run.sh", "/home/alice/setup.sh"}, job.InputFiles())
	assert.Equal(t, []FileMirror{
		{Original: "/data/in.txt", Mirror: "/hdfs/user/alice/work/j1/in.txt", Worker: "in.txt"},
		{Original: "/hdfs/shared/ref.db", Mirror: "/hdfs/shared/ref.db", Worker: "ref.db"},
		{Original: "/home/alice/bin/run.sh", Mirror: "/hdfs/user/alice/work/j1/run.sh", Worker: "run.sh"},
		{Original: "/home/alice/setup.sh", Mirror: "/hdfs/user/alice/work/j1/setup.sh", Worker: "setup.sh"},
	}, job.InputMirrors())
	assert.Equal(t, []FileMirror{
		{Original: "out.root", Mirror: "/hdfs/user/alice/work/j1/out.root", Worker: "out.root"},
	}, job.OutputMirrors())
}

func TestJob_SharedStoreIsNoOpMirror(t *testing.T) {
	for _, p := range []string{"/hdfs/a.txt", "/hdfs/user/bob/deep/b.txt", "/hdfsx/c.txt"} {
		set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
		job := mustJob(t, "n", WithInputFiles(p), WithOutputFiles(p))
		require.NoError(t, set.Add(job))

		assert.Equal(t, p, job.InputMirrors()[0].Mirror)
		assert.Equal(t, p, job.OutputMirrors()[0].Mirror)
		assert.False(t, job.InputMirrors()[0].NeedsCopy())
	}
}

func TestJob_ShareExeSetupUsesSharedRoot(t *testing.T) {
	set := newTestJobSet(t, "/bin/run.sh",
		WithSetupScript("/env/setup.sh"),
		WithShareExeSetup(true),
	)
	job := mustJob(t, "j", WithInputFiles("/data/x"))
	require.NoError(t, set.Add(job))

	mirrors := job.InputMirrors()
	require.Len(t, mirrors, 3)
	assert.Equal(t, "/hdfs/user/alice/work/j/x", mirrors[0].Mirror)
	assert.Equal(t, "/hdfs/user/alice/work/run.sh", mirrors[1].Mirror)
	assert.Equal(t, "/hdfs/user/alice/work/setup.sh", mirrors[2].Mirror)
}

func TestJob_MirrorDirOverride(t *testing.T) {
	set := newTestJobSet(t, "/bin/true", WithCopyExe(false))
	job := mustJob(t, "j", WithMirrorDir("/hdfs/custom"), WithInputFiles("/data/x"))
	require.NoError(t, set.Add(job))

	assert.Equal(t, "/hdfs/custom", job.MirrorDir())
	assert.Equal(t, "/hdfs/custom/x", job.InputMirrors()[0].Mirror)
}

func TestJob_AttachTwiceFails(t *testing.T) {
	a := newTestJobSet(t, "/bin/true")
	b := newTestJobSet(t, "/bin/true")
	job := mustJob(t, "j")
	require.NoError(t, a.Add(job))

	err := b.Add(job)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 0, b.Len())
	assert.Same(t, a, job.Owner())
}

func TestJob_AttachNilOwner(t *testing.T) {
	err := mustJob(t, "j").attach(nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestJob_RenderRequiresOwner(t *testing.T) {
	job := mustJob(t, "j")
	_, err := job.ArgumentString()
	require.ErrorIs(t, err, ErrNoOwner)

	err = job.Transfer(context.Background())
	require.ErrorIs(t, err, ErrNoOwner)
}

func TestJob_ArgumentString(t *testing.T) {
	tests := []struct {
		name    string
		setOpts []JobSetOption
		jobOpts []JobOption
		want    string
	}{
		{
			name:    "no files",
			setOpts: []JobSetOption{WithCopyExe(false)},
			jobOpts: []JobOption{WithArgs("-v")},
			want:    "--exe true --args -v",
		},
		{
			name:    "args marker emitted without args",
			setOpts: []JobSetOption{WithCopyExe(false)},
			want:    "--exe true --args",
		},
		{
			name:    "setup script comes first",
			setOpts: []JobSetOption{WithCopyExe(false), WithSetupScript("/env/setup.sh")},
			want:    "--setup setup.sh --copyToLocal /hdfs/user/alice/work/j/setup.sh setup.sh --exe true --args",
		},
		{
			name:    "transfer before run rewrites to worker names",
			setOpts: []JobSetOption{WithCopyExe(false)},
			jobOpts: []JobOption{WithArgs("/data/in.txt", "/hdfs/ref.db"), WithInputFiles("/data/in.txt", "/hdfs/ref.db")},
			want: "--copyToLocal /hdfs/user/alice/work/j/in.txt in.txt --copyToLocal /hdfs/ref.db ref.db " +
				"--exe true --args in.txt ref.db",
		},
		{
			name:    "direct read rewrites to mirror paths",
			setOpts: []JobSetOption{WithCopyExe(false), WithTransferBeforeRun(false)},
			jobOpts: []JobOption{WithArgs("/data/in.txt", "/hdfs/ref.db"), WithInputFiles("/data/in.txt", "/hdfs/ref.db")},
			want: "--copyToLocal /hdfs/user/alice/work/j/in.txt in.txt " +
				"--exe true --args /hdfs/user/alice/work/j/in.txt /hdfs/ref.db",
		},
		{
			name:    "outputs rewrite original and mirror",
			setOpts: []JobSetOption{WithCopyExe(false)},
			jobOpts: []JobOption{
				WithArgs("-o", "out.txt", "-m", "/hdfs/user/alice/work/j/out.txt"),
				WithOutputFiles("out.txt"),
			},
			want: "--copyFromLocal out.txt /hdfs/user/alice/work/j/out.txt --exe true --args -o out.txt -m out.txt",
		},
		{
			name:    "output rule wins over input rule",
			setOpts: []JobSetOption{WithCopyExe(false), WithTransferBeforeRun(false)},
			jobOpts: []JobOption{
				WithArgs("/data/both.txt"),
				WithInputFiles("/data/both.txt"),
				WithOutputFiles("/data/both.txt"),
			},
			want: "--copyToLocal /hdfs/user/alice/work/j/both.txt both.txt " +
				"--copyFromLocal both.txt /hdfs/user/alice/work/j/both.txt --exe true --args both.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := newTestJobSet(t, "/bin/true", tt.setOpts...)
			job := mustJob(t, "j", tt.jobOpts...)
			require.NoError(t, set.Add(job))

			got, err := job.ArgumentString()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJob_ArgumentStringDeterministic(t *testing.T) {
	set := newTestJobSet(t, "/bin/run.sh", WithSetupScript("/env/s.sh"))
	job := mustJob(t, "j",
		WithArgs("/data/a", "/data/b", "out"),
		WithInputFiles("/data/a", "/data/b"),
		WithOutputFiles("out"),
	)
	require.NoError(t, set.Add(job))

	first, err := job.ArgumentString()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := job.ArgumentString()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"/data/a", "/data/b", "out"}, job.Args(), "rendering must not mutate args")
}

func TestJob_ArgumentStringParsesAsBootstrapContract(t *testing.T) {
	set := newTestJobSet(t, "/bin/run.sh", WithSetupScript("/env/s.sh"))
	job := mustJob(t, "j",
		WithArgs("--in", "/data/a", "--args-like", "x"),
		WithInputFiles("/data/a"),
		WithOutputFiles("res"),
	)
	require.NoError(t, set.Add(job))

	s, err := job.ArgumentString()
	require.NoError(t, err)

	parsed, err := bootstrap.ParseString(s)
	require.NoError(t, err)
	assert.Equal(t, "s.sh", parsed.Setup)
	assert.Equal(t, "run.sh", parsed.Exe)
	assert.Equal(t, []string{"--in", "a", "--args-like", "x"}, parsed.Args)
	assert.Len(t, parsed.CopyToLocal, 3)
	assert.Equal(t, []bootstrap.Copy{{Src: "res", Dst: "/hdfs/user/alice/work/j/res"}}, parsed.CopyFromLocal)
}

func TestJob_Transfer(t *testing.T) {
	store := &fakeProvider{}
	set := newTestJobSet(t, "/bin/run.sh", WithProvider(store))
	job := mustJob(t, "j", WithInputFiles("/data/a", "/hdfs/already/there"))
	require.NoError(t, set.Add(job))

	require.NoError(t, job.Transfer(context.Background()))

	assert.Equal(t, []string{"/hdfs/user/alice/work/j"}, store.mkdirs)
	assert.Equal(t, []copyCall{
		{src: "/data/a", dst: "/hdfs/user/alice/work/j/a"},
		{src: "/bin/run.sh", dst: "/hdfs/user/alice/work/j/run.sh"},
	}, store.copies)
}

func TestJob_TransferSkipsSharedExe(t *testing.T) {
	store := &fakeProvider{}
	set := newTestJobSet(t, "/bin/run.sh", WithShareExeSetup(true), WithProvider(store))
	job := mustJob(t, "j")
	require.NoError(t, set.Add(job))

	require.NoError(t, job.Transfer(context.Background()))
	assert.Empty(t, store.copies)
	assert.Empty(t, store.mkdirs, "no mirror dir without copies")
}

func TestJob_TransferWithoutProvider(t *testing.T) {
	set := newTestJobSet(t, "/bin/run.sh")
	job := mustJob(t, "j")
	require.NoError(t, set.Add(job))

	err := job.Transfer(context.Background())
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestJob_TransferPropagatesCopyFailure(t *testing.T) {
	boom := errors.New("boom")
	set := newTestJobSet(t, "/bin/run.sh", WithProvider(&fakeProvider{copyErr: boom}))
	job := mustJob(t, "j")
	require.NoError(t, set.Add(job))

	err := job.Transfer(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "transfer j")
}
