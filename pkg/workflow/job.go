package workflow

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/3leaps/gocondense/pkg/bootstrap"
)

// Job is one executable task. A Job is created standalone and becomes usable
// once added to exactly one JobSet, which derives its file mirrors.
type Job struct {
	name        string
	args        []string
	inputFiles  []string
	outputFiles []string
	quantity    int
	mirrorDir   string

	inputMirrors  []FileMirror
	outputMirrors []FileMirror

	// owner is set once, by JobSet.Add. The JobSet owns the Job, not the reverse.
	owner *JobSet
}

// JobOption configures a Job.
type JobOption func(*Job) error

// WithArgs sets the executable's arguments.
func WithArgs(args ...string) JobOption {
	return func(j *Job) error {
		j.args = append([]string{}, args...)
		return nil
	}
}

// WithArgString sets the arguments from a single string split on
// whitespace, the same rule the worker applies to the rendered arguments.
func WithArgString(s string) JobOption {
	return func(j *Job) error {
		j.args = bootstrap.SplitArgs(s)
		return nil
	}
}

// WithInputFiles sets files the job reads.
func WithInputFiles(files ...string) JobOption {
	return func(j *Job) error {
		j.inputFiles = append([]string{}, files...)
		return nil
	}
}

// WithOutputFiles sets files the job writes.
func WithOutputFiles(files ...string) JobOption {
	return func(j *Job) error {
		j.outputFiles = append([]string{}, files...)
		return nil
	}
}

// WithQuantity sets how many identical replicas are queued.
func WithQuantity(n int) JobOption {
	return func(j *Job) error {
		if n < 1 {
			return &ConfigurationError{Field: "quantity", Value: fmt.Sprint(n), Err: fmt.Errorf("must be at least 1")}
		}
		j.quantity = n
		return nil
	}
}

// WithMirrorDir overrides the per-job directory on shared storage. The
// default is <shared root>/<job name>.
func WithMirrorDir(dir string) JobOption {
	return func(j *Job) error {
		j.mirrorDir = dir
		return nil
	}
}

// NewJob creates a Job with the given name.
func NewJob(name string, opts ...JobOption) (*Job, error) {
	if name == "" {
		return nil, &ConfigurationError{Field: "name", Value: name, Err: fmt.Errorf("job name is required")}
	}
	j := &Job{name: name, quantity: 1}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *Job) Name() string { return j.name }

func (j *Job) Args() []string { return append([]string{}, j.args...) }

// InputFiles returns the job's inputs, including the owner's executable and
// setup script once attached.
func (j *Job) InputFiles() []string { return append([]string{}, j.inputFiles...) }

func (j *Job) OutputFiles() []string { return append([]string{}, j.outputFiles...) }

func (j *Job) Quantity() int { return j.quantity }

// MirrorDir returns the per-job shared-storage directory. It is empty until
// the job is attached, unless overridden.
func (j *Job) MirrorDir() string { return j.mirrorDir }

func (j *Job) InputMirrors() []FileMirror { return append([]FileMirror{}, j.inputMirrors...) }

func (j *Job) OutputMirrors() []FileMirror { return append([]FileMirror{}, j.outputMirrors...) }

// Owner returns the JobSet the job was added to, or nil.
func (j *Job) Owner() *JobSet { return j.owner }

// attach makes owner the job's JobSet and derives the file mirrors.
func (j *Job) attach(owner *JobSet) error {
	if owner == nil {
		return &TypeMismatchError{Want: "job set", Got: "nil"}
	}
	if j.owner != nil {
		return &TypeMismatchError{Want: "unowned job", Got: fmt.Sprintf("job %q owned by %s", j.name, j.owner.descriptorFile)}
	}
	j.owner = owner

	if owner.copyExe {
		j.inputFiles = append(j.inputFiles, owner.exe)
	}
	if owner.setupScript != "" {
		j.inputFiles = append(j.inputFiles, owner.setupScript)
	}
	if j.mirrorDir == "" {
		j.mirrorDir = path.Join(owner.sharedRoot, j.name)
		owner.logger.Debug("Auto setting mirror dir", zap.String("job", j.name), zap.String("dir", j.mirrorDir))
	}

	for _, f := range j.inputFiles {
		dir := j.mirrorDir
		if owner.sharedFile(f) {
			dir = owner.sharedRoot
		}
		j.inputMirrors = append(j.inputMirrors, newMirror(f, dir, owner.namespacePrefix))
	}
	for _, f := range j.outputFiles {
		j.outputMirrors = append(j.outputMirrors, newMirror(f, j.mirrorDir, owner.namespacePrefix))
	}
	return nil
}

// Transfer copies the job's inputs onto shared storage. Files already on
// shared storage are skipped, as are the executable and setup script when the
// owner shares them across jobs.
func (j *Job) Transfer(ctx context.Context) error {
	if j.owner == nil {
		return fmt.Errorf("transfer %s: %w", j.name, ErrNoOwner)
	}
	var pending []FileMirror
	for _, m := range j.inputMirrors {
		if !m.NeedsCopy() || j.owner.sharedFile(m.Original) {
			continue
		}
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return nil
	}

	store, err := j.owner.store()
	if err != nil {
		return fmt.Errorf("transfer %s: %w", j.name, err)
	}
	if err := store.MkdirAll(ctx, j.mirrorDir); err != nil {
		return fmt.Errorf("transfer %s: %w", j.name, err)
	}
	for _, m := range pending {
		j.owner.logger.Info("Copying", zap.String("job", j.name), zap.String("src", m.Original), zap.String("dst", m.Mirror))
		if err := store.CopyFromLocal(ctx, m.Original, m.Mirror); err != nil {
			return fmt.Errorf("transfer %s: %w", j.name, err)
		}
	}
	return nil
}

// BootstrapArgs returns the worker bootstrap arguments for the job.
func (j *Job) BootstrapArgs() (bootstrap.Args, error) {
	if j.owner == nil {
		return bootstrap.Args{}, fmt.Errorf("render %s: %w", j.name, ErrNoOwner)
	}
	owner := j.owner
	out := bootstrap.Args{Exe: path.Base(owner.exe)}
	if owner.setupScript != "" {
		out.Setup = path.Base(owner.setupScript)
	}

	args := append([]string{}, j.args...)
	for _, m := range j.inputMirrors {
		target := m.Mirror
		if owner.transferBeforeRun {
			target = m.Worker
		}
		replaceToken(args, target, m.Original)
		// Without transfer-before-run, inputs already on shared storage are
		// read in place; everything else still has to be staged.
		if owner.transferBeforeRun || !onSharedStore(m.Original, owner.namespacePrefix) {
			out.CopyToLocal = append(out.CopyToLocal, bootstrap.Copy{Src: m.Mirror, Dst: m.Worker})
		}
	}

	// Outputs are rewritten after inputs so a token matching both ends up
	// pointing at the worker-local output.
	for _, m := range j.outputMirrors {
		replaceToken(args, m.Worker, m.Original, m.Mirror)
		out.CopyFromLocal = append(out.CopyFromLocal, bootstrap.Copy{Src: m.Worker, Dst: m.Mirror})
	}

	out.Args = args
	return out, nil
}

// ArgumentString renders the job's bootstrap argument string.
func (j *Job) ArgumentString() (string, error) {
	a, err := j.BootstrapArgs()
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

func replaceToken(args []string, with string, match ...string) {
	for i, a := range args {
		for _, m := range match {
			if a == m {
				args[i] = with
				break
			}
		}
	}
}
