package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/gocondense/pkg/descriptor"
	"github.com/3leaps/gocondense/pkg/provider"
)

// JobSet defaults.
const (
	DefaultDescriptorFile = "jobs.condor"
	DefaultLogDir         = "logs"
	DefaultStdoutFile     = "$(cluster).$(process).out"
	DefaultStderrFile     = "$(cluster).$(process).err"
	DefaultLogFile        = "$(cluster).$(process).log"
	DefaultMemory         = "100MB"
	DefaultDisk           = "100MB"
	DefaultWorkerScript   = "condor_worker.py"
)

// JobVarName is the DAG variable carrying each node's argument string.
const JobVarName = "jobOpts"

// JobSet is a group of Jobs sharing one submit descriptor, resource request,
// log locations and executable.
type JobSet struct {
	services

	exe               string
	copyExe           bool
	setupScript       string
	shareExeSetup     bool
	descriptorFile    string
	outDir, outFile   string
	errDir, errFile   string
	logDir, logFile   string
	cpus              int
	memory            string
	disk              string
	transferBeforeRun bool
	transferInputs    []string
	transferOutputs   []string
	sharedRoot        string
	namespacePrefix   string
	workerScript      string
	extra             []KeyValue
	template          *descriptor.Template
	provider          provider.Provider

	jobs *orderedMap[*Job]
}

// WithCopyExe controls whether the executable is copied to shared storage.
// Disable it for executables already present on workers (e.g. awk).
func WithCopyExe(copyExe bool) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.copyExe = copyExe })
}

// WithSetupScript sets a script the worker sources before running the executable.
func WithSetupScript(script string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.setupScript = script })
}

// WithDescriptorFile sets the submit descriptor filename.
func WithDescriptorFile(name string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.descriptorFile = name })
}

// WithStdout sets where job stdout is written.
func WithStdout(dir, file string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.outDir, s.outFile = dir, file })
}

// WithStderr sets where job stderr is written.
func WithStderr(dir, file string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.errDir, s.errFile = dir, file })
}

// WithLog sets where the scheduler's per-job log is written.
func WithLog(dir, file string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.logDir, s.logFile = dir, file })
}

// WithLogDir sends stdout, stderr and the scheduler log to one directory.
func WithLogDir(dir string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.outDir, s.errDir, s.logDir = dir, dir, dir })
}

// WithResources sets the per-job resource request. cpus below 1 is raised to 1;
// empty memory or disk keep the defaults.
func WithResources(cpus int, memory, disk string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) {
		s.cpus = cpus
		if memory != "" {
			s.memory = memory
		}
		if disk != "" {
			s.disk = disk
		}
	})
}

// WithTransferBeforeRun controls whether inputs are copied to the worker's
// scratch dir before the executable runs. When disabled, arguments point at
// the shared-storage paths.
func WithTransferBeforeRun(enabled bool) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.transferBeforeRun = enabled })
}

// WithShareExeSetup stores one copy of the executable and setup script at
// the shared root instead of one per job.
func WithShareExeSetup(share bool) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.shareExeSetup = share })
}

// WithTransferFiles sets the scheduler's own file-transfer lists. Prefer job
// input and output files, which go through shared storage.
func WithTransferFiles(inputs, outputs []string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) {
		s.transferInputs = append([]string{}, inputs...)
		s.transferOutputs = append([]string{}, outputs...)
	})
}

// WithSharedRoot sets the JobSet's root directory on shared storage.
func WithSharedRoot(dir string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.sharedRoot = dir })
}

// WithNamespacePrefix sets the path prefix identifying files already on
// shared storage. The default is DefaultNamespacePrefix.
func WithNamespacePrefix(prefix string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.namespacePrefix = prefix })
}

// WithWorkerScript sets the bootstrap script used as the descriptor executable.
func WithWorkerScript(script string) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.workerScript = script })
}

// WithExtraOptions appends free-form descriptor options.
func WithExtraOptions(kv ...KeyValue) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.extra = append(s.extra, kv...) })
}

// WithTemplate replaces the built-in descriptor template.
func WithTemplate(t *descriptor.Template) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) {
		if t != nil {
			s.template = t
		}
	})
}

// WithProvider sets the shared-storage provider used for transfers.
func WithProvider(p provider.Provider) JobSetOption {
	return jobSetOptionFunc(func(s *JobSet) { s.provider = p })
}

// NewJobSet creates a JobSet for exe. Missing stdout, stderr and log
// directories are created.
func NewJobSet(exe string, opts ...JobSetOption) (*JobSet, error) {
	s := &JobSet{
		services:          defaultServices(),
		exe:               exe,
		copyExe:           true,
		descriptorFile:    DefaultDescriptorFile,
		outDir:            DefaultLogDir,
		outFile:           DefaultStdoutFile,
		errDir:            DefaultLogDir,
		errFile:           DefaultStderrFile,
		logDir:            DefaultLogDir,
		logFile:           DefaultLogFile,
		cpus:              1,
		memory:            DefaultMemory,
		disk:              DefaultDisk,
		transferBeforeRun: true,
		namespacePrefix:   DefaultNamespacePrefix,
		workerScript:      DefaultWorkerScript,
		jobs:              newOrderedMap[*Job](),
	}
	for _, opt := range opts {
		opt.applyJobSet(s)
	}
	if s.template == nil {
		s.template = descriptor.Default()
	}
	if s.cpus < 1 {
		s.cpus = 1
	}

	if exe == "" {
		return nil, &ConfigurationError{Field: "exe", Value: exe, Err: errors.New("executable is required")}
	}
	if s.sharedRoot == "" {
		return nil, &ConfigurationError{Field: "shared_root", Value: "", Err: errors.New("shared-storage root is required")}
	}
	if s.descriptorFile == "" {
		return nil, &ConfigurationError{Field: "filename", Value: "", Err: errors.New("descriptor filename is required")}
	}

	for _, f := range []struct{ field, name string }{
		{"out_file", s.outFile}, {"err_file", s.errFile}, {"log_file", s.logFile},
	} {
		if f.name == "" || f.name == "." {
			return nil, &ConfigurationError{Field: f.field, Value: f.name, Err: errors.New("bad output filename")}
		}
	}

	for _, d := range []struct {
		field string
		dir   *string
	}{
		{"out_dir", &s.outDir}, {"err_dir", &s.errDir}, {"log_dir", &s.logDir},
	} {
		abs, err := ensureDir(*d.dir, s.logger)
		if err != nil {
			return nil, &ConfigurationError{Field: d.field, Value: *d.dir, Err: err}
		}
		*d.dir = abs
	}
	return s, nil
}

func ensureDir(dir string, logger *zap.Logger) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("%s exists but is not a directory", abs)
	case err == nil:
		return abs, nil
	case !os.IsNotExist(err):
		return "", err
	}
	logger.Info("Making directory", zap.String("dir", abs))
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func (s *JobSet) Exe() string            { return s.exe }
func (s *JobSet) SetupScript() string    { return s.setupScript }
func (s *JobSet) SharedRoot() string     { return s.sharedRoot }
func (s *JobSet) DescriptorFile() string { return s.descriptorFile }
func (s *JobSet) CPUs() int              { return s.cpus }
func (s *JobSet) Len() int               { return s.jobs.len() }

// Jobs returns the member jobs in insertion order.
func (s *JobSet) Jobs() []*Job { return s.jobs.values() }

// JobAt returns the i'th job in insertion order.
func (s *JobSet) JobAt(i int) (*Job, bool) { return s.jobs.at(i) }

// Job looks up a member job by name.
func (s *JobSet) Job(name string) (*Job, bool) { return s.jobs.get(name) }

// Outputs returns the resolved stdout, stderr and log directories.
func (s *JobSet) Outputs() OutputLocations {
	return OutputLocations{Stdout: s.outDir, Stderr: s.errDir, Log: s.logDir}
}

// Add attaches job to the set. Names must be unique within the set.
func (s *JobSet) Add(job *Job) error {
	if job == nil {
		return &TypeMismatchError{Want: "job", Got: "nil"}
	}
	if s.jobs.has(job.Name()) {
		return &DuplicateNameError{Scope: "job set " + s.descriptorFile, Name: job.Name()}
	}
	if err := job.attach(s); err != nil {
		return err
	}
	s.jobs.put(job.Name(), job)
	return nil
}

// sharedFile reports whether f is the executable or setup script and those
// are kept once at the shared root.
func (s *JobSet) sharedFile(f string) bool {
	if !s.shareExeSetup {
		return false
	}
	return f == s.exe || (s.setupScript != "" && f == s.setupScript)
}

func (s *JobSet) store() (provider.Provider, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	return s.provider, nil
}

func (s *JobSet) templateValues() map[string]string {
	var other []string
	for _, kv := range s.extra {
		other = append(other, fmt.Sprintf("%s = %s", kv.Key, kv.Value))
	}
	return map[string]string{
		descriptor.TokenExeWrapper:          s.workerScript,
		descriptor.TokenStdout:              filepath.Join(s.outDir, s.outFile),
		descriptor.TokenStderr:              filepath.Join(s.errDir, s.errFile),
		descriptor.TokenStdlog:              filepath.Join(s.logDir, s.logFile),
		descriptor.TokenCPUs:                strconv.Itoa(s.cpus),
		descriptor.TokenMemory:              s.memory,
		descriptor.TokenDisk:                s.disk,
		descriptor.TokenTransferInputFiles:  strings.Join(s.transferInputs, ","),
		descriptor.TokenTransferOutputFiles: strings.Join(s.transferOutputs, ","),
		descriptor.TokenOtherArgs:           strings.Join(other, "\n"),
	}
}

// Descriptor renders the submit descriptor. In DAG mode the per-job
// arguments come from the DAG file, so a single placeholder entry is queued.
func (s *JobSet) Descriptor(dagMode bool) (string, error) {
	if s.jobs.len() == 0 {
		return "", fmt.Errorf("%s: %w", s.descriptorFile, ErrNoJobs)
	}

	values := s.templateValues()
	if unused := s.template.Unused(values); len(unused) > 0 {
		s.logger.Debug("Leftover tokens in job file", zap.Strings("tokens", unused))
	}

	var b strings.Builder
	b.WriteString(s.template.Render(values))
	if dagMode {
		fmt.Fprintf(&b, "arguments=$(%s)\n", JobVarName)
		b.WriteString("queue\n")
		return b.String(), nil
	}
	for _, job := range s.jobs.values() {
		args, err := job.ArgumentString()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n# %s\n", job.Name())
		fmt.Fprintf(&b, "arguments=\"%s\"\n", args)
		fmt.Fprintf(&b, "\nqueue %d\n", job.Quantity())
	}
	return b.String(), nil
}

// WriteDescriptor renders the descriptor and writes it to the descriptor file.
func (s *JobSet) WriteDescriptor(dagMode bool) error {
	contents, err := s.Descriptor(dagMode)
	if err != nil {
		return err
	}
	s.logger.Info("Writing HTCondor job file", zap.String("file", s.descriptorFile))
	if dir := filepath.Dir(s.descriptorFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write descriptor: %w", err)
		}
	}
	if err := os.WriteFile(s.descriptorFile, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// TransferInputs copies every member job's inputs to shared storage. A
// shared executable and setup script are copied once, to the shared root.
func (s *JobSet) TransferInputs(ctx context.Context) error {
	var shared []string
	if s.shareExeSetup {
		if s.copyExe {
			shared = append(shared, s.exe)
		}
		if s.setupScript != "" {
			shared = append(shared, s.setupScript)
		}
	}
	var pending []FileMirror
	for _, f := range shared {
		if m := newMirror(f, s.sharedRoot, s.namespacePrefix); m.NeedsCopy() {
			pending = append(pending, m)
		}
	}

	if len(pending) > 0 {
		store, err := s.store()
		if err != nil {
			return err
		}
		if err := store.MkdirAll(ctx, s.sharedRoot); err != nil {
			return err
		}
		for _, m := range pending {
			s.logger.Info("Copying", zap.String("src", m.Original), zap.String("dst", m.Mirror))
			if err := store.CopyFromLocal(ctx, m.Original, m.Mirror); err != nil {
				return err
			}
		}
	}

	for _, job := range s.jobs.values() {
		if err := job.Transfer(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Submit writes the descriptor, transfers inputs and hands the descriptor to
// the scheduler.
func (s *JobSet) Submit(ctx context.Context) (*Submission, error) {
	if s.submitter == nil {
		return nil, ErrNoSubmitter
	}
	if err := s.WriteDescriptor(false); err != nil {
		return nil, err
	}
	if err := s.TransferInputs(ctx); err != nil {
		return nil, err
	}
	if err := s.submitter.SubmitJobs(ctx, s.descriptorFile); err != nil {
		return nil, err
	}

	sub := &Submission{
		Kind:    KindJobSet,
		File:    s.descriptorFile,
		Jobs:    s.jobs.names(),
		Outputs: []OutputLocations{s.Outputs()},
	}
	s.logOutputs()
	if s.recorder != nil {
		if err := s.recorder.RecordSubmission(ctx, *sub); err != nil {
			return sub, fmt.Errorf("record submission: %w", err)
		}
	}
	return sub, nil
}

func (s *JobSet) logOutputs() {
	o := s.Outputs()
	if o.Shared() {
		s.logger.Info("Output/error/htcondor logs written", zap.String("dir", o.Stdout))
		return
	}
	s.logger.Info("STDOUT written", zap.String("dir", o.Stdout))
	s.logger.Info("STDERR written", zap.String("dir", o.Stderr))
	s.logger.Info("HTCondor log written", zap.String("dir", o.Log))
}
