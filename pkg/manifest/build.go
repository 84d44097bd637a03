package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/3leaps/gocondense/pkg/bootstrap"
	"github.com/3leaps/gocondense/pkg/descriptor"
	"github.com/3leaps/gocondense/pkg/provider"
	"github.com/3leaps/gocondense/pkg/workflow"
)

// BuildOptions supplies the services and site settings a manifest does not
// carry itself.
type BuildOptions struct {
	// BaseDir anchors relative local paths, usually the manifest's directory.
	BaseDir string

	NamespacePrefix string
	WorkerScript    string

	Provider  provider.Provider
	Submitter workflow.Submitter
	Recorder  workflow.Recorder
	Logger    *zap.Logger
	Clock     clock.Clock
}

// Workflow is a manifest turned into workflow objects, ready to render or
// submit.
type Workflow struct {
	Name    string
	JobSets []*workflow.JobSet

	// DAG is nil when the manifest has no dag section.
	DAG *workflow.DAGMan
}

// Build constructs the JobSets, Jobs and optional DAGMan a manifest
// describes. Job names must be unique across the manifest, since DAG nodes
// refer to jobs by name. DAG structure is validated before Build returns.
func Build(m *Manifest, opts BuildOptions) (*Workflow, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NamespacePrefix == "" {
		opts.NamespacePrefix = workflow.DefaultNamespacePrefix
	}

	w := &Workflow{Name: m.Name}
	jobs := make(map[string]*workflow.Job, m.JobCount())
	descriptors := make(map[string]int, len(m.JobSets))

	for i := range m.JobSets {
		spec := &m.JobSets[i]
		set, err := buildJobSet(spec, opts)
		if err != nil {
			return nil, fmt.Errorf("job_sets[%d]: %w", i, err)
		}
		if prev, dup := descriptors[set.DescriptorFile()]; dup {
			return nil, fmt.Errorf("job_sets[%d]: %w (also used by job_sets[%d])", i,
				&workflow.DuplicateNameError{Scope: "descriptor files", Name: set.DescriptorFile()}, prev)
		}
		descriptors[set.DescriptorFile()] = i

		for j := range spec.Jobs {
			job, err := buildJob(&spec.Jobs[j], opts)
			if err != nil {
				return nil, fmt.Errorf("job_sets[%d].jobs[%d]: %w", i, j, err)
			}
			if _, dup := jobs[job.Name()]; dup {
				return nil, fmt.Errorf("job_sets[%d].jobs[%d]: %w", i, j,
					&workflow.DuplicateNameError{Scope: "manifest", Name: job.Name()})
			}
			if err := set.Add(job); err != nil {
				return nil, fmt.Errorf("job_sets[%d].jobs[%d]: %w", i, j, err)
			}
			jobs[job.Name()] = job
		}
		w.JobSets = append(w.JobSets, set)
	}

	if m.DAG != nil {
		dag, err := buildDAG(m.DAG, jobs, opts)
		if err != nil {
			return nil, fmt.Errorf("dag: %w", err)
		}
		w.DAG = dag
	}
	return w, nil
}

func buildJobSet(spec *JobSetSpec, opts BuildOptions) (*workflow.JobSet, error) {
	base := opts.BaseDir
	logDir := resolveLocal(base, spec.LogDir)

	setOpts := []workflow.JobSetOption{
		workflow.WithLogger(opts.Logger.With(zap.String("job_set", spec.DescriptorFile))),
		workflow.WithNamespacePrefix(opts.NamespacePrefix),
		workflow.WithSharedRoot(spec.SharedRoot),
		workflow.WithDescriptorFile(resolveLocal(base, spec.DescriptorFile)),
		workflow.WithLogDir(logDir),
		workflow.WithResources(spec.CPUs, spec.Memory, spec.Disk),
		workflow.WithShareExeSetup(spec.ShareExeSetup),
		workflow.WithTransferFiles(spec.TransferInputFiles, spec.TransferOutputFiles),
		workflow.WithExtraOptions(keyValues(spec.ExtraOptions)...),
	}
	if spec.CopyExe != nil {
		setOpts = append(setOpts, workflow.WithCopyExe(*spec.CopyExe))
	}
	if spec.TransferBeforeRun != nil {
		setOpts = append(setOpts, workflow.WithTransferBeforeRun(*spec.TransferBeforeRun))
	}
	if spec.SetupScript != "" {
		setOpts = append(setOpts, workflow.WithSetupScript(localOrShared(base, opts.NamespacePrefix, spec.SetupScript)))
	}
	if spec.Stdout != nil {
		setOpts = append(setOpts, workflow.WithStdout(outputDir(base, logDir, spec.Stdout), outputFile(spec.Stdout, workflow.DefaultStdoutFile)))
	}
	if spec.Stderr != nil {
		setOpts = append(setOpts, workflow.WithStderr(outputDir(base, logDir, spec.Stderr), outputFile(spec.Stderr, workflow.DefaultStderrFile)))
	}
	if spec.Log != nil {
		setOpts = append(setOpts, workflow.WithLog(outputDir(base, logDir, spec.Log), outputFile(spec.Log, workflow.DefaultLogFile)))
	}
	if spec.Template != "" {
		tmpl, err := descriptor.Load(resolveLocal(base, spec.Template))
		if err != nil {
			return nil, err
		}
		setOpts = append(setOpts, workflow.WithTemplate(tmpl))
	}
	if opts.WorkerScript != "" {
		setOpts = append(setOpts, workflow.WithWorkerScript(opts.WorkerScript))
	}
	if opts.Provider != nil {
		setOpts = append(setOpts, workflow.WithProvider(opts.Provider))
	}
	if opts.Submitter != nil {
		setOpts = append(setOpts, workflow.WithSubmitter(opts.Submitter))
	}
	if opts.Recorder != nil {
		setOpts = append(setOpts, workflow.WithRecorder(opts.Recorder))
	}

	return workflow.NewJobSet(localOrShared(base, opts.NamespacePrefix, spec.Exe), setOpts...)
}

func buildJob(spec *JobSpec, opts BuildOptions) (*workflow.Job, error) {
	inputs, resolved, err := expandInputs(opts.BaseDir, opts.NamespacePrefix, spec.InputFiles)
	if err != nil {
		return nil, err
	}
	args := spec.Args
	if spec.ArgString != "" {
		args = bootstrap.SplitArgs(spec.ArgString)
	}
	jobOpts := []workflow.JobOption{
		workflow.WithArgs(resolveArgs(args, resolved)...),
		workflow.WithInputFiles(inputs...),
		workflow.WithOutputFiles(spec.OutputFiles...),
	}
	if spec.Quantity != 0 {
		jobOpts = append(jobOpts, workflow.WithQuantity(spec.Quantity))
	}
	if spec.MirrorDir != "" {
		jobOpts = append(jobOpts, workflow.WithMirrorDir(spec.MirrorDir))
	}
	return workflow.NewJob(spec.Name, jobOpts...)
}

func buildDAG(spec *DAGSpec, jobs map[string]*workflow.Job, opts BuildOptions) (*workflow.DAGMan, error) {
	base := opts.BaseDir
	dagOpts := []workflow.DAGOption{
		workflow.WithLogger(opts.Logger.With(zap.String("dag", spec.File))),
		workflow.WithDAGFile(resolveLocal(base, spec.File)),
		workflow.WithStatusFile(resolveLocal(base, spec.StatusFile), spec.StatusPeriod),
		workflow.WithDAGOptions(keyValues(spec.Options)...),
	}
	if spec.DotFile != "" {
		dagOpts = append(dagOpts, workflow.WithDotFile(resolveLocal(base, spec.DotFile)))
	}
	if opts.Clock != nil {
		dagOpts = append(dagOpts, workflow.WithClock(opts.Clock))
	}
	if opts.Submitter != nil {
		dagOpts = append(dagOpts, workflow.WithSubmitter(opts.Submitter))
	}
	if opts.Recorder != nil {
		dagOpts = append(dagOpts, workflow.WithRecorder(opts.Recorder))
	}

	dag := workflow.NewDAGMan(dagOpts...)
	for i, node := range spec.Nodes {
		job, ok := jobs[node.Job]
		if !ok {
			return nil, fmt.Errorf("nodes[%d]: unknown job %q", i, node.Job)
		}
		if err := dag.Add(job, workflow.Names(node.Requires...), node.Vars, node.Retry); err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
	}
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	return dag, nil
}

// localOrShared resolves p against base unless it is a shared-storage path.
func localOrShared(base, namespacePrefix, p string) string {
	if namespacePrefix != "" && strings.HasPrefix(p, namespacePrefix) {
		return p
	}
	return resolveLocal(base, p)
}

func outputDir(base, logDir string, o *OutputSpec) string {
	if o.Dir == "" {
		return logDir
	}
	return resolveLocal(base, o.Dir)
}

func outputFile(o *OutputSpec, def string) string {
	if o.File == "" {
		return def
	}
	return o.File
}

// Descriptors lists the descriptor files Write produces.
func (w *Workflow) Descriptors() []string {
	out := make([]string, 0, len(w.JobSets)+1)
	if w.DAG != nil {
		out = append(out, w.DAG.DAGFile())
		for _, set := range w.DAG.DistinctOwners() {
			out = append(out, set.DescriptorFile())
		}
		return out
	}
	for _, set := range w.JobSets {
		out = append(out, set.DescriptorFile())
	}
	return out
}

// Write renders descriptors to disk without transferring or submitting.
// With a DAG, the DAG file and DAG-mode descriptors of its job sets are
// written; otherwise every job set gets a standalone descriptor.
func (w *Workflow) Write() error {
	if w.DAG != nil {
		return w.DAG.Write()
	}
	for _, set := range w.JobSets {
		if err := set.WriteDescriptor(false); err != nil {
			return err
		}
	}
	return nil
}

// Submit submits the DAG, or each job set in order when there is none. It
// stops at the first failure and returns the submissions accepted so far.
func (w *Workflow) Submit(ctx context.Context) ([]*workflow.Submission, error) {
	if w.DAG != nil {
		sub, err := w.DAG.Submit(ctx)
		if err != nil {
			return nil, err
		}
		return []*workflow.Submission{sub}, nil
	}

	subs := make([]*workflow.Submission, 0, len(w.JobSets))
	for _, set := range w.JobSets {
		sub, err := set.Submit(ctx)
		if err != nil {
			return subs, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Plan describes the submissions Submit would make, without touching disk,
// shared storage or the scheduler.
func (w *Workflow) Plan() []workflow.Submission {
	if w.DAG != nil {
		sub := workflow.Submission{
			Kind:       workflow.KindDAG,
			File:       w.DAG.DAGFile(),
			StatusFile: w.DAG.StatusFile(),
		}
		for i := 0; i < w.DAG.Len(); i++ {
			job, _ := w.DAG.JobAt(i)
			sub.Jobs = append(sub.Jobs, job.Name())
		}
		for _, owner := range w.DAG.DistinctOwners() {
			sub.Descriptors = append(sub.Descriptors, owner.DescriptorFile())
			sub.Outputs = append(sub.Outputs, owner.Outputs())
		}
		return []workflow.Submission{sub}
	}

	plan := make([]workflow.Submission, 0, len(w.JobSets))
	for _, set := range w.JobSets {
		sub := workflow.Submission{
			Kind:    workflow.KindJobSet,
			File:    set.DescriptorFile(),
			Outputs: []workflow.OutputLocations{set.Outputs()},
		}
		for _, job := range set.Jobs() {
			sub.Jobs = append(sub.Jobs, job.Name())
		}
		plan = append(plan, sub)
	}
	return plan
}
