package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DAGMan defaults.
const (
	DefaultDAGFile      = "jobs.dag"
	DefaultStatusFile   = "jobs.status"
	DefaultStatusPeriod = 30
)

// dagNode is one job's entry in the DAG.
type dagNode struct {
	job      *Job
	vars     string
	retry    int
	requires []string
}

// DAGMan is a dependency graph over Jobs from one or more JobSets. It holds
// references to jobs; their JobSets own them.
type DAGMan struct {
	services

	dagFile      string
	statusFile   string
	statusPeriod int
	dotFile      string
	extra        []KeyValue
	clock        clock.Clock

	nodes *orderedMap[*dagNode]
}

// WithDAGFile sets the DAG descriptor filename.
func WithDAGFile(name string) DAGOption {
	return dagOptionFunc(func(d *DAGMan) { d.dagFile = name })
}

// WithStatusFile sets the node status file and its refresh period in
// seconds. An empty file disables the status directive.
func WithStatusFile(file string, periodSeconds int) DAGOption {
	return dagOptionFunc(func(d *DAGMan) {
		d.statusFile = file
		if periodSeconds > 0 {
			d.statusPeriod = periodSeconds
		}
	})
}

// WithDotFile makes the scheduler write a graphviz file of the DAG.
func WithDotFile(file string) DAGOption {
	return dagOptionFunc(func(d *DAGMan) { d.dotFile = file })
}

// WithDAGOptions appends free-form DAG directives, rendered as `key = value`.
func WithDAGOptions(kv ...KeyValue) DAGOption {
	return dagOptionFunc(func(d *DAGMan) { d.extra = append(d.extra, kv...) })
}

// WithClock sets the clock used for the DAG header timestamp.
func WithClock(c clock.Clock) DAGOption {
	return dagOptionFunc(func(d *DAGMan) {
		if c != nil {
			d.clock = c
		}
	})
}

// NewDAGMan creates an empty DAG.
func NewDAGMan(opts ...DAGOption) *DAGMan {
	d := &DAGMan{
		services:     defaultServices(),
		dagFile:      DefaultDAGFile,
		statusFile:   DefaultStatusFile,
		statusPeriod: DefaultStatusPeriod,
		clock:        clock.New(),
		nodes:        newOrderedMap[*dagNode](),
	}
	for _, opt := range opts {
		opt.applyDAG(d)
	}
	return d
}

func (d *DAGMan) DAGFile() string    { return d.dagFile }
func (d *DAGMan) StatusFile() string { return d.statusFile }
func (d *DAGMan) Len() int           { return d.nodes.len() }

// JobAt returns the i'th job in insertion order.
func (d *DAGMan) JobAt(i int) (*Job, bool) {
	n, ok := d.nodes.at(i)
	if !ok {
		return nil, false
	}
	return n.job, true
}

// Job looks up a node's job by name.
func (d *DAGMan) Job(name string) (*Job, bool) {
	n, ok := d.nodes.get(name)
	if !ok {
		return nil, false
	}
	return n.job, true
}

// Requires returns the prerequisite names of a node.
func (d *DAGMan) Requires(name string) []string {
	n, ok := d.nodes.get(name)
	if !ok {
		return nil
	}
	return append([]string{}, n.requires...)
}

// Add registers job as a node. vars is extra DAG variable text; the job's
// argument string is always added as the jobOpts variable. A retry of 0
// leaves the scheduler default.
func (d *DAGMan) Add(job *Job, requires []Requirement, vars string, retry int) error {
	if job == nil {
		return &TypeMismatchError{Want: "job", Got: "nil"}
	}
	if d.nodes.has(job.Name()) {
		return &DuplicateNameError{Scope: "dag " + d.dagFile, Name: job.Name()}
	}
	names, err := resolveRequirements(requires)
	if err != nil {
		return err
	}
	args, err := job.ArgumentString()
	if err != nil {
		return err
	}

	jobOpts := fmt.Sprintf("%s=\"%s\"", JobVarName, varsEscaper.Replace(args))
	if vars = strings.TrimSpace(vars); vars != "" {
		jobOpts = vars + " " + jobOpts
	}
	d.nodes.put(job.Name(), &dagNode{job: job, vars: jobOpts, retry: retry, requires: names})
	return nil
}

// varsEscaper escapes a value for a double-quoted VARS assignment.
var varsEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// ValidateRequirements checks that every prerequisite of name is a node.
func (d *DAGMan) ValidateRequirements(name string) error {
	n, ok := d.nodes.get(name)
	if !ok {
		return &UnknownPrerequisiteError{Node: name, Missing: []string{name}}
	}
	var missing []string
	for _, r := range n.requires {
		if !d.nodes.has(r) {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return &UnknownPrerequisiteError{Node: name, Missing: missing}
	}
	return nil
}

// ValidateAcyclic expands the prerequisites of name breadth-first and fails
// if name is reachable from itself.
func (d *DAGMan) ValidateAcyclic(name string) error {
	n, ok := d.nodes.get(name)
	if !ok {
		return &UnknownPrerequisiteError{Node: name, Missing: []string{name}}
	}

	type edge struct{ parent, child string }
	queue := make([]edge, 0, len(n.requires))
	for _, r := range n.requires {
		queue = append(queue, edge{parent: r, child: name})
	}
	visited := map[string]bool{}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e.parent == name {
			return &CyclicDependencyError{Node: name, Parent: e.parent, Child: e.child}
		}
		if visited[e.parent] {
			continue
		}
		visited[e.parent] = true
		p, ok := d.nodes.get(e.parent)
		if !ok {
			// Dangling edges are reported by ValidateRequirements.
			continue
		}
		for _, r := range p.requires {
			queue = append(queue, edge{parent: r, child: e.parent})
		}
	}
	return nil
}

// Validate checks requirements and acyclicity for every node, returning all
// failures.
func (d *DAGMan) Validate() error {
	var errs error
	for _, name := range d.nodes.names() {
		errs = multierr.Append(errs, d.ValidateRequirements(name))
		errs = multierr.Append(errs, d.ValidateAcyclic(name))
	}
	return errs
}

// Render validates the graph and returns the DAG descriptor.
func (d *DAGMan) Render() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	contents := []string{"# DAG created at " + d.clock.Now().Format(time.DateTime), ""}
	for _, n := range d.nodes.values() {
		name := n.job.Name()
		contents = append(contents, fmt.Sprintf("JOB %s %s", name, n.job.Owner().DescriptorFile()))
		if n.vars != "" {
			contents = append(contents, fmt.Sprintf("VARS %s %s", name, n.vars))
		}
		if n.retry > 0 {
			contents = append(contents, fmt.Sprintf("RETRY %s %d", name, n.retry))
		}
	}
	for _, n := range d.nodes.values() {
		if len(n.requires) > 0 {
			contents = append(contents, fmt.Sprintf("PARENT %s CHILD %s", strings.Join(n.requires, " "), n.job.Name()))
		}
	}

	if d.statusFile != "" {
		contents = append(contents, "", fmt.Sprintf("NODE_STATUS_FILE %s %s", d.statusFile, strconv.Itoa(d.statusPeriod)))
	}
	if d.dotFile != "" {
		const format = "pdf"
		out := strings.TrimSuffix(d.dotFile, filepath.Ext(d.dotFile)) + "." + format
		contents = append(contents,
			"",
			"# Make a visual representation of this DAG (for PDF format):",
			fmt.Sprintf("# dot -T%s %s -o %s", format, d.dotFile, out),
			"DOT "+d.dotFile,
		)
	}
	if len(d.extra) > 0 {
		contents = append(contents, "")
		for _, kv := range d.extra {
			contents = append(contents, fmt.Sprintf("%s = %s", kv.Key, kv.Value))
		}
	}
	contents = append(contents, "")
	return strings.Join(contents, "\n"), nil
}

// DistinctOwners returns the JobSets of member jobs, each once, in
// first-seen order.
func (d *DAGMan) DistinctOwners() []*JobSet {
	var out []*JobSet
	seen := map[*JobSet]bool{}
	for _, n := range d.nodes.values() {
		owner := n.job.Owner()
		if seen[owner] {
			continue
		}
		seen[owner] = true
		out = append(out, owner)
	}
	return out
}

// Write validates the graph, writes the DAG file and each owner's DAG-mode
// job descriptor.
func (d *DAGMan) Write() error {
	contents, err := d.Render()
	if err != nil {
		return err
	}
	d.logger.Info("Writing DAG", zap.String("file", d.dagFile))
	if dir := filepath.Dir(d.dagFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write dag: %w", err)
		}
	}
	if err := os.WriteFile(d.dagFile, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write dag: %w", err)
	}
	for _, owner := range d.DistinctOwners() {
		if err := owner.WriteDescriptor(true); err != nil {
			return err
		}
	}
	return nil
}

// Submit writes all descriptors, transfers every owner's inputs and hands the
// DAG file to the scheduler.
func (d *DAGMan) Submit(ctx context.Context) (*Submission, error) {
	if d.submitter == nil {
		return nil, ErrNoSubmitter
	}
	if d.nodes.len() == 0 {
		return nil, fmt.Errorf("%s: %w", d.dagFile, ErrNoJobs)
	}
	if err := d.Write(); err != nil {
		return nil, err
	}
	owners := d.DistinctOwners()
	for _, owner := range owners {
		if err := owner.TransferInputs(ctx); err != nil {
			return nil, err
		}
	}
	if err := d.submitter.SubmitDAG(ctx, d.dagFile); err != nil {
		return nil, err
	}

	sub := &Submission{
		Kind:       KindDAG,
		File:       d.dagFile,
		Jobs:       d.nodes.names(),
		StatusFile: d.statusFile,
	}
	for _, owner := range owners {
		sub.Descriptors = append(sub.Descriptors, owner.DescriptorFile())
		sub.Outputs = append(sub.Outputs, owner.Outputs())
	}
	if d.statusFile != "" {
		d.logger.Info("Check DAG status", zap.String("status_file", d.statusFile))
	}
	if d.recorder != nil {
		if err := d.recorder.RecordSubmission(ctx, *sub); err != nil {
			return sub, fmt.Errorf("record submission: %w", err)
		}
	}
	return sub, nil
}
