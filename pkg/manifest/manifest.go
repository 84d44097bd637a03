// Package manifest provides loading and validation of gocondense workflow manifests.
//
// A workflow manifest is a YAML or JSON file that describes one or more job
// sets, the jobs in each, and optionally a DAG wiring those jobs together.
// Manifests are validated against an embedded JSON Schema before they are
// decoded; the schema disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	name: analysis
//	job_sets:
//	  - name: sum
//	    exe: bin/sum.sh
//	    shared_root: /hdfs/user/alice/analysis
//	    log_dir: logs
//	    jobs:
//	      - name: sum-a
//	        args: [a.txt, out_a.txt]
//	        input_files: [data/a.txt]
//	        output_files: [out_a.txt]
//	      - name: merge
//	        arg_string: "out_a.txt merged.txt"
//	        input_files: [/hdfs/user/alice/analysis/sum-a/out_a.txt]
//	        output_files: [merged.txt]
//	dag:
//	  nodes:
//	    - job: sum-a
//	    - job: merge
//	      requires: [sum-a]
//	      retry: 2
package manifest

import (
	"github.com/3leaps/gocondense/pkg/workflow"
)

// Manifest represents a validated workflow manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Name labels the workflow in submission records.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	JobSets []JobSetSpec `json:"job_sets" yaml:"job_sets"`

	// DAG, when present, submits the jobs as one DAG instead of per-set
	// descriptors.
	DAG *DAGSpec `json:"dag,omitempty" yaml:"dag,omitempty"`
}

// JobSetSpec configures one workflow.JobSet.
type JobSetSpec struct {
	Name           string `json:"name,omitempty" yaml:"name,omitempty"`
	Exe            string `json:"exe" yaml:"exe"`
	SetupScript    string `json:"setup_script,omitempty" yaml:"setup_script,omitempty"`
	CopyExe        *bool  `json:"copy_exe,omitempty" yaml:"copy_exe,omitempty"`
	DescriptorFile string `json:"descriptor_file,omitempty" yaml:"descriptor_file,omitempty"`

	// Template is a path to a descriptor template replacing the built-in one.
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// LogDir is the directory for stdout, stderr and scheduler logs unless
	// Stdout, Stderr or Log override it.
	LogDir string      `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	Stdout *OutputSpec `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	Stderr *OutputSpec `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Log    *OutputSpec `json:"log,omitempty" yaml:"log,omitempty"`

	CPUs   int    `json:"cpus,omitempty" yaml:"cpus,omitempty"`
	Memory string `json:"memory,omitempty" yaml:"memory,omitempty"`
	Disk   string `json:"disk,omitempty" yaml:"disk,omitempty"`

	TransferBeforeRun   *bool    `json:"transfer_before_run,omitempty" yaml:"transfer_before_run,omitempty"`
	ShareExeSetup       bool     `json:"share_exe_setup,omitempty" yaml:"share_exe_setup,omitempty"`
	TransferInputFiles  []string `json:"transfer_input_files,omitempty" yaml:"transfer_input_files,omitempty"`
	TransferOutputFiles []string `json:"transfer_output_files,omitempty" yaml:"transfer_output_files,omitempty"`

	SharedRoot   string         `json:"shared_root" yaml:"shared_root"`
	ExtraOptions []KeyValueSpec `json:"extra_options,omitempty" yaml:"extra_options,omitempty"`

	Jobs []JobSpec `json:"jobs" yaml:"jobs"`
}

// OutputSpec overrides the directory and/or filename of one output stream.
type OutputSpec struct {
	Dir  string `json:"dir,omitempty" yaml:"dir,omitempty"`
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// JobSpec configures one workflow.Job.
//
// Args and ArgString are mutually exclusive. ArgString is split with shell
// quoting rules. InputFiles outside shared storage may be glob patterns
// (doublestar syntax); they expand in sorted order.
type JobSpec struct {
	Name        string   `json:"name" yaml:"name"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
	ArgString   string   `json:"arg_string,omitempty" yaml:"arg_string,omitempty"`
	InputFiles  []string `json:"input_files,omitempty" yaml:"input_files,omitempty"`
	OutputFiles []string `json:"output_files,omitempty" yaml:"output_files,omitempty"`
	Quantity    int      `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	MirrorDir   string   `json:"mirror_dir,omitempty" yaml:"mirror_dir,omitempty"`
}

// DAGSpec configures a workflow.DAGMan over jobs declared in JobSets.
type DAGSpec struct {
	File         string         `json:"file,omitempty" yaml:"file,omitempty"`
	StatusFile   string         `json:"status_file,omitempty" yaml:"status_file,omitempty"`
	StatusPeriod int            `json:"status_period,omitempty" yaml:"status_period,omitempty"`
	DotFile      string         `json:"dot_file,omitempty" yaml:"dot_file,omitempty"`
	Options      []KeyValueSpec `json:"options,omitempty" yaml:"options,omitempty"`
	Nodes        []DAGNodeSpec  `json:"nodes" yaml:"nodes"`
}

// DAGNodeSpec places a job in the DAG. Requires lists job names.
type DAGNodeSpec struct {
	Job      string   `json:"job" yaml:"job"`
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	Vars     string   `json:"vars,omitempty" yaml:"vars,omitempty"`
	Retry    int      `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// KeyValueSpec is an ordered free-form descriptor option.
type KeyValueSpec struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DescriptorExt is appended to a named job set to derive its descriptor file.
	DescriptorExt = ".condor"
)

// ApplyDefaults fills in default values for optional fields.
//
// Named job sets without a descriptor file get "<name>.condor"; unnamed ones
// fall back to workflow.DefaultDescriptorFile.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	for i := range m.JobSets {
		js := &m.JobSets[i]
		if js.CopyExe == nil {
			v := true
			js.CopyExe = &v
		}
		if js.TransferBeforeRun == nil {
			v := true
			js.TransferBeforeRun = &v
		}
		if js.DescriptorFile == "" {
			if js.Name != "" {
				js.DescriptorFile = js.Name + DescriptorExt
			} else {
				js.DescriptorFile = workflow.DefaultDescriptorFile
			}
		}
		if js.LogDir == "" {
			js.LogDir = workflow.DefaultLogDir
		}
		for j := range js.Jobs {
			if js.Jobs[j].Quantity == 0 {
				js.Jobs[j].Quantity = 1
			}
		}
	}

	if m.DAG == nil {
		return
	}
	if m.DAG.File == "" {
		m.DAG.File = workflow.DefaultDAGFile
	}
	if m.DAG.StatusFile == "" {
		m.DAG.StatusFile = workflow.DefaultStatusFile
	}
	if m.DAG.StatusPeriod == 0 {
		m.DAG.StatusPeriod = workflow.DefaultStatusPeriod
	}
}

// JobCount returns the number of jobs across all job sets.
func (m *Manifest) JobCount() int {
	n := 0
	for _, js := range m.JobSets {
		n += len(js.Jobs)
	}
	return n
}

func keyValues(in []KeyValueSpec) []workflow.KeyValue {
	if len(in) == 0 {
		return nil
	}
	out := make([]workflow.KeyValue, len(in))
	for i, kv := range in {
		out[i] = workflow.KeyValue{Key: kv.Key, Value: kv.Value}
	}
	return out
}
