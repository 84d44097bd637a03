package workflow

// SubmissionKind distinguishes plain job-set submissions from DAG submissions.
type SubmissionKind string

const (
	KindJobSet SubmissionKind = "jobset"
	KindDAG    SubmissionKind = "dag"
)

// OutputLocations are the resolved local directories of a JobSet's
// scheduler logs.
type OutputLocations struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Log    string `json:"log"`
}

// Shared reports whether all three streams go to the same directory.
func (o OutputLocations) Shared() bool {
	return o.Stdout == o.Stderr && o.Stderr == o.Log
}

// Submission describes what was handed to the scheduler.
type Submission struct {
	Kind SubmissionKind `json:"kind"`

	// File is the submitted descriptor: the job descriptor or the DAG file.
	File string `json:"file"`

	// Descriptors lists the job descriptors written for a DAG, one per JobSet.
	Descriptors []string `json:"descriptors,omitempty"`

	// Jobs lists job names in submission order.
	Jobs []string `json:"jobs"`

	// StatusFile is the DAG node status file, if any.
	StatusFile string `json:"status_file,omitempty"`

	// Outputs holds log locations, one entry per JobSet.
	Outputs []OutputLocations `json:"outputs"`
}
