// Package workflow builds batch-job submissions for an HTCondor-style
// scheduler backed by shared storage.
//
// A Job is one task. Adding it to a JobSet fixes where each of its files
// lives: the original path, a mirror on shared storage, and a name in the
// worker's scratch directory. From those the Job renders the argument string
// for the worker bootstrap script. A JobSet renders one submit descriptor for
// its jobs; a DAGMan layers dependency edges over jobs from any number of
// JobSets and renders a DAG descriptor.
//
// Structure is validated before anything is written or any external command
// runs. Submissions are not transactional: a failed copy or submit leaves
// whatever was already written, and re-running overwrites it.
package workflow
