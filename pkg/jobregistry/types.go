package jobregistry

import (
	"time"

	"github.com/3leaps/gocondense/pkg/workflow"
)

// SubmissionState is the outcome of handing a descriptor to the scheduler.
//
// NOTE: These values are persisted in submission.json and are part of the
// stable on-disk contract.
type SubmissionState string

const (
	SubmissionStateSubmitted SubmissionState = "submitted"
	SubmissionStateFailed    SubmissionState = "failed"
)

// StoreIdentity is a minimal summary of the shared storage used, captured
// for operator clarity.
type StoreIdentity struct {
	Backend         string `json:"backend,omitempty"`
	NamespacePrefix string `json:"namespace_prefix,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
}

// SubmissionRecord is the persistent record written to submission.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type SubmissionRecord struct {
	SubmissionID string                     `json:"submission_id"`
	Name         string                     `json:"name,omitempty"`
	Kind         workflow.SubmissionKind    `json:"kind"`
	State        SubmissionState            `json:"state"`
	File         string                     `json:"file"`
	Descriptors  []string                   `json:"descriptors,omitempty"`
	Jobs         []string                   `json:"jobs,omitempty"`
	StatusFile   string                     `json:"status_file,omitempty"`
	Outputs      []workflow.OutputLocations `json:"outputs,omitempty"`
	ManifestPath string                     `json:"manifest_path,omitempty"`
	Error        string                     `json:"error,omitempty"`
	SubmittedAt  time.Time                  `json:"submitted_at"`
	Identity     *StoreIdentity             `json:"store_identity,omitempty"`
}
