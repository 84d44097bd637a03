// Package output provides a JSONL event stream for submissions.
//
// Each line is a typed envelope carrying one event: a file copied to shared
// storage, a submission accepted by the scheduler, an error, or the final
// summary. Lines are self-contained and can be parsed independently.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/gocondense/pkg/provider"
	"github.com/3leaps/gocondense/pkg/workflow"
)

// Record type constants follow the pattern gocondense.<type>.v<version>.
const (
	TypeTransfer   = "gocondense.transfer.v1"
	TypeSubmission = "gocondense.submission.v1"
	TypeError      = "gocondense.error.v1"
	TypeSummary    = "gocondense.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`

	// RunID correlates every record of one command invocation.
	RunID string `json:"run_id"`

	// Workflow is the manifest name, if any.
	Workflow string `json:"workflow,omitempty"`

	Data json.RawMessage `json:"data"`
}

// TransferRecord describes one copy onto shared storage.
type TransferRecord struct {
	Src      string        `json:"src"`
	Dst      string        `json:"dst"`
	Bytes    int64         `json:"bytes,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// SubmissionRecord is the payload for an accepted submission.
type SubmissionRecord struct {
	workflow.Submission
}

// ErrorRecord is the payload for a failure.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Path is the file or shared-storage path involved, if known.
	Path string `json:"path,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeAccessDenied = "ACCESS_DENIED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeThrottled    = "THROTTLED"
	ErrCodeUnavailable  = "UNAVAILABLE"
	ErrCodeInternal     = "INTERNAL"
)

// ErrorCode classifies err for an ErrorRecord.
func ErrorCode(err error) string {
	switch {
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return ErrCodeAccessDenied
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return ErrCodeNotFound
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// SummaryRecord is emitted once, after the last submission attempt.
type SummaryRecord struct {
	Submissions   int           `json:"submissions"`
	Jobs          int           `json:"jobs"`
	Copies        int64         `json:"copies"`
	CopyErrors    int64         `json:"copy_errors"`
	BytesCopied   int64         `json:"bytes_copied"`
	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
	Failed        bool          `json:"failed"`
}

var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // e.g. "marshal_data", "write"
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
