package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
)

// Writer emits event records.
//
// Implementations must be safe for concurrent use. Each Write* method emits
// a complete record as a single line of JSON followed by a newline.
type Writer interface {
	WriteTransfer(ctx context.Context, transfer *TransferRecord) error
	WriteSubmission(ctx context.Context, sub *SubmissionRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
// Writes are serialized so lines never interleave.
type JSONLWriter struct {
	w        io.Writer
	runID    string
	workflow string
	clock    clock.Clock
	mu       sync.Mutex

	closed bool
}

// WriterOption configures a JSONLWriter.
type WriterOption func(*JSONLWriter)

// WithWriterClock sets the clock used for record timestamps.
func WithWriterClock(c clock.Clock) WriterOption {
	return func(jw *JSONLWriter) {
		if c != nil {
			jw.clock = c
		}
	}
}

// NewJSONLWriter creates a writer tagging every record with runID and the
// workflow name.
func NewJSONLWriter(w io.Writer, runID, workflowName string, opts ...WriterOption) *JSONLWriter {
	jw := &JSONLWriter{
		w:        w,
		runID:    runID,
		workflow: workflowName,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(jw)
	}
	return jw
}

func (jw *JSONLWriter) WriteTransfer(ctx context.Context, transfer *TransferRecord) error {
	return jw.writeRecord(ctx, TypeTransfer, transfer)
}

func (jw *JSONLWriter) WriteSubmission(ctx context.Context, sub *SubmissionRecord) error {
	return jw.writeRecord(ctx, TypeSubmission, sub)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record{
		Type:     recordType,
		TS:       jw.clock.Now().UTC(),
		RunID:    jw.runID,
		Workflow: jw.workflow,
		Data:     dataBytes,
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

// writeAll writes all of p, looping over short writes.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
