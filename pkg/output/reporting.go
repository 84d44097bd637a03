package output

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/3leaps/gocondense/pkg/provider"
)

// ReportingProvider emits a TransferRecord for every copy made through the
// wrapped provider and keeps running totals for the summary.
type ReportingProvider struct {
	inner  provider.Provider
	w      Writer
	clock  clock.Clock
	logger *zap.Logger

	copies     atomic.Int64
	copyErrors atomic.Int64
	bytes      atomic.Int64
}

var _ provider.Provider = (*ReportingProvider)(nil)

// NewReportingProvider wraps p. A nil clock uses the wall clock; a nil
// logger discards write failures.
func NewReportingProvider(p provider.Provider, w Writer, c clock.Clock, logger *zap.Logger) *ReportingProvider {
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportingProvider{inner: p, w: w, clock: c, logger: logger}
}

func (r *ReportingProvider) CopyFromLocal(ctx context.Context, src, dst string) error {
	start := r.clock.Now()
	err := r.inner.CopyFromLocal(ctx, src, dst)

	rec := &TransferRecord{Src: src, Dst: dst, Duration: r.clock.Since(start)}
	if err != nil {
		r.copyErrors.Add(1)
		rec.Error = err.Error()
	} else {
		r.copies.Add(1)
		if info, statErr := os.Stat(src); statErr == nil {
			rec.Bytes = info.Size()
			r.bytes.Add(info.Size())
		}
	}
	if werr := r.w.WriteTransfer(context.WithoutCancel(ctx), rec); werr != nil {
		r.logger.Warn("Failed to write transfer record", zap.String("dst", dst), zap.Error(werr))
	}
	return err
}

func (r *ReportingProvider) MkdirAll(ctx context.Context, dir string) error {
	return r.inner.MkdirAll(ctx, dir)
}

func (r *ReportingProvider) Close() error { return r.inner.Close() }

// Summarize fills the copy totals of sum.
func (r *ReportingProvider) Summarize(sum *SummaryRecord) {
	sum.Copies = r.copies.Load()
	sum.CopyErrors = r.copyErrors.Load()
	sum.BytesCopied = r.bytes.Load()
}
