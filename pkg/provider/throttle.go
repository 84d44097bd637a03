package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled limits the rate of copies issued to an underlying Provider.
//
// Large fan-out submissions can otherwise saturate the submission host and
// the storage namenode. MkdirAll is not throttled.
type Throttled struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ Provider = (*Throttled)(nil)

// NewThrottled wraps p so that at most perSecond copies start each second.
// A perSecond <= 0 returns p unchanged.
func NewThrottled(p Provider, perSecond float64, burst int) Provider {
	if perSecond <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{inner: p, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) CopyFromLocal(ctx context.Context, src, dst string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.inner.CopyFromLocal(ctx, src, dst)
}

func (t *Throttled) MkdirAll(ctx context.Context, dir string) error {
	return t.inner.MkdirAll(ctx, dir)
}

func (t *Throttled) Close() error { return t.inner.Close() }
