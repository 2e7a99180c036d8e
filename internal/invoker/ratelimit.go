package invoker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps an invoker with a token-bucket limiter so bursts of
// parallel validators don't overwhelm a throttled collaborator backend.
type RateLimited struct {
	inner   Invoker
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with the given sustained rate and burst.
func NewRateLimited(inner Invoker, perSecond float64, burst int) (*RateLimited, error) {
	if inner == nil {
		return nil, errors.New("inner invoker is required")
	}
	if perSecond <= 0 || burst <= 0 {
		return nil, errors.New("rate and burst must be positive")
	}

	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

// Invoke blocks for a token, then delegates. Waiting counts against the
// caller's deadline.
func (r *RateLimited) Invoke(ctx context.Context, req *Request) (*Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for stage %s: %w", req.Stage, err)
	}
	return r.inner.Invoke(ctx, req)
}
