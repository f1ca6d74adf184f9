package feedback

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer serializes all language-model calls process-wide and spaces
// them out under the upstream's per-minute quota. Sessions contend for
// the same pacer, so a burst of connections queues rather than fails.
type Pacer struct {
	mu      sync.Mutex
	spacing *rate.Limiter
	quota   *rate.Limiter
}

// NewPacer builds a pacer enforcing a minimum interval between calls
// and a refillable per-minute budget.
func NewPacer(minInterval time.Duration, perMinute int) *Pacer {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if perMinute <= 0 {
		perMinute = 15
	}
	return &Pacer{
		spacing: rate.NewLimiter(rate.Every(minInterval), 1),
		quota:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

// Acquire blocks until the caller may issue one model call. The pacer
// stays held until Release, so calls never overlap.
func (p *Pacer) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if err := p.spacing.Wait(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	if err := p.quota.Wait(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	return nil
}

// Release frees the pacer for the next caller.
func (p *Pacer) Release() {
	p.mu.Unlock()
}
