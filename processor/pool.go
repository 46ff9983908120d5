package processor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/convopipe/core"
)

// PoolOptions holds configuration overrides passed to NewPool().
type PoolOptions struct {
	// MaxConcurrent caps how many deliveries run at the same time.
	MaxConcurrent int
}

// Pool fans inbound deliveries out over a bounded number of workers. Per
// conversation, optimistic versioning and fingerprint admission keep
// concurrent deliveries correct; the pool only provides the parallelism.
type Pool struct {
	proc  *Processor
	limit int
}

// NewPool constructs a Pool around proc.
func NewPool(proc *Processor, optFns ...func(o *PoolOptions)) *Pool {
	opts := PoolOptions{MaxConcurrent: proc.cfg.MaxConcurrentDeliveries}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Pool{proc: proc, limit: opts.MaxConcurrent}
}

// ProcessAll processes every event and returns the per-event results in
// input order. The first hard failure cancels the remaining work; events
// that never started keep their admission untouched, so the queue's
// redelivery picks them up cleanly.
func (p *Pool) ProcessAll(ctx context.Context, events []core.InboundEvent) ([]Result, error) {
	results := make([]Result, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			r, err := p.proc.Process(gctx, ev)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
