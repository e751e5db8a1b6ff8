// Package fanout delivers one message to many recipients concurrently,
// bounded by a worker cap, with per-recipient failures isolated.
package fanout

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"herald/pkg/logx"
)

const DefaultWorkers = 20

type Config struct {
	// Workers caps concurrent deliveries. <=0 means DefaultWorkers.
	Workers int
	// RatePerSec throttles sends globally. <=0 disables the limiter.
	RatePerSec int
}

// Report counts the outcome of one Deliver call.
type Report struct {
	Total  int
	Sent   int
	Failed int
}

type Pool struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Pool {
	p := &Pool{log: log}
	p.Apply(cfg)
	return p
}

// Apply swaps the worker cap and rate limit at runtime. In-flight Deliver
// calls keep the settings they started with.
func (p *Pool) Apply(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	if cfg.RatePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		p.limiter = nil
	}
}

// Deliver runs send once per recipient with at most Workers in flight.
// A failed send is logged and counted; it never cancels or delays the other
// recipients. The returned error is non-nil only when ctx was cancelled
// before every recipient could be scheduled; the Report still covers
// whatever was attempted.
func (p *Pool) Deliver(ctx context.Context, recipients []int64, send func(ctx context.Context, userID int64) error) (Report, error) {
	p.mu.Lock()
	workers := p.cfg.Workers
	lim := p.limiter
	p.mu.Unlock()
	if workers <= 0 {
		workers = DefaultWorkers
	}

	rep := Report{Total: len(recipients)}
	if len(recipients) == 0 {
		return rep, nil
	}

	var (
		wg           sync.WaitGroup
		sent, failed atomic.Int64
	)
	sem := make(chan struct{}, workers)

	var schedErr error
	for _, id := range recipients {
		select {
		case <-ctx.Done():
			schedErr = ctx.Err()
		case sem <- struct{}{}:
		}
		if schedErr != nil {
			break
		}

		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					failed.Add(1)
					return
				}
			}
			if err := send(ctx, id); err != nil {
				failed.Add(1)
				p.log.Warn("delivery failed", logx.Int64("user_id", id), logx.Err(err))
				return
			}
			sent.Add(1)
		}(id)
	}
	wg.Wait()

	rep.Sent = int(sent.Load())
	rep.Failed = int(failed.Load())
	return rep, schedErr
}
