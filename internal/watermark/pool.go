package watermark

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ypk/contentguard/internal/metrics"
)

// ErrOverloaded is returned when the compositing pool cannot accept a new
// job within the submission window. Callers must deny rather than serve
// unwatermarked content.
var ErrOverloaded = errors.New("compositor pool saturated")

type task struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Pool runs compositing jobs on a fixed set of workers with a bounded
// queue, keeping CPU-heavy stamping off the request-handling goroutines.
type Pool struct {
	queue   chan task
	wait    time.Duration
	workers int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewPool(workers, depth int, submitWait time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	return &Pool{
		queue:   make(chan task, depth),
		wait:    submitWait,
		workers: workers,
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	slog.Info("compositor pool started", "workers", p.workers, "queue_depth", cap(p.queue))
}

func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("compositor pool stopped")
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			metrics.CompositorQueueDepth.Set(float64(len(p.queue)))
			t.done <- t.fn(ctx)
		}
	}
}

// Do submits fn and waits for it to finish. When the queue does not
// accept the job within the submission window, Do returns ErrOverloaded
// without running fn.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{fn: fn, done: make(chan error, 1)}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case p.queue <- t:
		metrics.CompositorQueueDepth.Set(float64(len(p.queue)))
	case <-timer.C:
		metrics.CompositorRejected.Inc()
		return ErrOverloaded
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
