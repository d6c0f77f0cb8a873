package web

import (
	"context"
	"sync"
)

// jobPool runs submitted work on a fixed number of workers. The queue is
// bounded; Submit refuses work instead of blocking the request.
type jobPool struct {
	queue   chan func(context.Context)
	workers int
	wg      sync.WaitGroup
}

func newJobPool(workers, queueSize int) *jobPool {
	return &jobPool{
		queue:   make(chan func(context.Context), max(queueSize, 0)),
		workers: max(workers, 1),
	}
}

// Start launches the workers. They exit when ctx is done; queued work that
// never started is dropped.
func (p *jobPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *jobPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.queue:
			fn(ctx)
		}
	}
}

// Submit queues fn and reports whether there was room.
func (p *jobPool) Submit(fn func(context.Context)) bool {
	select {
	case p.queue <- fn:
		return true
	default:
		return false
	}
}

// Wait blocks until every worker has exited.
func (p *jobPool) Wait() {
	p.wg.Wait()
}
