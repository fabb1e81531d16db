package worker

import (
	"context"
	"sync"
)

// Task is one queued unit of work, typically a single provider poll
// cycle submitted by the ingestion manager.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed number of goroutines, bounding
// how many provider cycles execute at once.
type Pool struct {
	numWorkers int
	tasks      chan Task
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, bufferSize int) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, bufferSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(ctx)
		}
	}
}

// Submit queues a task and reports whether it was accepted. Once ctx
// is cancelled the workers stop draining the queue, so a send on a
// full buffer must give up rather than block shutdown.
func (p *Pool) Submit(ctx context.Context, task Task) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}
