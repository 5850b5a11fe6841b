package utils

import (
	"context"
	"fmt"
	"sync"
)

// Job represents a unit of work executed by a pool worker. Failures are
// encoded in the returned value, never raised, so the pool carries no
// separate error channel.
type Job func() interface{}

// WorkerPool manages a fixed-width pool of goroutines. The queue and
// result buffers must be sized by the caller so that a full group of jobs
// can be submitted before collection starts (the scheduler sizes them to
// its batch size).
type WorkerPool struct {
	numWorkers int
	jobQueue   chan Job
	results    chan interface{}
	ctx        context.Context
	cancel     context.CancelFunc
	shutdownWg sync.WaitGroup
	mu         sync.Mutex
	isClosed   bool
}

// NewWorkerPool creates and starts a new WorkerPool.
func NewWorkerPool(parentCtx context.Context, numWorkers int, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(parentCtx)
	wp := &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, queueSize),
		results:    make(chan interface{}, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	wp.start()
	return wp
}

func (wp *WorkerPool) start() {
	wp.shutdownWg.Add(wp.numWorkers)
	for i := 0; i < wp.numWorkers; i++ {
		go wp.worker()
	}

	// Close the result channel only after every worker has exited.
	go func() {
		wp.shutdownWg.Wait()
		close(wp.results)
	}()
}

func (wp *WorkerPool) worker() {
	defer wp.shutdownWg.Done()
	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}
			result := job()
			select {
			case wp.results <- result:
			case <-wp.ctx.Done():
				return
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

// Submit adds a job to the queue. Returns an error if the pool is closed
// or its context has been cancelled.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	if wp.isClosed {
		wp.mu.Unlock()
		return fmt.Errorf("worker pool is closed, cannot submit new jobs")
	}
	wp.mu.Unlock()

	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Results returns the channel job results are delivered on. It is closed
// once the pool has shut down and all workers have exited.
func (wp *WorkerPool) Results() <-chan interface{} {
	return wp.results
}

// Shutdown stops the pool. Queued jobs that no worker has picked up yet
// are abandoned; the Results channel closes once all workers exit.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.isClosed {
		wp.mu.Unlock()
		return
	}
	wp.isClosed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.cancel()
}
