package core

import (
	"context"
	"errors"
	"time"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// ProgressSink receives probe-completion events so a UI can render
// progress without the scheduler knowing anything about terminals.
type ProgressSink interface {
	Start(total int)
	Increment()
	Finish()
}

// Scheduler orchestrates one probing run. It truncates the URL list to
// the configured maximum, partitions it into fixed-size batches, probes
// each batch concurrently on a bounded worker pool, and pauses between
// batches. Politeness comes from the batch size and the inter-batch
// delay; the pool width only bounds parallelism inside a batch.
type Scheduler struct {
	config   *config.Config
	prober   *Prober
	logger   utils.Logger
	progress ProgressSink
}

// NewScheduler creates a new Scheduler instance.
func NewScheduler(cfg *config.Config, prober *Prober, logger utils.Logger) *Scheduler {
	return &Scheduler{
		config: cfg,
		prober: prober,
		logger: logger,
	}
}

// SetProgressSink attaches an optional progress consumer. Must be set
// before Run.
func (s *Scheduler) SetProgressSink(sink ProgressSink) {
	s.progress = sink
}

// Run probes every URL and returns the results in batch order.
// Cancellation is honored between batches, between probes and inside
// in-flight requests; a cancelled run discards partial results and
// returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, urls []string) ([]ProbeResult, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	if len(urls) > s.config.MaxURLs {
		s.logger.Warnf("URL list exceeds the configured maximum, truncating %d to %d", len(urls), s.config.MaxURLs)
		urls = urls[:s.config.MaxURLs]
	}

	batches := partition(urls, s.config.BatchSize)
	s.logger.Infof(
		"Probing %d URLs in %d batches of up to %d (concurrency %d, delay %s)",
		len(urls), len(batches), s.config.BatchSize, s.config.Concurrency, s.config.BatchDelay,
	)

	// Queue and result buffers hold a full batch so enqueueing a batch
	// never deadlocks against the collector.
	pool := utils.NewWorkerPool(ctx, s.config.Concurrency, s.config.BatchSize)
	defer pool.Shutdown()

	if s.progress != nil {
		s.progress.Start(len(urls))
		defer s.progress.Finish()
	}

	results := make([]ProbeResult, 0, len(urls))
	for i, batch := range batches {
		s.logger.Debugf("[Scheduler] Dispatching batch %d/%d (%d URLs)", i+1, len(batches), len(batch))

		batchResults, err := s.runBatch(ctx, pool, batch)
		if err != nil {
			return nil, err
		}
		results = append(results, batchResults...)

		if i < len(batches)-1 && s.config.BatchDelay > 0 {
			s.logger.Debugf("[Scheduler] Batch %d/%d done, waiting %s", i+1, len(batches), s.config.BatchDelay)
			select {
			case <-time.After(s.config.BatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return results, nil
}

// runBatch submits one batch to the pool and waits for the whole batch
// before returning. Results inside a batch arrive in completion order.
func (s *Scheduler) runBatch(ctx context.Context, pool *utils.WorkerPool, batch []string) ([]ProbeResult, error) {
	for _, target := range batch {
		target := target
		err := pool.Submit(func() interface{} {
			return s.prober.CheckURL(ctx, target)
		})
		if err != nil {
			return nil, err
		}
	}

	collected := make([]ProbeResult, 0, len(batch))
	for len(collected) < len(batch) {
		select {
		case raw, ok := <-pool.Results():
			if !ok {
				// The pool only closes its result channel mid-collect when
				// the run context was cancelled and the workers drained out.
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, errors.New("worker pool closed before the batch completed")
			}
			collected = append(collected, raw.(ProbeResult))
			if s.progress != nil {
				s.progress.Increment()
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return collected, nil
}

func partition(urls []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(urls); start += size {
		end := start + size
		if end > len(urls) {
			end = len(urls)
		}
		batches = append(batches, urls[start:end])
	}
	return batches
}
