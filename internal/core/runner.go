package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// ErrNoURLs is returned when discovery produced an empty URL list.
var ErrNoURLs = errors.New("no URLs found")

// URLSource supplies the ordered URL list for a run. Implementations
// live in internal/input (sitemap, file, literal list).
type URLSource interface {
	URLs(ctx context.Context) ([]string, error)
}

// RunReport is the complete outcome of one run: identity, totals and the
// per-URL rows in batch order.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Summary   RunSummary    `json:"summary"`
	Results   []ProbeResult `json:"results"`
}

// Tester wires discovery, scheduling and aggregation into one run.
type Tester struct {
	config    *config.Config
	source    URLSource
	scheduler *Scheduler
	logger    utils.Logger
}

func NewTester(cfg *config.Config, source URLSource, client *networking.Client, logger utils.Logger) *Tester {
	return &Tester{
		config:    cfg,
		source:    source,
		scheduler: NewScheduler(cfg, NewProber(cfg, client, logger), logger),
		logger:    logger,
	}
}

// SetProgressSink attaches an optional progress consumer for the probing
// phase. Must be set before Run.
func (t *Tester) SetProgressSink(sink ProgressSink) {
	t.scheduler.SetProgressSink(sink)
}

// Run executes one complete probing run: validate, discover, probe,
// summarize. The returned report carries results in batch order.
func (t *Tester) Run(ctx context.Context) (*RunReport, error) {
	if err := t.config.Validate(); err != nil {
		return nil, err
	}

	urls, err := t.source.URLs(ctx)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	runID := uuid.NewString()
	t.logger.Infof("Run %s: discovered %d URLs", runID, len(urls))

	results, err := t.scheduler.Run(ctx, urls)
	if err != nil {
		return nil, err
	}

	summary := Summarize(results)
	t.logger.Infof(
		"Run %s complete: %d probed, %.2f%% hit ratio, %d AEM, %d errors",
		runID, summary.TotalURLs, summary.CacheHitRatio, summary.TotalAEMDetected, summary.Errors,
	)

	return &RunReport{
		RunID:     runID,
		Timestamp: time.Now(),
		Summary:   summary,
		Results:   results,
	}, nil
}
