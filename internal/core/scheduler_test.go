package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

func newTestScheduler(t *testing.T, cfg *config.Config) *Scheduler {
	t.Helper()
	cfg.CheckAEM = false
	client, err := networking.NewClient(cfg, utils.NoOpLogger{})
	require.NoError(t, err)
	return NewScheduler(cfg, NewProber(cfg, client, utils.NoOpLogger{}), utils.NoOpLogger{})
}

func testURLs(base string, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/p/%d", base, i)
	}
	return urls
}

func TestSchedulerProbesEveryURLOnce(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path]++
		mu.Unlock()
		w.Header().Set("X-Cache", "TCP_HIT from test")
	}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 3
	cfg.BatchDelay = 0
	scheduler := newTestScheduler(t, cfg)

	results, err := scheduler.Run(context.Background(), testURLs(server.URL, 25))

	require.NoError(t, err)
	assert.Len(t, results, 25)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 25)
	for path, count := range seen {
		assert.Equal(t, 1, count, "URL %s probed more than once", path)
	}
}

func TestSchedulerKeepsBatchOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache", "TCP_HIT from test")
	}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 4
	cfg.BatchDelay = 0
	scheduler := newTestScheduler(t, cfg)

	urls := testURLs(server.URL, 10)
	results, err := scheduler.Run(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, results, 10)

	// Within a batch completion order is free, but batches never
	// interleave: position i always belongs to batch i/4.
	indexOf := make(map[string]int, len(urls))
	for i, u := range urls {
		indexOf[u] = i
	}
	for pos, result := range results {
		assert.Equal(t, pos/4, indexOf[result.URL]/4, "result at %d came from the wrong batch", pos)
	}
}

func TestSchedulerTruncatesToMaxURLs(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.MaxURLs = 5
	cfg.BatchDelay = 0
	scheduler := newTestScheduler(t, cfg)

	results, err := scheduler.Run(context.Background(), testURLs(server.URL, 12))

	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.EqualValues(t, 5, atomic.LoadInt32(&hits))
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	var current, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
	}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 8
	cfg.Concurrency = 2
	cfg.BatchDelay = 0
	scheduler := newTestScheduler(t, cfg)

	_, err := scheduler.Run(context.Background(), testURLs(server.URL, 8))

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSchedulerWaitsBetweenBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 2
	cfg.BatchDelay = 50 * time.Millisecond
	scheduler := newTestScheduler(t, cfg)

	start := time.Now()
	results, err := scheduler.Run(context.Background(), testURLs(server.URL, 6))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, results, 6)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "three batches imply two inter-batch delays")
}

func TestSchedulerCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 2
	cfg.BatchDelay = 0
	scheduler := newTestScheduler(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	results, err := scheduler.Run(ctx, testURLs(server.URL, 6))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results, "a cancelled run discards partial results")
}

func TestSchedulerEmptyInput(t *testing.T) {
	cfg := config.GetDefaultConfig()
	scheduler := newTestScheduler(t, cfg)

	results, err := scheduler.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, results)
}

type countingSink struct {
	mu         sync.Mutex
	total      int
	increments int
	finished   bool
}

func (c *countingSink) Start(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = total
}

func (c *countingSink) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.increments++
}

func (c *countingSink) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
}

func TestSchedulerReportsProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 2
	cfg.BatchDelay = 0
	scheduler := newTestScheduler(t, cfg)

	sink := &countingSink{}
	scheduler.SetProgressSink(sink)

	_, err := scheduler.Run(context.Background(), testURLs(server.URL, 5))

	require.NoError(t, err)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 5, sink.total)
	assert.Equal(t, 5, sink.increments)
	assert.True(t, sink.finished)
}
