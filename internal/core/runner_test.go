package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

type staticSource struct {
	urls []string
	err  error
}

func (s staticSource) URLs(ctx context.Context) ([]string, error) {
	return s.urls, s.err
}

func newTestTester(t *testing.T, cfg *config.Config, source URLSource) *Tester {
	t.Helper()
	client, err := networking.NewClient(cfg, utils.NoOpLogger{})
	require.NoError(t, err)
	return NewTester(cfg, source, client, utils.NoOpLogger{})
}

func TestTesterRunProducesReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Cache", "TCP_HIT from test")
	}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.CheckAEM = false
	cfg.BatchDelay = 0
	source := staticSource{urls: []string{server.URL + "/a", server.URL + "/b"}}

	report, err := newTestTester(t, cfg, source).Run(context.Background())

	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Timestamp.IsZero())
	assert.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Summary.TotalURLs)
	assert.Equal(t, 100.0, report.Summary.CacheHitRatio)
}

func TestTesterRunIDsAreUnique(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := config.GetDefaultConfig()
	cfg.CheckAEM = false
	cfg.BatchDelay = 0
	tester := newTestTester(t, cfg, staticSource{urls: []string{server.URL}})

	first, err := tester.Run(context.Background())
	require.NoError(t, err)
	second, err := tester.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestTesterRejectsEmptyDiscovery(t *testing.T) {
	cfg := config.GetDefaultConfig()
	tester := newTestTester(t, cfg, staticSource{})

	report, err := tester.Run(context.Background())

	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestTesterPropagatesSourceError(t *testing.T) {
	boom := errors.New("sitemap unreachable")
	cfg := config.GetDefaultConfig()
	tester := newTestTester(t, cfg, staticSource{err: boom})

	_, err := tester.Run(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestTesterValidatesBeforeDiscovery(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.BatchSize = 0
	tester := newTestTester(t, cfg, staticSource{urls: []string{"https://example.com"}})

	_, err := tester.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Batch size must be a positive integer")
}
