package input

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

func newSitemapSource(t *testing.T, sitemapURL string) *SitemapSource {
	t.Helper()
	cfg := config.GetDefaultConfig()
	client, err := networking.NewClient(cfg, utils.NoOpLogger{})
	require.NoError(t, err)
	return NewSitemapSource(cfg, client, utils.NoOpLogger{}, sitemapURL)
}

func TestSitemapSourceParsesURLSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc><lastmod>2024-01-01</lastmod></url>
  <url><loc>
      https://example.com/about.html
  </loc></url>
  <url><lastmod>2024-01-01</lastmod></url>
</urlset>`)
	}))
	defer server.Close()

	urls, err := newSitemapSource(t, server.URL+"/sitemap.xml").URLs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/about.html"}, urls,
		"loc values are trimmed and entries without loc are skipped")
}

func TestSitemapSourceHandlesNamespacePrefixes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<sm:urlset xmlns:sm="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sm:url><sm:loc>https://example.com/prefixed</sm:loc></sm:url>
</sm:urlset>`)
	}))
	defer server.Close()

	urls, err := newSitemapSource(t, server.URL).URLs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/prefixed"}, urls)
}

func TestSitemapSourceRecursesIntoIndex(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/pages.xml</loc></sitemap>
  <sitemap><loc>%s/news.xml</loc></sitemap>
</sitemapindex>`, server.URL, server.URL)
		case "/pages.xml":
			fmt.Fprint(w, `<urlset><url><loc>https://example.com/p1</loc></url><url><loc>https://example.com/p2</loc></url></urlset>`)
		case "/news.xml":
			fmt.Fprint(w, `<urlset><url><loc>https://example.com/n1</loc></url></urlset>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	urls, err := newSitemapSource(t, server.URL+"/sitemap.xml").URLs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/p1",
		"https://example.com/p2",
		"https://example.com/n1",
	}, urls, "children concatenate in document order")
}

func TestSitemapSourceStopsRunawayRecursion(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/loop.xml</loc></sitemap></sitemapindex>`, server.URL)
	}))
	defer server.Close()

	_, err := newSitemapSource(t, server.URL+"/loop.xml").URLs(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing sitemap")
}

func TestSitemapSourceErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer server.Close()

		_, err := newSitemapSource(t, server.URL).URLs(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "error parsing sitemap")
		assert.Contains(t, err.Error(), "HTTP 403")
	})

	t.Run("malformed xml", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<urlset><url><loc>https://example.com`)
		}))
		defer server.Close()

		_, err := newSitemapSource(t, server.URL).URLs(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "error parsing sitemap")
	})

	t.Run("unreachable server", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		deadURL := server.URL
		server.Close()

		_, err := newSitemapSource(t, deadURL).URLs(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "error parsing sitemap")
	})

	t.Run("unexpected root element", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html><body>not a sitemap</body></html>`)
		}))
		defer server.Close()

		_, err := newSitemapSource(t, server.URL).URLs(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected root element")
	})
}

func TestSitemapSourceEmptyURLSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`)
	}))
	defer server.Close()

	urls, err := newSitemapSource(t, server.URL).URLs(context.Background())

	require.NoError(t, err)
	assert.Empty(t, urls, "an empty sitemap is not a parse error; the runner decides what to do")
}
