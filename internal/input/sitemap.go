package input

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// maxSitemapDepth bounds sitemap-index recursion so a self-referencing
// index cannot loop forever.
const maxSitemapDepth = 5

// SitemapSource resolves a sitemap (or sitemap index) URL into the
// ordered list of page URLs it declares. Fetches use the probe header
// set and the dedicated sitemap timeout, which is much longer than the
// probe timeout because large sitemaps routinely take minutes to serve.
type SitemapSource struct {
	config *config.Config
	client *networking.Client
	logger utils.Logger
	url    string
}

func NewSitemapSource(cfg *config.Config, client *networking.Client, logger utils.Logger, sitemapURL string) *SitemapSource {
	return &SitemapSource{
		config: cfg,
		client: client,
		logger: logger,
		url:    sitemapURL,
	}
}

// URLs fetches and parses the sitemap tree. Any failure (unreachable,
// HTTP error status, malformed XML) is fatal for the run and comes back
// as a single descriptive error.
func (s *SitemapSource) URLs(ctx context.Context) ([]string, error) {
	urls, err := s.resolve(ctx, s.url, 0)
	if err != nil {
		return nil, fmt.Errorf("error parsing sitemap: %w", err)
	}
	s.logger.Infof("Sitemap %s resolved to %d URLs", s.url, len(urls))
	return urls, nil
}

// resolve fetches one sitemap document and returns its page URLs, in
// document order. Sitemap indexes recurse depth-first into each child.
func (s *SitemapSource) resolve(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth > maxSitemapDepth {
		return nil, fmt.Errorf("sitemap nesting exceeds %d levels at %s", maxSitemapDepth, sitemapURL)
	}

	s.logger.Debugf("Fetching sitemap %s (depth %d)", sitemapURL, depth)
	respData := s.client.PerformRequest(networking.ClientRequestData{
		URL:     sitemapURL,
		Ctx:     ctx,
		Timeout: s.config.SitemapTimeout,
	})
	if respData.Error != nil {
		return nil, fmt.Errorf("fetching %s: %w", sitemapURL, respData.Error)
	}
	if respData.StatusCode < 200 || respData.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: HTTP %d", sitemapURL, respData.StatusCode)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(respData.Body); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", sitemapURL, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parsing %s: document has no root element", sitemapURL)
	}

	// etree keeps namespace prefixes in Space and local names in Tag, so
	// matching on Tag alone makes the walk namespace-agnostic.
	switch root.Tag {
	case "sitemapindex":
		var urls []string
		for _, child := range root.ChildElements() {
			if child.Tag != "sitemap" {
				continue
			}
			loc := childText(child, "loc")
			if loc == "" {
				continue
			}
			nested, err := s.resolve(ctx, loc, depth+1)
			if err != nil {
				return nil, err
			}
			urls = append(urls, nested...)
		}
		return urls, nil
	case "urlset":
		var urls []string
		for _, child := range root.ChildElements() {
			if child.Tag != "url" {
				continue
			}
			if loc := childText(child, "loc"); loc != "" {
				urls = append(urls, loc)
			}
		}
		return urls, nil
	default:
		return nil, fmt.Errorf("parsing %s: unexpected root element <%s>", sitemapURL, root.Tag)
	}
}

// childText returns the trimmed text of the first child element with the
// given local name, or "". Sitemaps in the wild wrap <loc> values in
// whitespace and newlines.
func childText(parent *etree.Element, tag string) string {
	for _, child := range parent.ChildElements() {
		if child.Tag == tag {
			return strings.TrimSpace(child.Text())
		}
	}
	return ""
}
