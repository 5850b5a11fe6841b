package networking

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

const (
	// AkamaiPragma asks Akamai edges to echo their cache-debug headers
	// (X-Cache, X-Cache-Remote, X-Check-Cacheable, X-Cache-Key,
	// X-True-Cache-Key) back on the response.
	AkamaiPragma = "akamai-x-cache-on, akamai-x-cache-remote-on, akamai-x-check-cacheable, akamai-x-get-cache-key, akamai-x-get-true-cache-key"

	// DefaultRetryDelayBaseMs is the base delay for exponential backoff.
	DefaultRetryDelayBaseMs = 200
	// DefaultRetryDelayMaxMs is the maximum delay for exponential backoff.
	DefaultRetryDelayMaxMs = 5000
)

// Client manages HTTP requests: browser-realistic headers, the Akamai
// debug pragma, redirect following and bounded retries.
type Client struct {
	baseClient *http.Client
	config     *config.Config
	logger     utils.Logger
	userAgent  string
}

// ClientRequestData encapsulates all necessary data for making a request.
type ClientRequestData struct {
	URL            string
	Method         string
	RequestHeaders http.Header   // overrides/additions on top of the default probe set
	Timeout        time.Duration // per-request; falls back to the configured request timeout
	Ctx            context.Context
}

// ClientResponseData holds the outcome of an HTTP request. Error is set
// only for transport-level failures; any HTTP status, 2xx or not, is a
// successful fetch.
type ClientResponseData struct {
	Response    *http.Response
	StatusCode  int
	Body        []byte
	RespHeaders http.Header
	FinalURL    string // after redirects
	Duration    time.Duration
	Error       error
}

// NewClient creates a new HTTP Client with the configured probe settings.
func NewClient(cfg *config.Config, logger utils.Logger) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Insecure,
		},
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	c := &Client{
		config:    cfg,
		logger:    logger,
		userAgent: cfg.UserAgent,
	}

	// Timeouts are applied per request through the context, so the same
	// client serves both page probes and the slower sitemap fetches.
	// Redirects are followed (the edge status of the final page is what
	// gets classified).
	c.baseClient = &http.Client{
		Transport: transport,
	}

	return c, nil
}

// defaultHeaders returns the probe header set: a realistic desktop Chrome
// profile plus the Akamai debug pragma. Accept-Encoding only advertises
// encodings the client can actually decode.
func (c *Client) defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Accept-Language", "en-GB,en;q=0.9,en-US;q=0.8,en-AU;q=0.7")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", AkamaiPragma)
	h.Set("Priority", "u=0, i")
	h.Set("Sec-Ch-Ua", `"Chromium";v="142", "Microsoft Edge";v="142", "Not_A Brand";v="99"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("User-Agent", c.userAgent)
	return h
}

// PerformRequest executes an HTTP request based on the provided
// ClientRequestData, retrying transport failures up to the configured
// number of times with exponential backoff.
func (c *Client) PerformRequest(reqData ClientRequestData) ClientResponseData {
	var finalRespData ClientResponseData

	method := reqData.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := reqData.Timeout
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}
	parentCtx := reqData.Ctx
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		respData, err := c.performOnce(ctx, method, reqData)
		cancel()
		if err == nil {
			return respData
		}

		finalRespData.Error = err
		if parentCtx.Err() != nil {
			// The run was cancelled; retrying would only prolong shutdown.
			return finalRespData
		}
		if attempt == c.config.MaxRetries {
			return finalRespData
		}

		delay := time.Duration(DefaultRetryDelayBaseMs<<attempt) * time.Millisecond
		if delay > DefaultRetryDelayMaxMs*time.Millisecond {
			delay = DefaultRetryDelayMaxMs * time.Millisecond
		}
		c.logger.Debugf("Request to %s failed (attempt %d/%d), retrying in %s: %v", reqData.URL, attempt+1, c.config.MaxRetries+1, delay, err)
		select {
		case <-time.After(delay):
		case <-parentCtx.Done():
			return finalRespData
		}
	}
	return finalRespData
}

func (c *Client) performOnce(ctx context.Context, method string, reqData ClientRequestData) (ClientResponseData, error) {
	var respData ClientResponseData

	req, err := http.NewRequestWithContext(ctx, method, reqData.URL, nil)
	if err != nil {
		return respData, fmt.Errorf("failed to build request for %s: %w", reqData.URL, err)
	}

	req.Header = c.defaultHeaders()
	for key, values := range reqData.RequestHeaders {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	start := time.Now()
	resp, err := c.baseClient.Do(req)
	if err != nil {
		return respData, fmt.Errorf("failed to execute request for %s: %w", reqData.URL, err)
	}

	rawBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return respData, fmt.Errorf("failed to read response body for %s: %w", reqData.URL, err)
	}

	body, err := decompressBody(resp.Header, rawBody)
	if err != nil {
		return respData, fmt.Errorf("failed to decode response body for %s: %w", reqData.URL, err)
	}

	respData.Response = resp
	respData.StatusCode = resp.StatusCode
	respData.Body = body
	respData.RespHeaders = resp.Header
	respData.Duration = time.Since(start)
	respData.FinalURL = reqData.URL
	if resp.Request != nil && resp.Request.URL != nil {
		respData.FinalURL = resp.Request.URL.String()
	}

	c.logger.Debugf("Request to %s completed: status %d, body %d bytes, %s", reqData.URL, resp.StatusCode, len(body), respData.Duration.Round(time.Millisecond))
	return respData, nil
}

// decompressBody decodes the response body according to Content-Encoding.
// Layered encodings are undone in reverse order of application. The
// advertised set is gzip, deflate and brotli; anything else is an error.
func decompressBody(headers http.Header, body []byte) ([]byte, error) {
	encodings := splitEncodings(headers.Values("Content-Encoding"))
	if len(encodings) == 0 {
		return body, nil
	}

	var reader io.Reader = bytes.NewReader(body)
	for i := len(encodings) - 1; i >= 0; i-- {
		switch encodings[i] {
		case "gzip":
			gz, err := gzip.NewReader(reader)
			if err != nil {
				return nil, fmt.Errorf("gzip: %w", err)
			}
			reader = gz
		case "deflate":
			reader = deflateReader(reader)
		case "br":
			reader = brotli.NewReader(reader)
		case "identity", "":
			continue
		default:
			return nil, fmt.Errorf("unsupported Content-Encoding: %s", encodings[i])
		}
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func splitEncodings(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// deflateReader handles both zlib-wrapped (RFC 1950) and raw (RFC 1951)
// deflate streams; servers ship both under the same encoding name.
func deflateReader(r io.Reader) io.Reader {
	buffered, err := io.ReadAll(r)
	if err != nil {
		return errReader{err}
	}
	if zr, err := zlib.NewReader(bytes.NewReader(buffered)); err == nil {
		return zr
	}
	return flate.NewReader(bytes.NewReader(buffered))
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
