package core

import (
	"net/http"

	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// Sentinels for absent or failed response metadata. These are the values
// the front end and the CSV export display, so they are part of the wire
// contract.
const (
	SentinelNotFound = "NOT_FOUND"
	SentinelUnknown  = "UNKNOWN"
	SentinelError    = "ERROR"
)

// CacheSignals is the fixed set of cache-relevant fields projected out of
// one HTTP response. Absence is a representable state, never an error.
type CacheSignals struct {
	XCache          string
	XCacheRemote    string
	XCheckCacheable string
	XCacheKey       string
	XTrueCacheKey   string
	XServedBy       string
	XTimer          string
	Age             string
	CacheControl    string
}

// ExtractSignals projects the cache headers of a completed response into
// CacheSignals. Pure projection; no interpretation happens here.
func ExtractSignals(headers http.Header) CacheSignals {
	return CacheSignals{
		XCache:          utils.HeaderOrDefault(headers, "X-Cache", SentinelNotFound),
		XCacheRemote:    utils.HeaderOrDefault(headers, "X-Cache-Remote", SentinelNotFound),
		XCheckCacheable: utils.HeaderOrDefault(headers, "X-Check-Cacheable", SentinelUnknown),
		XCacheKey:       utils.HeaderOrDefault(headers, "X-Cache-Key", SentinelNotFound),
		XTrueCacheKey:   utils.HeaderOrDefault(headers, "X-True-Cache-Key", SentinelNotFound),
		XServedBy:       utils.HeaderOrDefault(headers, "X-Served-By", SentinelNotFound),
		XTimer:          utils.HeaderOrDefault(headers, "X-Timer", SentinelNotFound),
		Age:             utils.HeaderOrDefault(headers, "Age", "0"),
		CacheControl:    utils.HeaderOrDefault(headers, "Cache-Control", SentinelNotFound),
	}
}
