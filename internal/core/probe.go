package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// StatusCode is an HTTP status that marshals as its numeric value, or as
// the ERROR sentinel for probes that never produced a response. Unmarshal
// accepts either form so exported results round-trip.
type StatusCode int

func (s StatusCode) MarshalJSON() ([]byte, error) {
	if s <= 0 {
		return []byte(`"` + SentinelError + `"`), nil
	}
	return []byte(strconv.Itoa(int(s))), nil
}

func (s *StatusCode) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if code, err := strconv.Atoi(trimmed); err == nil {
		*s = StatusCode(code)
		return nil
	}
	*s = 0
	return nil
}

// ProbeResult is the unit of output for one URL: the verdict, the raw
// signal echoes behind it, and the optional platform detection. Created
// once by the prober and never mutated afterwards.
//
// The JSON keys are the wire contract the API and the exports share.
type ProbeResult struct {
	URL             string              `json:"url"`
	StatusCode      StatusCode          `json:"status_code"`
	CacheStatus     Verdict             `json:"cache_hit"`
	XCache          string              `json:"x_cache"`
	XCacheRemote    string              `json:"x_cache_remote"`
	XCheckCacheable string              `json:"x_check_cacheable"`
	XCacheKey       string              `json:"x_cache_key"`
	XTrueCacheKey   string              `json:"x_true_cache_key"`
	XServedBy       string              `json:"x_served_by"`
	XTimer          string              `json:"x_timer"`
	Age             string              `json:"age"`
	CacheControl    string              `json:"cache_control"`
	ResponseTimeMS  *int                `json:"response_time_ms"`
	IsAEM           *bool               `json:"is_aem"`
	AEMConfidence   *float64            `json:"aem_confidence"`
	AEMEvidence     map[string][]string `json:"aem_evidence"`
	Error           string              `json:"error,omitempty"`
}

// IsError reports whether this result represents a failed probe rather
// than a classified response.
func (r ProbeResult) IsError() bool {
	return r.Error != ""
}

// Prober performs one complete URL check: fetch, signal extraction,
// classification and, when enabled, the platform scan.
type Prober struct {
	client     *networking.Client
	classifier *Classifier
	config     *config.Config
	logger     utils.Logger
}

func NewProber(cfg *config.Config, client *networking.Client, logger utils.Logger) *Prober {
	return &Prober{
		client:     client,
		classifier: NewClassifier(cfg.HitThresholdMS, cfg.MissThresholdMS),
		config:     cfg,
		logger:     logger,
	}
}

// CheckURL probes a single URL. It never returns an error: transport
// failures become error-shaped results so a bad URL cannot sink the run.
// A non-2xx status is a normal, classifiable response at this layer.
func (p *Prober) CheckURL(ctx context.Context, targetURL string) ProbeResult {
	respData := p.client.PerformRequest(networking.ClientRequestData{
		URL: targetURL,
		Ctx: ctx,
	})
	if respData.Error != nil {
		p.logger.Debugf("Probe failed for %s: %v", targetURL, respData.Error)
		return errorResult(targetURL, respData.Error)
	}

	signals := ExtractSignals(respData.RespHeaders)
	cls := p.classifier.Classify(signals)

	result := ProbeResult{
		URL:             targetURL,
		StatusCode:      StatusCode(respData.StatusCode),
		CacheStatus:     cls.Verdict,
		XCache:          signals.XCache,
		XCacheRemote:    signals.XCacheRemote,
		XCheckCacheable: signals.XCheckCacheable,
		XCacheKey:       signals.XCacheKey,
		XTrueCacheKey:   signals.XTrueCacheKey,
		XServedBy:       signals.XServedBy,
		XTimer:          signals.XTimer,
		Age:             signals.Age,
		CacheControl:    signals.CacheControl,
		ResponseTimeMS:  cls.ResponseTimeMS,
	}

	if p.config.CheckAEM {
		detection := DetectAEM(respData.Body, respData.RespHeaders, respData.FinalURL)
		result.IsAEM = &detection.Detected
		result.AEMConfidence = &detection.Confidence
		result.AEMEvidence = detection.Evidence
		if detection.Detected {
			p.logger.Debugf("AEM detected on %s (confidence %.2f)", targetURL, detection.Confidence)
		}
	}

	p.logger.Debugf("Probed %s: %s (HTTP %d)", targetURL, result.CacheStatus, respData.StatusCode)
	return result
}

// errorResult builds the uniform failed-probe row: the ERROR sentinel in
// every string field plus the captured message.
func errorResult(targetURL string, err error) ProbeResult {
	return ProbeResult{
		URL:             targetURL,
		StatusCode:      0,
		CacheStatus:     VerdictError,
		XCache:          SentinelError,
		XCacheRemote:    SentinelError,
		XCheckCacheable: SentinelError,
		XCacheKey:       SentinelError,
		XTrueCacheKey:   SentinelError,
		XServedBy:       SentinelError,
		XTimer:          SentinelError,
		Age:             SentinelError,
		CacheControl:    SentinelError,
		Error:           err.Error(),
	}
}
