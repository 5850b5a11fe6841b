package core

import (
	"strconv"
	"strings"
)

// Verdict is the discrete cache-status classification assigned to a probe.
// The string values are shown to users and exported verbatim.
type Verdict string

const (
	VerdictHit          Verdict = "HIT"
	VerdictMiss         Verdict = "MISS"
	VerdictRefreshHit   Verdict = "REFRESH_HIT"
	VerdictRefreshMiss  Verdict = "REFRESH_MISS"
	VerdictNotCacheable Verdict = "NOT_CACHEABLE"
	VerdictUnknown      Verdict = "UNKNOWN"

	// Timing-inferred verdicts carry their provenance in the label so a
	// reader can tell them apart from header-confirmed ones.
	VerdictInferredHit   Verdict = "HIT (inferred from timing)"
	VerdictInferredMiss  Verdict = "MISS (inferred from timing)"
	VerdictTimingUnclear Verdict = "UNKNOWN (timing inconclusive)"

	// VerdictError marks probes that never produced a response.
	VerdictError Verdict = "ERROR"
)

// IsHit reports whether the verdict counts as a hit of any provenance.
func (v Verdict) IsHit() bool { return strings.Contains(string(v), "HIT") }

// IsMiss reports whether the verdict counts as a miss of any provenance.
func (v Verdict) IsMiss() bool { return strings.Contains(string(v), "MISS") }

// IsUnknown reports whether the verdict is unknown of any provenance.
func (v Verdict) IsUnknown() bool { return strings.Contains(string(v), "UNKNOWN") }

// Classification is a classifier outcome: the verdict plus the elapsed
// milliseconds when the verdict was derived from the timing header.
type Classification struct {
	Verdict        Verdict
	ResponseTimeMS *int
}

type classifierRule struct {
	name  string
	apply func(CacheSignals) (Classification, bool)
}

// Classifier turns extracted signals into a verdict by walking a fixed
// rule ladder. The first matching rule wins; later signals never override
// earlier ones, so a TCP_MISS with a stale Age header still reads MISS.
type Classifier struct {
	rules []classifierRule
}

// NewClassifier builds the ladder. The thresholds (milliseconds) bound the
// timing inference used when no explicit cache header survived: responses
// faster than hitThresholdMS read as edge hits, slower than missThresholdMS
// as origin fetches, anything between stays inconclusive.
func NewClassifier(hitThresholdMS, missThresholdMS int) *Classifier {
	return &Classifier{rules: []classifierRule{
		{
			name: "x-cache hit",
			apply: func(s CacheSignals) (Classification, bool) {
				if strings.Contains(s.XCache, "TCP_HIT") || strings.Contains(s.XCache, "TCP_MEM_HIT") {
					return Classification{Verdict: VerdictHit}, true
				}
				return Classification{}, false
			},
		},
		{
			name: "x-cache miss",
			apply: func(s CacheSignals) (Classification, bool) {
				if strings.Contains(s.XCache, "TCP_MISS") {
					return Classification{Verdict: VerdictMiss}, true
				}
				return Classification{}, false
			},
		},
		{
			name: "x-cache refresh hit",
			apply: func(s CacheSignals) (Classification, bool) {
				if strings.Contains(s.XCache, "TCP_REFRESH_HIT") {
					return Classification{Verdict: VerdictRefreshHit}, true
				}
				return Classification{}, false
			},
		},
		{
			name: "x-cache refresh miss",
			apply: func(s CacheSignals) (Classification, bool) {
				if strings.Contains(s.XCache, "TCP_REFRESH_MISS") {
					return Classification{Verdict: VerdictRefreshMiss}, true
				}
				return Classification{}, false
			},
		},
		{
			name: "not cacheable",
			apply: func(s CacheSignals) (Classification, bool) {
				if s.XCheckCacheable == "NO" {
					return Classification{Verdict: VerdictNotCacheable}, true
				}
				return Classification{}, false
			},
		},
		{
			name: "age",
			apply: func(s CacheSignals) (Classification, bool) {
				if s.Age != "" && s.Age != "0" {
					return Classification{Verdict: VerdictHit}, true
				}
				return Classification{}, false
			},
		},
		{
			name: "timing",
			apply: func(s CacheSignals) (Classification, bool) {
				if s.XTimer == SentinelNotFound || !strings.Contains(s.XTimer, "VE") {
					return Classification{}, false
				}
				elapsed, ok := parseElapsedMS(s.XTimer)
				if !ok {
					return Classification{}, false
				}
				cls := Classification{ResponseTimeMS: &elapsed}
				switch {
				case elapsed < hitThresholdMS:
					cls.Verdict = VerdictInferredHit
				case elapsed > missThresholdMS:
					cls.Verdict = VerdictInferredMiss
				default:
					cls.Verdict = VerdictTimingUnclear
				}
				return cls, true
			},
		},
	}}
}

// Classify walks the ladder over the given signals. Falls back to
// VerdictUnknown when no rule matches.
func (c *Classifier) Classify(signals CacheSignals) Classification {
	for _, rule := range c.rules {
		if cls, ok := rule.apply(signals); ok {
			return cls
		}
	}
	return Classification{Verdict: VerdictUnknown}
}

// parseElapsedMS pulls the total elapsed milliseconds out of a timing
// header like "S1763167085.909978,VS0,VS0,VE71": the integer after the
// first "VE" marker, up to the next comma.
func parseElapsedMS(timer string) (int, bool) {
	_, rest, found := strings.Cut(timer, "VE")
	if !found {
		return 0, false
	}
	if i := strings.IndexByte(rest, ','); i >= 0 {
		rest = rest[:i]
	}
	elapsed, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return elapsed, true
}
