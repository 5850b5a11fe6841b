package core

import "math"

// RunSummary holds the counters computed once from a completed result
// set. The JSON keys are the wire contract; hits and misses count both
// confirmed and inferred verdicts, while the confirmed/inferred pairs
// break them down by provenance.
type RunSummary struct {
	TotalURLs        int     `json:"total_urls"`
	CacheHits        int     `json:"cache_hits"`
	CacheMisses      int     `json:"cache_misses"`
	ConfirmedHits    int     `json:"confirmed_hits"`
	InferredHits     int     `json:"inferred_hits"`
	ConfirmedMisses  int     `json:"confirmed_misses"`
	InferredMisses   int     `json:"inferred_misses"`
	NotCacheable     int     `json:"not_cacheable"`
	CacheableTotal   int     `json:"cacheable_total"`
	TotalAEMDetected int     `json:"total_aem_detected"`
	Errors           int     `json:"errors"`
	Unknown          int     `json:"unknown"`
	CacheHitRatio    float64 `json:"cache_hit_ratio"`
}

// Summarize reduces a result sequence into the run counters. The hit
// ratio is hits over the cacheable total (errors and NOT_CACHEABLE rows
// excluded from the denominator), as a percentage rounded to two
// decimals; zero when nothing cacheable was probed.
func Summarize(results []ProbeResult) RunSummary {
	summary := RunSummary{TotalURLs: len(results)}

	for _, result := range results {
		verdict := result.CacheStatus

		if verdict.IsHit() {
			summary.CacheHits++
		}
		if verdict.IsMiss() {
			summary.CacheMisses++
		}
		if verdict.IsUnknown() {
			summary.Unknown++
		}

		switch verdict {
		case VerdictHit, VerdictRefreshHit:
			summary.ConfirmedHits++
		case VerdictInferredHit:
			summary.InferredHits++
		case VerdictMiss, VerdictRefreshMiss:
			summary.ConfirmedMisses++
		case VerdictInferredMiss:
			summary.InferredMisses++
		case VerdictNotCacheable:
			summary.NotCacheable++
		case VerdictError:
			summary.Errors++
		}

		if result.IsAEM != nil && *result.IsAEM {
			summary.TotalAEMDetected++
		}
	}

	summary.CacheableTotal = summary.TotalURLs - summary.NotCacheable - summary.Errors
	if summary.CacheableTotal > 0 {
		ratio := float64(summary.CacheHits) / float64(summary.CacheableTotal) * 100
		summary.CacheHitRatio = math.Round(ratio*100) / 100
	}

	return summary
}
