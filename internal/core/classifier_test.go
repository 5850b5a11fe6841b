package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSignals() CacheSignals {
	return CacheSignals{
		XCache:          SentinelNotFound,
		XCacheRemote:    SentinelNotFound,
		XCheckCacheable: SentinelUnknown,
		XCacheKey:       SentinelNotFound,
		XTrueCacheKey:   SentinelNotFound,
		XServedBy:       SentinelNotFound,
		XTimer:          SentinelNotFound,
		Age:             "0",
		CacheControl:    SentinelNotFound,
	}
}

func TestClassifyLadder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CacheSignals)
		want   Verdict
		rtMS   *int
	}{
		{
			name:   "tcp hit",
			mutate: func(s *CacheSignals) { s.XCache = "TCP_HIT from a23-45-67-89 (AkamaiGHost/11.8.0.2)" },
			want:   VerdictHit,
		},
		{
			name:   "tcp mem hit",
			mutate: func(s *CacheSignals) { s.XCache = "TCP_MEM_HIT from a23-45-67-89" },
			want:   VerdictHit,
		},
		{
			name:   "tcp miss",
			mutate: func(s *CacheSignals) { s.XCache = "TCP_MISS from a23-45-67-89" },
			want:   VerdictMiss,
		},
		{
			name:   "refresh hit",
			mutate: func(s *CacheSignals) { s.XCache = "TCP_REFRESH_HIT from a23-45-67-89" },
			want:   VerdictRefreshHit,
		},
		{
			name:   "refresh miss",
			mutate: func(s *CacheSignals) { s.XCache = "TCP_REFRESH_MISS from a23-45-67-89" },
			want:   VerdictRefreshMiss,
		},
		{
			name:   "not cacheable",
			mutate: func(s *CacheSignals) { s.XCheckCacheable = "NO" },
			want:   VerdictNotCacheable,
		},
		{
			name:   "nonzero age",
			mutate: func(s *CacheSignals) { s.Age = "3600" },
			want:   VerdictHit,
		},
		{
			name:   "fast timing",
			mutate: func(s *CacheSignals) { s.XTimer = "S1763167085.909978,VS0,VE50" },
			want:   VerdictInferredHit,
			rtMS:   intPtr(50),
		},
		{
			name:   "slow timing",
			mutate: func(s *CacheSignals) { s.XTimer = "S1763167085.909978,VS0,VE1500" },
			want:   VerdictInferredMiss,
			rtMS:   intPtr(1500),
		},
		{
			name:   "mid timing",
			mutate: func(s *CacheSignals) { s.XTimer = "S1763167085.909978,VS0,VE250" },
			want:   VerdictTimingUnclear,
			rtMS:   intPtr(250),
		},
		{
			name:   "no signals at all",
			mutate: func(s *CacheSignals) {},
			want:   VerdictUnknown,
		},
	}

	classifier := NewClassifier(100, 500)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := defaultSignals()
			tt.mutate(&signals)

			cls := classifier.Classify(signals)

			assert.Equal(t, tt.want, cls.Verdict)
			if tt.rtMS != nil {
				require.NotNil(t, cls.ResponseTimeMS)
				assert.Equal(t, *tt.rtMS, *cls.ResponseTimeMS)
			} else {
				assert.Nil(t, cls.ResponseTimeMS)
			}
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	classifier := NewClassifier(100, 500)

	t.Run("x-cache hit beats zero age", func(t *testing.T) {
		signals := defaultSignals()
		signals.XCache = "TCP_HIT from a23-45-67-89"
		signals.Age = "0"

		assert.Equal(t, VerdictHit, classifier.Classify(signals).Verdict)
	})

	t.Run("x-cache miss beats stale age", func(t *testing.T) {
		signals := defaultSignals()
		signals.XCache = "TCP_MISS from a23-45-67-89"
		signals.Age = "3600"

		assert.Equal(t, VerdictMiss, classifier.Classify(signals).Verdict)
	})

	t.Run("not cacheable beats age", func(t *testing.T) {
		signals := defaultSignals()
		signals.XCheckCacheable = "NO"
		signals.Age = "120"

		assert.Equal(t, VerdictNotCacheable, classifier.Classify(signals).Verdict)
	})

	t.Run("age beats timing", func(t *testing.T) {
		signals := defaultSignals()
		signals.Age = "45"
		signals.XTimer = "S1.5,VS0,VE9999"

		assert.Equal(t, VerdictHit, classifier.Classify(signals).Verdict)
	})
}

func TestClassifyTimingEdges(t *testing.T) {
	classifier := NewClassifier(100, 500)

	t.Run("exactly at hit threshold is inconclusive", func(t *testing.T) {
		signals := defaultSignals()
		signals.XTimer = "S1.5,VS0,VE100"

		assert.Equal(t, VerdictTimingUnclear, classifier.Classify(signals).Verdict)
	})

	t.Run("exactly at miss threshold is inconclusive", func(t *testing.T) {
		signals := defaultSignals()
		signals.XTimer = "S1.5,VS0,VE500"

		assert.Equal(t, VerdictTimingUnclear, classifier.Classify(signals).Verdict)
	})

	t.Run("trailing fields after VE are ignored", func(t *testing.T) {
		signals := defaultSignals()
		signals.XTimer = "S1.5,VS0,VE42,X7"

		cls := classifier.Classify(signals)
		assert.Equal(t, VerdictInferredHit, cls.Verdict)
		require.NotNil(t, cls.ResponseTimeMS)
		assert.Equal(t, 42, *cls.ResponseTimeMS)
	})

	t.Run("timer without VE marker is unknown", func(t *testing.T) {
		signals := defaultSignals()
		signals.XTimer = "S1763167085.909978,VS0"

		cls := classifier.Classify(signals)
		assert.Equal(t, VerdictUnknown, cls.Verdict)
		assert.Nil(t, cls.ResponseTimeMS)
	})

	t.Run("unparseable VE value is unknown", func(t *testing.T) {
		signals := defaultSignals()
		signals.XTimer = "S1.5,VS0,VEfast"

		cls := classifier.Classify(signals)
		assert.Equal(t, VerdictUnknown, cls.Verdict)
		assert.Nil(t, cls.ResponseTimeMS)
	})

	t.Run("custom thresholds move the bands", func(t *testing.T) {
		tight := NewClassifier(10, 20)
		signals := defaultSignals()
		signals.XTimer = "S1.5,VS0,VE50"

		assert.Equal(t, VerdictInferredMiss, tight.Classify(signals).Verdict)
	})
}

func TestVerdictFamilies(t *testing.T) {
	assert.True(t, VerdictHit.IsHit())
	assert.True(t, VerdictRefreshHit.IsHit())
	assert.True(t, VerdictInferredHit.IsHit())
	assert.False(t, VerdictMiss.IsHit())

	assert.True(t, VerdictMiss.IsMiss())
	assert.True(t, VerdictRefreshMiss.IsMiss())
	assert.True(t, VerdictInferredMiss.IsMiss())
	assert.False(t, VerdictHit.IsMiss())

	assert.True(t, VerdictUnknown.IsUnknown())
	assert.True(t, VerdictTimingUnclear.IsUnknown())
	assert.False(t, VerdictError.IsUnknown())
}

func intPtr(v int) *int { return &v }
