package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.CacheHit("result")
	rec.CacheMiss("result")
	rec.CacheMiss("result")
	rec.CacheStale("weather")
	rec.ProviderCall("onecall", true)
	rec.ProviderCall("onecall", false)
	rec.Prediction("ok")

	require.Equal(t, 2.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("result", "miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.providerCalls.WithLabelValues("onecall", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.predictions.WithLabelValues("ok")))

	snap := rec.CacheSnapshot()
	require.Equal(t, CacheStats{Hits: 1, Misses: 2}, snap["result"])
	require.Equal(t, CacheStats{Stale: 1}, snap["weather"])
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.CacheHit("result")
	rec.ProviderCall("onecall", true)
	rec.Prediction("error")
	require.Empty(t, rec.CacheSnapshot())
}
