package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "solar_forecast"

// CacheStats captures lookup counts for a single cache.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Stale  int64 `json:"stale"`
}

// Recorder publishes pipeline counters to Prometheus and keeps a small in-process copy of the
// cache counters so they can be reported without scraping. A nil Recorder is a no-op.
type Recorder struct {
	providerCalls *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	predictions   *prometheus.CounterVec

	mu    sync.Mutex
	cache map[string]*CacheStats
}

// NewRecorder registers the forecast collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Weather provider calls by outcome",
		}, []string{"endpoint", "result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and outcome",
		}, []string{"cache", "outcome"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Hourly predictions by outcome",
		}, []string{"outcome"}),
		cache: make(map[string]*CacheStats),
	}
	if reg != nil {
		reg.MustRegister(r.providerCalls, r.cacheLookups, r.predictions)
	}
	return r
}

// ProviderCall counts one external call attempt.
func (r *Recorder) ProviderCall(endpoint string, success bool) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.providerCalls.WithLabelValues(endpoint, result).Inc()
}

// CacheHit, CacheMiss and CacheStale count lookup outcomes for the named cache.
func (r *Recorder) CacheHit(cache string)   { r.cacheLookup(cache, "hit") }
func (r *Recorder) CacheMiss(cache string)  { r.cacheLookup(cache, "miss") }
func (r *Recorder) CacheStale(cache string) { r.cacheLookup(cache, "stale") }

// Prediction counts one hourly prediction outcome: ok, error or fallback.
func (r *Recorder) Prediction(outcome string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(outcome).Inc()
}

// CacheSnapshot returns a copy of the in-process cache counters keyed by cache name.
func (r *Recorder) CacheSnapshot() map[string]CacheStats {
	out := make(map[string]CacheStats)
	if r == nil {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, stats := range r.cache {
		out[name] = *stats
	}
	return out
}

func (r *Recorder) cacheLookup(cache, outcome string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(cache, outcome).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.cache[cache]
	if !ok {
		stats = &CacheStats{}
		r.cache[cache] = stats
	}
	switch outcome {
	case "hit":
		stats.Hits++
	case "miss":
		stats.Misses++
	case "stale":
		stats.Stale++
	}
}
