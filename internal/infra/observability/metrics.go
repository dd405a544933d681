package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the scorer.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	derivationDuration prometheus.Histogram
	derivationFailures *prometheus.CounterVec
	predictions        *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	requestsTotal      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		derivationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scorer_feature_derivation_seconds",
				Help:    "Time spent deriving a feature record from a snapshot.",
				Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
			},
		),
		derivationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorer_derivation_failures_total",
				Help: "Snapshots rejected before derivation, by error kind.",
			},
			[]string{"kind"},
		),
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorer_predictions_total",
				Help: "Predictions returned, by label.",
			},
			[]string{"label"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scorer_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorer_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorer_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorer_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scorer_requests_total",
				Help: "Total scoring requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordDerivation records the time taken by one feature derivation.
func (m *Metrics) RecordDerivation(d time.Duration) {
	m.derivationDuration.Observe(d.Seconds())
}

// IncrDerivationFailure counts a rejected snapshot.
func (m *Metrics) IncrDerivationFailure(kind string) {
	m.derivationFailures.WithLabelValues(kind).Inc()
}

// IncrPrediction counts a prediction by its label.
func (m *Metrics) IncrPrediction(label string) {
	m.predictions.WithLabelValues(label).Inc()
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetScoringSnapshot returns the cumulative scoring metrics served by
// GET /v1/metrics/scoring.
func (m *Metrics) GetScoringSnapshot() *domain.ScoringMetrics {
	requests := counterValues(m.requestsTotal)
	totalRequests := requests["success"] + requests["error"]
	hits := sum(counterValues(m.cacheHits))
	misses := sum(counterValues(m.cacheMisses))

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if totalRequests > 0 {
		errorRate = requests["error"] / totalRequests
	}
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	avgDerivationMs := float64(0)
	h := &dto.Metric{}
	if err := m.derivationDuration.Write(h); err == nil && h.Histogram.GetSampleCount() > 0 {
		avgDerivationMs = h.Histogram.GetSampleSum() / float64(h.Histogram.GetSampleCount()) * 1000
	}

	return &domain.ScoringMetrics{
		TotalRequests:      int64(totalRequests),
		ErrorRate:          errorRate,
		DerivationFailures: toInt(counterValues(m.derivationFailures)),
		Predictions:        toInt(counterValues(m.predictions)),
		CacheHitRate:       cacheHitRate,
		ExternalErrors:     toInt(counterValues(m.externalErrors)),
		AvgDerivationMs:    avgDerivationMs,
		Period:             "all_time",
	}
}

// counterValues collects every child of a single-label CounterVec.
func counterValues(cv *prometheus.CounterVec) map[string]float64 {
	ch := make(chan prometheus.Metric)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	out := make(map[string]float64)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || len(m.Label) == 0 {
			continue
		}
		out[m.Label[0].GetValue()] = m.GetCounter().GetValue()
	}
	return out
}

func sum(values map[string]float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func toInt(values map[string]float64) map[string]int64 {
	out := make(map[string]int64, len(values))
	for k, v := range values {
		out[k] = int64(v)
	}
	return out
}
