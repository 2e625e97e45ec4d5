package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "placefinder_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Search result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	searchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearby_search_total",
			Help: "Nearby searches served, by category filter.",
		},
		[]string{"category"},
	)

	searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nearby_search_duration_seconds",
			Help:    "End to end nearby search latency excluding HTTP encoding.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"category"},
	)

	searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nearby_search_results",
			Help:    "Number of places returned per nearby search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Place store operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Place store failures surfaced to callers.",
		},
		[]string{"op"},
	)

	spatialCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spatial_candidates_total",
			Help: "Rows returned by the cell pre-filter, by resolution.",
		},
		[]string{"res"},
	)

	spatialMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spatial_matches_total",
			Help: "Candidates that passed the exact distance test, by resolution.",
		},
		[]string{"res"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "place_events_published_total",
			Help: "Place change events handed to the producer.",
		},
		[]string{"op", "result"},
	)

	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "place_events_consumed_total",
			Help: "Place change events read from Kafka, by outcome.",
		},
		[]string{"outcome"},
	)

	kafkaConsumerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Errors reported by the consumer group.",
		},
	)
)

var all = []prometheus.Collector{
	httpRequestsTotal,
	httpRequestDurationSeconds,
	buildInfo,
	cacheResults,
	cacheOps,
	redisOpDuration,
	searchTotal,
	searchDuration,
	searchResults,
	storeDuration,
	storeErrors,
	spatialCandidates,
	spatialMatches,
	eventsPublished,
	eventsConsumed,
	kafkaConsumerErrors,
}

func init() {
	prometheus.MustRegister(all...)
}

// Init also exposes every collector on reg, typically the metrics.Provider
// registry. Safe to call more than once with the same registry.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncCacheHit() { cacheResults.WithLabelValues("hit").Inc() }

func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

// ObserveCacheOp records one Redis round trip.
func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOps.WithLabelValues(op, result).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveSearch(category string, results int, durationSeconds float64) {
	searchTotal.WithLabelValues(category).Inc()
	searchDuration.WithLabelValues(category).Observe(durationSeconds)
	searchResults.Observe(float64(results))
}

func ObserveStoreLatency(op string, durationSeconds float64) {
	storeDuration.WithLabelValues(op).Observe(durationSeconds)
}

func IncStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}

// ObserveCandidates tracks how selective the cell pre-filter was.
func ObserveCandidates(res, candidates, matched int) {
	r := strconv.Itoa(res)
	spatialCandidates.WithLabelValues(r).Add(float64(candidates))
	spatialMatches.WithLabelValues(r).Add(float64(matched))
}

func ObserveEventPublished(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublished.WithLabelValues(op, result).Inc()
}

// IncEventConsumed counts consumed events; outcome is one of applied,
// duplicate, own, invalid.
func IncEventConsumed(outcome string) {
	eventsConsumed.WithLabelValues(outcome).Inc()
}

func IncKafkaConsumerError() { kafkaConsumerErrors.Inc() }

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

// ExposeBuildInfo sets placefinder_build_info, the only build gauge.
func ExposeBuildInfo(b BuildInfo) {
	if b.Version == "" {
		b.Version = "dev"
	}
	buildInfo.WithLabelValues(b.Version, b.Revision, b.Branch, b.BuildDate).Set(1)
}
