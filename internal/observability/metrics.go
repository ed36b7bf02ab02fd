package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/nurse-directory/internal/normalize"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 increases as the dataset grows.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Lookup outcomes: found, not_found, unavailable, error.
	NurseLookupsTotal *prometheus.CounterVec

	// Per-city lookup count (allow-list; others go to "other").
	NurseLookupsByCityTotal *prometheus.CounterVec

	// Dataset loads by result: parsed, cached, error. A high parse rate with
	// caching enabled means the file keeps changing.
	DatasetLoadsTotal *prometheus.CounterVec

	// Time to read and parse the dataset file.
	DatasetLoadDuration prometheus.Histogram

	// Rows in the most recently parsed dataset.
	DatasetRows prometheus.Gauge

	// City API call rate by status label.
	CityAPICallsTotal *prometheus.CounterVec

	// City API latency. Watch for: p95 approaching the client timeout.
	CityAPIDuration *prometheus.HistogramVec

	// City API failures by category (timeout, network, not_found, ...).
	CityAPIErrorsTotal *prometheus.CounterVec

	// Lookups answered with name-only city info because the API failed.
	EnrichmentDegradedTotal prometheus.Counter

	// City info cache hits by backend.
	CacheHitsTotal *prometheus.CounterVec

	// City info cache errors by operation and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Circuit breaker state: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials (429).
	RateLimitDeniedTotal prometheus.Counter

	// Requests rejected by the API key gate (403).
	AuthRejectedTotal prometheus.Counter

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	NurseLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurseLookupsTotal",
			Help: "Nurse lookups by outcome",
		},
		[]string{"outcome"},
	)
	NurseLookupsByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurseLookupsByCityTotal",
			Help: "Nurse lookups by normalized city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	DatasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasetLoadsTotal",
			Help: "Dataset loads by result (parsed, cached, error)",
		},
		[]string{"result"},
	)
	DatasetLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datasetLoadDurationSeconds",
			Help:    "Dataset read and parse latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
	DatasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datasetRows",
			Help: "Rows in the most recently parsed dataset",
		},
	)
	CityAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityApiCallsTotal",
			Help: "Total number of city metadata API calls",
		},
		[]string{"status"},
	)
	CityAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cityApiDurationSeconds",
			Help:    "City metadata API latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)
	CityAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityApiErrorsTotal",
			Help: "City metadata API failures by category",
		},
		[]string{"category"},
	)
	EnrichmentDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrichmentDegradedTotal",
			Help: "City enrichments that fell back to name-only info",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "City info cache hits by backend",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "City info cache errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	AuthRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authRejectedTotal",
			Help: "Total number of requests rejected by the API key gate (403)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		NurseLookupsTotal, NurseLookupsByCityTotal,
		DatasetLoadsTotal, DatasetLoadDuration, DatasetRows,
		CityAPICallsTotal, CityAPIDuration, CityAPIErrorsTotal, EnrichmentDegradedTotal,
		CacheHitsTotal, CacheErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal, AuthRejectedTotal,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Cities are
// compared by normalized key, so spelling variants share one label.
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalize.Key(c)] = struct{}{}
	}
}

// RecordLookup records a lookup for city with the given outcome.
func RecordLookup(city, outcome string) {
	NurseLookupsTotal.WithLabelValues(outcome).Inc()
	NurseLookupsByCityTotal.WithLabelValues(CityLabel(city)).Inc()
}

// CityLabel returns the metric label for city: its normalized key when
// tracked, "other" otherwise.
func CityLabel(city string) string {
	key := normalize.Key(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[key]
	trackedCitiesMu.RUnlock()
	if ok {
		return key
	}
	return "other"
}

// RecordCircuitBreakerTransition records a state change for component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerState sets the state gauge for component.
func SetCircuitBreakerState(component string, state int) {
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
