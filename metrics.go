package switchboard

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus instruments for the framework. Request
// counters are labelled by method and status; the async instruments count the
// two possible resolutions of a suspended request, and the gauge tracks how
// many requests are currently parked.
type metrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	asyncCompletions prometheus.Counter
	asyncTimeouts    prometheus.Counter
	suspended        prometheus.Gauge
}

// globalMetrics is the singleton metrics instance, created on first use.
var (
	globalMetrics     *metrics
	globalMetricsOnce sync.Once
	metricsRegistry   prometheus.Registerer = prometheus.DefaultRegisterer
	metricsRegistryMu sync.Mutex
)

// SetMetricsRegistry overrides the Prometheus registry the framework
// registers its instruments with. Must be called before any application
// starts serving; once the instruments exist the registry is fixed.
func SetMetricsRegistry(r prometheus.Registerer) {
	metricsRegistryMu.Lock()
	defer metricsRegistryMu.Unlock()
	metricsRegistry = r
}

func appMetrics() *metrics {
	globalMetricsOnce.Do(func() {
		metricsRegistryMu.Lock()
		factory := promauto.With(metricsRegistry)
		metricsRegistryMu.Unlock()
		globalMetrics = &metrics{
			requests: factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: "switchboard",
				Name:      "requests_total",
				Help:      "Requests dispatched, by method and response status.",
			}, []string{"method", "status"}),
			requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "switchboard",
				Name:      "request_duration_seconds",
				Help:      "Synchronous dispatch duration, by method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			asyncCompletions: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "switchboard",
				Name:      "async_completions_total",
				Help:      "Suspended requests resolved by their deferred computation.",
			}),
			asyncTimeouts: factory.NewCounter(prometheus.CounterOpts{
				Namespace: "switchboard",
				Name:      "async_timeouts_total",
				Help:      "Suspended requests resolved by deadline expiry.",
			}),
			suspended: factory.NewGauge(prometheus.GaugeOpts{
				Namespace: "switchboard",
				Name:      "suspended_requests",
				Help:      "Requests currently parked awaiting async completion.",
			}),
		}
	})
	return globalMetrics
}
