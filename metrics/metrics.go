package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canteen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "canteen",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ordersPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canteen",
			Name:      "orders_placed_total",
			Help:      "Orders created by buyers.",
		},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canteen",
			Name:      "order_transitions_total",
			Help:      "Committed order status changes by target status.",
		},
		[]string{"to"},
	)

	acceptConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canteen",
			Name:      "accept_conflicts_total",
			Help:      "Accept attempts that lost the race or found the order no longer pending.",
		},
	)

	codeMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canteen",
			Name:      "delivery_code_mismatches_total",
			Help:      "Delivery confirmations rejected for a wrong code.",
		},
	)

	liveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canteen",
			Name:      "live_subscribers",
			Help:      "Open live order feed subscriptions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		ordersPlaced,
		orderTransitions,
		acceptConflicts,
		codeMismatches,
		liveSubscribers,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func OrderPlaced() {
	ordersPlaced.Inc()
}

func OrderTransition(to string) {
	orderTransitions.WithLabelValues(to).Inc()
}

func AcceptConflict() {
	acceptConflicts.Inc()
}

func CodeMismatch() {
	codeMismatches.Inc()
}

func SetLiveSubscribers(n int) {
	liveSubscribers.Set(float64(n))
}
