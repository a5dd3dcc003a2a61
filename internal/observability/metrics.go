package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	dispatchMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "napmirror",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Inbound envelopes by notification id and outcome class.",
		},
		[]string{"id", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "napmirror",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Handler run time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"id"},
	)
	mirrorObjects = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "napmirror",
			Subsystem: "mirror",
			Name:      "objects",
			Help:      "Mirror objects currently registered.",
		},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "napmirror",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Outbound calls by method and send result.",
		},
		[]string{"method", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "napmirror",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inspector HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "napmirror",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Inspector HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dispatchMessages, dispatchDuration, mirrorObjects, rpcCalls, httpRequests, httpDuration)
	})
}

func RecordDispatch(id, outcome string, duration time.Duration) {
	RegisterMetrics()
	dispatchMessages.WithLabelValues(id, outcome).Inc()
	dispatchDuration.WithLabelValues(id).Observe(duration.Seconds())
}

func SetMirrorObjects(n int) {
	RegisterMetrics()
	mirrorObjects.Set(float64(n))
}

func RecordCall(method string, success bool) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(method, strconv.FormatBool(success)).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
