package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds Prometheus metrics collectors
type Collector struct {
	requestDuration prometheus.HistogramVec
	requestTotal    prometheus.CounterVec
	requestSize     prometheus.HistogramVec
	responseSize    prometheus.HistogramVec
	errorTotal      prometheus.CounterVec

	QueueDepth        prometheus.GaugeVec
	RecordsDropped    prometheus.CounterVec
	RecordsIngested   prometheus.CounterVec
	EventsClassified  prometheus.CounterVec
	EventsIgnored     prometheus.CounterVec
	RuleCacheHits     prometheus.CounterVec
	RuleCacheMisses   prometheus.CounterVec
	CorrelationsFound prometheus.CounterVec
	ActionOutcomes    prometheus.CounterVec
	BroadcastSkipped  prometheus.CounterVec
}

// registerHistogramVec registers v with the default registerer, reusing
// the already-registered collector of the same name instead of panicking
// when NewCollector is called more than once in a process (every test
// package constructs its own collector by service name).
func registerHistogramVec(v *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(v); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return v
}

func registerCounterVec(v *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(v); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return v
}

func registerGaugeVec(v *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := prometheus.Register(v); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return v
}

// NewCollector creates a new metrics collector
func NewCollector(serviceName string) *Collector {
	c := &Collector{
		requestDuration: *registerHistogramVec(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "endpoint", "status_code"},
		)),
		requestTotal: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "endpoint", "status_code"},
		)),
		requestSize: *registerHistogramVec(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_size_bytes",
				Help:    "HTTP request sizes in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
			},
			[]string{"service", "method", "endpoint"},
		)),
		responseSize: *registerHistogramVec(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response sizes in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
			},
			[]string{"service", "method", "endpoint", "status_code"},
		)),
		errorTotal: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"service", "type", "operation"},
		)),
		QueueDepth: *registerGaugeVec(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostguard_channel_queue_depth",
				Help: "Current number of raw records buffered per channel",
			},
			[]string{"channel"},
		)),
		RecordsDropped: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_records_dropped_total",
				Help: "Raw records dropped due to backpressure (drop-oldest)",
			},
			[]string{"channel"},
		)),
		RecordsIngested: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_records_ingested_total",
				Help: "Raw records dequeued for handling per channel",
			},
			[]string{"channel"},
		)),
		EventsClassified: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_events_classified_total",
				Help: "Security events produced by the normalizer",
			},
			[]string{"event_type", "risk_level"},
		)),
		EventsIgnored: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_events_ignored_total",
				Help: "Classified events suppressed by the ignore-pattern engine",
			},
			[]string{"reason"},
		)),
		RuleCacheHits: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_rule_cache_hits_total",
				Help: "Rule Store cache hits",
			},
			[]string{"channel"},
		)),
		RuleCacheMisses: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_rule_cache_misses_total",
				Help: "Rule Store cache misses requiring a reload",
			},
			[]string{"channel"},
		)),
		CorrelationsFound: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_correlations_total",
				Help: "Correlations emitted by the correlation engine",
			},
			[]string{"type"},
		)),
		ActionOutcomes: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_action_outcomes_total",
				Help: "Response orchestrator action transitions",
			},
			[]string{"type", "outcome"},
		)),
		BroadcastSkipped: *registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostguard_broadcast_skipped_total",
				Help: "Broadcast messages skipped or dropped due to a full subscriber channel",
			},
			[]string{"stream"},
		)),
	}

	return c
}

// RecordHTTPRequest records metrics for an HTTP request
func (c *Collector) RecordHTTPRequest(serviceName, method, endpoint string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	statusCodeStr := strconv.Itoa(statusCode)
	
	c.requestDuration.WithLabelValues(serviceName, method, endpoint, statusCodeStr).Observe(duration.Seconds())
	c.requestTotal.WithLabelValues(serviceName, method, endpoint, statusCodeStr).Inc()
	c.requestSize.WithLabelValues(serviceName, method, endpoint).Observe(float64(requestSize))
	c.responseSize.WithLabelValues(serviceName, method, endpoint, statusCodeStr).Observe(float64(responseSize))
}

// RecordError records an error metric
func (c *Collector) RecordError(serviceName, errorType, operation string) {
	c.errorTotal.WithLabelValues(serviceName, errorType, operation).Inc()
}

// HandlerFunc returns a handler function for the /metrics endpoint
func HandlerFunc() gin.HandlerFunc {
	h := promhttp.Handler()
	return gin.WrapH(h)
}

// Middleware creates a Gin middleware for automatic metrics collection
func Middleware(serviceName string, collector *Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		
		// Process request
		c.Next()
		
		// Record metrics
		duration := time.Since(start)
		requestSize := calculateRequestSize(c.Request)
		responseSize := int64(c.Writer.Size())
		
		collector.RecordHTTPRequest(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			c.Writer.Status(),
			duration,
			requestSize,
			responseSize,
		)
	}
}

// calculateRequestSize calculates the size of an HTTP request
func calculateRequestSize(r *http.Request) int64 {
	size := int64(0)
	if r.URL != nil {
		size += int64(len(r.URL.String()))
	}
	
	size += int64(len(r.Method))
	size += int64(len(r.Proto))
	
	for name, values := range r.Header {
		size += int64(len(name))
		for _, value := range values {
			size += int64(len(value))
		}
	}
	
	if r.ContentLength > 0 {
		size += r.ContentLength
	}
	
	return size
}