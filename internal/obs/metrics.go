package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the backing store answered the last readiness check.",
	})
)

// Campaign metrics
var (
	logAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larp_log_appends_total",
			Help: "Entries appended to campaign logs, by stream kind.",
		},
		[]string{"stream"},
	)

	malformedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "larp_malformed_events_total",
			Help: "Log entries skipped while folding because they carried no usable payload.",
		},
		[]string{"stream"},
	)

	publishWatermark = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "larp_publish_watermark_ms",
		Help: "Current journal publication watermark in milliseconds since the epoch.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, serviceReady,
			logAppendsTotal, malformedEventsTotal, publishWatermark,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func CountAppend(stream string)    { logAppendsTotal.WithLabelValues(stream).Inc() }
func CountMalformed(stream string) { malformedEventsTotal.WithLabelValues(stream).Inc() }
func SetWatermark(ms int64)        { publishWatermark.Set(float64(ms)) }

func SetReady(ok bool) {
	if ok {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

var (
	routesMu sync.RWMutex
	routes   = map[string]struct{}{}
)

// RegisterRoutes declares the paths that may appear verbatim as metric labels.
func RegisterRoutes(paths ...string) {
	routesMu.Lock()
	defer routesMu.Unlock()
	for _, p := range paths {
		routes[p] = struct{}{}
	}
}

// CanonicalPath bounds label cardinality: registered routes keep their path,
// everything else collapses to "/static" (asset requests) or "other".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	routesMu.RLock()
	_, ok := routes[path]
	routesMu.RUnlock()
	if ok || path == "/" {
		return path
	}
	if strings.HasPrefix(path, "/api/") {
		return "other"
	}
	return "/static"
}

// Instrument records in-flight count, rate and latency per route.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets server-sent events pass through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
