package app

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry for the service.
// It satisfies both the excuse API MutationObserver and the auth LoginObserver.
type Metrics struct {
	reg *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	records   prometheus.Gauge
	mutations *prometheus.CounterVec
	logins    *prometheus.CounterVec
}

// NewMetrics registers every collector. feedSubscribers may be nil.
func NewMetrics(feedSubscribers func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "excuses_http_requests_total",
			Help: "HTTP requests by route pattern and status class.",
		}, []string{"method", "route", "status_class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "excuses_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "excuses_records",
			Help: "Number of excuses currently stored.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "excuses_mutations_total",
			Help: "Add and delete attempts by outcome.",
		}, []string{"op", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "excuses_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"result"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.records, m.mutations, m.logins,
	)
	if feedSubscribers != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "excuses_feed_subscribers",
			Help: "Connected live feed clients.",
		}, func() float64 { return float64(feedSubscribers()) }))
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveMutation(op, result string) {
	m.mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetRecords(n int) {
	m.records.Set(float64(n))
}

func (m *Metrics) ObserveLogin(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// Middleware records request count and latency. It must run inside the chi
// router so the matched route pattern is known once the handler returns.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := routeLabel(r)
		m.requests.WithLabelValues(r.Method, route, statusClass(sw.status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel keeps label cardinality bounded: unmatched paths share one label.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if p := rctx.RoutePattern(); p != "" && p != "/*" {
		return p
	}
	return "unmatched"
}

// statusWriter records the status and keeps the websocket upgrade working.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return hj.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
