package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk bot.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	dispatchTotal   *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	persistFailures prometheus.Counter
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik dispatch.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msbot_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msbot_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	dispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "msbot_dispatch_total",
		Help: "Jumlah pesan yang diproses berdasarkan hasil dispatch.",
	}, []string{"outcome"})
	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msbot_handler_duration_seconds",
		Help:    "Durasi eksekusi handler per nama dan status.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"handler", "status"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "msbot_active_sessions",
		Help: "Jumlah sesi aktif saat ini.",
	})
	persist := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "msbot_identity_persist_failures_total",
		Help: "Jumlah kegagalan menyimpan identity store.",
	})
	registry.MustRegister(requests, duration, dispatch, handlerDuration, sessions, persist)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		dispatchTotal:   dispatch,
		handlerDuration: handlerDuration,
		activeSessions:  sessions,
		persistFailures: persist,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDispatch mencatat satu pesan dengan hasil outcome.
func (m *Metrics) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

// ObserveHandler mencatat durasi eksekusi handler.
func (m *Metrics) ObserveHandler(name, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(name, status).Observe(elapsed.Seconds())
}

// SetActiveSessions memperbarui gauge sesi aktif.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IncPersistFailure menambah penghitung kegagalan persist.
func (m *Metrics) IncPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
