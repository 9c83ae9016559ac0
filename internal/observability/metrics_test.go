package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/odyssey-erp/msbot/internal/jobs"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("sessions:sweep").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "msbot_jobs_total") {
		t.Fatalf("expected body to contain msbot_jobs_total, got: %s", body)
	}
	if !strings.Contains(body, "msbot_active_sessions 0") {
		t.Fatalf("expected session gauge, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "msbot_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "msbot_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestDispatchMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDispatch("handled")
	metrics.ObserveDispatch("handled")
	metrics.ObserveDispatch("unauthorized")
	metrics.ObserveHandler("echo", "ok", 3*time.Millisecond)
	metrics.SetActiveSessions(4)
	metrics.IncPersistFailure()

	body := scrape(t, metrics)
	for _, want := range []string{
		`msbot_dispatch_total{outcome="handled"} 2`,
		`msbot_dispatch_total{outcome="unauthorized"} 1`,
		`msbot_handler_duration_seconds_count{handler="echo",status="ok"} 1`,
		`msbot_active_sessions 4`,
		`msbot_identity_persist_failures_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDispatch("handled")
	metrics.ObserveHandler("echo", "ok", time.Millisecond)
	metrics.SetActiveSessions(1)
	metrics.IncPersistFailure()

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
