package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/dispatch"
	"github.com/odyssey-erp/msbot/internal/handler"
	"github.com/odyssey-erp/msbot/internal/identity"
	"github.com/odyssey-erp/msbot/internal/observability"
	"github.com/odyssey-erp/msbot/internal/rbac"
	"github.com/odyssey-erp/msbot/internal/sessions"
	"github.com/odyssey-erp/msbot/internal/transport"
	"github.com/odyssey-erp/msbot/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := identity.NewStore(identity.NewMemoryMedium(), nil)
	table := sessions.NewTable()
	ctrl := access.NewController(store, table, nil)
	_, _, err := ctrl.Grant(context.Background(), access.GrantInput{ID: "u1", Role: "user"})
	require.NoError(t, err)
	reg := handler.NewRegistry(nil)
	require.NoError(t, LoadHandlers(&Config{}, reg, handler.BuildOptions{}))
	metrics := observability.NewMetrics()
	d := dispatch.New(dispatch.Deps{Access: ctrl, Registry: reg, Sessions: table, Recorder: metrics})

	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000}
	return NewRouter(RouterParams{
		Config:     cfg,
		Messages:   transport.NewHandler(nil, d),
		JobHandler: jobs.NewHandler(nil, nil),
		Metrics:    metrics,
	})
}

func TestRouterEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"principal_id":"u1","text":"hi   there"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Echo: hi there")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `msbot_dispatch_total{outcome="handled"} 1`)
}

func TestRouterRateLimit(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{RateLimitPerMinute: 2}})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

type sleepyHandler struct{ delay time.Duration }

func (sleepyHandler) Name() string                                { return "sleepy" }
func (sleepyHandler) Description() string                         { return "replies after a delay" }
func (sleepyHandler) RequiredPermission() (rbac.Permission, bool) { return "", false }
func (sleepyHandler) CanHandle(string, handler.Context) bool      { return true }
func (h sleepyHandler) Handle(ctx context.Context, req handler.Request) (string, error) {
	select {
	case <-time.After(h.delay):
		return "done: " + req.Text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestServerDeliversReplyWithinHandlerTimeout(t *testing.T) {
	cfg := &Config{
		AppEnv:               "test",
		StoreBackend:         StoreMemory,
		LogLevel:             "info",
		HandlerTimeout:       300 * time.Millisecond,
		SessionTimeout:       time.Hour,
		SessionSweepInterval: time.Hour,
		AppReadTimeout:       time.Second,
		AppWriteTimeout:      600 * time.Millisecond,
		AppRequestTimeout:    time.Second,
		RateLimitPerMinute:   1000,
	}
	require.NoError(t, cfg.Validate())

	cases := []struct {
		name    string
		delay   time.Duration
		outcome dispatch.Outcome
		text    string
	}{
		{name: "slow reply", delay: 200 * time.Millisecond, outcome: dispatch.OutcomeHandled, text: "done: hi"},
		{name: "handler timeout", delay: 5 * time.Second, outcome: dispatch.OutcomeHandlerFailure, text: "Sorry, something went wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := identity.NewStore(identity.NewMemoryMedium(), nil)
			table := sessions.NewTable()
			ctrl := access.NewController(store, table, nil)
			_, _, err := ctrl.Grant(context.Background(), access.GrantInput{ID: "u1", Role: "user"})
			require.NoError(t, err)
			reg := handler.NewRegistry(nil)
			require.NoError(t, reg.Register("sleepy", sleepyHandler{delay: tc.delay}, true))
			d := dispatch.New(dispatch.Deps{Access: ctrl, Registry: reg, Sessions: table},
				dispatch.WithHandlerTimeout(cfg.HandlerTimeout))

			server := NewServer(cfg, NewRouter(RouterParams{Config: cfg, Messages: transport.NewHandler(nil, d)}))
			srv := httptest.NewUnstartedServer(server.Handler)
			srv.Config.ReadTimeout = server.ReadTimeout
			srv.Config.WriteTimeout = server.WriteTimeout
			srv.Start()
			t.Cleanup(srv.Close)

			resp, err := srv.Client().Post(srv.URL+"/api/messages", "application/json",
				strings.NewReader(`{"principal_id":"u1","text":"hi"}`))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body transport.MessageResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, string(tc.outcome), body.Outcome)
			require.Contains(t, body.Text, tc.text)
		})
	}
}

func TestConfigRejectsWriteTimeoutBelowHandlerTimeout(t *testing.T) {
	cfg := Config{
		StoreBackend:         StoreMemory,
		LogLevel:             "info",
		HandlerTimeout:       300 * time.Millisecond,
		SessionTimeout:       time.Hour,
		SessionSweepInterval: time.Hour,
		AppWriteTimeout:      150 * time.Millisecond,
		AppRequestTimeout:    time.Second,
		RateLimitPerMinute:   1000,
	}
	require.ErrorContains(t, cfg.Validate(), "APP_WRITE_TIMEOUT")
}
