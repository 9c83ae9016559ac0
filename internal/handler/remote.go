package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

const maxRemoteBody = 1 << 20

// RemoteConfig configures a RemoteHandler.
type RemoteConfig struct {
	Name          string
	Description   string
	Endpoint      string
	Permission    rbac.Permission
	Prefixes      []string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Client        *http.Client
}

// RemoteHandler forwards messages to an external knowledge service and
// returns its answer. Requests are rate limited on the client side.
type RemoteHandler struct {
	gate
	name        string
	description string
	endpoint    string
	prefixes    []string
	timeout     time.Duration
	client      *http.Client
	limiter     *rate.Limiter
}

type remoteQuery struct {
	Query       string            `json:"query"`
	PrincipalID string            `json:"principal_id"`
	Context     map[string]string `json:"context,omitempty"`
}

type remoteAnswer struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// NewRemote constructs a RemoteHandler. Without prefixes it accepts every
// non-command message. Timeout bounds each call even when Client is shared
// and carries a longer timeout of its own.
func NewRemote(cfg RemoteConfig) (*RemoteHandler, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("handler: remote %s: endpoint is required", cfg.Name)
	}
	if cfg.Permission == "" {
		cfg.Permission = rbac.PermUseRag
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.Description == "" {
		cfg.Description = "Knowledge lookup via " + cfg.Endpoint
	}
	kw := NewKeyword(cfg.Name, cfg.Description, cfg.Permission, cfg.Prefixes, "")
	return &RemoteHandler{
		gate:        kw.gate,
		name:        cfg.Name,
		description: cfg.Description,
		endpoint:    cfg.Endpoint,
		prefixes:    kw.prefixes,
		timeout:     cfg.Timeout,
		client:      client,
		limiter:     rate.NewLimiter(limit, burst),
	}, nil
}

func (h *RemoteHandler) Name() string        { return h.name }
func (h *RemoteHandler) Description() string { return h.description }

func (h *RemoteHandler) CanHandle(text string, _ Context) bool {
	if len(h.prefixes) == 0 {
		return !strings.HasPrefix(strings.TrimSpace(text), "/")
	}
	return hasPrefix(text, h.prefixes)
}

func (h *RemoteHandler) Handle(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("handler: %s: rate limit wait: %w", h.name, err)
	}
	body, err := json.Marshal(remoteQuery{
		Query:       Normalize(req.Text),
		PrincipalID: req.Context.PrincipalID,
		Context:     req.Context.Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("handler: %s: encode query: %w", h.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("handler: %s: build request: %w", h.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("handler: %s: call: %w", h.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return "", fmt.Errorf("handler: %s: read response: %w", h.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("handler: %s: upstream status %d", h.name, resp.StatusCode)
	}
	var answer remoteAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		return "", fmt.Errorf("handler: %s: decode response: %w", h.name, err)
	}
	if answer.Error != "" {
		return "", fmt.Errorf("handler: %s: upstream error: %s", h.name, answer.Error)
	}
	if strings.TrimSpace(answer.Answer) == "" {
		return "", fmt.Errorf("handler: %s: empty answer", h.name)
	}
	return answer.Answer, nil
}
