package dispatch

import (
	"errors"
	"time"

	"github.com/odyssey-erp/msbot/internal/handler"
	"github.com/odyssey-erp/msbot/internal/rbac"
)

var (
	// ErrHandlerFailure indicates a handler error, panic or timeout.
	ErrHandlerFailure = errors.New("dispatch: handler failure")
	// ErrMisconfigured indicates that no handler could be selected.
	ErrMisconfigured = errors.New("dispatch: no handler available")
)

// Outcome labels the terminal branch a message took.
type Outcome string

// Dispatch outcomes.
const (
	OutcomeUnauthorized     Outcome = "unauthorized"
	OutcomePermissionDenied Outcome = "permission_denied"
	OutcomeAdmin            Outcome = "admin"
	OutcomeHandled          Outcome = "handled"
	OutcomeHandlerFailure   Outcome = "handler_failure"
	OutcomeMisconfigured    Outcome = "misconfigured"
)

// Event is an inbound message already authenticated by the transport.
type Event struct {
	ID          string
	PrincipalID string
	DisplayName string
	Text        string
	Metadata    map[string]string
	ReceivedAt  time.Time
}

// Response is the text delivered back to the conversation.
type Response struct {
	EventID string
	Text    string
	Outcome Outcome
	// Handler names the handler that answered, when one was selected.
	Handler string
	// Err holds the internal cause for failure outcomes. It is never shown to users.
	Err error
}

// Status is the read-only view consumed by health and status endpoints.
type Status struct {
	Handlers        []handler.Info    `json:"handlers"`
	DefaultHandler  string            `json:"default_handler,omitempty"`
	TotalPrincipals int               `json:"total_principals"`
	PerRole         map[rbac.Role]int `json:"per_role"`
	ActiveSessions  int               `json:"active_sessions"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
