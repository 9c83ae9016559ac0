package handler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

// Normalize trims text and collapses internal whitespace runs to one space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// EchoHandler repeats the normalized message back. It accepts every message.
type EchoHandler struct {
	gate
	name        string
	description string
	processed   atomic.Int64
}

// NewEcho constructs an EchoHandler.
func NewEcho(name, description string, perm rbac.Permission) *EchoHandler {
	if description == "" {
		description = "Repeats the message back"
	}
	return &EchoHandler{gate: gate{perm: perm}, name: name, description: description}
}

func (h *EchoHandler) Name() string        { return h.name }
func (h *EchoHandler) Description() string { return h.description }

// CanHandle accepts everything.
func (h *EchoHandler) CanHandle(string, Context) bool { return true }

// Handle returns "Echo: " followed by the normalized text.
func (h *EchoHandler) Handle(_ context.Context, req Request) (string, error) {
	h.processed.Add(1)
	return "Echo: " + Normalize(req.Text), nil
}

// Processed reports how many messages the handler answered.
func (h *EchoHandler) Processed() int64 { return h.processed.Load() }

// AuthEchoHandler echoes with the caller's profile and a role hint.
type AuthEchoHandler struct {
	gate
	name        string
	description string
	processed   atomic.Int64
}

// NewAuthEcho constructs an AuthEchoHandler.
func NewAuthEcho(name, description string, perm rbac.Permission) *AuthEchoHandler {
	if description == "" {
		description = "Echo with caller profile and role"
	}
	return &AuthEchoHandler{gate: gate{perm: perm}, name: name, description: description}
}

func (h *AuthEchoHandler) Name() string        { return h.name }
func (h *AuthEchoHandler) Description() string { return h.description }

// CanHandle accepts anything that is not an admin command.
func (h *AuthEchoHandler) CanHandle(text string, _ Context) bool {
	return !strings.HasPrefix(strings.TrimSpace(text), "/admin")
}

func (h *AuthEchoHandler) Handle(_ context.Context, req Request) (string, error) {
	h.processed.Add(1)
	name := req.Context.DisplayName
	if name == "" {
		name = req.Context.PrincipalID
	}
	msg := Normalize(req.Text)

	var b strings.Builder
	b.WriteString("MSBot echo (authenticated)\n\n")
	fmt.Fprintf(&b, "User: %s\n", name)
	fmt.Fprintf(&b, "Role: %s\n", req.Context.Role.Title())
	fmt.Fprintf(&b, "Message #%d: %s\n\n", req.Context.MessageNumber, msg)
	fmt.Fprintf(&b, "Echo: %s\n", msg)
	switch req.Context.Role {
	case rbac.RoleAdmin:
		b.WriteString("\nAdmin privileges: /admin commands are available.")
	case rbac.RoleUser:
		b.WriteString("\nKnowledge lookups are available once configured.")
	case rbac.RoleGuest:
		b.WriteString("\nLimited access: echo only.")
	}
	return b.String(), nil
}

// Processed reports how many messages the handler answered.
func (h *AuthEchoHandler) Processed() int64 { return h.processed.Load() }

// KeywordHandler claims messages starting with one of its prefixes and
// answers with a fixed reply.
type KeywordHandler struct {
	gate
	name        string
	description string
	prefixes    []string
	reply       string
}

// NewKeyword constructs a KeywordHandler. Prefix matching is case-insensitive.
func NewKeyword(name, description string, perm rbac.Permission, prefixes []string, reply string) *KeywordHandler {
	lowered := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &KeywordHandler{gate: gate{perm: perm}, name: name, description: description, prefixes: lowered, reply: reply}
}

func (h *KeywordHandler) Name() string        { return h.name }
func (h *KeywordHandler) Description() string { return h.description }

func (h *KeywordHandler) CanHandle(text string, _ Context) bool {
	return hasPrefix(text, h.prefixes)
}

func (h *KeywordHandler) Handle(context.Context, Request) (string, error) {
	return h.reply, nil
}

// ReportFunc renders a status report.
type ReportFunc func(ctx context.Context) (string, error)

// StatsHandler answers its trigger prefixes with a status report.
type StatsHandler struct {
	gate
	name        string
	description string
	prefixes    []string
	report      ReportFunc
}

// NewStats constructs a StatsHandler. It requires view_metrics unless perm overrides it.
func NewStats(name, description string, perm rbac.Permission, prefixes []string, report ReportFunc) *StatsHandler {
	if perm == "" {
		perm = rbac.PermViewMetrics
	}
	if len(prefixes) == 0 {
		prefixes = []string{"/stats"}
	}
	if description == "" {
		description = "Bot usage statistics"
	}
	kw := NewKeyword(name, description, perm, prefixes, "")
	return &StatsHandler{gate: kw.gate, name: name, description: description, prefixes: kw.prefixes, report: report}
}

func (h *StatsHandler) Name() string        { return h.name }
func (h *StatsHandler) Description() string { return h.description }

func (h *StatsHandler) CanHandle(text string, _ Context) bool {
	return hasPrefix(text, h.prefixes)
}

func (h *StatsHandler) Handle(ctx context.Context, _ Request) (string, error) {
	if h.report == nil {
		return "", fmt.Errorf("handler: %s: no report source", h.name)
	}
	return h.report(ctx)
}

func hasPrefix(text string, prefixes []string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, p := range prefixes {
		if strings.HasPrefix(lowered, p) {
			return true
		}
	}
	return false
}
