// Package dispatch runs the per-message pipeline: authorize the sender,
// route admin commands, select a handler, invoke it under a deadline and
// record the session.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/admin"
	"github.com/odyssey-erp/msbot/internal/handler"
	"github.com/odyssey-erp/msbot/internal/rbac"
	"github.com/odyssey-erp/msbot/internal/sessions"
)

// DefaultHandlerTimeout bounds a single handler invocation.
const DefaultHandlerTimeout = 30 * time.Second

// Access resolves permissions and aggregate counts.
type Access interface {
	Authorize(ctx context.Context, id string, perm rbac.Permission) access.Decision
	Stats(ctx context.Context) access.Stats
}

// Registry selects handlers and reports their state.
type Registry interface {
	Select(text string, hctx handler.Context) (handler.Selected, bool)
	List() []handler.Info
	Default() (string, bool)
}

// Sessions records per-principal activity.
type Sessions interface {
	Touch(id string, now time.Time) sessions.Session
	Get(id string) (sessions.Session, bool)
	Count() int
}

// AdminRunner executes parsed admin commands.
type AdminRunner interface {
	Execute(ctx context.Context, caller admin.Caller, cmd admin.Command) admin.Result
}

// Recorder receives dispatch metrics.
type Recorder interface {
	ObserveDispatch(outcome string)
	ObserveHandler(name, status string, elapsed time.Duration)
	SetActiveSessions(n int)
}

// Deps are the collaborators a Dispatcher is built from.
type Deps struct {
	Access   Access
	Registry Registry
	Sessions Sessions
	Admin    AdminRunner
	Recorder Recorder
	Logger   *slog.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithHandlerTimeout overrides DefaultHandlerTimeout.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher orchestrates a message from authorization to response.
type Dispatcher struct {
	access   Access
	registry Registry
	sessions Sessions
	admin    AdminRunner
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

type noopRecorder struct{}

func (noopRecorder) ObserveDispatch(string)                      {}
func (noopRecorder) ObserveHandler(string, string, time.Duration) {}
func (noopRecorder) SetActiveSessions(int)                        {}

// New constructs a Dispatcher. Access, Registry and Sessions are required.
func New(deps Deps, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		access:   deps.Access,
		registry: deps.Registry,
		sessions: deps.Sessions,
		admin:    deps.Admin,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		timeout:  DefaultHandlerTimeout,
		now:      time.Now,
	}
	if d.recorder == nil {
		d.recorder = noopRecorder{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch processes one event. It never fails: every branch yields a text
// response and a log entry.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Response {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	// Lookups use the trimmed id; the denial echoes the id exactly as received.
	rawID := ev.PrincipalID
	ev.PrincipalID = strings.TrimSpace(rawID)
	logger := d.logger.With(slog.String("event_id", ev.ID), slog.String("principal_id", ev.PrincipalID))

	resp := d.dispatch(ctx, ev, rawID, logger)
	resp.EventID = ev.ID
	d.recorder.ObserveDispatch(string(resp.Outcome))
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event, rawID string, logger *slog.Logger) Response {
	base := d.access.Authorize(ctx, ev.PrincipalID, rbac.PermUseBot)
	if !base.Allowed {
		logger.Warn("unauthorized message", slog.String("reason", string(base.Reason)))
		return Response{Text: unauthorizedMessage(rawID), Outcome: OutcomeUnauthorized, Err: base.Err()}
	}

	if admin.IsCommand(ev.Text) {
		return d.runAdmin(ctx, ev, base, logger)
	}

	hctx := handler.Context{
		PrincipalID:   ev.PrincipalID,
		DisplayName:   displayName(ev, base),
		Role:          base.Role,
		Metadata:      ev.Metadata,
		MessageNumber: d.nextMessageNumber(ev.PrincipalID),
	}
	sel, ok := d.registry.Select(ev.Text, hctx)
	if !ok {
		logger.Error("no handler available", slog.Any("error", ErrMisconfigured))
		return Response{Text: misconfiguredMessage, Outcome: OutcomeMisconfigured, Err: ErrMisconfigured}
	}
	logger = logger.With(slog.String("handler", sel.Name))

	if perm, gated := sel.Handler.RequiredPermission(); gated {
		decision := d.access.Authorize(ctx, ev.PrincipalID, perm)
		if !decision.Allowed {
			logger.Warn("handler permission denied", slog.String("permission", string(perm)), slog.String("role", string(base.Role)))
			return Response{
				Text:    permissionDeniedMessage(base.Role, perm),
				Outcome: OutcomePermissionDenied,
				Handler: sel.Name,
				Err:     decision.Err(),
			}
		}
	}

	start := d.now()
	text, err := d.invoke(ctx, sel, handler.Request{Text: ev.Text, Context: hctx})
	elapsed := d.now().Sub(start)
	if err != nil {
		d.recorder.ObserveHandler(sel.Name, "error", elapsed)
		logger.Error("handler failed", slog.Any("error", err), slog.Duration("elapsed", elapsed))
		return Response{Text: failureMessage, Outcome: OutcomeHandlerFailure, Handler: sel.Name, Err: err}
	}
	d.recorder.ObserveHandler(sel.Name, "ok", elapsed)

	sess := d.touch(ev.PrincipalID)
	logger.Info("message handled", slog.Int64("message_count", sess.MessageCount), slog.Duration("elapsed", elapsed))
	return Response{Text: text, Outcome: OutcomeHandled, Handler: sel.Name}
}

func (d *Dispatcher) runAdmin(ctx context.Context, ev Event, base access.Decision, logger *slog.Logger) Response {
	decision := d.access.Authorize(ctx, ev.PrincipalID, rbac.PermAdminCommands)
	if !decision.Allowed {
		logger.Warn("admin command denied", slog.String("role", string(base.Role)))
		return Response{
			Text:    permissionDeniedMessage(base.Role, rbac.PermAdminCommands),
			Outcome: OutcomePermissionDenied,
			Err:     decision.Err(),
		}
	}
	if d.admin == nil {
		logger.Error("admin command received without an executor")
		return Response{Text: misconfiguredMessage, Outcome: OutcomeMisconfigured, Err: ErrMisconfigured}
	}
	cmd, err := admin.Parse(ev.Text)
	if err != nil {
		logger.Info("admin command rejected", slog.Any("error", err))
		return Response{Text: fmt.Sprintf("Could not parse the command: %v. Run `/admin help` for usage.", err), Outcome: OutcomeAdmin}
	}
	res := d.admin.Execute(ctx, admin.Caller{ID: ev.PrincipalID, Name: displayName(ev, base)}, cmd)
	d.touch(ev.PrincipalID)
	logger.Info("admin command executed", slog.String("command", cmd.Name), slog.Bool("known", res.Known))
	return Response{Text: res.Text, Outcome: OutcomeAdmin, Err: res.Warning}
}

type result struct {
	text string
	err  error
}

// invoke runs the handler on its own goroutine so that a deadline can be
// enforced even when the handler ignores ctx. A late result is discarded.
func (d *Dispatcher) invoke(ctx context.Context, sel handler.Selected, req handler.Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %s panicked: %v", ErrHandlerFailure, sel.Name, r)}
			}
		}()
		text, err := sel.Handler.Handle(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, ErrHandlerFailure) {
				return "", res.err
			}
			return "", fmt.Errorf("%w: %s: %w", ErrHandlerFailure, sel.Name, res.err)
		}
		if strings.TrimSpace(res.text) == "" {
			return "", fmt.Errorf("%w: %s returned an empty response", ErrHandlerFailure, sel.Name)
		}
		return res.text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", ErrHandlerFailure, sel.Name, ctx.Err())
	}
}

func (d *Dispatcher) touch(id string) sessions.Session {
	sess := d.sessions.Touch(id, d.now())
	d.recorder.SetActiveSessions(d.sessions.Count())
	return sess
}

func (d *Dispatcher) nextMessageNumber(id string) int64 {
	if sess, ok := d.sessions.Get(id); ok {
		return sess.MessageCount + 1
	}
	return 1
}

// Status reports handler state and principal and session counts.
func (d *Dispatcher) Status(ctx context.Context) Status {
	stats := d.access.Stats(ctx)
	defaultName, _ := d.registry.Default()
	return Status{
		Handlers:        d.registry.List(),
		DefaultHandler:  defaultName,
		TotalPrincipals: stats.TotalPrincipals,
		PerRole:         stats.PerRole,
		ActiveSessions:  stats.ActiveSessions,
		GeneratedAt:     d.now().UTC(),
	}
}

func displayName(ev Event, decision access.Decision) string {
	if name := strings.TrimSpace(ev.DisplayName); name != "" {
		return name
	}
	if decision.Principal.Name != "" {
		return decision.Principal.Name
	}
	return ev.PrincipalID
}
