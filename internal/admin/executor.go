package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/msbot/internal/access"
	"github.com/odyssey-erp/msbot/internal/handler"
	"github.com/odyssey-erp/msbot/internal/identity"
	"github.com/odyssey-erp/msbot/internal/rbac"
	"github.com/odyssey-erp/msbot/internal/sessions"
)

// AccessAdmin is the subset of the access controller admin commands drive.
type AccessAdmin interface {
	Grant(ctx context.Context, in access.GrantInput) (identity.Principal, bool, error)
	SetRole(ctx context.Context, id string, role rbac.Role, updatedBy string) (identity.Principal, rbac.Role, error)
	Revoke(ctx context.Context, id, revokedBy string) (identity.Principal, error)
	Lookup(ctx context.Context, id string) (identity.Principal, error)
	List(ctx context.Context) []identity.Principal
	Stats(ctx context.Context) access.Stats
	Export(ctx context.Context) access.Export
}

// HandlerAdmin is the subset of the handler registry admin commands drive.
type HandlerAdmin interface {
	List() []handler.Info
	SetEnabled(name string, enabled bool) error
}

// SessionLister exposes live sessions for reporting.
type SessionLister interface {
	List() []sessions.Session
}

// Caller identifies the administrator running a command.
type Caller struct {
	ID   string
	Name string
}

func (c Caller) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Result is the reply to an admin command.
type Result struct {
	Text string
	// Known is false for unknown subcommands.
	Known bool
	// Warning carries a persistence failure for a change that was applied.
	Warning error
}

// Executor runs parsed admin commands. It does not check the caller's
// privileges; the dispatcher authorizes admin_commands first.
type Executor struct {
	access   AccessAdmin
	handlers HandlerAdmin
	sessions SessionLister
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor constructs an Executor. handlers and sessions may be nil.
func NewExecutor(acc AccessAdmin, handlers HandlerAdmin, sess SessionLister, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{access: acc, handlers: handlers, sessions: sess, logger: logger, now: time.Now}
}

// Execute runs cmd on behalf of caller and renders a text reply.
func (e *Executor) Execute(ctx context.Context, caller Caller, cmd Command) Result {
	var res Result
	switch cmd.Name {
	case "help", "":
		res = Result{Text: helpText}
	case "status":
		res = Result{Text: e.status(ctx, caller)}
	case "users":
		res = Result{Text: e.users(ctx)}
	case "metrics":
		res = Result{Text: e.metrics(ctx, caller)}
	case "add":
		res = e.add(ctx, caller, cmd.Args)
	case "remove":
		res = e.remove(ctx, caller, cmd.Args)
	case "role":
		res = e.role(ctx, caller, cmd.Args)
	case "export":
		res = e.export(ctx, caller)
	case "handlers":
		res = Result{Text: e.handlerList()}
	case "enable", "disable":
		res = e.toggle(caller, cmd.Name == "enable", cmd.Args)
	default:
		return Result{Text: fmt.Sprintf("Unknown command: `/admin %s`\n\n%s", cmd.Name, shortUsage)}
	}
	res.Known = true
	if res.Warning != nil {
		e.logger.Warn("admin change not persisted",
			slog.String("command", cmd.Name),
			slog.String("caller", caller.ID),
			slog.Any("error", res.Warning))
		res.Text += "\n\nWarning: the change is active but could not be saved to storage; it may be lost on restart."
	}
	return res
}

func (e *Executor) status(ctx context.Context, caller Caller) string {
	stats := e.access.Stats(ctx)
	var b strings.Builder
	b.WriteString("MSBot status\n\n")
	fmt.Fprintf(&b, "Administrator: %s\n", caller.label())
	fmt.Fprintf(&b, "Authorized principals: %d\n", stats.TotalPrincipals)
	fmt.Fprintf(&b, "Active sessions: %d\n\n", stats.ActiveSessions)
	b.WriteString("Roles:\n")
	for _, role := range rbac.Roles() {
		fmt.Fprintf(&b, "  - %s: %d\n", role.Title(), stats.PerRole[role])
	}
	if e.handlers != nil {
		b.WriteString("\nHandlers:\n")
		b.WriteString(renderHandlers(e.handlers.List()))
	}
	if active := e.activeSessions(); len(active) > 0 {
		b.WriteString("\nActive users:\n")
		for _, s := range active {
			fmt.Fprintf(&b, "  - %s\n", e.displayName(ctx, s.PrincipalID))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Executor) users(ctx context.Context) string {
	principals := e.access.List(ctx)
	if len(principals) == 0 {
		return "No authorized principals are configured."
	}
	active := make(map[string]bool)
	for _, s := range e.activeSessions() {
		active[s.PrincipalID] = true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Authorized principals (%d):\n", len(principals))
	for _, p := range principals {
		state := "inactive"
		if active[p.ID] {
			state = "active"
		}
		fmt.Fprintf(&b, "\n%s\n", nameOr(p.Name, p.ID))
		fmt.Fprintf(&b, "  - ID: `%s`\n", p.ID)
		fmt.Fprintf(&b, "  - Email: %s\n", nameOr(p.Email, "n/a"))
		fmt.Fprintf(&b, "  - Role: %s\n", p.Role)
		fmt.Fprintf(&b, "  - State: %s\n", state)
		fmt.Fprintf(&b, "  - Added: %s\n", formatTime(p.AddedAt))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Executor) metrics(ctx context.Context, caller Caller) string {
	stats := e.access.Stats(ctx)
	var b strings.Builder
	b.WriteString("MSBot metrics\n\n")
	fmt.Fprintf(&b, "Authorized principals: %d\n", stats.TotalPrincipals)
	fmt.Fprintf(&b, "Active sessions: %d\n", stats.ActiveSessions)
	fmt.Fprintf(&b, "Activity rate: %.1f%%\n\n", percent(stats.ActiveSessions, stats.TotalPrincipals))
	b.WriteString("Roles:\n")
	for _, role := range rbac.Roles() {
		n := stats.PerRole[role]
		fmt.Fprintf(&b, "  - %s: %d (%.1f%%)\n", role.Title(), n, percent(n, stats.TotalPrincipals))
	}
	if active := e.activeSessions(); len(active) > 0 {
		sort.SliceStable(active, func(i, j int) bool { return active[i].MessageCount > active[j].MessageCount })
		b.WriteString("\nSession activity:\n")
		for _, s := range active {
			fmt.Fprintf(&b, "  - %s: %d messages\n", e.displayName(ctx, s.PrincipalID), s.MessageCount)
		}
	}
	fmt.Fprintf(&b, "\nRequested by: %s", caller.label())
	return b.String()
}

func (e *Executor) add(ctx context.Context, caller Caller, args []string) Result {
	if len(args) != 4 {
		return Result{Text: addUsage}
	}
	id := args[0]
	role, err := rbac.ParseRole(args[3])
	if err != nil {
		return Result{Text: fmt.Sprintf("Invalid role: `%s`\nValid roles: %s", args[3], roleList())}
	}
	if existing, err := e.access.Lookup(ctx, id); err == nil {
		return Result{Text: fmt.Sprintf("Principal already exists: %s (`%s`). Use `/admin role %s <role>` to change its role.", nameOr(existing.Name, id), id, id)}
	}
	p, _, err := e.access.Grant(ctx, access.GrantInput{
		ID:        id,
		Name:      args[1],
		Email:     args[2],
		Role:      string(role),
		GrantedBy: caller.label(),
	})
	if err != nil && !errors.Is(err, identity.ErrStoreIO) {
		if errors.Is(err, access.ErrInvalidInput) {
			return Result{Text: fmt.Sprintf("Could not add `%s`: %v\n\n%s", id, err, addUsage)}
		}
		return Result{Text: fmt.Sprintf("Could not add `%s`.", id), Warning: err}
	}
	text := fmt.Sprintf("Principal added\n\nName: %s\nID: `%s`\nEmail: %s\nRole: %s\nAdded by: %s",
		nameOr(p.Name, p.ID), p.ID, nameOr(p.Email, "n/a"), p.Role, p.AddedBy)
	return Result{Text: text, Warning: err}
}

func (e *Executor) remove(ctx context.Context, caller Caller, args []string) Result {
	if len(args) != 1 {
		return Result{Text: "Usage: `/admin remove <user_id>`"}
	}
	id := args[0]
	if id == caller.ID {
		return Result{Text: "You cannot remove your own administrator account."}
	}
	p, err := e.access.Revoke(ctx, id, caller.label())
	if errors.Is(err, access.ErrNotFound) {
		return Result{Text: fmt.Sprintf("Principal not found: `%s`", id)}
	}
	text := fmt.Sprintf("Principal removed\n\nName: %s\nID: `%s`\nRemoved by: %s", nameOr(p.Name, id), id, caller.label())
	return Result{Text: text, Warning: err}
}

func (e *Executor) role(ctx context.Context, caller Caller, args []string) Result {
	if len(args) != 2 {
		return Result{Text: fmt.Sprintf("Usage: `/admin role <user_id> <new_role>`\nValid roles: %s", roleList())}
	}
	id := args[0]
	role, err := rbac.ParseRole(args[1])
	if err != nil {
		return Result{Text: fmt.Sprintf("Invalid role: `%s`\nValid roles: %s", args[1], roleList())}
	}
	p, previous, err := e.access.SetRole(ctx, id, role, caller.label())
	if errors.Is(err, access.ErrNotFound) {
		return Result{Text: fmt.Sprintf("Principal not found: `%s`", id)}
	}
	text := fmt.Sprintf("Role updated\n\nPrincipal: %s\nID: `%s`\nPrevious role: %s\nNew role: %s\nUpdated by: %s",
		nameOr(p.Name, id), id, previous, p.Role, caller.label())
	return Result{Text: text, Warning: err}
}

func (e *Executor) export(ctx context.Context, caller Caller) Result {
	exp := e.access.Export(ctx)
	data, err := identity.EncodeSnapshot(exp.Snapshot)
	if err != nil {
		e.logger.Error("export encode failed", slog.Any("error", err))
		return Result{Text: "Export failed: the identity snapshot could not be encoded."}
	}
	text := fmt.Sprintf("Identity export\n\nPrincipals: %d\nExported at: %s\nExported by: %s\n\n```json\n%s\n```",
		exp.Total, formatTime(exp.ExportedAt), caller.label(), data)
	return Result{Text: text}
}

func (e *Executor) handlerList() string {
	if e.handlers == nil {
		return "No handler registry is attached."
	}
	infos := e.handlers.List()
	if len(infos) == 0 {
		return "No handlers are registered."
	}
	return "Handlers:\n" + strings.TrimRight(renderHandlers(infos), "\n")
}

func (e *Executor) toggle(caller Caller, enabled bool, args []string) Result {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	if len(args) != 1 {
		return Result{Text: fmt.Sprintf("Usage: `/admin %s <handler>`", verb)}
	}
	if e.handlers == nil {
		return Result{Text: "No handler registry is attached."}
	}
	if err := e.handlers.SetEnabled(args[0], enabled); err != nil {
		return Result{Text: fmt.Sprintf("Handler not found: `%s`", args[0])}
	}
	e.logger.Info("handler toggled by admin", slog.String("handler", args[0]), slog.Bool("enabled", enabled), slog.String("caller", caller.ID))
	return Result{Text: fmt.Sprintf("Handler `%s` %sd.", args[0], verb)}
}

func (e *Executor) activeSessions() []sessions.Session {
	if e.sessions == nil {
		return nil
	}
	return e.sessions.List()
}

func (e *Executor) displayName(ctx context.Context, id string) string {
	p, err := e.access.Lookup(ctx, id)
	if err != nil {
		return id
	}
	return fmt.Sprintf("%s (%s)", nameOr(p.Name, id), p.Role)
}

func renderHandlers(infos []handler.Info) string {
	var b strings.Builder
	for _, info := range infos {
		state := "enabled"
		if !info.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "  - %s: %s", info.Name, state)
		if info.IsDefault {
			b.WriteString(", default")
		}
		if info.RequiredPermission != "" {
			fmt.Fprintf(&b, ", requires %s", info.RequiredPermission)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func roleList() string {
	names := make([]string, 0, 4)
	for _, r := range rbac.Roles() {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func nameOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}

const addUsage = "Usage: `/admin add <user_id> <name> <email> <role>`\n" +
	"Roles: admin, user, guest, banned\n" +
	"Example: `/admin add 29:1abc123 \"Jane Doe\" jane@example.com user`"

const shortUsage = "Run `/admin help` for the full list. Common commands:\n" +
	"  /admin status\n" +
	"  /admin users\n" +
	"  /admin help"

const helpText = `MSBot administration

Commands:
  /admin status                              system and session status
  /admin users                               list authorized principals
  /admin add <user_id> <name> <email> <role> authorize a principal
  /admin remove <user_id>                    revoke a principal
  /admin role <user_id> <role>               change a principal's role
  /admin metrics                             usage metrics
  /admin export                              dump the identity store as JSON
  /admin handlers                            list message handlers
  /admin enable <handler>                    enable a handler
  /admin disable <handler>                   disable a handler
  /admin help                                this help

Roles:
  admin   full access including /admin
  user    knowledge lookups and metrics
  guest   echo only
  banned  no access

Examples:
  /admin add 29:1abc123 "Jane Doe" jane@example.com user
  /admin role 29:1abc123 admin
  /admin remove 29:1abc123`
