package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/msbot/internal/identity"
	"github.com/odyssey-erp/msbot/internal/rbac"
)

// SessionTracker is the slice of the session table the controller needs.
type SessionTracker interface {
	Count() int
	Remove(id string) bool
}

// Controller resolves principals to roles and applies admin mutations.
//
// Mutations are last-writer-wins: two operators editing the same principal
// concurrently both succeed and the later write survives. Mutations that were
// applied but could not be persisted return an error wrapping
// identity.ErrStoreIO together with a valid result.
type Controller struct {
	store     *identity.Store
	sessions  SessionTracker
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewController builds a Controller.
func NewController(store *identity.Store, sessions SessionTracker, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		sessions:  sessions,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	if now != nil {
		c.now = now
	}
	return c
}

// Authorize checks whether principal id holds perm.
func (c *Controller) Authorize(ctx context.Context, id string, perm rbac.Permission) Decision {
	decision := Decision{Permission: perm}
	p, err := c.store.Get(ctx, id)
	if err != nil {
		decision.Reason = ReasonUnregistered
		return decision
	}
	decision.Known = true
	decision.Role = p.Role
	decision.Principal = p
	switch {
	case p.Role == rbac.RoleBanned:
		decision.Reason = ReasonBanned
	case rbac.Allows(p.Role, perm):
		decision.Allowed = true
		decision.Reason = ReasonGranted
	default:
		decision.Reason = ReasonMissingPermission
	}
	return decision
}

// Lookup returns the stored principal.
func (c *Controller) Lookup(ctx context.Context, id string) (identity.Principal, error) {
	return c.store.Get(ctx, id)
}

// List returns every principal ordered by ID.
func (c *Controller) List(ctx context.Context) []identity.Principal {
	return c.store.List(ctx)
}

// Grant inserts or updates a principal. Existing principals keep their
// original added date and grantor. The method does not check the caller's
// privileges; that happens where admin commands are parsed.
func (c *Controller) Grant(ctx context.Context, in GrantInput) (identity.Principal, bool, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.GrantedBy = strings.TrimSpace(in.GrantedBy)
	if err := c.validator.Struct(in); err != nil {
		return identity.Principal{}, false, fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}
	role, err := rbac.ParseRole(in.Role)
	if err != nil {
		return identity.Principal{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.GrantedBy == "" {
		in.GrantedBy = "admin"
	}
	now := c.now()

	updated, err := c.store.Update(ctx, in.ID, func(p *identity.Principal) error {
		p.Name = in.Name
		p.Email = in.Email
		p.Role = role
		p.UpdatedAt = now
		p.UpdatedBy = in.GrantedBy
		return nil
	})
	if !errors.Is(err, identity.ErrNotFound) {
		c.logger.Info("principal updated", slog.String("principal_id", in.ID), slog.String("role", string(role)), slog.String("by", in.GrantedBy))
		return updated, false, err
	}

	p := identity.Principal{
		ID:      in.ID,
		Name:    in.Name,
		Email:   in.Email,
		Role:    role,
		AddedAt: now,
		AddedBy: in.GrantedBy,
	}
	err = c.store.Put(ctx, p)
	c.logger.Info("principal granted", slog.String("principal_id", in.ID), slog.String("role", string(role)), slog.String("by", in.GrantedBy))
	return p, true, err
}

// SetRole changes the role of an existing principal and returns the previous role.
func (c *Controller) SetRole(ctx context.Context, id string, role rbac.Role, updatedBy string) (identity.Principal, rbac.Role, error) {
	if !role.Valid() {
		return identity.Principal{}, "", fmt.Errorf("%w: %v", ErrInvalidInput, rbac.ErrUnknownRole)
	}
	var previous rbac.Role
	now := c.now()
	updated, err := c.store.Update(ctx, id, func(p *identity.Principal) error {
		previous = p.Role
		p.Role = role
		p.UpdatedAt = now
		p.UpdatedBy = updatedBy
		return nil
	})
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Principal{}, "", fmt.Errorf("access: set role %s: %w", id, ErrNotFound)
	}
	c.logger.Info("principal role changed",
		slog.String("principal_id", id),
		slog.String("from", string(previous)),
		slog.String("to", string(role)),
		slog.String("by", updatedBy))
	return updated, previous, err
}

// Revoke removes a principal and drops its session.
func (c *Controller) Revoke(ctx context.Context, id, revokedBy string) (identity.Principal, error) {
	p, err := c.store.Get(ctx, id)
	if err != nil {
		return identity.Principal{}, fmt.Errorf("access: revoke %s: %w", id, ErrNotFound)
	}
	removed, err := c.store.Remove(ctx, id)
	if !removed {
		return identity.Principal{}, fmt.Errorf("access: revoke %s: %w", id, ErrNotFound)
	}
	if c.sessions != nil {
		c.sessions.Remove(id)
	}
	c.logger.Info("principal revoked", slog.String("principal_id", id), slog.String("by", revokedBy))
	return p, err
}

// Stats aggregates principal counts per role and the number of live sessions.
func (c *Controller) Stats(ctx context.Context) Stats {
	principals := c.store.List(ctx)
	stats := Stats{
		TotalPrincipals: len(principals),
		PerRole:         make(map[rbac.Role]int, 4),
	}
	for _, p := range principals {
		stats.PerRole[p.Role]++
	}
	if c.sessions != nil {
		stats.ActiveSessions = c.sessions.Count()
	}
	return stats
}

// Export returns a copy of the identity store for backup.
func (c *Controller) Export(ctx context.Context) Export {
	snap := c.store.Snapshot()
	return Export{Snapshot: snap, ExportedAt: c.now(), Total: len(snap.Principals)}
}

// Import merges snap into the store, overwriting principals with the same ID.
// It returns how many principals were written.
func (c *Controller) Import(ctx context.Context, snap identity.Snapshot, importedBy string) (int, error) {
	var persistErr error
	written := 0
	for _, p := range snap.Principals {
		if strings.TrimSpace(p.ID) == "" || !p.Role.Valid() {
			continue
		}
		if err := c.store.Put(ctx, p); err != nil {
			if !errors.Is(err, identity.ErrStoreIO) {
				return written, err
			}
			persistErr = err
		}
		written++
	}
	c.logger.Info("principals imported", slog.Int("count", written), slog.String("by", importedBy))
	return written, persistErr
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
