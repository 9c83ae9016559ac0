package access

import (
	"errors"
	"time"

	"github.com/odyssey-erp/msbot/internal/identity"
	"github.com/odyssey-erp/msbot/internal/rbac"
)

var (
	// ErrUnauthorized indicates an unregistered or banned principal.
	ErrUnauthorized = errors.New("access: unauthorized")
	// ErrPermissionDenied indicates a registered principal lacking a permission.
	ErrPermissionDenied = errors.New("access: permission denied")
	// ErrNotFound indicates an admin mutation referencing an unknown principal.
	ErrNotFound = identity.ErrNotFound
	// ErrInvalidInput indicates a grant request failing validation.
	ErrInvalidInput = errors.New("access: invalid input")
)

// Reason explains an authorization decision.
type Reason string

// Decision reasons.
const (
	ReasonGranted           Reason = "granted"
	ReasonUnregistered      Reason = "unregistered"
	ReasonBanned            Reason = "banned"
	ReasonMissingPermission Reason = "missing_permission"
)

// Decision is the outcome of Authorize. Role is only meaningful when Known is true.
type Decision struct {
	Allowed    bool
	Known      bool
	Role       rbac.Role
	Permission rbac.Permission
	Reason     Reason
	Principal  identity.Principal
}

// Err maps a denied decision onto ErrUnauthorized or ErrPermissionDenied.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonMissingPermission:
		return ErrPermissionDenied
	default:
		return ErrUnauthorized
	}
}

// GrantInput describes an upsert of a principal.
type GrantInput struct {
	ID        string `validate:"required,max=256"`
	Name      string `validate:"max=256"`
	Email     string `validate:"omitempty,email"`
	Role      string `validate:"required,oneof=admin user guest banned"`
	GrantedBy string `validate:"max=256"`
}

// Stats aggregates principal and session counts for status reporting.
type Stats struct {
	TotalPrincipals int
	PerRole         map[rbac.Role]int
	ActiveSessions  int
}

// Export is a point-in-time copy of the identity store.
type Export struct {
	Snapshot   identity.Snapshot
	ExportedAt time.Time
	Total      int
}
