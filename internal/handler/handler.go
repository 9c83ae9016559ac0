// Package handler holds the pluggable response strategies and the registry
// that routes messages to them.
package handler

import (
	"context"
	"errors"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

var (
	// ErrDuplicateName indicates a second registration under an existing name.
	ErrDuplicateName = errors.New("handler: duplicate name")
	// ErrNotFound indicates an unknown handler name.
	ErrNotFound = errors.New("handler: not found")
	// ErrInvalidManifest indicates a handler manifest that cannot be built.
	ErrInvalidManifest = errors.New("handler: invalid manifest")
)

// Context describes the caller of a message as seen by handlers.
type Context struct {
	PrincipalID   string
	DisplayName   string
	Role          rbac.Role
	Metadata      map[string]string
	MessageNumber int64
}

// Request is a single message handed to a handler.
type Request struct {
	Text    string
	Context Context
}

// Handler turns a message into a response.
type Handler interface {
	Name() string
	Description() string
	// RequiredPermission reports the permission a caller must hold, if any.
	RequiredPermission() (rbac.Permission, bool)
	CanHandle(text string, hctx Context) bool
	Handle(ctx context.Context, req Request) (string, error)
}

// Info is the status view of a registered handler.
type Info struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Enabled            bool            `json:"enabled"`
	IsDefault          bool            `json:"is_default"`
	RequiredPermission rbac.Permission `json:"required_permission,omitempty"`
}

// Selected is the outcome of Registry.Select.
type Selected struct {
	Name      string
	Handler   Handler
	IsDefault bool
}

// gate is embedded by built-in handlers that optionally require a permission.
type gate struct {
	perm rbac.Permission
}

func (g gate) RequiredPermission() (rbac.Permission, bool) {
	return g.perm, g.perm != ""
}
