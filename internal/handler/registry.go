package handler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

type entry struct {
	name    string
	handler Handler
	enabled bool
}

// table is an immutable view of the registry. Mutations publish a new table.
type table struct {
	entries     []entry
	defaultName string
}

func (t *table) index(name string) int {
	for i, e := range t.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

func (t *table) clone() *table {
	next := &table{defaultName: t.defaultName, entries: make([]entry, len(t.entries))}
	copy(next.entries, t.entries)
	return next
}

// Registry maps handler names to handlers. Select reads a published table
// without locking; mutations are serialized by mu.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[table]
	logger  *slog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	r.current.Store(&table{})
	return r
}

// Register adds h under name in registration order. When isDefault is set it
// replaces the previous default.
func (r *Registry) Register(name string, h Handler, isDefault bool) error {
	name = strings.TrimSpace(name)
	if name == "" || h == nil {
		return fmt.Errorf("handler: register: name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.current.Load()
	if cur.index(name) >= 0 {
		return fmt.Errorf("handler: register %s: %w", name, ErrDuplicateName)
	}
	next := cur.clone()
	next.entries = append(next.entries, entry{name: name, handler: h, enabled: true})
	if isDefault {
		next.defaultName = name
	}
	r.current.Store(next)
	r.logger.Info("handler registered", slog.String("handler", name), slog.Bool("default", isDefault))
	return nil
}

// Unregister removes name. Removing the default leaves no default.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.current.Load()
	idx := cur.index(name)
	if idx < 0 {
		return fmt.Errorf("handler: unregister %s: %w", name, ErrNotFound)
	}
	next := cur.clone()
	next.entries = append(next.entries[:idx], next.entries[idx+1:]...)
	if next.defaultName == name {
		next.defaultName = ""
		r.logger.Warn("default handler unregistered", slog.String("handler", name))
	}
	r.current.Store(next)
	return nil
}

// SetEnabled toggles whether name takes part in selection.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.current.Load()
	idx := cur.index(name)
	if idx < 0 {
		return fmt.Errorf("handler: set enabled %s: %w", name, ErrNotFound)
	}
	next := cur.clone()
	next.entries[idx].enabled = enabled
	r.current.Store(next)
	r.logger.Info("handler toggled", slog.String("handler", name), slog.Bool("enabled", enabled))
	return nil
}

// SetDefault designates name as the fallback handler.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.current.Load()
	if cur.index(name) < 0 {
		return fmt.Errorf("handler: set default %s: %w", name, ErrNotFound)
	}
	next := cur.clone()
	next.defaultName = name
	r.current.Store(next)
	return nil
}

// Select returns the first enabled handler accepting text, falling back to
// the default when it is set and enabled.
func (r *Registry) Select(text string, hctx Context) (Selected, bool) {
	t := r.current.Load()
	for _, e := range t.entries {
		if e.enabled && e.handler.CanHandle(text, hctx) {
			return Selected{Name: e.name, Handler: e.handler, IsDefault: e.name == t.defaultName}, true
		}
	}
	if t.defaultName == "" {
		return Selected{}, false
	}
	idx := t.index(t.defaultName)
	if idx < 0 || !t.entries[idx].enabled {
		return Selected{}, false
	}
	e := t.entries[idx]
	return Selected{Name: e.name, Handler: e.handler, IsDefault: true}, true
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, bool) {
	t := r.current.Load()
	idx := t.index(name)
	if idx < 0 {
		return nil, false
	}
	return t.entries[idx].handler, true
}

// Default returns the default handler name, if any.
func (r *Registry) Default() (string, bool) {
	t := r.current.Load()
	return t.defaultName, t.defaultName != ""
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	return len(r.current.Load().entries)
}

// List returns handler status in registration order.
func (r *Registry) List() []Info {
	t := r.current.Load()
	out := make([]Info, 0, len(t.entries))
	for _, e := range t.entries {
		perm, _ := e.handler.RequiredPermission()
		out = append(out, Info{
			Name:               e.name,
			Description:        e.handler.Description(),
			Enabled:            e.enabled,
			IsDefault:          e.name == t.defaultName,
			RequiredPermission: perm,
		})
	}
	return out
}
