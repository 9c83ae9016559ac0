package identity

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

var (
	// ErrNotFound indicates that the principal does not exist.
	ErrNotFound = errors.New("identity: principal not found")
	// ErrStoreIO indicates that the persistence medium is unavailable. The
	// in-memory state stays authoritative for the running process.
	ErrStoreIO = errors.New("identity: store unavailable")
)

// Principal is an external identity permitted to interact with the bot.
type Principal struct {
	ID        string
	Name      string
	Email     string
	Role      rbac.Role
	AddedAt   time.Time
	AddedBy   string
	UpdatedAt time.Time
	UpdatedBy string
}

// Snapshot is the durable unit: every principal plus the time of the last write.
type Snapshot struct {
	Principals  []Principal
	LastUpdated time.Time
	// Demoted lists IDs whose stored role was not recognised on load.
	Demoted []string
}

// Medium persists and restores snapshots.
type Medium interface {
	Name() string
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}
