package identity

import (
	"context"
	"sync"
)

// MemoryMedium keeps the snapshot in process memory. State does not survive a
// restart; useful for tests and throwaway deployments.
type MemoryMedium struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
	fail  error
}

// NewMemoryMedium constructs an empty MemoryMedium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{}
}

// Name identifies the medium in logs.
func (m *MemoryMedium) Name() string { return "memory" }

// Load returns the last saved snapshot.
func (m *MemoryMedium) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Snapshot{}, m.fail
	}
	return cloneSnapshot(m.snap), nil
}

// Save stores a copy of snap.
func (m *MemoryMedium) Save(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.snap = cloneSnapshot(snap)
	m.saves++
	return nil
}

// SetFailure makes every subsequent Load and Save return err. Pass nil to recover.
func (m *MemoryMedium) SetFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Saves reports how many successful writes happened.
func (m *MemoryMedium) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func cloneSnapshot(snap Snapshot) Snapshot {
	out := Snapshot{LastUpdated: snap.LastUpdated}
	if len(snap.Principals) > 0 {
		out.Principals = append([]Principal(nil), snap.Principals...)
	}
	return out
}
