package identity

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const keyStripes = 64

// Store keeps principals in memory and mirrors every mutation to a Medium.
//
// The principal map is guarded by mu, which is only held while reading or
// swapping whole records. Read-modify-write sequences on one principal are
// serialized by a striped per-key lock, and medium I/O runs outside both so
// unrelated mutations never wait on a slow write.
//
// Mutating calls return an error wrapping ErrStoreIO when the change was
// applied in memory but could not be persisted. Callers should treat that
// as a warning.
type Store struct {
	medium    Medium
	logger    *slog.Logger
	now       func() time.Time
	onFailure func(error)

	mu          sync.RWMutex
	records     map[string]Principal
	generation  uint64
	lastUpdated time.Time

	keys [keyStripes]sync.Mutex

	persistMu sync.Mutex
	persisted uint64
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// OnPersistFailure registers fn to run whenever a save to the medium fails.
func OnPersistFailure(fn func(error)) StoreOption {
	return func(s *Store) {
		s.onFailure = fn
	}
}

// NewStore constructs an empty Store backed by medium.
func NewStore(medium Medium, logger *slog.Logger, opts ...StoreOption) *Store {
	if medium == nil {
		medium = NewMemoryMedium()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		medium:  medium,
		logger:  logger,
		now:     time.Now,
		records: make(map[string]Principal),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MediumName returns the configured medium identifier.
func (s *Store) MediumName() string {
	return s.medium.Name()
}

// Load replaces the in-memory state with the medium's snapshot.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.medium.Load(ctx)
	if err != nil {
		return fmt.Errorf("identity: load from %s: %w: %w", s.medium.Name(), ErrStoreIO, err)
	}
	for _, id := range snap.Demoted {
		s.logger.Warn("identity record has unknown role, loaded as banned", slog.String("principal_id", id))
	}

	records := make(map[string]Principal, len(snap.Principals))
	for _, p := range snap.Principals {
		records[p.ID] = p
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	s.records = records
	s.lastUpdated = snap.LastUpdated
	s.generation++
	s.persisted = s.generation
	s.mu.Unlock()

	s.logger.Info("identity store loaded", slog.String("medium", s.medium.Name()), slog.Int("principals", len(records)))
	return nil
}

// Get returns the principal stored under id.
func (s *Store) Get(ctx context.Context, id string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

// List returns every principal ordered by ID.
func (s *Store) List(ctx context.Context) []Principal {
	s.mu.RLock()
	out := make([]Principal, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sortPrincipals(out)
	return out
}

// Len returns the number of stored principals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Put inserts or overwrites a whole principal record.
func (s *Store) Put(ctx context.Context, p Principal) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return fmt.Errorf("identity: put: empty principal id")
	}
	gen := s.withKey(p.ID, func() uint64 {
		return s.swap(p.ID, &p)
	})
	return s.flush(ctx, gen, false)
}

// Update applies fn to a copy of the stored principal and saves the result.
// fn must not change the ID. Returns ErrNotFound when the principal is absent.
func (s *Store) Update(ctx context.Context, id string, fn func(*Principal) error) (Principal, error) {
	var (
		updated Principal
		gen     uint64
		err     error
	)
	s.withKey(id, func() uint64 {
		var current Principal
		current, err = s.Get(ctx, id)
		if err != nil {
			return 0
		}
		if err = fn(&current); err != nil {
			return 0
		}
		current.ID = id
		updated = current
		gen = s.swap(id, &current)
		return gen
	})
	if err != nil {
		return Principal{}, err
	}
	return updated, s.flush(ctx, gen, false)
}

// Remove deletes the principal and reports whether it existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	var existed bool
	gen := s.withKey(id, func() uint64 {
		s.mu.RLock()
		_, existed = s.records[id]
		s.mu.RUnlock()
		if !existed {
			return 0
		}
		return s.swap(id, nil)
	})
	if !existed {
		return false, nil
	}
	return true, s.flush(ctx, gen, false)
}

// Persist forces a write of the current state to the medium.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()
	return s.flush(ctx, gen, true)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	snap, _ := s.snapshot()
	return snap
}

// SeedDefaultAdmin inserts the bootstrap admin when the store is empty.
// It reports whether a principal was created.
func (s *Store) SeedDefaultAdmin(ctx context.Context, seed Principal) (bool, error) {
	seed.ID = strings.TrimSpace(seed.ID)
	if seed.ID == "" || s.Len() > 0 {
		return false, nil
	}
	if seed.AddedAt.IsZero() {
		seed.AddedAt = s.now()
	}
	err := s.Put(ctx, seed)
	s.logger.Info("seeded default admin", slog.String("principal_id", seed.ID))
	return true, err
}

func (s *Store) withKey(id string, fn func() uint64) uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	lock := &s.keys[h.Sum32()%keyStripes]
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// swap stores p under id, or deletes id when p is nil, and returns the new generation.
func (s *Store) swap(id string, p *Principal) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		delete(s.records, id)
	} else {
		s.records[id] = *p
	}
	s.lastUpdated = s.now()
	s.generation++
	return s.generation
}

func (s *Store) snapshot() (Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Principals:  make([]Principal, 0, len(s.records)),
		LastUpdated: s.lastUpdated,
	}
	for _, p := range s.records {
		snap.Principals = append(snap.Principals, p)
	}
	sortPrincipals(snap.Principals)
	return snap, s.generation
}

// flush writes the latest snapshot unless generation gen is already covered
// by an earlier write. Concurrent callers queue on persistMu and the first one
// through writes a snapshot that usually covers everybody behind it.
func (s *Store) flush(ctx context.Context, gen uint64, force bool) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if !force && s.persisted >= gen {
		return nil
	}
	snap, current := s.snapshot()
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = s.now()
	}
	if err := s.medium.Save(ctx, snap); err != nil {
		s.logger.Warn("identity persist failed",
			slog.String("medium", s.medium.Name()),
			slog.Any("error", err))
		if s.onFailure != nil {
			s.onFailure(err)
		}
		return fmt.Errorf("identity: persist to %s: %w: %w", s.medium.Name(), ErrStoreIO, err)
	}
	s.persisted = current
	return nil
}
