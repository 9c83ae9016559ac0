package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/msbot/internal/rbac"
)

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func newTestStore(t *testing.T) (*Store, *MemoryMedium) {
	t.Helper()
	medium := NewMemoryMedium()
	return NewStore(medium, nil, WithClock(fixedClock())), medium
}

func TestStorePutGetRemove(t *testing.T) {
	ctx := context.Background()
	store, medium := newTestStore(t)

	_, err := store.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, Principal{ID: "u1", Name: "One", Role: rbac.RoleUser}))
	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "One", got.Name)
	require.Equal(t, 1, medium.Saves())

	require.NoError(t, store.Put(ctx, Principal{ID: "u1", Name: "Uno", Role: rbac.RoleGuest}))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Uno", got.Name)
	require.Equal(t, rbac.RoleGuest, got.Role)

	removed, err := store.Remove(ctx, "u1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = store.Remove(ctx, "u1")
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 0, store.Len())
}

func TestStorePutRejectsEmptyID(t *testing.T) {
	store, _ := newTestStore(t)
	require.Error(t, store.Put(context.Background(), Principal{ID: "  "}))
}

func TestStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Update(ctx, "missing", func(p *Principal) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, Principal{ID: "u1", Role: rbac.RoleUser}))
	updated, err := store.Update(ctx, "u1", func(p *Principal) error {
		p.Role = rbac.RoleAdmin
		p.ID = "hijack"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "u1", updated.ID)
	require.Equal(t, rbac.RoleAdmin, updated.Role)

	boom := errors.New("boom")
	_, err = store.Update(ctx, "u1", func(p *Principal) error {
		p.Role = rbac.RoleBanned
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleAdmin, got.Role)
}

func TestStorePersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	store, medium := newTestStore(t)
	medium.SetFailure(errors.New("disk gone"))

	err := store.Put(ctx, Principal{ID: "u1", Role: rbac.RoleUser})
	require.ErrorIs(t, err, ErrStoreIO)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleUser, got.Role)

	medium.SetFailure(nil)
	require.NoError(t, store.Persist(ctx))
	snap, err := medium.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Principals, 1)
}

func TestStorePersistFailureHook(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	var failures int
	store := NewStore(medium, nil, OnPersistFailure(func(error) { failures++ }))

	require.NoError(t, store.Put(ctx, Principal{ID: "u1", Role: rbac.RoleUser}))
	require.Zero(t, failures)

	medium.SetFailure(errors.New("read-only"))
	require.ErrorIs(t, store.Put(ctx, Principal{ID: "u2", Role: rbac.RoleUser}), ErrStoreIO)
	require.Equal(t, 1, failures)
}

func TestStoreLoadAndSeed(t *testing.T) {
	ctx := context.Background()
	medium := NewMemoryMedium()
	require.NoError(t, medium.Save(ctx, Snapshot{Principals: []Principal{{ID: "a", Role: rbac.RoleAdmin}}}))

	store := NewStore(medium, nil, WithClock(fixedClock()))
	require.NoError(t, store.Load(ctx))
	require.Equal(t, 1, store.Len())

	seeded, err := store.SeedDefaultAdmin(ctx, Principal{ID: "root", Role: rbac.RoleAdmin})
	require.NoError(t, err)
	require.False(t, seeded)

	empty := NewStore(NewMemoryMedium(), nil, WithClock(fixedClock()))
	seeded, err = empty.SeedDefaultAdmin(ctx, Principal{ID: "root", Name: "Administrator", Role: rbac.RoleAdmin, AddedBy: "system"})
	require.NoError(t, err)
	require.True(t, seeded)
	got, err := empty.Get(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, fixedClock()(), got.AddedAt)
}

func TestStoreLoadFailureIsStoreIO(t *testing.T) {
	medium := NewMemoryMedium()
	medium.SetFailure(errors.New("unreachable"))
	store := NewStore(medium, nil)
	require.ErrorIs(t, store.Load(context.Background()), ErrStoreIO)
}

func TestStoreConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	store, medium := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			require.NoError(t, store.Put(ctx, Principal{ID: id, Role: rbac.RoleGuest}))
			_, err := store.Update(ctx, id, func(p *Principal) error {
				p.Role = rbac.RoleUser
				return nil
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, store.Len())
	for _, p := range store.List(ctx) {
		require.Equal(t, rbac.RoleUser, p.Role)
	}
	snap, err := medium.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Principals, 50)
	require.LessOrEqual(t, medium.Saves(), 100)
}

func TestStoreListSorted(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Put(ctx, Principal{ID: id, Role: rbac.RoleGuest}))
	}
	list := store.List(ctx)
	require.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
}
