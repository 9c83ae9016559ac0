package sessions

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTouchIncrementsByOne(t *testing.T) {
	table := NewTable()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	first := table.Touch("u1", t0)
	require.EqualValues(t, 1, first.MessageCount)
	require.Equal(t, t0, first.FirstSeen)

	second := table.Touch("u1", t0.Add(time.Minute))
	require.EqualValues(t, 2, second.MessageCount)
	require.Equal(t, t0, second.FirstSeen)
	require.Equal(t, t0.Add(time.Minute), second.LastActivity)

	got, ok := table.Get("u1")
	require.True(t, ok)
	require.Equal(t, second, got)
}

func TestSweep(t *testing.T) {
	table := NewTable()
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	table.Touch("stale", now.Add(-25*time.Hour))
	table.Touch("fresh", now.Add(-time.Hour))

	require.Equal(t, 1, table.Sweep(DefaultTimeout, now))
	_, ok := table.Get("stale")
	require.False(t, ok)
	require.Equal(t, 1, table.Count())

	require.Equal(t, 1, table.Sweep(0, now))
	require.Zero(t, table.Count())
}

func TestSweepZeroTimeoutRemovesAll(t *testing.T) {
	table := NewTable()
	now := time.Now()
	for i := 0; i < 100; i++ {
		table.Touch(fmt.Sprintf("u%d", i), now)
	}
	require.Equal(t, 100, table.Sweep(0, now))
	require.Empty(t, table.List())
}

func TestRemoveAndList(t *testing.T) {
	table := NewTable()
	now := time.Now()
	table.Touch("b", now)
	table.Touch("a", now)

	list := table.List()
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].PrincipalID)

	require.True(t, table.Remove("a"))
	require.False(t, table.Remove("a"))
	require.Equal(t, 1, table.Count())
}

func TestConcurrentTouch(t *testing.T) {
	table := NewTable()
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				table.Touch("shared", now)
			}
		}()
	}
	wg.Wait()
	sess, ok := table.Get("shared")
	require.True(t, ok)
	require.EqualValues(t, 1000, sess.MessageCount)
}
