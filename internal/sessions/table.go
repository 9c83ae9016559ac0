// Package sessions tracks per-principal liveness. Losing a session only
// degrades metrics; it never affects authorization.
package sessions

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout is the inactivity window after which a sweep reaps a session.
const DefaultTimeout = 24 * time.Hour

const shardCount = 32

// Session is the liveness record of one principal.
type Session struct {
	PrincipalID  string
	FirstSeen    time.Time
	LastActivity time.Time
	MessageCount int64
}

type shard struct {
	mu    sync.Mutex
	items map[string]Session
}

// Table is a sharded session map; principals hashing to different shards never contend.
type Table struct {
	shards [shardCount]shard
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].items = make(map[string]Session)
	}
	return t
}

func (t *Table) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &t.shards[h.Sum32()%shardCount]
}

// Touch records one message for id, creating the session on first use.
func (t *Table) Touch(id string, now time.Time) Session {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		sess = Session{PrincipalID: id, FirstSeen: now}
	}
	sess.LastActivity = now
	sess.MessageCount++
	s.items[id] = sess
	return sess
}

// Get returns the session for id.
func (t *Table) Get(id string) (Session, bool) {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	return sess, ok
}

// Remove drops the session for id and reports whether it existed.
func (t *Table) Remove(id string) bool {
	s := t.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

// Count returns the number of live sessions.
func (t *Table) Count() int {
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		total += len(s.items)
		s.mu.Unlock()
	}
	return total
}

// List returns every session ordered by principal ID.
func (t *Table) List() []Session {
	var out []Session
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, sess := range s.items {
			out = append(out, sess)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out
}

// Sweep removes sessions whose last activity is at or before now-timeout and
// returns how many were removed. A zero timeout removes everything.
func (t *Table) Sweep(timeout time.Duration, now time.Time) int {
	if timeout < 0 {
		timeout = 0
	}
	cutoff := now.Add(-timeout)
	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for id, sess := range s.items {
			if !sess.LastActivity.After(cutoff) {
				delete(s.items, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
