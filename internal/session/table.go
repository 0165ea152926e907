package session

import (
	"sync"
	"time"

	"github.com/alexculea/preboot-oxide/internal/poerr"
)

// EvictionMinAge is the minimum age an entry must reach before it can be
// sacrificed to make room for a new session (§4.3).
const EvictionMinAge = 30 * time.Second

// TTL is how long a session may live before the reaper removes it
// regardless of state (§4.3, §5).
const TTL = 180 * time.Second

// ReapReason distinguishes why the reaper removed a timed-out session, so
// callers can log a useful diagnostic (§4.3: "distinguishing 'never saw
// authoritative OFFER' from 'client never REQUESTed'").
type ReapReason int

const (
	ReapMissingAuthoritativeOffer ReapReason = iota
	ReapMissingClientRequest
)

func (r ReapReason) String() string {
	switch r {
	case ReapMissingAuthoritativeOffer:
		return "expecting IP from authoritative server"
	case ReapMissingClientRequest:
		return "client never REQUESTed"
	default:
		return "timed out"
	}
}

// ReapResult is one session the reaper removed.
type ReapResult struct {
	Session *Session
	Reason  ReapReason
}

// Mutator advances a session given its current value (nil if none exists
// for the xid yet) and returns the next value, or nil to remove it. It
// must not perform I/O or block; Table.Upsert calls it while holding the
// table's lock (§5: "session-table operations never suspend").
type Mutator func(prev *Session) *Session

// Table is the xid-keyed, capacity-bounded, mutex-guarded session store
// (§4.3). It generalizes this pack's pdhcp/main.go CONTEXT map — a plain
// map guarded by one lock — to the xid key type and the capacity/TTL
// rules this system requires.
type Table struct {
	mu          sync.Mutex
	sessions    map[uint32]*Session
	maxSessions int
	now         func() time.Time
}

// New returns an empty Table bounded at maxSessions entries.
func New(maxSessions int) *Table {
	return NewWithClock(maxSessions, time.Now)
}

// NewWithClock is New with an injectable clock, for deterministic tests of
// TTL and capacity eviction.
func NewWithClock(maxSessions int, now func() time.Time) *Table {
	return &Table{
		sessions:    make(map[uint32]*Session),
		maxSessions: maxSessions,
		now:         now,
	}
}

// Len reports the current number of tracked sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Get returns a clone of the session for xid, if any.
func (t *Table) Get(xid uint32) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[xid]
	return s.Clone(), ok
}

// Remove deletes the session for xid, if present. Idempotent.
func (t *Table) Remove(xid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, xid)
}

// Upsert atomically reads the session for xid, applies mutator, and
// stores the result (or removes the entry if mutator returns nil). When
// mutator would create a brand new session and the table is already at
// capacity, the oldest entry is evicted first if its age exceeds
// EvictionMinAge; otherwise the new session is rejected with
// poerr.ErrAtCapacity and mutator is never called (§4.3).
func (t *Table) Upsert(xid uint32, mutator Mutator) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.sessions[xid]
	if prev == nil && len(t.sessions) >= t.maxSessions {
		if !t.evictOldestLocked() {
			return nil, poerr.ErrAtCapacity
		}
	}

	next := mutator(prev)
	if next == nil {
		delete(t.sessions, xid)
		return nil, nil
	}

	now := t.now()
	next.XID = xid
	if prev == nil {
		next.CreatedAt = now
	} else {
		next.CreatedAt = prev.CreatedAt
	}
	next.LastUpdatedAt = now

	t.sessions[xid] = next
	return next.Clone(), nil
}

// evictOldestLocked removes the oldest session if it's older than
// EvictionMinAge, reporting whether it did. Must be called with mu held.
func (t *Table) evictOldestLocked() bool {
	var oldestXID uint32
	var oldest *Session
	for xid, s := range t.sessions {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldestXID, oldest = xid, s
		}
	}
	if oldest == nil {
		return true // table is empty but maxSessions is 0; nothing to evict
	}
	if t.now().Sub(oldest.CreatedAt) <= EvictionMinAge {
		return false
	}
	delete(t.sessions, oldestXID)
	return true
}

// Reap removes every session older than TTL, returning each removed
// session along with why it timed out. Cadence is the caller's
// responsibility (§4.3: "every 5 s"); Reap itself is one pass.
func (t *Table) Reap(now time.Time) []ReapResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []ReapResult
	for xid, s := range t.sessions {
		if now.Sub(s.CreatedAt) <= TTL {
			continue
		}
		reason := ReapMissingClientRequest
		if s.State == AwaitingAuthoritativeOffer {
			reason = ReapMissingAuthoritativeOffer
		}
		out = append(out, ReapResult{Session: s.Clone(), Reason: reason})
		delete(t.sessions, xid)
	}
	return out
}
