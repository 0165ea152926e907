package session

import (
	"errors"
	"testing"
	"time"

	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/stretchr/testify/require"
)

func newSession(xid uint32) *Session {
	return &Session{XID: xid, State: AwaitingAuthoritativeOffer}
}

func TestUpsertCreatesAndReadsBack(t *testing.T) {
	tbl := New(10)
	_, err := tbl.Upsert(1, func(prev *Session) *Session {
		require.Nil(t, prev)
		return newSession(1)
	})
	require.NoError(t, err)

	got, ok := tbl.Get(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), got.XID)
	require.Equal(t, AwaitingAuthoritativeOffer, got.State)
}

func TestUpsertMutatesExisting(t *testing.T) {
	tbl := New(10)
	_, err := tbl.Upsert(1, func(prev *Session) *Session { return newSession(1) })
	require.NoError(t, err)

	_, err = tbl.Upsert(1, func(prev *Session) *Session {
		require.NotNil(t, prev)
		prev.State = OfferSent
		return prev
	})
	require.NoError(t, err)

	got, _ := tbl.Get(1)
	require.Equal(t, OfferSent, got.State)
}

func TestUpsertNilRemoves(t *testing.T) {
	tbl := New(10)
	_, _ = tbl.Upsert(1, func(prev *Session) *Session { return newSession(1) })
	_, err := tbl.Upsert(1, func(prev *Session) *Session { return nil })
	require.NoError(t, err)

	_, ok := tbl.Get(1)
	require.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	tbl := New(10)
	tbl.Remove(42)
	tbl.Remove(42)
	require.Equal(t, 0, tbl.Len())
}

// TestCapacityEvictionOldestFirst covers capacity eviction (§4.3): max
// sessions 2, three DISCOVERs A, B, C, with A old enough (> EvictionMinAge)
// by the time C arrives that it is sacrificed to make room.
func TestCapacityEvictionOldestFirst(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	clock := func() time.Time { return now }
	tbl := NewWithClock(2, clock)

	_, err := tbl.Upsert(0xA, func(prev *Session) *Session { return newSession(0xA) })
	require.NoError(t, err)

	now = base.Add(1 * time.Second)
	_, err = tbl.Upsert(0xB, func(prev *Session) *Session { return newSession(0xB) })
	require.NoError(t, err)

	now = base.Add(EvictionMinAge + time.Second)
	_, err = tbl.Upsert(0xC, func(prev *Session) *Session { return newSession(0xC) })
	require.NoError(t, err)

	require.Equal(t, 2, tbl.Len())
	_, ok := tbl.Get(0xA)
	require.False(t, ok, "A should have been evicted first")
	_, ok = tbl.Get(0xB)
	require.True(t, ok)
	_, ok = tbl.Get(0xC)
	require.True(t, ok)
}

func TestCapacityRejectsWhenOldestTooYoung(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	clock := func() time.Time { return now }
	tbl := NewWithClock(1, clock)

	_, err := tbl.Upsert(0xA, func(prev *Session) *Session { return newSession(0xA) })
	require.NoError(t, err)

	now = base.Add(5 * time.Second) // younger than EvictionMinAge (30s)
	_, err = tbl.Upsert(0xB, func(prev *Session) *Session { return newSession(0xB) })
	require.Error(t, err)
	require.True(t, errors.Is(err, poerr.ErrAtCapacity))

	_, ok := tbl.Get(0xA)
	require.True(t, ok, "A must survive a rejected insert")
}

func TestReapRemovesExpiredSessions(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	clock := func() time.Time { return now }
	tbl := NewWithClock(10, clock)

	_, _ = tbl.Upsert(1, func(prev *Session) *Session { return newSession(1) })

	results := tbl.Reap(base.Add(179 * time.Second))
	require.Empty(t, results)

	results = tbl.Reap(base.Add(181 * time.Second))
	require.Len(t, results, 1)
	require.Equal(t, ReapMissingAuthoritativeOffer, results[0].Reason)

	_, ok := tbl.Get(1)
	require.False(t, ok)
}

func TestReapDistinguishesMissingRequest(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	clock := func() time.Time { return now }
	tbl := NewWithClock(10, clock)

	_, _ = tbl.Upsert(1, func(prev *Session) *Session {
		s := newSession(1)
		s.State = OfferSent
		return s
	})

	results := tbl.Reap(base.Add(200 * time.Second))
	require.Len(t, results, 1)
	require.Equal(t, ReapMissingClientRequest, results[0].Reason)
}

func TestReapIsIdempotent(t *testing.T) {
	base := time.Unix(0, 0)
	tbl := NewWithClock(10, func() time.Time { return base })
	_, _ = tbl.Upsert(1, func(prev *Session) *Session { return newSession(1) })

	first := tbl.Reap(base.Add(200 * time.Second))
	second := tbl.Reap(base.Add(200 * time.Second))
	require.Len(t, first, 1)
	require.Empty(t, second)
}
