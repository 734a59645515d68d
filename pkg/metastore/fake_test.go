package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *fakeStore {
	t.Helper()
	s, err := NewFakeStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.(*fakeStore)
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/a/b", []byte("v1")))

	kv, err := s.Get(ctx, "/a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), kv.Value)
	assert.Equal(t, int64(1), kv.Revision)
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPrefixReturnsOnlyMatchingKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/idx/products/shards/0", []byte("a")))
	require.NoError(t, s.Put(ctx, "/idx/products/shards/1", []byte("b")))
	require.NoError(t, s.Put(ctx, "/idx/reviews/shards/0", []byte("c")))

	kvs, err := s.GetPrefix(ctx, "/idx/products/")
	require.NoError(t, err)
	assert.Len(t, kvs, 2)
}

func TestCompareAndSwapSucceedsOnMatchingRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/k", []byte("v1")))
	kv, err := s.Get(ctx, "/k")
	require.NoError(t, err)

	err = s.CompareAndSwap(ctx, "/k", []byte("v2"), kv.Revision)
	require.NoError(t, err)

	updated, err := s.Get(ctx, "/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), updated.Value)
}

func TestCompareAndSwapFailsOnStaleRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/k", []byte("v1")))
	require.NoError(t, s.Put(ctx, "/k", []byte("v2")))

	err := s.CompareAndSwap(ctx, "/k", []byte("v3"), 1)
	assert.ErrorIs(t, err, ErrCASFailed)
}

func TestCompareAndSwapZeroRequiresAbsence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CompareAndSwap(ctx, "/new", []byte("v1"), 0))

	err := s.CompareAndSwap(ctx, "/new", []byte("v2"), 0)
	assert.ErrorIs(t, err, ErrCASFailed)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "/k"))

	_, err := s.Get(ctx, "/k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePrefixRemovesEveryMatchingKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/idx/products/shards/0", []byte("a")))
	require.NoError(t, s.Put(ctx, "/idx/products/shards/1", []byte("b")))
	require.NoError(t, s.Put(ctx, "/idx/reviews/shards/0", []byte("c")))

	require.NoError(t, s.DeletePrefix(ctx, "/idx/products/"))

	kvs, err := s.GetPrefix(ctx, "/idx/")
	require.NoError(t, err)
	assert.Len(t, kvs, 1)
}

func TestWatchReceivesPutAndDeleteEvents(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := s.Watch(ctx, "/k")

	require.NoError(t, s.Put(ctx, "/k", []byte("v1")))
	select {
	case ev := <-events:
		assert.Equal(t, EventPut, ev.Type)
		assert.Equal(t, []byte("v1"), ev.KV.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for put event")
	}

	require.NoError(t, s.Delete(ctx, "/k"))
	select {
	case ev := <-events:
		assert.Equal(t, EventDelete, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

func TestWatchWithPrefixIgnoresUnrelatedKeys(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := s.Watch(ctx, "/idx/products/", WithPrefix())

	require.NoError(t, s.Put(ctx, "/idx/reviews/shards/0", []byte("x")))
	require.NoError(t, s.Put(ctx, "/idx/products/shards/0", []byte("y")))

	select {
	case ev := <-events:
		assert.Equal(t, "/idx/products/shards/0", ev.KV.Key)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scoped event")
	}
}

func TestLeaseRevokeDeletesAttachedKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	leaseID, err := s.Grant(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "/leased", []byte("v"), PutOption{LeaseID: leaseID}))
	require.NoError(t, s.Revoke(ctx, leaseID))

	_, err = s.Get(ctx, "/leased")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaseExpiryDeletesAttachedKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	leaseID, err := s.Grant(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "/ephemeral", []byte("v"), PutOption{LeaseID: leaseID}))

	assert.Eventually(t, func() bool {
		_, err := s.Get(ctx, "/ephemeral")
		return err == ErrNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKeepAliveExtendsLeaseLifetime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	leaseID, err := s.Grant(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "/k", []byte("v"), PutOption{LeaseID: leaseID}))

	// Renew at 150ms, then check at ~250ms: past the original 200ms expiry,
	// well before the renewed one at ~350ms.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, s.KeepAlive(ctx, leaseID))

	time.Sleep(100 * time.Millisecond)
	_, err = s.Get(ctx, "/k")
	assert.NoError(t, err, "keepalive should have reset the lease's expiry")
}

func TestKeepAliveResetsToTheGrantedTTLNotAFixedDuration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	leaseID, err := s.Grant(ctx, 80*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "/k", []byte("v"), PutOption{LeaseID: leaseID}))

	require.NoError(t, s.KeepAlive(ctx, leaseID))

	// Well past the granted 80ms TTL but far short of a hardcoded 30s reset,
	// so this only passes if KeepAlive actually reset to the granted TTL.
	assert.Eventually(t, func() bool {
		_, err := s.Get(ctx, "/k")
		return err == ErrNotFound
	}, time.Second, 10*time.Millisecond, "lease should expire at its granted TTL, not a fixed 30s")
}

func TestElectionSingleCampaignBecomesLeader(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	election, err := s.NewElection(ctx, "/election/scheduler", time.Minute)
	require.NoError(t, err)

	require.NoError(t, election.Campaign(ctx, "node-a"))

	leader, err := election.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-a", leader)
}

func TestElectionResignReleasesLeadership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.NewElection(ctx, "/election/scheduler", time.Minute)
	require.NoError(t, err)
	require.NoError(t, first.Campaign(ctx, "node-a"))
	require.NoError(t, first.Resign(ctx))

	second, err := s.NewElection(ctx, "/election/scheduler", time.Minute)
	require.NoError(t, err)

	campaignCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, second.Campaign(campaignCtx, "node-b"))

	leader, err := second.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-b", leader)
}

func TestElectionSecondCampaignBlocksUntilIncumbentResigns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.NewElection(ctx, "/election/scheduler", time.Minute)
	require.NoError(t, err)
	require.NoError(t, first.Campaign(ctx, "node-a"))

	second, err := s.NewElection(ctx, "/election/scheduler", time.Minute)
	require.NoError(t, err)

	won := make(chan struct{})
	go func() {
		_ = second.Campaign(ctx, "node-b")
		close(won)
	}()

	select {
	case <-won:
		t.Fatal("second campaign should not win while first holds leadership")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, first.Resign(ctx))

	select {
	case <-won:
	case <-time.After(2 * time.Second):
		t.Fatal("second campaign never won after incumbent resigned")
	}
}
