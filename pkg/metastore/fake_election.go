package metastore

import (
	"context"
	"sync"
	"time"
)

// fakeElection implements Election on top of fakeStore's own CAS+lease
// primitives (CompareAndSwap against revision 0, i.e. "key must not
// exist", plus a leased key for automatic release on crash/timeout). This
// exercises the same mechanics a real etcd-backed campaign relies on,
// rather than introducing a separate bespoke leadership primitive for
// tests.
type fakeElection struct {
	store *fakeStore
	key   string
	ttl   time.Duration

	mu      sync.Mutex
	leaseID int64
	lost    chan struct{}
	cancel  context.CancelFunc
}

func newFakeElection(store *fakeStore, key string, ttl time.Duration) *fakeElection {
	return &fakeElection{store: store, key: key, ttl: ttl, lost: make(chan struct{})}
}

func (e *fakeElection) Campaign(ctx context.Context, value string) error {
	leaseID, err := e.store.Grant(ctx, e.ttl)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := e.store.CompareAndSwap(ctx, e.key, []byte(value), 0, PutOption{LeaseID: leaseID})
		if err == nil {
			e.mu.Lock()
			e.leaseID = leaseID
			sessionCtx, cancel := context.WithCancel(context.Background())
			e.cancel = cancel
			e.mu.Unlock()
			go e.keepAliveLoop(sessionCtx, leaseID)
			return nil
		}
		if err != ErrCASFailed {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// retry: the incumbent may have expired or resigned
		}
	}
}

func (e *fakeElection) keepAliveLoop(ctx context.Context, leaseID int64) {
	interval := e.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(e.lost)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.store.KeepAlive(ctx, leaseID); err != nil {
				return
			}
		}
	}
}

func (e *fakeElection) Resign(ctx context.Context) error {
	e.mu.Lock()
	leaseID := e.leaseID
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if leaseID != 0 {
		return e.store.Revoke(ctx, leaseID)
	}
	return nil
}

func (e *fakeElection) Observe() <-chan struct{} {
	return e.lost
}

func (e *fakeElection) Leader(ctx context.Context) (string, error) {
	kv, err := e.store.Get(ctx, e.key)
	if err != nil {
		return "", err
	}
	return string(kv.Value), nil
}
