// Package election implements Leader Election (spec.md §4.8): exactly one
// process per cluster per environment campaigns for, and holds, a TTL
// lease on the cluster's election key. It wraps metastore.Election with the
// acquire/lose lifecycle the Task Scheduler drives its pass-gating from.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/metrics"
)

// Leadership tracks whether this process currently holds the cluster's
// election key, re-campaigning automatically whenever it loses.
type Leadership struct {
	store    metastore.Store
	key      string
	ttl      time.Duration
	nodeName string

	mu       sync.RWMutex
	isLeader bool
}

// New constructs a Leadership for the given election key and candidate
// identity. No campaign starts until Run is called.
func New(store metastore.Store, key string, ttl time.Duration, nodeName string) *Leadership {
	return &Leadership{store: store, key: key, ttl: ttl, nodeName: nodeName}
}

// IsLeader reports whether this process currently holds leadership. Callers
// must re-check it before every write (spec.md §4.8: "refresh the leader
// flag before every write"), since leadership can be lost mid-pass.
func (l *Leadership) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isLeader
}

// Run campaigns for leadership until ctx is cancelled. On each acquisition
// it calls onAcquire with a context that is cancelled as soon as leadership
// is lost; onAcquire should return promptly once its context is done. Run
// re-campaigns after a loss and does not return until ctx is cancelled.
func (l *Leadership) Run(ctx context.Context, onAcquire func(ctx context.Context)) {
	logger := log.WithComponent("election")

	for ctx.Err() == nil {
		el, err := l.store.NewElection(ctx, l.key, l.ttl)
		if err != nil {
			logger.Error().Err(err).Str("key", l.key).Msg("failed to create election, retrying")
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		if err := el.Campaign(ctx, l.nodeName); err != nil {
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		logger.Info().Str("node", l.nodeName).Msg("acquired leadership")
		l.setLeader(true)

		termCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			onAcquire(termCtx)
		}()

		select {
		case <-el.Observe():
			logger.Warn().Str("node", l.nodeName).Msg("lost leadership")
		case <-ctx.Done():
		}
		cancel()
		<-done
		l.setLeader(false)
	}
}

func (l *Leadership) setLeader(v bool) {
	l.mu.Lock()
	l.isLeader = v
	l.mu.Unlock()

	if v {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
