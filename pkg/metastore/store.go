// Package metastore defines the control plane's single source of truth: a
// transactional, hierarchical key-value store with CAS semantics per key,
// TTL leases, watch, and leader-campaign primitives (spec.md §2, §6). The
// control plane performs no node-to-node RPC of its own; every subsystem
// reads and writes exclusively through this interface.
//
// Two implementations ship: Store backed by go.etcd.io/etcd/client/v3 for
// production (etcd.go), and an in-process fake backed by bbolt plus an
// in-memory watch broker for tests (fake.go).
package metastore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("metastore: key not found")

// ErrCASFailed is returned when a conditional write's comparison fails.
var ErrCASFailed = errors.New("metastore: compare-and-swap failed")

// KV is a single key/value pair together with the revision it was last
// written at, used to build CAS writes.
type KV struct {
	Key      string
	Value    []byte
	Revision int64
}

// PutOption configures a Put call.
type PutOption struct {
	// LeaseID, when non-zero, attaches the write to a previously granted
	// lease; the key is removed when the lease expires.
	LeaseID int64
}

// Event is a single watch notification.
type Event struct {
	Type  EventType
	KV    KV
}

// EventType distinguishes a Watch notification's kind.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

// Election is a single campaign for a leader-election key. Implementations
// block the caller in Campaign until leadership is acquired or ctx is
// cancelled, and report loss of leadership by closing the channel returned
// from Observe.
type Election interface {
	// Campaign blocks until this value wins the election at key, or ctx is
	// cancelled.
	Campaign(ctx context.Context, value string) error

	// Resign gives up leadership voluntarily.
	Resign(ctx context.Context) error

	// Observe returns a channel that is closed when this session's
	// leadership is confirmed lost (lease expiry, network partition, or an
	// explicit Resign). A leader must stop making further writes once this
	// fires (spec.md §4.8, §5).
	Observe() <-chan struct{}

	// Leader returns the value currently holding leadership, if any.
	Leader(ctx context.Context) (string, error)
}

// Store is the metadata-store client contract. Every operation may suspend
// (spec.md §5): callers should always pass a context with a deadline, and a
// cancelled context must leave the store in a consistent state because each
// write is, by itself, a consistent update of one key.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (KV, error)

	// GetPrefix returns every key/value pair whose key starts with prefix.
	GetPrefix(ctx context.Context, prefix string) ([]KV, error)

	// Put writes value at key unconditionally.
	Put(ctx context.Context, key string, value []byte, opts ...PutOption) error

	// CompareAndSwap writes value at key only if the key's current revision
	// equals expectedRevision (0 meaning "key must not exist"). Returns
	// ErrCASFailed on mismatch.
	CompareAndSwap(ctx context.Context, key string, value []byte, expectedRevision int64, opts ...PutOption) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Watch streams Events for key (or, with WithPrefix, every key under
	// prefix) until ctx is cancelled.
	Watch(ctx context.Context, key string, opts ...WatchOption) <-chan Event

	// Grant creates a lease with the given TTL, returning its ID.
	Grant(ctx context.Context, ttl time.Duration) (int64, error)

	// KeepAlive renews a lease once; callers loop this on a ticker for the
	// lifetime of the lease.
	KeepAlive(ctx context.Context, leaseID int64) error

	// Revoke releases a lease immediately, deleting every key attached to it.
	Revoke(ctx context.Context, leaseID int64) error

	// NewElection returns an Election bound to key using the given lease TTL.
	NewElection(ctx context.Context, key string, ttl time.Duration) (Election, error)

	// Close releases the store's resources.
	Close() error
}

// WatchOption configures a Watch call.
type WatchOption struct {
	Prefix bool
}

// WithPrefix requests that Watch matches every key under the given prefix
// rather than a single key.
func WithPrefix() WatchOption {
	return WatchOption{Prefix: true}
}
