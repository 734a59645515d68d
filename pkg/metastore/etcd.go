package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdConfig configures the etcd-backed Store.
type EtcdConfig struct {
	Endpoints        []string
	DialTimeout      time.Duration
	OperationTimeout time.Duration
	Username         string
	Password         string
}

// etcdStore implements Store on top of go.etcd.io/etcd/client/v3. It is the
// production metadata-store client: the control plane treats etcd (or any
// store speaking this wire protocol) as the external, transactional source
// of truth described in spec.md §2.
type etcdStore struct {
	client  *clientv3.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEtcdStore dials the configured endpoints and returns a Store.
func NewEtcdStore(cfg EtcdConfig) (Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("metastore: at least one etcd endpoint is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	opTimeout := cfg.OperationTimeout
	if opTimeout == 0 {
		opTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: failed to dial etcd: %w", err)
	}

	return &etcdStore{
		client:  cli,
		timeout: opTimeout,
		logger:  log.WithComponent("metastore.etcd"),
	}, nil
}

func (s *etcdStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *etcdStore) Get(ctx context.Context, key string) (KV, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return KV{}, fmt.Errorf("metastore: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return KV{}, ErrNotFound
	}
	kv := resp.Kvs[0]
	return KV{Key: string(kv.Key), Value: kv.Value, Revision: kv.ModRevision}, nil
}

func (s *etcdStore) GetPrefix(ctx context.Context, prefix string) ([]KV, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("metastore: get prefix %s: %w", prefix, err)
	}
	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{Key: string(kv.Key), Value: kv.Value, Revision: kv.ModRevision})
	}
	return out, nil
}

func (s *etcdStore) Put(ctx context.Context, key string, value []byte, opts ...PutOption) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	etcdOpts := putOpts(opts)
	_, err := s.client.Put(ctx, key, string(value), etcdOpts...)
	if err != nil {
		return fmt.Errorf("metastore: put %s: %w", key, err)
	}
	return nil
}

func (s *etcdStore) CompareAndSwap(ctx context.Context, key string, value []byte, expectedRevision int64, opts ...PutOption) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var cmp clientv3.Cmp
	if expectedRevision == 0 {
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", expectedRevision)
	}

	etcdOpts := putOpts(opts)
	txn := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, string(value), etcdOpts...))

	resp, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("metastore: cas %s: %w", key, err)
	}
	if !resp.Succeeded {
		return ErrCASFailed
	}
	return nil
}

func (s *etcdStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("metastore: delete %s: %w", key, err)
	}
	return nil
}

func (s *etcdStore) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Delete(ctx, prefix, clientv3.WithPrefix()); err != nil {
		return fmt.Errorf("metastore: delete prefix %s: %w", prefix, err)
	}
	return nil
}

func (s *etcdStore) Watch(ctx context.Context, key string, opts ...WatchOption) <-chan Event {
	out := make(chan Event, 16)
	etcdOpts := []clientv3.OpOption{}
	if prefixRequested(opts) {
		etcdOpts = append(etcdOpts, clientv3.WithPrefix())
	}

	watchCh := s.client.Watch(ctx, key, etcdOpts...)

	go func() {
		defer close(out)
		for resp := range watchCh {
			if err := resp.Err(); err != nil {
				s.logger.Error().Err(err).Str("key", key).Msg("watch stream error")
				return
			}
			for _, ev := range resp.Events {
				evType := EventPut
				if ev.Type == clientv3.EventTypeDelete {
					evType = EventDelete
				}
				select {
				case out <- Event{
					Type: evType,
					KV: KV{
						Key:      string(ev.Kv.Key),
						Value:    ev.Kv.Value,
						Revision: ev.Kv.ModRevision,
					},
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (s *etcdStore) Grant(ctx context.Context, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("metastore: grant lease: %w", err)
	}
	return int64(resp.ID), nil
}

func (s *etcdStore) KeepAlive(ctx context.Context, leaseID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.KeepAliveOnce(ctx, clientv3.LeaseID(leaseID))
	if err != nil {
		return fmt.Errorf("metastore: keepalive lease %d: %w", leaseID, err)
	}
	return nil
}

func (s *etcdStore) Revoke(ctx context.Context, leaseID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Revoke(ctx, clientv3.LeaseID(leaseID)); err != nil {
		return fmt.Errorf("metastore: revoke lease %d: %w", leaseID, err)
	}
	return nil
}

func (s *etcdStore) NewElection(ctx context.Context, key string, ttl time.Duration) (Election, error) {
	session, err := concurrency.NewSession(s.client, concurrency.WithTTL(int(ttl.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("metastore: new session for election %s: %w", key, err)
	}
	return &etcdElection{
		session:  session,
		election: concurrency.NewElection(session, key),
		logger:   s.logger.With().Str("election_key", key).Logger(),
	}, nil
}

func (s *etcdStore) Close() error {
	return s.client.Close()
}

func putOpts(opts []PutOption) []clientv3.OpOption {
	var out []clientv3.OpOption
	for _, o := range opts {
		if o.LeaseID != 0 {
			out = append(out, clientv3.WithLease(clientv3.LeaseID(o.LeaseID)))
		}
	}
	return out
}

func prefixRequested(opts []WatchOption) bool {
	for _, o := range opts {
		if o.Prefix {
			return true
		}
	}
	return false
}

// etcdElection wraps clientv3/concurrency's Session+Election into the
// Election interface (spec.md §4.8). Grounded on the other_examples
// jakobht-cadence etcd shard-distributor store's elector.CreateElection /
// Campaign usage.
type etcdElection struct {
	session  *concurrency.Session
	election *concurrency.Election
	logger   zerolog.Logger
}

func (e *etcdElection) Campaign(ctx context.Context, value string) error {
	if err := e.election.Campaign(ctx, value); err != nil {
		return fmt.Errorf("metastore: campaign failed: %w", err)
	}
	return nil
}

func (e *etcdElection) Resign(ctx context.Context) error {
	if err := e.election.Resign(ctx); err != nil {
		return fmt.Errorf("metastore: resign failed: %w", err)
	}
	return nil
}

func (e *etcdElection) Observe() <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		defer close(lost)
		<-e.session.Done()
	}()
	return lost
}

func (e *etcdElection) Leader(ctx context.Context) (string, error) {
	resp, err := e.election.Leader(ctx)
	if err != nil {
		return "", fmt.Errorf("metastore: leader lookup failed: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", ErrNotFound
	}
	return string(resp.Kvs[0].Value), nil
}
