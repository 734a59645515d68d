package metastore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// fakeStore is an in-process Store over go.etcd.io/bbolt, for unit tests
// that need the Store contract without a live etcd cluster. It is adapted
// from the teacher's pkg/storage/boltdb.go (single-bucket, JSON-free byte
// values keyed by string) and pkg/events (the broadcast broker, reused
// below to back Watch).
type fakeStore struct {
	db   *bolt.DB
	mu   sync.Mutex
	rev  int64
	bus  *watchBroker
	leases map[int64]*fakeLease
}

type fakeLease struct {
	keys  map[string]bool
	ttl   time.Duration
	timer *time.Timer
}

// NewFakeStore opens (creating if absent) a bbolt database at dataDir and
// returns a Store backed by it.
func NewFakeStore(dataDir string) (Store, error) {
	dbPath := filepath.Join(dataDir, "metastore-fake.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("metastore: failed to open fake store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &fakeStore{
		db:     db,
		bus:    newWatchBroker(),
		leases: make(map[int64]*fakeLease),
	}, nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (KV, error) {
	var out KV
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		raw := b.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		rec := decodeRecord(raw)
		out = KV{Key: key, Value: rec.value, Revision: rec.revision}
		return nil
	})
	if err != nil {
		return KV{}, err
	}
	return out, nil
}

func (s *fakeStore) GetPrefix(ctx context.Context, prefix string) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			rec := decodeRecord(v)
			out = append(out, KV{Key: string(k), Value: rec.value, Revision: rec.revision})
		}
		return nil
	})
	return out, err
}

func (s *fakeStore) Put(ctx context.Context, key string, value []byte, opts ...PutOption) error {
	_, err := s.put(key, value, -1, opts...)
	return err
}

func (s *fakeStore) CompareAndSwap(ctx context.Context, key string, value []byte, expectedRevision int64, opts ...PutOption) error {
	_, err := s.put(key, value, expectedRevision, opts...)
	return err
}

// put implements both unconditional and CAS writes; expectedRevision < 0
// means "unconditional".
func (s *fakeStore) put(key string, value []byte, expectedRevision int64, opts ...PutOption) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newRev int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		raw := b.Get([]byte(key))
		var currentRev int64
		if raw != nil {
			currentRev = decodeRecord(raw).revision
		}
		if expectedRevision >= 0 && currentRev != expectedRevision {
			return ErrCASFailed
		}
		s.rev++
		newRev = s.rev
		return b.Put([]byte(key), encodeRecord(fakeRecord{value: value, revision: newRev}))
	})
	if err != nil {
		return 0, err
	}

	for _, o := range opts {
		if o.LeaseID != 0 {
			if l, ok := s.leases[o.LeaseID]; ok {
				l.keys[key] = true
			}
		}
	}

	s.bus.publish(Event{Type: EventPut, KV: KV{Key: key, Value: value, Revision: newRev}})
	return newRev, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	}); err != nil {
		return err
	}
	s.bus.publish(Event{Type: EventDelete, KV: KV{Key: key}})
	return nil
}

func (s *fakeStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		var keys [][]byte
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted = append(deleted, string(k))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range deleted {
		s.bus.publish(Event{Type: EventDelete, KV: KV{Key: k}})
	}
	return nil
}

func (s *fakeStore) Watch(ctx context.Context, key string, opts ...WatchOption) <-chan Event {
	prefix := prefixRequested(opts)
	sub := s.bus.subscribe(key, prefix)
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer s.bus.unsubscribe(sub)
		for {
			select {
			case ev, ok := <-sub.ch:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *fakeStore) Grant(ctx context.Context, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	id := s.rev
	l := &fakeLease{keys: make(map[string]bool), ttl: ttl}
	l.timer = time.AfterFunc(ttl, func() { s.expireLease(id) })
	s.leases[id] = l
	return id, nil
}

func (s *fakeStore) KeepAlive(ctx context.Context, leaseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[leaseID]
	if !ok {
		return fmt.Errorf("metastore: unknown lease %d", leaseID)
	}
	l.timer.Reset(l.ttl)
	return nil
}

func (s *fakeStore) Revoke(ctx context.Context, leaseID int64) error {
	s.expireLease(leaseID)
	return nil
}

func (s *fakeStore) expireLease(leaseID int64) {
	s.mu.Lock()
	l, ok := s.leases[leaseID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.leases, leaseID)
	keys := make([]string, 0, len(l.keys))
	for k := range l.keys {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		_ = s.Delete(context.Background(), k)
	}
}

func (s *fakeStore) NewElection(ctx context.Context, key string, ttl time.Duration) (Election, error) {
	return newFakeElection(s, key, ttl), nil
}

func (s *fakeStore) Close() error {
	s.bus.stop()
	return s.db.Close()
}

type fakeRecord struct {
	value    []byte
	revision int64
}

// encodeRecord/decodeRecord use a trivial length-prefixed framing rather
// than JSON: the fake store is a byte-for-byte KV store, not a document
// store, and values it holds are already JSON-encoded by callers.
func encodeRecord(r fakeRecord) []byte {
	header := make([]byte, 8)
	for i := 0; i < 8; i++ {
		header[i] = byte(r.revision >> (8 * i))
	}
	return append(header, r.value...)
}

func decodeRecord(raw []byte) fakeRecord {
	if len(raw) < 8 {
		return fakeRecord{}
	}
	var rev int64
	for i := 0; i < 8; i++ {
		rev |= int64(raw[i]) << (8 * i)
	}
	return fakeRecord{value: raw[8:], revision: rev}
}
