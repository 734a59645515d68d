package actualalloc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (metastore.Store, *pathresolver.Resolver) {
	t.Helper()
	store, err := metastore.NewFakeStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, pathresolver.New("test")
}

func putHeartbeat(t *testing.T, store metastore.Store, resolver *pathresolver.Resolver, cluster, node string, routing map[string][]shardRoutingDoc) {
	t.Helper()
	doc := heartbeatDocument{NodeName: node, Timestamp: time.Now(), NodeRouting: routing}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), resolver.SearchUnitActualState(cluster, node), payload))
}

func TestRunAggregatesIngestAndSearchNodesPerShard(t *testing.T) {
	store, resolver := newHarness(t)
	u := New(store, resolver)

	putHeartbeat(t, store, resolver, "c1", "p1", map[string][]shardRoutingDoc{
		"products": {{ShardID: "0", Role: "PRIMARY"}},
	})
	putHeartbeat(t, store, resolver, "c1", "r1", map[string][]shardRoutingDoc{
		"products": {{ShardID: "0", Role: "SEARCH_REPLICA"}},
	})
	putHeartbeat(t, store, resolver, "c1", "r2", map[string][]shardRoutingDoc{
		"products": {{ShardID: "0", Role: "SEARCH_REPLICA"}},
	})

	require.NoError(t, u.Run(context.Background(), "c1"))

	kv, err := store.Get(context.Background(), resolver.ActualAllocation("c1", "products", "0"))
	require.NoError(t, err)
	var doc actualAllocationDocument
	require.NoError(t, json.Unmarshal(kv.Value, &doc))
	assert.Equal(t, []string{"p1"}, doc.IngestSUs)
	assert.ElementsMatch(t, []string{"r1", "r2"}, doc.SearchSUs)
}

func TestRunHandlesMultipleIndicesAndShardsIndependently(t *testing.T) {
	store, resolver := newHarness(t)
	u := New(store, resolver)

	putHeartbeat(t, store, resolver, "c1", "p1", map[string][]shardRoutingDoc{
		"products": {{ShardID: "0", Role: "PRIMARY"}},
		"orders":   {{ShardID: "1", Role: "PRIMARY"}},
	})

	require.NoError(t, u.Run(context.Background(), "c1"))

	kv, err := store.Get(context.Background(), resolver.ActualAllocation("c1", "products", "0"))
	require.NoError(t, err)
	var productsDoc actualAllocationDocument
	require.NoError(t, json.Unmarshal(kv.Value, &productsDoc))
	assert.Equal(t, []string{"p1"}, productsDoc.IngestSUs)

	kv, err = store.Get(context.Background(), resolver.ActualAllocation("c1", "orders", "1"))
	require.NoError(t, err)
	var ordersDoc actualAllocationDocument
	require.NoError(t, json.Unmarshal(kv.Value, &ordersDoc))
	assert.Equal(t, []string{"p1"}, ordersDoc.IngestSUs)
}

func TestRunSkipsUnparseableHeartbeatWithoutFailing(t *testing.T) {
	store, resolver := newHarness(t)
	u := New(store, resolver)

	require.NoError(t, store.Put(context.Background(), resolver.SearchUnitActualState("c1", "bad"), []byte("not json")))
	putHeartbeat(t, store, resolver, "c1", "p1", map[string][]shardRoutingDoc{
		"products": {{ShardID: "0", Role: "PRIMARY"}},
	})

	require.NoError(t, u.Run(context.Background(), "c1"))

	_, err := store.Get(context.Background(), resolver.ActualAllocation("c1", "products", "0"))
	assert.NoError(t, err)
}

func TestRunIsIdempotentOnSecondPass(t *testing.T) {
	store, resolver := newHarness(t)
	u := New(store, resolver)

	putHeartbeat(t, store, resolver, "c1", "p1", map[string][]shardRoutingDoc{
		"products": {{ShardID: "0", Role: "PRIMARY"}},
	})
	require.NoError(t, u.Run(context.Background(), "c1"))

	before, err := store.Get(context.Background(), resolver.ActualAllocation("c1", "products", "0"))
	require.NoError(t, err)

	require.NoError(t, u.Run(context.Background(), "c1"))

	after, err := store.Get(context.Background(), resolver.ActualAllocation("c1", "products", "0"))
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision, "unchanged observed routing must not produce a write")
}

func TestRunProducesNoRecordsWhenNoHeartbeatsExist(t *testing.T) {
	store, resolver := newHarness(t)
	u := New(store, resolver)

	require.NoError(t, u.Run(context.Background(), "c1"))

	kvs, err := store.GetPrefix(context.Background(), resolver.IndexPrefix("c1"))
	require.NoError(t, err)
	assert.Empty(t, kvs)
}
