package clusterhealth

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/types"
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

func putIndex(t *testing.T, store metastore.Store, resolver *pathresolver.Resolver, cluster string, doc indexDocument) {
	t.Helper()
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), resolver.IndexConf(cluster, doc.Name), payload))
}

func putPlan(t *testing.T, store metastore.Store, resolver *pathresolver.Resolver, cluster, index, shardID string, writer string, readers []string) {
	t.Helper()
	doc := plannedAllocationDocument{IndexName: index, ShardID: shardID, SearchSUs: readers}
	if writer != "" {
		doc.IngestSUs = []string{writer}
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), resolver.PlannedAllocation(cluster, index, shardID), payload))
}

// putRouting publishes a heartbeat reporting node's routing state for a
// single (index, shardID) pair.
func putRouting(t *testing.T, store metastore.Store, resolver *pathresolver.Resolver, cluster, node, index, shardID, state string) {
	t.Helper()
	doc := heartbeatDocument{
		NodeName:    node,
		NodeRouting: map[string][]shardRoutingDoc{index: {{ShardID: shardID, State: state}}},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), resolver.SearchUnitActualState(cluster, node), payload))
}

func roster(nodes ...types.Node) discovery.Roster {
	r := discovery.Roster{Nodes: make(map[string]types.Node, len(nodes))}
	for _, n := range nodes {
		r.Nodes[n.Name] = n
	}
	return r
}

func greenNode(name string) types.Node {
	return types.Node{Name: name, Health: types.HealthGreen, Data: true}
}

func TestComputeIsGreenWhenWriterExistsAndAllReplicasStarted(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "products", ShardReplicaCount: []int{2}})
	putPlan(t, store, resolver, "c1", "products", "0", "p1", []string{"r1", "r2"})
	putRouting(t, store, resolver, "c1", "r1", "products", "0", "STARTED")
	putRouting(t, store, resolver, "c1", "r2", "products", "0", "STARTED")
	rost := roster(greenNode("p1"), greenNode("r1"), greenNode("r2"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityShards)
	require.NoError(t, err)
	assert.Equal(t, types.HealthGreen, report.Status)
	assert.Equal(t, 3, report.NumberOfNodes)
	require.Len(t, report.Indices, 1)
	require.Len(t, report.Indices[0].Shards, 1)
	assert.Equal(t, types.HealthGreen, report.Indices[0].Shards[0].Status)
}

func TestComputeIsRedWhenWriterMissing(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "products", ShardReplicaCount: []int{1}})
	putPlan(t, store, resolver, "c1", "products", "0", "", []string{"r1"})
	rost := roster(greenNode("r1"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityCluster)
	require.NoError(t, err)
	assert.Equal(t, types.HealthRed, report.Status)
}

func TestComputeIsYellowWhenSomeReplicasNotStarted(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "products", ShardReplicaCount: []int{2}})
	putPlan(t, store, resolver, "c1", "products", "0", "p1", []string{"r1", "r2"})
	putRouting(t, store, resolver, "c1", "r1", "products", "0", "STARTED")
	// r2 reports no routing entry for this shard: present in the roster and
	// globally healthy, but this particular shard never started on it.
	rost := roster(greenNode("p1"), greenNode("r1"), greenNode("r2"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityCluster)
	require.NoError(t, err)
	assert.Equal(t, types.HealthYellow, report.Status)
}

func TestComputeIsYellowWhenReaderNodeHealthyButShardNotStarted(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "products", ShardReplicaCount: []int{1}})
	putPlan(t, store, resolver, "c1", "products", "0", "p1", []string{"r1"})
	// r1 is globally GREEN (e.g. a started shard for some other index) but
	// this specific shard is still INITIALIZING on it.
	putRouting(t, store, resolver, "c1", "r1", "products", "0", "INITIALIZING")
	rost := roster(greenNode("p1"), greenNode("r1"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityShards)
	require.NoError(t, err)
	assert.Equal(t, types.HealthYellow, report.Status)
	require.Len(t, report.Indices[0].Shards, 1)
	assert.Equal(t, types.HealthYellow, report.Indices[0].Shards[0].Status)
}

func TestComputeClusterStatusIsWorstAcrossIndices(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "alpha", ShardReplicaCount: []int{0}})
	putPlan(t, store, resolver, "c1", "alpha", "0", "p1", nil)
	putIndex(t, store, resolver, "c1", indexDocument{Name: "beta", ShardReplicaCount: []int{1}})
	putPlan(t, store, resolver, "c1", "beta", "0", "", nil)
	rost := roster(greenNode("p1"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityIndices)
	require.NoError(t, err)
	assert.Equal(t, types.HealthRed, report.Status)
	require.Len(t, report.Indices, 2)
	assert.Equal(t, "alpha", report.Indices[0].Index)
	assert.Equal(t, types.HealthGreen, report.Indices[0].Status)
	assert.Equal(t, "beta", report.Indices[1].Index)
	assert.Equal(t, types.HealthRed, report.Indices[1].Status)
}

func TestComputeClusterGranularityOmitsIndexBreakdown(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "products", ShardReplicaCount: []int{0}})
	putPlan(t, store, resolver, "c1", "products", "0", "p1", nil)
	rost := roster(greenNode("p1"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityCluster)
	require.NoError(t, err)
	assert.Empty(t, report.Indices)
}

func TestComputeIndicesGranularityOmitsShardBreakdown(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	putIndex(t, store, resolver, "c1", indexDocument{Name: "products", ShardReplicaCount: []int{0}})
	putPlan(t, store, resolver, "c1", "products", "0", "p1", nil)
	rost := roster(greenNode("p1"))

	report, err := r.Compute(context.Background(), "c1", rost, GranularityIndices)
	require.NoError(t, err)
	require.Len(t, report.Indices, 1)
	assert.Empty(t, report.Indices[0].Shards)
}

func TestComputeActiveNodesExcludesRedNodes(t *testing.T) {
	store, resolver := newHarness(t)
	r := New(store, resolver)

	rost := roster(greenNode("p1"), types.Node{Name: "r1", Health: types.HealthRed})

	report, err := r.Compute(context.Background(), "c1", rost, GranularityCluster)
	require.NoError(t, err)
	assert.Equal(t, 2, report.NumberOfNodes)
	assert.Equal(t, 1, report.ActiveNodes)
}
