package allocation

import (
	"testing"

	"github.com/meridian-search/controlplane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func primary(name, shardID string) types.Node {
	return types.Node{Name: name, Role: types.NodeRolePrimary, ShardPoolID: shardID, Health: types.HealthGreen, Admin: types.AdminStateNormal}
}

func replica(name, poolID string) types.Node {
	return types.Node{Name: name, Role: types.NodeRoleSearchReplica, ShardPoolID: poolID, Health: types.HealthGreen, Admin: types.AdminStateNormal}
}

// Scenario 1 (spec.md §8): initial allocation, Standard engine.
func TestStandardEngineInitialAllocation(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", ReplicaCount: 2}
	writers := []types.Node{primary("p1", "0")}
	readers := []types.Node{replica("r1", "0"), replica("r2", "0"), replica("r3", "0"), replica("r4", "0")}

	plan, diags := StandardEngine{}.Select(ctx, writers, readers, types.PlannedAllocation{})

	assert.Empty(t, diags)
	assert.Equal(t, "p1", plan.Writer)
	assert.Len(t, plan.Readers, 2)
	assert.Subset(t, []string{"r1", "r2", "r3", "r4"}, plan.Readers)
}

func TestStandardEngineRetainsCurrentlyPlannedReadersFirst(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", ReplicaCount: 2}
	writers := []types.Node{primary("p1", "0")}
	readers := []types.Node{replica("r1", "0"), replica("r2", "0"), replica("r3", "0")}
	current := types.PlannedAllocation{SearchSUs: []string{"r3"}}

	plan, _ := StandardEngine{}.Select(ctx, writers, readers, current)

	assert.Contains(t, plan.Readers, "r3")
	assert.Len(t, plan.Readers, 2)
}

func TestStandardEngineUnhealthyNodesExcluded(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", ReplicaCount: 2}
	redPrimary := primary("p1", "0")
	redPrimary.Health = types.HealthRed
	readers := []types.Node{replica("r1", "0")}
	redReplica := replica("r2", "0")
	redReplica.Health = types.HealthRed
	readers = append(readers, redReplica)

	plan, diags := StandardEngine{}.Select(ctx, []types.Node{redPrimary}, readers, types.PlannedAllocation{})

	assert.Empty(t, plan.Writer)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticZeroWriter, diags[0].Kind)
	assert.Equal(t, []string{"r1"}, plan.Readers)
}

func TestStandardEngineMultiPrimaryClearsWriterButKeepsReaders(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", ReplicaCount: 1}
	writers := []types.Node{primary("p1", "0"), primary("p2", "0")}
	readers := []types.Node{replica("r1", "0")}

	plan, diags := StandardEngine{}.Select(ctx, writers, readers, types.PlannedAllocation{})

	assert.Empty(t, plan.Writer)
	assert.Equal(t, []string{"r1"}, plan.Readers)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticMultiPrimary, diags[0].Kind)
}

func TestStandardEngineIsDeterministicAcrossCalls(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", ReplicaCount: 2}
	writers := []types.Node{primary("p1", "0")}
	readers := []types.Node{replica("r1", "0"), replica("r2", "0"), replica("r3", "0")}

	plan1, _ := StandardEngine{}.Select(ctx, writers, readers, types.PlannedAllocation{})
	plan2, _ := StandardEngine{}.Select(ctx, writers, readers, types.PlannedAllocation{})

	assert.Equal(t, plan1, plan2)
}

// Scenario 2 (spec.md §8): bin-packing initial allocation.
func TestBinPackingEngineInitialAllocation(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "1", GroupsAllocateCount: 3}
	writers := []types.Node{primary("p1", "1")}
	var readers []types.Node
	for _, g := range []string{"a", "b", "c", "d"} {
		for i := 0; i < 3; i++ {
			readers = append(readers, replica(g+string(rune('1'+i)), "1:"+g))
		}
	}

	plan, _ := BinPackingEngine{}.Select(ctx, writers, readers, types.PlannedAllocation{})

	assert.Len(t, plan.Readers, 9)
}

// Scenario 3 (spec.md §8): bin-packing stability.
func TestBinPackingEngineStabilityPrefersPlannedGroups(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", GroupsAllocateCount: 2}
	readers := []types.Node{
		replica("a1", "0:a"), replica("a2", "0:a"),
		replica("b1", "0:b"), replica("b2", "0:b"),
		replica("c1", "0:c"), replica("c2", "0:c"),
	}
	current := types.PlannedAllocation{SearchSUs: []string{"a1", "b1"}}

	plan, _ := BinPackingEngine{}.Select(ctx, nil, readers, current)

	assert.ElementsMatch(t, []string{"a1", "a2", "b1", "b2"}, plan.Readers)
}

// Scenario 4 (spec.md §8): bin-packing scale-up.
func TestBinPackingEngineScaleUpAddsOneMoreGroup(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", GroupsAllocateCount: 2}
	readers := []types.Node{
		replica("a1", "0:a"), replica("a2", "0:a"),
		replica("b1", "0:b"), replica("b2", "0:b"),
		replica("c1", "0:c"), replica("c2", "0:c"),
	}
	current := types.PlannedAllocation{SearchSUs: []string{"a1"}}

	plan, _ := BinPackingEngine{}.Select(ctx, nil, readers, current)

	assert.Contains(t, plan.Readers, "a1")
	assert.Contains(t, plan.Readers, "a2")
	assert.Len(t, plan.Readers, 4)
}

func TestBinPackingEngineContractsToLargestGroups(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", GroupsAllocateCount: 1}
	readers := []types.Node{
		replica("a1", "0:a"), replica("a2", "0:a"), replica("a3", "0:a"),
		replica("b1", "0:b"), replica("b2", "0:b"),
	}
	current := types.PlannedAllocation{SearchSUs: []string{"a1", "b1"}}

	plan, _ := BinPackingEngine{}.Select(ctx, nil, readers, current)

	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, plan.Readers)
}

func TestBinPackingEngineUnhealthyReplicaExcluded(t *testing.T) {
	ctx := ShardContext{Index: "idx", ShardID: "0", GroupsAllocateCount: 1}
	unhealthy := replica("a2", "0:a")
	unhealthy.Health = types.HealthRed
	readers := []types.Node{replica("a1", "0:a"), unhealthy}

	plan, _ := BinPackingEngine{}.Select(ctx, nil, readers, types.PlannedAllocation{})

	assert.Equal(t, []string{"a1"}, plan.Readers)
}

func TestShardAffinitySplitsShardAndGroup(t *testing.T) {
	shardID, group := ShardAffinity("3:west")
	assert.Equal(t, "3", shardID)
	assert.Equal(t, "west", group)

	shardID, group = ShardAffinity("3")
	assert.Equal(t, "3", shardID)
	assert.Equal(t, "3", group)
}
