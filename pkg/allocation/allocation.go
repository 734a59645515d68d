// Package allocation implements the Allocation Decision Engine (spec.md
// §4.3): given a shard, a pool of healthy candidate nodes, and the
// currently-planned allocation, choose the writer and the set of readers.
// Two strategies are provided, both deterministic and stable for equal
// inputs across process restarts.
package allocation

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-search/controlplane/pkg/types"
)

// Strategy selects which Decision Engine variant an index uses.
type Strategy string

const (
	// StrategyRespectReplicaCount is the Standard Engine (spec.md §4.3.1).
	StrategyRespectReplicaCount Strategy = "RESPECT_REPLICA_COUNT"

	// StrategyUseAllAvailableNodes is the Group-Aware Bin-Packing Engine
	// (spec.md §4.3.2).
	StrategyUseAllAvailableNodes Strategy = "USE_ALL_AVAILABLE_NODES"
)

// ShardContext carries the per-shard parameters a Decision Engine needs.
type ShardContext struct {
	Index               string
	ShardID             string
	ReplicaCount        int // R, consulted by the Standard Engine
	GroupsAllocateCount int // G, consulted by the Bin-Packing Engine
}

// Plan is a Decision Engine's output for one shard.
type Plan struct {
	Writer  string // empty if no eligible writer was found
	Readers []string
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind string

const (
	// DiagnosticMultiPrimary is raised when more than one PRIMARY node
	// claims the same shard pool id (spec.md §4.4 step 2, §8 scenario 6).
	DiagnosticMultiPrimary DiagnosticKind = "multi_primary"

	// DiagnosticZeroWriter is raised when no eligible PRIMARY is found
	// (spec.md §9 open question: "leave ingestSUs empty and continue").
	DiagnosticZeroWriter DiagnosticKind = "zero_writer"
)

// Diagnostic is a non-fatal fault surfaced to operators (SPEC_FULL.md
// supplemented feature): the allocator keeps running, but the fault is
// recorded rather than silently swallowed.
type Diagnostic struct {
	ID        string
	Kind      DiagnosticKind
	Index     string
	ShardID   string
	Message   string
	Timestamp time.Time
}

func newDiagnostic(kind DiagnosticKind, index, shardID, message string) Diagnostic {
	return Diagnostic{
		ID:        uuid.NewString(),
		Kind:      kind,
		Index:     index,
		ShardID:   shardID,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Engine is the capability every strategy implements: given a shard, its
// writer and reader candidate pools, and the currently-planned allocation,
// return the nodes selected for that shard.
type Engine interface {
	Select(ctx ShardContext, writerCandidates, readerCandidates []types.Node, current types.PlannedAllocation) (Plan, []Diagnostic)
}

// ForStrategy returns the Engine implementing strategy.
func ForStrategy(strategy Strategy) Engine {
	switch strategy {
	case StrategyUseAllAvailableNodes:
		return BinPackingEngine{}
	default:
		return StandardEngine{}
	}
}

// ShardAffinity splits a node's shard-pool id into the shard it serves and,
// for replicas, the replica-group label within that shard. The wire format
// is "<shardID>:<group>"; a pool id with no colon is treated as serving
// only itself (shardID == group), which is also the shape a PRIMARY's pool
// id naturally has (spec.md §3: "equals the shard id for a writer").
func ShardAffinity(poolID string) (shardID, group string) {
	if idx := strings.IndexByte(poolID, ':'); idx >= 0 {
		return poolID[:idx], poolID[idx+1:]
	}
	return poolID, poolID
}

// selectWriter implements the writer-selection rule shared by both engines
// (spec.md §4.3.1 step 4 / §4.3.2 step 7): exactly one eligible PRIMARY is
// required, else the writer is left empty and a diagnostic is recorded.
func selectWriter(ctx ShardContext, writerCandidates []types.Node) (string, []Diagnostic) {
	var eligible []types.Node
	for _, n := range writerCandidates {
		if n.Role != types.NodeRolePrimary || n.Health != types.HealthGreen || n.Admin != types.AdminStateNormal {
			continue
		}
		shardID, _ := ShardAffinity(n.ShardPoolID)
		if shardID != ctx.ShardID {
			continue
		}
		eligible = append(eligible, n)
	}

	switch len(eligible) {
	case 1:
		return eligible[0].Name, nil
	case 0:
		return "", []Diagnostic{newDiagnostic(DiagnosticZeroWriter, ctx.Index, ctx.ShardID, "no eligible PRIMARY for shard")}
	default:
		names := make([]string, len(eligible))
		for i, n := range eligible {
			names[i] = n.Name
		}
		sort.Strings(names)
		return "", []Diagnostic{newDiagnostic(DiagnosticMultiPrimary, ctx.Index, ctx.ShardID, "multiple PRIMARYs for shard: "+strings.Join(names, ","))}
	}
}

func eligibleReaders(readerCandidates []types.Node) []types.Node {
	var out []types.Node
	for _, n := range readerCandidates {
		if n.Role == types.NodeRoleSearchReplica && n.Health == types.HealthGreen && n.Admin == types.AdminStateNormal {
			out = append(out, n)
		}
	}
	return out
}
