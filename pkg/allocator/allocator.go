// Package allocator implements the Shard Allocator (spec.md §4.4): it
// iterates the index catalogue of a cluster in deterministic order,
// invokes the configured Allocation Decision Engine for every shard, and
// writes planned allocation records idempotently.
package allocator

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-search/controlplane/pkg/allocation"
	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/metrics"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/types"
	"github.com/rs/zerolog"
)

// Allocator iterates a cluster's index catalogue and writes planned
// allocation records.
type Allocator struct {
	store    metastore.Store
	resolver *pathresolver.Resolver
}

// New constructs an Allocator bound to a store and path resolver.
func New(store metastore.Store, resolver *pathresolver.Resolver) *Allocator {
	return &Allocator{store: store, resolver: resolver}
}

// Run allocates every shard of every index in cluster against roster, and
// returns every diagnostic raised along the way. A catalogue read failure
// returns early (spec.md §4.4: "read errors on the index catalogue return
// early"); a per-shard error is logged and does not abort the pass.
func (a *Allocator) Run(ctx context.Context, cluster string, roster discovery.Roster) ([]allocation.Diagnostic, error) {
	logger := log.WithComponent("allocator")

	indices, err := a.loadIndices(ctx, cluster)
	if err != nil {
		return nil, err
	}
	metrics.IndicesTotal.Set(float64(len(indices)))

	a.purgeDeletedIndices(ctx, cluster, indices, logger)

	var diagnostics []allocation.Diagnostic
	for _, index := range indices {
		for shardID := 0; shardID < index.index.NumShards(); shardID++ {
			diags := a.allocateShard(ctx, cluster, index, shardID, roster, logger)
			diagnostics = append(diagnostics, diags...)
		}
	}

	var unassigned float64
	for _, d := range diagnostics {
		metrics.AllocationDiagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()
		if d.Kind == allocation.DiagnosticZeroWriter {
			unassigned++
		}
	}
	metrics.ShardsUnassigned.Set(unassigned)

	return diagnostics, nil
}

// purgeDeletedIndices implements spec.md §8 scenario 9: once an index's
// conf document is gone, any planned-allocation/actual-allocation data
// still sitting under its key prefix is orphaned and must be removed.
// Orchestrator.Run recomputes each node's localShards from the surviving
// planned-allocation records on its next pass, so purging here is
// sufficient to drop localShards[idx] from every affected goal state.
func (a *Allocator) purgeDeletedIndices(ctx context.Context, cluster string, current []catalogueEntry, logger zerolog.Logger) {
	live := make(map[string]bool, len(current))
	for _, entry := range current {
		live[entry.index.Name] = true
	}

	kvs, err := a.store.GetPrefix(ctx, a.resolver.IndexPrefix(cluster))
	if err != nil {
		logger.Error().Err(err).Str("cluster", cluster).Msg("failed to scan index prefix for deleted indices, skipping purge")
		return
	}

	prefix := a.resolver.IndexPrefix(cluster)
	seen := make(map[string]bool)
	for _, kv := range kvs {
		rest := strings.TrimPrefix(kv.Key, prefix)
		name := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name = rest[:idx]
		}
		if name == "" || live[name] || seen[name] {
			continue
		}
		seen[name] = true
		if err := a.store.DeletePrefix(ctx, a.resolver.IndexShardsPrefix(cluster, name)); err != nil {
			logger.Error().Err(err).Str("index", name).Msg("failed to purge deleted index")
			continue
		}
		logger.Info().Str("index", name).Msg("purged orphaned allocation data for deleted index")
	}
}

// catalogueEntry wraps the catalogue's internal model (converted via
// indexDocument.toIndex as soon as it's decoded) plus the shard-grouping
// fields of the wire document that types.Index doesn't carry.
type catalogueEntry struct {
	index     types.Index
	groupsCnt []int
	strategy  allocation.Strategy
}

func (a *Allocator) loadIndices(ctx context.Context, cluster string) ([]catalogueEntry, error) {
	kvs, err := a.store.GetPrefix(ctx, a.resolver.IndexPrefix(cluster))
	if err != nil {
		return nil, err
	}

	var entries []catalogueEntry
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, "/conf") {
			continue
		}
		var doc indexDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		entries = append(entries, catalogueEntry{
			index:     doc.toIndex(cluster),
			groupsCnt: doc.ShardGroupsAllocateCount,
			strategy:  doc.Strategy,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index.Name < entries[j].index.Name })
	return entries, nil
}

func (a *Allocator) allocateShard(ctx context.Context, cluster string, index catalogueEntry, shardIdx int, roster discovery.Roster, logger zerolog.Logger) []allocation.Diagnostic {
	shardID := strconv.Itoa(shardIdx)

	current, err := a.loadPlanned(ctx, cluster, index.index.Name, shardID)
	if err != nil {
		logger.Warn().Err(err).Str("index", index.index.Name).Str("shard", shardID).Msg("failed to read planned allocation, treating as absent")
		current = types.PlannedAllocation{Cluster: cluster, IndexName: index.index.Name, ShardID: shardID}
	}

	writerCandidates, readerCandidates := candidatePools(roster, shardID)

	shardCtx := allocation.ShardContext{
		Index:   index.index.Name,
		ShardID: shardID,
	}
	if shardIdx < len(index.index.ShardReplicaCount) {
		shardCtx.ReplicaCount = index.index.ShardReplicaCount[shardIdx]
	}
	if shardIdx < len(index.groupsCnt) {
		shardCtx.GroupsAllocateCount = index.groupsCnt[shardIdx]
	}

	timer := metrics.NewTimer()
	engine := allocation.ForStrategy(index.strategy)
	plan, diags := engine.Select(shardCtx, writerCandidates, readerCandidates, current)
	timer.ObserveDuration(metrics.AllocationDecisionDuration)

	if planEqualsCurrent(plan, current) {
		return diags
	}

	next := types.PlannedAllocation{
		Cluster:   cluster,
		IndexName: index.index.Name,
		ShardID:   shardID,
		SearchSUs: plan.Readers,
		Timestamp: time.Now(),
		Status:    "applied",
	}
	if plan.Writer != "" {
		next.IngestSUs = []string{plan.Writer}
	}

	payload, err := json.Marshal(plannedToDocument(next))
	if err != nil {
		logger.Error().Err(err).Str("index", index.index.Name).Str("shard", shardID).Msg("failed to encode planned allocation")
		return diags
	}
	if err := a.store.Put(ctx, a.resolver.PlannedAllocation(cluster, index.index.Name, shardID), payload); err != nil {
		logger.Error().Err(err).Str("index", index.index.Name).Str("shard", shardID).Msg("failed to write planned allocation")
	}
	return diags
}

func (a *Allocator) loadPlanned(ctx context.Context, cluster, index, shardID string) (types.PlannedAllocation, error) {
	kv, err := a.store.Get(ctx, a.resolver.PlannedAllocation(cluster, index, shardID))
	if err == metastore.ErrNotFound {
		return types.PlannedAllocation{Cluster: cluster, IndexName: index, ShardID: shardID}, nil
	}
	if err != nil {
		return types.PlannedAllocation{}, err
	}
	var doc allocationDocument
	if err := json.Unmarshal(kv.Value, &doc); err != nil {
		return types.PlannedAllocation{}, err
	}
	return doc.toPlanned(cluster), nil
}

// candidatePools splits the roster into writer and reader candidates for
// shardID, matching spec.md §3's shard-pool-id convention: a primary's
// pool id equals the shard id; a replica's pool id carries the shard id as
// its prefix (see allocation.ShardAffinity).
func candidatePools(roster discovery.Roster, shardID string) (writers, readers []types.Node) {
	for _, n := range roster.Nodes {
		affinityShard, _ := allocation.ShardAffinity(n.ShardPoolID)
		if affinityShard != shardID {
			continue
		}
		switch n.Role {
		case types.NodeRolePrimary:
			writers = append(writers, n)
		case types.NodeRoleSearchReplica:
			readers = append(readers, n)
		}
	}
	return writers, readers
}

// planEqualsCurrent implements the §4.4 idempotence rule: suppress the
// write if the new searchSUs set equals the old one and the new writer
// equals the old singleton ingestSUs.
func planEqualsCurrent(plan allocation.Plan, current types.PlannedAllocation) bool {
	var currentWriter string
	if len(current.IngestSUs) == 1 {
		currentWriter = current.IngestSUs[0]
	}
	if plan.Writer != currentWriter {
		return false
	}
	return sameSet(plan.Readers, current.SearchSUs)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}
