// Package orchestrator implements the Goal-State Orchestrator (spec.md
// §4.5): it inverts the (shard -> nodes) mapping produced by the Shard
// Allocator into (node -> shards) goal-state documents, and writes them
// under a rolling-update discipline that bounds how many transitions are
// applied in a single pass.
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/metrics"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/types"
	"github.com/rs/zerolog"
)

// Config bounds the rolling-update discipline (spec.md §4.5 step 3).
type Config struct {
	// MaxConcurrent caps how many goal-state writes run at once.
	MaxConcurrent int

	// MaxTransitionsPerRoleBucket caps how many pending transitions per
	// node-role bucket are applied in one pass; the rest are deferred to
	// the next cycle.
	MaxTransitionsPerRoleBucket int
}

// DefaultConfig returns the spec's suggested default ("small, e.g. 4").
func DefaultConfig() Config {
	return Config{MaxConcurrent: 4, MaxTransitionsPerRoleBucket: 4}
}

// Orchestrator writes per-node goal-state documents from planned
// allocations.
type Orchestrator struct {
	store    metastore.Store
	resolver *pathresolver.Resolver
	cfg      Config
}

// New constructs an Orchestrator bound to a store and path resolver.
func New(store metastore.Store, resolver *pathresolver.Resolver, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxTransitionsPerRoleBucket <= 0 {
		cfg.MaxTransitionsPerRoleBucket = 4
	}
	return &Orchestrator{store: store, resolver: resolver, cfg: cfg}
}

type plannedAllocationDocument struct {
	IndexName string   `json:"index_name"`
	ShardID   string   `json:"shard_id"`
	IngestSUs []string `json:"ingest_sus"`
	SearchSUs []string `json:"search_sus"`
}

// Run loads every planned allocation under cluster, computes each known
// node's next goal state, and writes the ones that changed (spec.md §4.5).
// Per-node write failures are logged and retried next cycle; they do not
// abort the pass.
func (o *Orchestrator) Run(ctx context.Context, cluster string, roster discovery.Roster) error {
	logger := log.WithComponent("orchestrator")

	plans, err := o.loadPlans(ctx, cluster)
	if err != nil {
		logger.Error().Err(err).Str("cluster", cluster).Msg("failed to load planned allocations, skipping pass")
		return nil
	}

	next := invert(plans)

	nodeNames := make(map[string]bool, len(roster.Nodes)+len(next))
	for name := range roster.Nodes {
		nodeNames[name] = true
	}
	for name := range next {
		nodeNames[name] = true
	}

	var transitions []transition
	for name := range nodeNames {
		prev, err := o.loadGoalState(ctx, cluster, name)
		if err != nil {
			logger.Error().Err(err).Str("node", name).Msg("failed to read existing goal state, deferring")
			continue
		}

		desired := types.GoalState{NodeName: name, LocalShards: next[name]}
		if desired.LocalShards == nil {
			desired.LocalShards = map[string]map[string]types.NodeRole{}
		}
		if desired.EqualShards(prev) {
			continue
		}

		transitions = append(transitions, transition{
			node:     name,
			role:     roster.Nodes[name].Role,
			prev:     prev,
			desired:  desired,
			revision: o.revisionOf(ctx, cluster, name),
		})
	}

	o.applyBounded(ctx, cluster, transitions, logger)
	return nil
}

type transition struct {
	node     string
	role     types.NodeRole
	prev     types.GoalState
	desired  types.GoalState
	revision int64
}

func (o *Orchestrator) loadPlans(ctx context.Context, cluster string) ([]plannedAllocationDocument, error) {
	kvs, err := o.store.GetPrefix(ctx, o.resolver.IndexPrefix(cluster))
	if err != nil {
		return nil, err
	}
	var out []plannedAllocationDocument
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, "/planned-allocation") {
			continue
		}
		var doc plannedAllocationDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// invert builds next[node][index][shardId] = role from the planned
// allocations (spec.md §4.5 step 1).
func invert(plans []plannedAllocationDocument) map[string]map[string]map[string]types.NodeRole {
	next := make(map[string]map[string]map[string]types.NodeRole)
	ensure := func(node, index string) map[string]types.NodeRole {
		if next[node] == nil {
			next[node] = make(map[string]map[string]types.NodeRole)
		}
		if next[node][index] == nil {
			next[node][index] = make(map[string]types.NodeRole)
		}
		return next[node][index]
	}

	for _, p := range plans {
		if len(p.IngestSUs) == 1 {
			ensure(p.IngestSUs[0], p.IndexName)[p.ShardID] = types.NodeRolePrimary
		}
		for _, reader := range p.SearchSUs {
			ensure(reader, p.IndexName)[p.ShardID] = types.NodeRoleSearchReplica
		}
	}
	return next
}

func (o *Orchestrator) loadGoalState(ctx context.Context, cluster, node string) (types.GoalState, error) {
	kv, err := o.store.Get(ctx, o.resolver.SearchUnitGoalState(cluster, node))
	if err == metastore.ErrNotFound {
		return types.GoalState{NodeName: node}, nil
	}
	if err != nil {
		return types.GoalState{}, err
	}
	var doc goalStateDocument
	if err := json.Unmarshal(kv.Value, &doc); err != nil {
		return types.GoalState{}, err
	}
	return doc.toGoalState(node), nil
}

func (o *Orchestrator) revisionOf(ctx context.Context, cluster, node string) int64 {
	kv, err := o.store.Get(ctx, o.resolver.SearchUnitGoalState(cluster, node))
	if err != nil {
		return 0
	}
	return kv.Revision
}

// applyBounded writes transitions under the rolling-update discipline: at
// most MaxTransitionsPerRoleBucket transitions per node-role bucket are
// applied this pass; the remainder recomputes (and is retried) next cycle
// since their goal state is left unchanged.
func (o *Orchestrator) applyBounded(ctx context.Context, cluster string, transitions []transition, logger zerolog.Logger) {
	buckets := make(map[types.NodeRole][]transition)
	for _, t := range transitions {
		buckets[t.role] = append(buckets[t.role], t)
	}

	var admitted []transition
	for _, bucket := range buckets {
		limit := o.cfg.MaxTransitionsPerRoleBucket
		if limit > len(bucket) {
			limit = len(bucket)
		}
		admitted = append(admitted, bucket[:limit]...)
	}

	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, t := range admitted {
		wg.Add(1)
		sem <- struct{}{}
		go func(t transition) {
			defer wg.Done()
			defer func() { <-sem }()
			o.writeGoalState(ctx, cluster, t, logger)
		}(t)
	}
	wg.Wait()
}

func (o *Orchestrator) writeGoalState(ctx context.Context, cluster string, t transition, logger zerolog.Logger) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GoalStateWriteDuration)

	t.desired.Version = t.prev.Version + 1
	t.desired.LastUpdated = time.Now()

	payload, err := json.Marshal(goalStateToDocument(t.desired))
	if err != nil {
		logger.Error().Err(err).Str("node", t.node).Msg("failed to encode goal state")
		metrics.GoalStateWritesTotal.WithLabelValues("encode_error").Inc()
		return
	}

	key := o.resolver.SearchUnitGoalState(cluster, t.node)
	var writeErr error
	if t.revision == 0 {
		writeErr = o.store.CompareAndSwap(ctx, key, payload, 0)
	} else {
		writeErr = o.store.CompareAndSwap(ctx, key, payload, t.revision)
	}
	if writeErr != nil {
		logger.Error().Err(writeErr).Str("node", t.node).Msg("failed to write goal state, will retry next cycle")
		metrics.GoalStateWritesTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.GoalStateWritesTotal.WithLabelValues("success").Inc()
}
