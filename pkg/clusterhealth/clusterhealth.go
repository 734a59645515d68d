// Package clusterhealth implements the Cluster Health rollup (spec.md
// §4.9): a pure derivation over the current node roster and the
// planned-allocation table. It holds no state of its own and performs no
// writes.
package clusterhealth

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/types"
)

// ShardStatus is one shard's health, per §4.9's writer/reader rule.
type ShardStatus struct {
	Index   string
	ShardID string
	Status  types.Health
}

// IndexStatus rolls up every shard belonging to one index.
type IndexStatus struct {
	Index  string
	Status types.Health
	Shards []ShardStatus
}

// Report is the full cluster health snapshot at every granularity level.
type Report struct {
	NumberOfNodes     int
	NumberOfDataNodes int
	ActiveNodes       int
	Status            types.Health
	Indices           []IndexStatus
}

// Granularity selects how much of Report to populate.
type Granularity int

const (
	// GranularityCluster reports only the top-level counts and status.
	GranularityCluster Granularity = iota
	// GranularityIndices additionally reports per-index status.
	GranularityIndices
	// GranularityShards additionally reports per-shard status.
	GranularityShards
)

// Reporter computes cluster health reports on demand.
type Reporter struct {
	store    metastore.Store
	resolver *pathresolver.Resolver
}

// New constructs a Reporter bound to a store and path resolver.
func New(store metastore.Store, resolver *pathresolver.Resolver) *Reporter {
	return &Reporter{store: store, resolver: resolver}
}

type plannedAllocationDocument struct {
	IndexName string   `json:"index_name"`
	ShardID   string   `json:"shard_id"`
	IngestSUs []string `json:"ingest_sus"`
	SearchSUs []string `json:"search_sus"`
}

type indexDocument struct {
	Name              string `json:"name"`
	ShardReplicaCount []int  `json:"shard_replica_count"`
}

// heartbeatDocument is the subset of a worker heartbeat this package reads:
// just enough of the per-index routing table to tell whether a specific
// (index, shardId) has actually started on a given reader (spec.md §4.9,
// §6), mirroring pkg/discovery's and pkg/actualalloc's own partial decode.
type heartbeatDocument struct {
	NodeName    string                       `json:"nodeName"`
	NodeRouting map[string][]shardRoutingDoc `json:"nodeRouting"`
}

type shardRoutingDoc struct {
	ShardID string `json:"shardId"`
	State   string `json:"state"`
}

// routingIndex is node -> index -> shardId -> routing state.
type routingIndex map[string]map[string]map[string]string

func (ri routingIndex) started(node, index, shardID string) bool {
	return ri[node][index][shardID] == string(types.ShardStateStarted)
}

// Compute derives a Report for cluster at the requested granularity.
func (r *Reporter) Compute(ctx context.Context, cluster string, roster discovery.Roster, granularity Granularity) (Report, error) {
	report := Report{}
	for _, n := range roster.Nodes {
		report.NumberOfNodes++
		if n.Data {
			report.NumberOfDataNodes++
		}
		if n.Health != types.HealthRed {
			report.ActiveNodes++
		}
	}

	indices, err := r.loadIndices(ctx, cluster)
	if err != nil {
		return report, err
	}
	plans, err := r.loadPlans(ctx, cluster)
	if err != nil {
		return report, err
	}
	routing, err := r.loadRouting(ctx, cluster)
	if err != nil {
		return report, err
	}

	report.Status = types.HealthGreen
	for _, index := range indices {
		indexStatus := computeIndex(index, plans, routing)
		report.Status = types.Worse(report.Status, indexStatus.Status)
		if granularity >= GranularityIndices {
			if granularity < GranularityShards {
				indexStatus.Shards = nil
			}
			report.Indices = append(report.Indices, indexStatus)
		}
	}
	sort.Slice(report.Indices, func(i, j int) bool { return report.Indices[i].Index < report.Indices[j].Index })
	return report, nil
}

func computeIndex(index indexDocument, plans map[string]map[string]plannedAllocationDocument, routing routingIndex) IndexStatus {
	status := IndexStatus{Index: index.Name, Status: types.HealthGreen}
	byShard := plans[index.Name]

	for shardIdx, desired := range index.ShardReplicaCount {
		shardID := strconv.Itoa(shardIdx)
		plan := byShard[shardID]
		shardHealth := shardStatus(plan, index.Name, shardID, desired, routing)
		status.Status = types.Worse(status.Status, shardHealth)
		status.Shards = append(status.Shards, ShardStatus{Index: index.Name, ShardID: shardID, Status: shardHealth})
	}
	return status
}

// shardStatus implements §4.9's per-shard rule: RED if the writer is
// missing; GREEN if the writer exists and every configured replica has a
// STARTED reader *for this specific shard*; YELLOW otherwise. A reader's
// overall node health is not enough — a globally healthy node can still
// have this particular shard unassigned, initializing, or relocating.
func shardStatus(plan plannedAllocationDocument, index, shardID string, desiredReplicas int, routing routingIndex) types.Health {
	if len(plan.IngestSUs) != 1 {
		return types.HealthRed
	}

	started := 0
	for _, reader := range plan.SearchSUs {
		if routing.started(reader, index, shardID) {
			started++
		}
	}

	if started >= desiredReplicas {
		return types.HealthGreen
	}
	return types.HealthYellow
}

func (r *Reporter) loadIndices(ctx context.Context, cluster string) ([]indexDocument, error) {
	kvs, err := r.store.GetPrefix(ctx, r.resolver.IndexPrefix(cluster))
	if err != nil {
		return nil, err
	}
	var out []indexDocument
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, "/conf") {
			continue
		}
		var doc indexDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Reporter) loadPlans(ctx context.Context, cluster string) (map[string]map[string]plannedAllocationDocument, error) {
	kvs, err := r.store.GetPrefix(ctx, r.resolver.IndexPrefix(cluster))
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]plannedAllocationDocument)
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, "/planned-allocation") {
			continue
		}
		var doc plannedAllocationDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		if out[doc.IndexName] == nil {
			out[doc.IndexName] = make(map[string]plannedAllocationDocument)
		}
		out[doc.IndexName][doc.ShardID] = doc
	}
	return out, nil
}

func (r *Reporter) loadRouting(ctx context.Context, cluster string) (routingIndex, error) {
	kvs, err := r.store.GetPrefix(ctx, r.resolver.SearchUnitPrefix(cluster))
	if err != nil {
		return nil, err
	}
	out := make(routingIndex)
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, "/actual-state") {
			continue
		}
		var doc heartbeatDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		if doc.NodeName == "" {
			continue
		}
		byIndex := make(map[string]map[string]string, len(doc.NodeRouting))
		for index, entries := range doc.NodeRouting {
			byShard := make(map[string]string, len(entries))
			for _, e := range entries {
				byShard[e.ShardID] = e.State
			}
			byIndex[index] = byShard
		}
		out[doc.NodeName] = byIndex
	}
	return out, nil
}
