package allocator

import (
	"time"

	"github.com/meridian-search/controlplane/pkg/allocation"
	"github.com/meridian-search/controlplane/pkg/types"
)

// indexDocument is the index catalogue's conf record (spec.md §3, §6).
// Mappings and settings live under separate keys and are opaque to this
// package (spec.md §1 non-goal: "mapping/settings JSON parsing beyond the
// few fields this core consumes").
type indexDocument struct {
	Name                     string              `json:"name"`
	ShardReplicaCount        []int               `json:"shard_replica_count"`
	ShardGroupsAllocateCount []int               `json:"shard_groups_allocate_count"`
	Strategy                 allocation.Strategy `json:"allocation_strategy"`
}

func (d indexDocument) toIndex(cluster string) types.Index {
	return types.Index{
		Cluster:                  cluster,
		Name:                     d.Name,
		ShardReplicaCount:        d.ShardReplicaCount,
		ShardGroupsAllocateCount: d.ShardGroupsAllocateCount,
	}
}

// allocationDocument is the wire shape of a planned/actual allocation
// record (spec.md §6).
type allocationDocument struct {
	IndexName string    `json:"index_name"`
	ShardID   string    `json:"shard_id"`
	IngestSUs []string  `json:"ingest_sus"`
	SearchSUs []string  `json:"search_sus"`
	Timestamp time.Time `json:"allocation_timestamp"`
	Status    string    `json:"status"`
}

func (d allocationDocument) toPlanned(cluster string) types.PlannedAllocation {
	return types.PlannedAllocation{
		Cluster:   cluster,
		IndexName: d.IndexName,
		ShardID:   d.ShardID,
		IngestSUs: d.IngestSUs,
		SearchSUs: d.SearchSUs,
		Timestamp: d.Timestamp,
		Status:    d.Status,
	}
}

func plannedToDocument(p types.PlannedAllocation) allocationDocument {
	return allocationDocument{
		IndexName: p.IndexName,
		ShardID:   p.ShardID,
		IngestSUs: p.IngestSUs,
		SearchSUs: p.SearchSUs,
		Timestamp: p.Timestamp,
		Status:    p.Status,
	}
}
