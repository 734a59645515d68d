package actualalloc

import (
	"time"

	"github.com/meridian-search/controlplane/pkg/types"
)

// heartbeatDocument is the subset of a worker heartbeat this package reads;
// it mirrors discovery's own partial decode (spec.md §6), scoped to just the
// routing table the updater needs.
type heartbeatDocument struct {
	NodeName    string                       `json:"nodeName"`
	Timestamp   time.Time                    `json:"timestamp"`
	NodeRouting map[string][]shardRoutingDoc `json:"nodeRouting"`
}

type shardRoutingDoc struct {
	ShardID string `json:"shardId"`
	Role    string `json:"role"`
}

// actualAllocationDocument is the wire shape of an actual-allocation record
// (spec.md §3, §6), deliberately mirroring pkg/allocator's planned-allocation
// document so both records share one on-disk shape.
type actualAllocationDocument struct {
	IndexName string    `json:"index_name"`
	ShardID   string    `json:"shard_id"`
	IngestSUs []string  `json:"ingest_sus"`
	SearchSUs []string  `json:"search_sus"`
	Timestamp time.Time `json:"allocation_timestamp"`
}

func (d actualAllocationDocument) toActual(cluster string) types.ActualAllocation {
	return types.ActualAllocation{
		Cluster:   cluster,
		IndexName: d.IndexName,
		ShardID:   d.ShardID,
		IngestSUs: d.IngestSUs,
		SearchSUs: d.SearchSUs,
		Timestamp: d.Timestamp,
	}
}

func actualToDocument(a types.ActualAllocation) actualAllocationDocument {
	return actualAllocationDocument{
		IndexName: a.IndexName,
		ShardID:   a.ShardID,
		IngestSUs: a.IngestSUs,
		SearchSUs: a.SearchSUs,
		Timestamp: a.Timestamp,
	}
}
