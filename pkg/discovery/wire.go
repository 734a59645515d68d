package discovery

import (
	"time"

	"github.com/meridian-search/controlplane/pkg/types"
)

// heartbeatDocument is the subset of a worker-published heartbeat this
// package consumes (spec.md §6). Field names mirror the wire document
// exactly, mixed camelCase/snake_case included; full parsing of the
// document (stats, clusterless fields) is out of scope.
type heartbeatDocument struct {
	NodeName      string                        `json:"nodeName"`
	Address       string                        `json:"address"`
	HTTPPort      int                           `json:"httpPort"`
	TransportPort int                           `json:"transportPort"`
	ClusterName   string                        `json:"cluster_name"`
	ShardPoolID   string                        `json:"clusterlessShardId"`
	Role          string                        `json:"clusterlessRole"`
	Zone          string                        `json:"zone"`
	Master        bool                          `json:"master"`
	Data          bool                          `json:"data"`
	Ingest        bool                          `json:"ingest"`
	Timestamp     time.Time                     `json:"timestamp"`
	Metrics       resourceMetricsDoc            `json:"metrics"`
	NodeRouting   map[string][]shardRoutingDoc  `json:"nodeRouting"`
}

type resourceMetricsDoc struct {
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
	HeapUsedPercent   float64 `json:"heapUsedPercent"`
	DiskAvailableMB   float64 `json:"diskAvailableMB"`
	DiskTotalMB       float64 `json:"diskTotalMB"`
	CPUUsedPercent    float64 `json:"cpuUsedPercent"`
}

type shardRoutingDoc struct {
	ShardID          string `json:"shardId"`
	Role             string `json:"role"`
	State            string `json:"state"`
	Relocating       bool   `json:"relocating"`
	RelocatingNodeID string `json:"relocatingNodeId"`
	AllocationID     string `json:"allocationId"`
	CurrentNodeID    string `json:"currentNodeId"`
	CurrentNodeName  string `json:"currentNodeName"`
}

// toActualState converts the wire document into the internal model.
func (h heartbeatDocument) toActualState() types.NodeActualState {
	routing := make(map[string][]types.ShardRoutingEntry, len(h.NodeRouting))
	for index, entries := range h.NodeRouting {
		converted := make([]types.ShardRoutingEntry, 0, len(entries))
		for _, e := range entries {
			converted = append(converted, types.ShardRoutingEntry{
				ShardID:          e.ShardID,
				Role:             types.NodeRole(e.Role),
				State:            types.ShardRoutingState(e.State),
				AllocationID:     e.AllocationID,
				CurrentNodeID:    e.CurrentNodeID,
				CurrentNodeName:  e.CurrentNodeName,
				Relocating:       e.Relocating,
				RelocatingNodeID: e.RelocatingNodeID,
			})
		}
		routing[index] = converted
	}

	return types.NodeActualState{
		NodeName:    h.NodeName,
		Address:     types.Address{Host: h.Address, HTTPPort: h.HTTPPort, TransportPort: h.TransportPort},
		ClusterName: h.ClusterName,
		Metrics: types.ResourceMetrics{
			MemoryUsedPercent: h.Metrics.MemoryUsedPercent,
			HeapUsedPercent:   h.Metrics.HeapUsedPercent,
			DiskAvailableMB:   h.Metrics.DiskAvailableMB,
			DiskTotalMB:       h.Metrics.DiskTotalMB,
			CPUUsedPercent:    h.Metrics.CPUUsedPercent,
		},
		Timestamp:   h.Timestamp,
		Routing:     routing,
		Role:        types.NodeRole(h.Role),
		ShardPoolID: h.ShardPoolID,
	}
}

// confDocument is the conf record Discovery synthesises and maintains.
type confDocument struct {
	Name        string          `json:"name"`
	Cluster     string          `json:"cluster"`
	Address     confAddressDoc  `json:"address"`
	Role        string          `json:"role"`
	ShardPoolID string          `json:"shard_pool_id"`
	Zone        string          `json:"zone"`
	Admin       string          `json:"admin_state"`
	Health      string          `json:"health"`
	Master      bool            `json:"master"`
	Data        bool            `json:"data"`
	Ingest      bool            `json:"ingest"`
	LastSeen    time.Time       `json:"last_seen"`
}

type confAddressDoc struct {
	Host          string `json:"host"`
	HTTPPort      int    `json:"http_port"`
	TransportPort int    `json:"transport_port"`
}

func nodeToConfDocument(n types.Node) confDocument {
	return confDocument{
		Name:        n.Name,
		Cluster:     n.Cluster,
		Address:     confAddressDoc{Host: n.Address.Host, HTTPPort: n.Address.HTTPPort, TransportPort: n.Address.TransportPort},
		Role:        string(n.Role),
		ShardPoolID: n.ShardPoolID,
		Zone:        n.Zone,
		Admin:       string(n.Admin),
		Health:      string(n.Health),
		Master:      n.Master,
		Data:        n.Data,
		Ingest:      n.Ingest,
		LastSeen:    n.LastSeen,
	}
}

func (c confDocument) toNode() types.Node {
	return types.Node{
		Name:        c.Name,
		Cluster:     c.Cluster,
		Address:     types.Address{Host: c.Address.Host, HTTPPort: c.Address.HTTPPort, TransportPort: c.Address.TransportPort},
		Role:        types.NodeRole(c.Role),
		ShardPoolID: c.ShardPoolID,
		Zone:        c.Zone,
		Admin:       types.AdminState(c.Admin),
		Health:      types.Health(c.Health),
		Master:      c.Master,
		Data:        c.Data,
		Ingest:      c.Ingest,
		LastSeen:    c.LastSeen,
	}
}
