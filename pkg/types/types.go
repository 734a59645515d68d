// Package types defines the data model shared by every control-plane
// package: nodes, indices, shards, allocations, goal state, and tasks.
package types

import "time"

// NodeRole is the role a search unit plays in the cluster.
type NodeRole string

const (
	NodeRoleCoordinator   NodeRole = "COORDINATOR"
	NodeRolePrimary       NodeRole = "PRIMARY"
	NodeRoleSearchReplica NodeRole = "SEARCH_REPLICA"
)

// AdminState is the operator-controlled state of a node.
type AdminState string

const (
	AdminStateNormal AdminState = "NORMAL"
	AdminStateDrain  AdminState = "DRAIN"
)

// Health is the observed health of a node.
type Health string

const (
	HealthGreen  Health = "GREEN"
	HealthYellow Health = "YELLOW"
	HealthRed    Health = "RED"
)

// rank orders Health for min-aggregation (RED < YELLOW < GREEN).
func (h Health) rank() int {
	switch h {
	case HealthRed:
		return 0
	case HealthYellow:
		return 1
	case HealthGreen:
		return 2
	default:
		return -1
	}
}

// Worse returns the lesser (worse) of two health values.
func Worse(a, b Health) Health {
	if a.rank() <= b.rank() {
		return a
	}
	return b
}

// Address is a node's network location.
type Address struct {
	Host          string
	HTTPPort      int
	TransportPort int
}

// Node (a.k.a. SearchUnit) is the control plane's view of a cluster member,
// synthesised and maintained by Discovery.
type Node struct {
	Name        string
	Cluster     string
	Address     Address
	Role        NodeRole
	ShardPoolID string // equals shard id for a primary; a replica-group label for a replica
	Zone        string
	Admin       AdminState
	Health      Health
	Master      bool
	Data        bool
	Ingest      bool
	LastSeen    time.Time
}

// ShardRoutingState is the lifecycle state of a shard as reported by a node.
type ShardRoutingState string

const (
	ShardStateStarted      ShardRoutingState = "STARTED"
	ShardStateInitializing ShardRoutingState = "INITIALIZING"
	ShardStateRelocating   ShardRoutingState = "RELOCATING"
	ShardStateUnassigned   ShardRoutingState = "UNASSIGNED"
)

// ShardRoutingEntry is one line of a heartbeat's per-index routing table.
type ShardRoutingEntry struct {
	ShardID          string
	Role             NodeRole
	State            ShardRoutingState
	AllocationID     string
	CurrentNodeID    string
	CurrentNodeName  string
	Relocating       bool
	RelocatingNodeID string
}

// ResourceMetrics is the subset of a heartbeat's resource stats the control
// plane's health derivation consumes.
type ResourceMetrics struct {
	MemoryUsedPercent float64
	HeapUsedPercent   float64
	DiskAvailableMB   float64
	DiskTotalMB       float64
	CPUUsedPercent    float64
}

// ResourceHealthy implements the §3 resource-health predicate.
func (r ResourceMetrics) ResourceHealthy() bool {
	return r.MemoryUsedPercent < 90 && r.DiskAvailableMB > 1024
}

// NodeActualState is the heartbeat document a worker publishes.
type NodeActualState struct {
	NodeName     string
	Address      Address
	NodeID       string
	EphemeralID  string
	ClusterName  string
	Metrics      ResourceMetrics
	Timestamp    time.Time
	HeartbeatTTL time.Duration
	Routing      map[string][]ShardRoutingEntry // index name -> routing entries
	Role         NodeRole
	ShardPoolID  string
}

// HasStartedShard reports whether any routing entry for this node is STARTED.
func (s NodeActualState) HasStartedShard() bool {
	for _, entries := range s.Routing {
		for _, e := range entries {
			if e.State == ShardStateStarted {
				return true
			}
		}
	}
	return false
}

// DeriveHealth implements the §3 node-health derivation: RED if
// resource-unhealthy, else GREEN if there's a STARTED shard or the node is a
// coordinator, else YELLOW.
func DeriveHealth(s NodeActualState) Health {
	if !s.Metrics.ResourceHealthy() {
		return HealthRed
	}
	if s.Role == NodeRoleCoordinator || s.HasStartedShard() {
		return HealthGreen
	}
	return HealthYellow
}

// Index is the (cluster, name) catalogue entry for a search index.
type Index struct {
	Cluster                  string
	Name                     string
	ShardReplicaCount        []int // cap on replicas, one entry per shard
	ShardGroupsAllocateCount []int // desired replica-group count, one entry per shard
	Mappings                 []byte
	Settings                 []byte
}

// NumShards is the number of shards the index declares.
func (i Index) NumShards() int {
	return len(i.ShardReplicaCount)
}

// PlannedAllocation is the control plane's decision of which nodes should
// serve a given shard.
type PlannedAllocation struct {
	Cluster   string
	IndexName string
	ShardID   string
	IngestSUs []string // at most one
	SearchSUs []string
	Timestamp time.Time
	Status    string
}

// ActualAllocation mirrors PlannedAllocation with observed placement; it is
// read-only and never used as a scheduling input.
type ActualAllocation struct {
	Cluster   string
	IndexName string
	ShardID   string
	IngestSUs []string
	SearchSUs []string
	Timestamp time.Time
}

// GoalState is the per-node document listing every (index, shard, role) the
// node should host.
type GoalState struct {
	NodeName    string
	LocalShards map[string]map[string]NodeRole // index -> shardID -> role
	Version     uint64
	LastUpdated time.Time
}

// EqualShards implements the §3 equality law: GoalState equality ignores
// Version and LastUpdated and compares LocalShards only.
func (g GoalState) EqualShards(other GoalState) bool {
	if len(g.LocalShards) != len(other.LocalShards) {
		return false
	}
	for index, shards := range g.LocalShards {
		otherShards, ok := other.LocalShards[index]
		if !ok || len(shards) != len(otherShards) {
			return false
		}
		for shardID, role := range shards {
			if otherShards[shardID] != role {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy of the goal state's LocalShards map.
func (g GoalState) Clone() GoalState {
	clone := GoalState{
		NodeName:    g.NodeName,
		Version:     g.Version,
		LastUpdated: g.LastUpdated,
		LocalShards: make(map[string]map[string]NodeRole, len(g.LocalShards)),
	}
	for index, shards := range g.LocalShards {
		inner := make(map[string]NodeRole, len(shards))
		for shardID, role := range shards {
			inner[shardID] = role
		}
		clone.LocalShards[index] = inner
	}
	return clone
}

// Task is a named, priority-ordered unit of scheduler work.
type Task struct {
	Name     string
	Priority int
	Handler  string
	Schedule string
}
