// Package pathresolver turns (environment, cluster, entity, id) tuples into
// the hierarchical metadata-store keys described in spec.md §6. The layout
// is bit-stable: it is the external contract with worker nodes, so every
// path built here must match the literal layout byte for byte.
package pathresolver

import (
	"strings"
	"sync"
)

// Resolver is a pure, (almost) stateless function from entity tags and key
// parameters to a hierarchical key. Its only state is the runtime
// environment label that prefixes multi-cluster paths; it is otherwise
// immutable after construction (spec.md §4.1, §5).
type Resolver struct {
	mu  sync.RWMutex
	env string
}

// New creates a Resolver with the given initial runtime environment label
// (e.g. "staging", "production").
func New(env string) *Resolver {
	return &Resolver{env: strings.TrimSpace(env)}
}

// SetEnvironment updates the runtime environment label. A blank or
// whitespace-only value is ignored and the previous value is retained
// (spec.md §4.1). Operators are expected to quiesce traffic before
// switching environments; this call takes effect for every subsequent
// Resolve, so a switch mid-cycle can mix old and new prefixes for at most
// one pass (spec.md §5).
func (r *Resolver) SetEnvironment(env string) {
	trimmed := strings.TrimSpace(env)
	if trimmed == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env = trimmed
}

// Environment returns the current runtime environment label.
func (r *Resolver) Environment() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env
}

// ClusterRoot returns "<cluster>".
func (r *Resolver) ClusterRoot(cluster string) string {
	return cluster
}

// Task returns "<cluster>/ctl-tasks/<taskName>".
func (r *Resolver) Task(cluster, taskName string) string {
	return join(cluster, "ctl-tasks", taskName)
}

// SearchUnitConf returns "<cluster>/search-unit/<unit>/conf".
func (r *Resolver) SearchUnitConf(cluster, unit string) string {
	return join(cluster, "search-unit", unit, "conf")
}

// SearchUnitGoalState returns "<cluster>/search-unit/<unit>/goal-state".
func (r *Resolver) SearchUnitGoalState(cluster, unit string) string {
	return join(cluster, "search-unit", unit, "goal-state")
}

// SearchUnitActualState returns "<cluster>/search-unit/<unit>/actual-state".
func (r *Resolver) SearchUnitActualState(cluster, unit string) string {
	return join(cluster, "search-unit", unit, "actual-state")
}

// SearchUnitPrefix returns "<cluster>/search-unit/" for prefix scans.
func (r *Resolver) SearchUnitPrefix(cluster string) string {
	return join(cluster, "search-unit") + "/"
}

// IndexConf returns "<cluster>/indices/<index>/conf".
func (r *Resolver) IndexConf(cluster, index string) string {
	return join(cluster, "indices", index, "conf")
}

// IndexMappings returns "<cluster>/indices/<index>/mappings".
func (r *Resolver) IndexMappings(cluster, index string) string {
	return join(cluster, "indices", index, "mappings")
}

// IndexSettings returns "<cluster>/indices/<index>/settings".
func (r *Resolver) IndexSettings(cluster, index string) string {
	return join(cluster, "indices", index, "settings")
}

// IndexPrefix returns "<cluster>/indices/" for prefix scans.
func (r *Resolver) IndexPrefix(cluster string) string {
	return join(cluster, "indices") + "/"
}

// IndexShardsPrefix returns "<cluster>/indices/<index>/" for prefix scans
// of a single index's shard keys.
func (r *Resolver) IndexShardsPrefix(cluster, index string) string {
	return join(cluster, "indices", index) + "/"
}

// PlannedAllocation returns "<cluster>/indices/<index>/<shardId>/planned-allocation".
func (r *Resolver) PlannedAllocation(cluster, index, shardID string) string {
	return join(cluster, "indices", index, shardID, "planned-allocation")
}

// ActualAllocation returns "<cluster>/indices/<index>/<shardId>/actual-allocation".
func (r *Resolver) ActualAllocation(cluster, index, shardID string) string {
	return join(cluster, "indices", index, shardID, "actual-allocation")
}

// CoordinatorGoalState returns "<cluster>/coordinators/<coord>/goal-state".
func (r *Resolver) CoordinatorGoalState(cluster, coord string) string {
	return join(cluster, "coordinators", coord, "goal-state")
}

// CoordinatorActualState returns "<cluster>/coordinators/<coord>/actual-state".
func (r *Resolver) CoordinatorActualState(cluster, coord string) string {
	return join(cluster, "coordinators", coord, "actual-state")
}

// LeaderElection returns "<cluster>/leader-election".
func (r *Resolver) LeaderElection(cluster string) string {
	return join(cluster, "leader-election")
}

// MultiClusterRoot returns "/multi-cluster/<env>/..." rooted paths,
// prefixing the given relative path with the current runtime environment.
func (r *Resolver) MultiClusterRoot(relative ...string) string {
	parts := append([]string{"multi-cluster", r.Environment()}, relative...)
	return "/" + strings.Join(parts, "/")
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}
