package orchestrator

import (
	"time"

	"github.com/meridian-search/controlplane/pkg/types"
)

// goalStateDocument is the wire shape of a node's goal state (spec.md §3,
// §6): localShards[index][shardId] = role, plus an opaque version that
// equality deliberately ignores.
type goalStateDocument struct {
	LocalShards map[string]map[string]string `json:"local_shards"`
	Version     uint64                       `json:"version"`
	LastUpdated time.Time                    `json:"last_updated"`
}

func (d goalStateDocument) toGoalState(nodeName string) types.GoalState {
	shards := make(map[string]map[string]types.NodeRole, len(d.LocalShards))
	for index, byShard := range d.LocalShards {
		inner := make(map[string]types.NodeRole, len(byShard))
		for shardID, role := range byShard {
			inner[shardID] = types.NodeRole(role)
		}
		shards[index] = inner
	}
	return types.GoalState{NodeName: nodeName, LocalShards: shards, Version: d.Version, LastUpdated: d.LastUpdated}
}

func goalStateToDocument(g types.GoalState) goalStateDocument {
	shards := make(map[string]map[string]string, len(g.LocalShards))
	for index, byShard := range g.LocalShards {
		inner := make(map[string]string, len(byShard))
		for shardID, role := range byShard {
			inner[shardID] = string(role)
		}
		shards[index] = inner
	}
	return goalStateDocument{LocalShards: shards, Version: g.Version, LastUpdated: g.LastUpdated}
}
