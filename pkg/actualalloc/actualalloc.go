// Package actualalloc implements the Actual-Allocation Updater (spec.md
// §4.6): for every heartbeat it observes, it records which nodes are
// actually serving each (index, shard) pair. The result is purely
// informational for operators and health computation; it is never read as
// an input by the Allocation Decision Engine or the Goal-State Orchestrator.
package actualalloc

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/types"
)

// Updater records observed shard placement from node heartbeats.
type Updater struct {
	store    metastore.Store
	resolver *pathresolver.Resolver
}

// New constructs an Updater bound to a store and path resolver.
func New(store metastore.Store, resolver *pathresolver.Resolver) *Updater {
	return &Updater{store: store, resolver: resolver}
}

type shardObservation struct {
	ingest map[string]bool
	search map[string]bool
}

// Run scans every heartbeat under cluster and upserts one actual-allocation
// record per (index, shardId) pair it observes. A heartbeat read failure
// returns early; an unparseable individual heartbeat is skipped.
func (u *Updater) Run(ctx context.Context, cluster string) error {
	logger := log.WithComponent("actualalloc")

	kvs, err := u.store.GetPrefix(ctx, u.resolver.SearchUnitPrefix(cluster))
	if err != nil {
		return err
	}

	observed := make(map[string]map[string]*shardObservation) // index -> shardId -> observation
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, "/actual-state") {
			continue
		}
		var doc heartbeatDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			logger.Warn().Str("key", kv.Key).Msg("skipping unparseable heartbeat")
			continue
		}
		for index, entries := range doc.NodeRouting {
			for _, e := range entries {
				byShard, ok := observed[index]
				if !ok {
					byShard = make(map[string]*shardObservation)
					observed[index] = byShard
				}
				obs, ok := byShard[e.ShardID]
				if !ok {
					obs = &shardObservation{ingest: map[string]bool{}, search: map[string]bool{}}
					byShard[e.ShardID] = obs
				}
				switch types.NodeRole(e.Role) {
				case types.NodeRolePrimary:
					obs.ingest[doc.NodeName] = true
				case types.NodeRoleSearchReplica:
					obs.search[doc.NodeName] = true
				}
			}
		}
	}

	now := time.Now()
	for index, byShard := range observed {
		for shardID, obs := range byShard {
			record := types.ActualAllocation{
				Cluster:   cluster,
				IndexName: index,
				ShardID:   shardID,
				IngestSUs: sortedKeys(obs.ingest),
				SearchSUs: sortedKeys(obs.search),
				Timestamp: now,
			}

			current, err := u.loadCurrent(ctx, cluster, index, shardID)
			if err == nil && sameAllocation(current, record) {
				continue
			}

			if err := u.write(ctx, cluster, record); err != nil {
				logger.Error().Err(err).Str("index", index).Str("shard", shardID).Msg("failed to write actual allocation")
			}
		}
	}
	return nil
}

// loadCurrent reads the previously recorded actual allocation, if any, so
// Run can suppress a write when nothing observable changed.
func (u *Updater) loadCurrent(ctx context.Context, cluster, index, shardID string) (types.ActualAllocation, error) {
	kv, err := u.store.Get(ctx, u.resolver.ActualAllocation(cluster, index, shardID))
	if err != nil {
		return types.ActualAllocation{}, err
	}
	var doc actualAllocationDocument
	if err := json.Unmarshal(kv.Value, &doc); err != nil {
		return types.ActualAllocation{}, err
	}
	return doc.toActual(cluster), nil
}

func sameAllocation(a, b types.ActualAllocation) bool {
	return sameSet(a.IngestSUs, b.IngestSUs) && sameSet(a.SearchSUs, b.SearchSUs)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (u *Updater) write(ctx context.Context, cluster string, record types.ActualAllocation) error {
	payload, err := json.Marshal(actualToDocument(record))
	if err != nil {
		return err
	}
	return u.store.Put(ctx, u.resolver.ActualAllocation(cluster, record.IndexName, record.ShardID), payload)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
