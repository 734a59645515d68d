// Package discovery materialises a roster of nodes from heartbeats
// (spec.md §4.2): it upserts the conf record for every node that publishes
// a heartbeat this cycle, derives health and admin state, and evicts nodes
// whose heartbeats have been absent for longer than a configured grace.
package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/metrics"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/types"
	"github.com/rs/zerolog"
)

// Config controls Discovery's behaviour. EvictAfter is the stale-eviction
// grace period named as a required option by spec.md §9 ("Eviction grace
// period for stale nodes is not given as a concrete value; require
// implementations to expose it as a named option").
type Config struct {
	EvictAfter time.Duration
}

// Roster is the set of nodes Discovery currently believes are part of the
// cluster, keyed by node name.
type Roster struct {
	Nodes map[string]types.Node
}

// Discovery reads heartbeat documents and maintains the node roster.
type Discovery struct {
	store    metastore.Store
	resolver *pathresolver.Resolver
	cfg      Config
}

// New constructs a Discovery bound to a store and path resolver.
func New(store metastore.Store, resolver *pathresolver.Resolver, cfg Config) *Discovery {
	return &Discovery{store: store, resolver: resolver, cfg: cfg}
}

// Run executes one discovery pass for cluster and returns the resulting
// roster. A heartbeat prefix read failure is best-effort: it is logged and
// Run returns without mutating anything (spec.md §4.2).
func (d *Discovery) Run(ctx context.Context, cluster string) (Roster, error) {
	logger := log.WithComponent("discovery")
	now := time.Now()

	heartbeats, err := d.store.GetPrefix(ctx, d.resolver.SearchUnitPrefix(cluster))
	if err != nil {
		logger.Error().Err(err).Str("cluster", cluster).Msg("heartbeat read failed, skipping pass")
		return Roster{}, nil
	}

	existing, err := d.loadExistingConf(ctx, cluster)
	if err != nil {
		logger.Error().Err(err).Str("cluster", cluster).Msg("conf read failed, skipping pass")
		return Roster{}, nil
	}

	roster := Roster{Nodes: make(map[string]types.Node, len(existing))}
	for name, node := range existing {
		roster.Nodes[name] = node
	}

	seen := make(map[string]bool)
	for _, kv := range heartbeats {
		if !strings.HasSuffix(kv.Key, "/actual-state") {
			continue
		}

		var doc heartbeatDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			logger.Warn().Err(err).Str("key", kv.Key).Msg("skipping unparseable heartbeat")
			continue
		}
		if doc.NodeName == "" {
			logger.Warn().Str("key", kv.Key).Msg("skipping heartbeat with no node name")
			continue
		}

		actual := doc.toActualState()
		node := types.Node{
			Name:        actual.NodeName,
			Cluster:     cluster,
			Address:     actual.Address,
			Role:        actual.Role,
			ShardPoolID: actual.ShardPoolID,
			Zone:        doc.Zone,
			Health:      types.DeriveHealth(actual),
			Master:      doc.Master,
			Data:        doc.Data,
			Ingest:      doc.Ingest,
			LastSeen:    now,
		}
		if !actual.Metrics.ResourceHealthy() {
			node.Admin = types.AdminStateDrain
		} else {
			node.Admin = types.AdminStateNormal
		}

		seen[node.Name] = true

		// Always persist LastSeen for a node heartbeating this cycle, even
		// when no observable field changed: evictStale compares against the
		// stored value, and a node that never rewrites it would be evicted
		// on its very first missed heartbeat instead of after EvictAfter.
		if err := d.writeConf(ctx, cluster, node); err != nil {
			logger.Error().Err(err).Str("node", node.Name).Msg("failed to write node conf")
			continue
		}
		roster.Nodes[node.Name] = node
	}

	d.evictStale(ctx, cluster, roster, seen, now, logger)

	reportNodeCounts(roster)

	return roster, nil
}

func reportNodeCounts(roster Roster) {
	counts := make(map[[2]string]int)
	for _, n := range roster.Nodes {
		counts[[2]string{string(n.Role), string(n.Health)}]++
	}
	metrics.NodesTotal.Reset()
	for k, v := range counts {
		metrics.NodesTotal.WithLabelValues(k[0], k[1]).Set(float64(v))
	}
}

// ReadRoster reconstructs the roster from stored conf documents only: no
// heartbeat scan, no derivation, no writes. Operator tooling that wants a
// read-only view of "what Discovery last wrote" should call this instead of
// Run, which always persists a refreshed LastSeen for every live heartbeat.
func ReadRoster(ctx context.Context, store metastore.Store, resolver *pathresolver.Resolver, cluster string) (Roster, error) {
	d := &Discovery{store: store, resolver: resolver}
	nodes, err := d.loadExistingConf(ctx, cluster)
	if err != nil {
		return Roster{}, err
	}
	return Roster{Nodes: nodes}, nil
}

func (d *Discovery) loadExistingConf(ctx context.Context, cluster string) (map[string]types.Node, error) {
	confs, err := d.store.GetPrefix(ctx, d.resolver.SearchUnitPrefix(cluster))
	if err != nil && err != metastore.ErrNotFound {
		return nil, err
	}

	out := make(map[string]types.Node)
	for _, kv := range confs {
		if !strings.HasSuffix(kv.Key, "/conf") {
			continue
		}
		var doc confDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		out[doc.Name] = doc.toNode()
	}
	return out, nil
}

func (d *Discovery) writeConf(ctx context.Context, cluster string, node types.Node) error {
	payload, err := json.Marshal(nodeToConfDocument(node))
	if err != nil {
		return err
	}
	return d.store.Put(ctx, d.resolver.SearchUnitConf(cluster, node.Name), payload)
}

// evictStale implements spec.md §4.2's stale-eviction policy: nodes whose
// heartbeat was absent this pass and whose last known heartbeat is older
// than EvictAfter are removed. Coordinators and DRAIN nodes are evicted
// under the same rule.
func (d *Discovery) evictStale(ctx context.Context, cluster string, roster Roster, seen map[string]bool, now time.Time, logger zerolog.Logger) {
	if d.cfg.EvictAfter <= 0 {
		return
	}
	for name, node := range roster.Nodes {
		if seen[name] {
			continue
		}
		if now.Sub(node.LastSeen) <= d.cfg.EvictAfter {
			continue
		}
		if err := d.store.Delete(ctx, d.resolver.SearchUnitConf(cluster, name)); err != nil {
			logger.Error().Err(err).Str("node", name).Msg("failed to evict stale node conf")
			continue
		}
		_ = d.store.Delete(ctx, d.resolver.SearchUnitGoalState(cluster, name))
		_ = d.store.Delete(ctx, d.resolver.SearchUnitActualState(cluster, name))
		delete(roster.Nodes, name)
		metrics.NodesEvictedTotal.Inc()
	}
}
