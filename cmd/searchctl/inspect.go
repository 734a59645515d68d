package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-search/controlplane/pkg/clusterhealth"
	"github.com/meridian-search/controlplane/pkg/config"
	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read-only views of a cluster's metadata-store state",
}

var inspectNodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the node roster as Discovery currently sees it",
	RunE:  runInspectNodes,
}

var inspectAllocationsCmd = &cobra.Command{
	Use:   "allocations",
	Short: "List planned and actual shard allocations",
	RunE:  runInspectAllocations,
}

var inspectGoalStateCmd = &cobra.Command{
	Use:   "goal-state NODE",
	Short: "Show a single node's current goal state",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectGoalState,
}

var inspectHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the cluster health report",
	RunE:  runInspectHealth,
}

func init() {
	inspectHealthCmd.Flags().String("granularity", "cluster", "Report detail: cluster, indices, or shards")

	inspectCmd.AddCommand(inspectNodesCmd)
	inspectCmd.AddCommand(inspectAllocationsCmd)
	inspectCmd.AddCommand(inspectGoalStateCmd)
	inspectCmd.AddCommand(inspectHealthCmd)
}

func connect(cmd *cobra.Command) (metastore.Store, *pathresolver.Resolver, config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := metastore.NewEtcdStore(metastore.EtcdConfig{
		Endpoints:        cfg.Etcd.Endpoints,
		OperationTimeout: cfg.Etcd.OperationTimeout(),
	})
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("failed to connect to metadata store: %w", err)
	}

	return store, pathresolver.New(cfg.Controller.RuntimeEnv), cfg, nil
}

func runInspectNodes(cmd *cobra.Command, args []string) error {
	store, resolver, cfg, err := connect(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	roster, err := discovery.ReadRoster(context.Background(), store, resolver, cfg.Cluster.Name)
	if err != nil {
		return fmt.Errorf("failed to read roster: %w", err)
	}

	fmt.Printf("%-24s %-18s %-8s %-8s %-8s\n", "NODE", "ROLE", "HEALTH", "ADMIN", "LAST SEEN")
	for _, node := range roster.Nodes {
		fmt.Printf("%-24s %-18s %-8s %-8s %s\n",
			node.Name, node.Role, node.Health, node.Admin, node.LastSeen.Format(time.RFC3339))
	}
	return nil
}

type allocationDocument struct {
	IndexName string   `json:"index_name"`
	ShardID   string   `json:"shard_id"`
	IngestSUs []string `json:"ingest_sus"`
	SearchSUs []string `json:"search_sus"`
}

func runInspectAllocations(cmd *cobra.Command, args []string) error {
	store, resolver, cfg, err := connect(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println("-- planned-allocation --")
	if err := printAllocations(store, resolver.IndexPrefix(cfg.Cluster.Name), "/planned-allocation"); err != nil {
		return err
	}

	fmt.Println("-- actual-allocation --")
	return printAllocations(store, resolver.IndexPrefix(cfg.Cluster.Name), "/actual-allocation")
}

func printAllocations(store metastore.Store, prefix, suffix string) error {
	kvs, err := store.GetPrefix(context.Background(), prefix)
	if err != nil {
		return fmt.Errorf("failed to scan allocations: %w", err)
	}

	fmt.Printf("%-20s %-8s %-30s %-30s\n", "INDEX", "SHARD", "INGEST", "SEARCH")
	for _, kv := range kvs {
		if !strings.HasSuffix(kv.Key, suffix) {
			continue
		}
		var doc allocationDocument
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			continue
		}
		fmt.Printf("%-20s %-8s %-30s %-30s\n",
			doc.IndexName, doc.ShardID, strings.Join(doc.IngestSUs, ","), strings.Join(doc.SearchSUs, ","))
	}
	return nil
}

type goalStateDocument struct {
	LocalShards map[string]map[string]string `json:"local_shards"`
	Version     uint64                       `json:"version"`
	LastUpdated time.Time                    `json:"last_updated"`
}

func runInspectGoalState(cmd *cobra.Command, args []string) error {
	store, resolver, cfg, err := connect(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	node := args[0]
	kv, err := store.Get(context.Background(), resolver.SearchUnitGoalState(cfg.Cluster.Name, node))
	if err != nil {
		return fmt.Errorf("failed to read goal state for %s: %w", node, err)
	}

	var doc goalStateDocument
	if err := json.Unmarshal(kv.Value, &doc); err != nil {
		return fmt.Errorf("failed to parse goal state for %s: %w", node, err)
	}

	fmt.Printf("node:        %s\n", node)
	fmt.Printf("version:     %d\n", doc.Version)
	fmt.Printf("last update: %s\n", doc.LastUpdated.Format(time.RFC3339))
	for index, shards := range doc.LocalShards {
		for shardID, role := range shards {
			fmt.Printf("  %s/%s -> %s\n", index, shardID, role)
		}
	}
	return nil
}

func runInspectHealth(cmd *cobra.Command, args []string) error {
	store, resolver, cfg, err := connect(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	granularity := clusterhealth.GranularityCluster
	switch v, _ := cmd.Flags().GetString("granularity"); v {
	case "indices":
		granularity = clusterhealth.GranularityIndices
	case "shards":
		granularity = clusterhealth.GranularityShards
	}

	roster, err := discovery.ReadRoster(context.Background(), store, resolver, cfg.Cluster.Name)
	if err != nil {
		return fmt.Errorf("failed to read roster: %w", err)
	}

	reporter := clusterhealth.New(store, resolver)
	report, err := reporter.Compute(context.Background(), cfg.Cluster.Name, roster, granularity)
	if err != nil {
		return fmt.Errorf("failed to compute health: %w", err)
	}

	fmt.Printf("cluster status:   %s\n", report.Status)
	fmt.Printf("nodes:            %d (data: %d, active: %d)\n", report.NumberOfNodes, report.NumberOfDataNodes, report.ActiveNodes)
	for _, idx := range report.Indices {
		fmt.Printf("  index %-20s %s\n", idx.Index, idx.Status)
		for _, shard := range idx.Shards {
			fmt.Printf("    shard %-8s %s\n", shard.ShardID, shard.Status)
		}
	}
	return nil
}
