package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-search/controlplane/pkg/config"
	"github.com/meridian-search/controlplane/pkg/controlplane"
	"github.com/meridian-search/controlplane/pkg/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control plane for one cluster",
	Long: `Run connects to the metadata store, campaigns for the cluster's
leader-election key, and drives the reconciliation loop (Discovery, the
Shard Allocator, the Goal-State Orchestrator, and the Actual-Allocation
Updater) for as long as this process holds leadership.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Duration("evict-after", 0, "Stale-node eviction grace period (required, e.g. 30s)")
	_ = runCmd.MarkFlagRequired("evict-after")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	evictAfter, _ := cmd.Flags().GetDuration("evict-after")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cluster, err := controlplane.New(cfg, evictAfter)
	if err != nil {
		return fmt.Errorf("failed to build cluster handle: %w", err)
	}
	defer cluster.Close()

	logger := log.WithComponent("searchctl")
	logger.Info().Str("cluster", cluster.Name()).Str("node", cfg.Node.Name).Msg("starting control plane")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	cluster.Scheduler.Run(ctx)
	logger.Info().Msg("control plane stopped")
	return nil
}
