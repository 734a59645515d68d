package main

import (
	"fmt"

	"github.com/meridian-search/controlplane/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the control plane configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the config file and report any errors",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("config OK: %s\n", configPath)
	fmt.Printf("  cluster:         %s\n", cfg.Cluster.Name)
	fmt.Printf("  node:            %s\n", cfg.Node.Name)
	fmt.Printf("  etcd endpoints:  %v\n", cfg.Etcd.Endpoints)
	fmt.Printf("  runtime env:     %s\n", cfg.Controller.RuntimeEnv)
	fmt.Printf("  task interval:   %s\n", cfg.Task.Interval())
	fmt.Printf("  election ttl:    %s\n", cfg.LeaderElection.TTL())
	return nil
}
