// Package controlplane assembles the metadata-store client, path resolver,
// and per-cluster subsystems into the single handle cmd/searchctl drives.
// It is this repository's composition root, grounded on the teacher's
// pkg/manager idiom of one constructor wiring a store to its dependent
// subsystems and returning a single handle.
package controlplane

import (
	"fmt"
	"time"

	"github.com/meridian-search/controlplane/pkg/actualalloc"
	"github.com/meridian-search/controlplane/pkg/allocator"
	"github.com/meridian-search/controlplane/pkg/clusterhealth"
	"github.com/meridian-search/controlplane/pkg/config"
	"github.com/meridian-search/controlplane/pkg/discovery"
	"github.com/meridian-search/controlplane/pkg/election"
	"github.com/meridian-search/controlplane/pkg/metastore"
	"github.com/meridian-search/controlplane/pkg/orchestrator"
	"github.com/meridian-search/controlplane/pkg/pathresolver"
	"github.com/meridian-search/controlplane/pkg/scheduler"
)

// Cluster is the composition root for one cluster's control plane: the
// metadata-store client plus every subsystem built on top of it.
type Cluster struct {
	Store    metastore.Store
	Resolver *pathresolver.Resolver

	Discovery    *discovery.Discovery
	Allocator    *allocator.Allocator
	Orchestrator *orchestrator.Orchestrator
	Updater      *actualalloc.Updater
	Health       *clusterhealth.Reporter
	Leadership   *election.Leadership
	Scheduler    *scheduler.Scheduler

	name string
}

// New dials the metadata store and wires every subsystem for cfg's
// cluster. Callers own the returned Cluster's Store and must Close it.
func New(cfg config.Config, evictAfter time.Duration) (*Cluster, error) {
	store, err := metastore.NewEtcdStore(metastore.EtcdConfig{
		Endpoints:        cfg.Etcd.Endpoints,
		OperationTimeout: cfg.Etcd.OperationTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("controlplane: failed to connect to metadata store: %w", err)
	}

	resolver := pathresolver.New(cfg.Controller.RuntimeEnv)

	d := discovery.New(store, resolver, discovery.Config{EvictAfter: evictAfter})
	a := allocator.New(store, resolver)
	o := orchestrator.New(store, resolver, orchestrator.DefaultConfig())
	u := actualalloc.New(store, resolver)
	h := clusterhealth.New(store, resolver)
	leadership := election.New(store, resolver.LeaderElection(cfg.Cluster.Name), cfg.LeaderElection.TTL(), cfg.Node.Name)
	sched := scheduler.New(cfg.Cluster.Name, scheduler.Config{Interval: cfg.Task.Interval()}, leadership, d, a, o, u)

	return &Cluster{
		Store:        store,
		Resolver:     resolver,
		Discovery:    d,
		Allocator:    a,
		Orchestrator: o,
		Updater:      u,
		Health:       h,
		Leadership:   leadership,
		Scheduler:    sched,
		name:         cfg.Cluster.Name,
	}, nil
}

// Name returns the cluster name this handle was built for.
func (c *Cluster) Name() string {
	return c.name
}

// Close releases the metadata-store client's resources.
func (c *Cluster) Close() error {
	return c.Store.Close()
}
