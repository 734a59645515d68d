// Package scheduler ties Discovery, the Shard Allocator, the Goal-State
// Orchestrator, and the Actual-Allocation Updater together into the single
// periodic pass described by spec.md §4.7.
//
// A Scheduler campaigns for leadership via pkg/election and only runs its
// ticker while it holds the cluster's election key; leadership is
// re-checked before each subsequent phase of a pass so that a lost lease
// stops further writes mid-cycle rather than after the fact. A tick is
// dropped outright if the previous pass has not yet finished.
package scheduler
