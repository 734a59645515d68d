/*
Package log provides structured logging for the control plane using zerolog.

It wraps zerolog with a global logger, configurable level and output format,
and helper constructors for component- and entity-scoped child loggers
(WithComponent, WithNode, WithIndex, WithShard), so every subsystem — Discovery,
the Allocator, the Orchestrator, the Scheduler — logs with consistent fields
without threading a logger through every call.

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("reconciliation pass starting")

	shardLog := log.WithShard("products", 3)
	shardLog.Warn().Msg("goal state write rejected, stale leader")

Fatal exits the process (os.Exit(1) via zerolog) and should only be used for
unrecoverable startup errors, never in request or reconciliation paths.
*/
package log
