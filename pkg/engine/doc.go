// Package engine provides the core of the provisioner: the resource graph,
// the task capability set and the worker pool that drives tasks in
// dependency order.
//
// # Overview
//
// A run provisions every resource of a graph with one action:
//
//  1. Load - specs are validated into a ResourceGraph (ConfigurationError on
//     duplicate names, unknown dependencies or cycles; nothing is touched)
//  2. Schedule - W workers repeatedly pick the first ready resource under the
//     graph lock and mark it Executing
//  3. Perform - the resource's Task runs outside the lock
//  4. Commit - the resource is marked Done under the lock
//
// # Resource Lifecycle
//
// Status moves monotonically Pending -> Executing -> Done. For
// install-or-upgrade a resource is ready once everything in its DependsOn is
// Done; for uninstall once every resource depending on it is Done.
//
// # Task Interface
//
// Each resource type binds a Task:
//
//	type Task interface {
//	    InstallOrUpgrade(ctx context.Context) error
//	    Uninstall(ctx context.Context) error
//	    WaitForCompletion(ctx context.Context, action Action) error
//	    CollectInformation(ctx context.Context) error
//	}
//
// Perform sequences these calls for an action. Concrete tasks live in
// package tasks and talk to backends through ManifestBackend,
// ReleaseBackend, CommandRunner and ReadinessProber.
//
// # Failure Handling
//
// The first failing worker sets the run's AbortLatch while holding the graph
// lock. Every worker checks the latch under that lock before picking new
// work, so no resource moves from Pending to Executing afterwards. Tasks already executing finish; resources already
// Done stay Done. There is no retry and no rollback.
//
// # Example Usage
//
//	sched := engine.NewScheduler(factory, logger, engine.DefaultSchedulerConfig())
//	result, err := sched.Run(ctx, specs, engine.ActionInstallOrUpgrade)
//	if engine.IsConfiguration(err) {
//	    // graph rejected, no worker was spawned
//	}
package engine
