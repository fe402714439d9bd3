// Package tasks binds each resource type to its engine.Task implementation.
//
// Tasks never talk to a cluster or a host directly: manifests go through an
// engine.ManifestBackend, releases through an engine.ReleaseBackend, shell
// commands through an engine.CommandRunner and readiness waits through an
// engine.ReadinessProber. Secret and Namespace resources are rendered to YAML
// files and then handled like manifests.
package tasks
