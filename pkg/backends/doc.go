// Package backends provides the default implementations of the engine's
// backend interfaces: a command runner that dispatches between the local
// shell and SSH hosts, kubectl for manifests, helm for releases and a
// kubectl-based readiness prober.
package backends
