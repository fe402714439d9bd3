// Package config loads resource graph files and run settings.
//
// # Graph Files
//
// A graph file holds an optional settings block and the list of resources:
//
//	settings:
//	  workers: 4
//	  hosts:
//	    db:
//	      address: 10.0.0.5
//	      user: ops
//	resources:
//	  - name: monitoring
//	    type: Namespace
//	    namespace:
//	      name: monitoring
//	  - name: prometheus
//	    type: Release
//	    dependsOn: [monitoring]
//	    release:
//	      name: prometheus
//	      namespace: monitoring
//	      chart: prometheus-community/prometheus
//	      version: 25.8.0
//
// YAML files are decoded strictly (unknown fields are errors). CUE files and
// CUE package directories are unified with the built-in #Graph schema before
// decoding; in CUE, resources may also be keyed by name:
//
//	resources: {
//	    monitoring: {type: "Namespace", namespace: name: "monitoring"}
//	    prometheus: {type: "Release", dependsOn: ["monitoring"], release: {...}}
//	}
//
// Both forms keep declaration order, which is the order workers consider
// ready resources in.
//
// # Validation
//
// Struct tags are checked with go-playground/validator and every resource's
// payload must match its type. All problems are collected into
// ValidationErrors and returned wrapped in an engine configuration error.
// Duplicate names, unknown dependencies and cycles are detected later by
// engine.NewResourceGraph.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	gf, err := loader.Load("graph.yaml")
//	if err != nil {
//	    return err
//	}
//	settings := gf.Settings.WithDefaults()
//	sched, err := settings.SchedulerConfig()
package config
