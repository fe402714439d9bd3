package engine_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// printTask prints the resource it provisions.
type printTask struct {
	name string
}

func (p printTask) InstallOrUpgrade(ctx context.Context) error {
	fmt.Println("install", p.name)
	return nil
}

func (p printTask) Uninstall(ctx context.Context) error {
	fmt.Println("uninstall", p.name)
	return nil
}

func (p printTask) WaitForCompletion(ctx context.Context, action engine.Action) error { return nil }
func (p printTask) CollectInformation(ctx context.Context) error                      { return nil }

type printFactory struct{}

func (printFactory) NewTask(res *engine.Resource, outputs engine.OutputStore) (engine.Task, error) {
	return printTask{name: res.Name}, nil
}

// Example_install provisions a chain of resources with a single worker.
func Example_install() {
	specs := []engine.ResourceSpec{
		{
			Name:      "monitoring",
			Type:      engine.ResourceTypeNamespace,
			Namespace: &engine.NamespaceSpec{Name: "monitoring"},
		},
		{
			Name:      "prometheus",
			Type:      engine.ResourceTypeRelease,
			DependsOn: []string{"monitoring"},
			Release: &engine.ReleaseSpec{
				Name:      "prometheus",
				Namespace: "monitoring",
				Chart:     "prometheus-community/prometheus",
				Version:   "25.8.0",
			},
		},
	}

	sched := engine.NewScheduler(printFactory{}, zerolog.Nop(), engine.SchedulerConfig{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	})
	result, err := sched.Run(context.Background(), specs, engine.ActionInstallOrUpgrade)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(result.Status)

	// Output:
	// install monitoring
	// install prometheus
	// succeeded
}

// Example_uninstall removes the same chain in reverse.
func Example_uninstall() {
	specs := []engine.ResourceSpec{
		{
			Name:      "monitoring",
			Type:      engine.ResourceTypeNamespace,
			Namespace: &engine.NamespaceSpec{Name: "monitoring"},
		},
		{
			Name:      "dashboards",
			Type:      engine.ResourceTypeManifest,
			DependsOn: []string{"monitoring"},
			Manifest:  &engine.ManifestSpec{Files: []string{"dashboards.yaml"}},
		},
	}

	sched := engine.NewScheduler(printFactory{}, zerolog.Nop(), engine.SchedulerConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
	})
	if _, err := sched.Run(context.Background(), specs, engine.ActionUninstall); err != nil {
		fmt.Println("error:", err)
	}

	// Output:
	// uninstall dashboards
	// uninstall monitoring
}

// ExampleNewResourceGraph shows how a cycle is rejected before anything runs.
func ExampleNewResourceGraph() {
	_, err := engine.NewResourceGraph([]engine.ResourceSpec{
		{Name: "a", Type: engine.ResourceTypeManifest, DependsOn: []string{"b"}, Manifest: &engine.ManifestSpec{Files: []string{"a.yaml"}}},
		{Name: "b", Type: engine.ResourceTypeManifest, DependsOn: []string{"a"}, Manifest: &engine.ManifestSpec{Files: []string{"b.yaml"}}},
	}, engine.ActionInstallOrUpgrade)

	fmt.Println(engine.IsConfiguration(err), engine.CodeOf(err))

	// Output:
	// true CYCLE_DETECTED
}
