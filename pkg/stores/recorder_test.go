package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

func TestRecorder(t *testing.T) {
	store := setupTestStore(t)
	rec := NewRecorder(store, "graph.yaml", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ns := &engine.Resource{ResourceSpec: engine.ResourceSpec{Name: "ns", Type: engine.ResourceTypeNamespace}}
	db := &engine.Resource{ResourceSpec: engine.ResourceSpec{Name: "db", Type: engine.ResourceTypeRelease}}

	rec.RunStarted(ctx, "run-1", engine.ActionInstallOrUpgrade, 2)
	rec.ResourceStarted(ctx, "run-1", ns)
	rec.ResourceFinished(ctx, "run-1", ns, time.Millisecond, nil)
	rec.ResourceStarted(ctx, "run-1", db)
	rec.ResourceFinished(ctx, "run-1", db, time.Millisecond, errors.New("helm failed"))

	// a cancelled run is still recorded
	cancel()
	rec.RunFinished(ctx, &engine.RunResult{
		ID:          "run-1",
		Action:      engine.ActionInstallOrUpgrade,
		Status:      engine.RunStatusFailed,
		AbortReason: "db: helm failed",
		CompletedAt: time.Now(),
	})

	run, err := store.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != engine.RunStatusFailed || run.Workers != 2 || run.GraphPath != "graph.yaml" {
		t.Errorf("run = %+v", run)
	}

	events, err := store.ListResourceEvents(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ListResourceEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Status != EventStatusDone || events[1].Status != EventStatusFailed {
		t.Errorf("statuses = %s, %s", events[0].Status, events[1].Status)
	}
	if events[1].Error == nil || *events[1].Error != "helm failed" {
		t.Errorf("error = %v", events[1].Error)
	}
	if len(rec.started) != 0 {
		t.Errorf("start times not cleaned up: %v", rec.started)
	}
}

type failingStore struct {
	Store
	calls int
}

func (f *failingStore) CreateRun(context.Context, *Run) error {
	f.calls++
	return errors.New("disk full")
}
func (f *failingStore) AppendResourceEvent(context.Context, *ResourceEvent) error {
	f.calls++
	return errors.New("disk full")
}
func (f *failingStore) FinishRun(context.Context, *engine.RunResult) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, "", zerolog.Nop())
	ctx := context.Background()
	res := &engine.Resource{ResourceSpec: engine.ResourceSpec{Name: "x", Type: engine.ResourceTypeCommand}}

	rec.RunStarted(ctx, "run-1", engine.ActionUninstall, 1)
	rec.ResourceStarted(ctx, "run-1", res)
	rec.ResourceFinished(ctx, "run-1", res, time.Second, nil)
	rec.RunFinished(ctx, &engine.RunResult{ID: "run-1", Status: engine.RunStatusSucceeded})

	if store.calls != 3 {
		t.Errorf("store calls = %d, want 3", store.calls)
	}
}
