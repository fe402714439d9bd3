package tasks

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provisioner/pkg/engine"
)

// memOutputs is an in-memory engine.OutputStore.
type memOutputs struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemOutputs() *memOutputs {
	return &memOutputs{values: make(map[string]string)}
}

func (m *memOutputs) SetOutput(resource, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[resource+"."+key] = value
}

func (m *memOutputs) Output(resource, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[resource+"."+key]
	return v, ok
}

// fakeManifests tracks which files are applied.
type fakeManifests struct {
	applied  map[string]bool
	applies  int
	removes  int
	applyErr error
}

func newFakeManifests() *fakeManifests {
	return &fakeManifests{applied: make(map[string]bool)}
}

func (f *fakeManifests) Apply(ctx context.Context, files []string) error {
	f.applies++
	if f.applyErr != nil {
		return f.applyErr
	}
	for _, file := range files {
		f.applied[file] = true
	}
	return nil
}

func (f *fakeManifests) Remove(ctx context.Context, files []string) error {
	f.removes++
	for _, file := range files {
		delete(f.applied, file)
	}
	return nil
}

func (f *fakeManifests) NeedsApply(ctx context.Context, files []string) (bool, error) {
	for _, file := range files {
		if !f.applied[file] {
			return true, nil
		}
	}
	return false, nil
}

// fakeReleases tracks installed releases and their values.
type fakeReleases struct {
	installed  map[string]engine.ReleaseSpec
	revisions  map[string]int
	installs   int
	uninstalls int
}

func newFakeReleases() *fakeReleases {
	return &fakeReleases{
		installed: make(map[string]engine.ReleaseSpec),
		revisions: make(map[string]int),
	}
}

func releaseKey(name, namespace string) string { return namespace + "/" + name }

func (f *fakeReleases) InstallOrUpgrade(ctx context.Context, rel engine.ReleaseSpec) error {
	f.installs++
	key := releaseKey(rel.Name, rel.Namespace)
	f.installed[key] = rel
	f.revisions[key]++
	return nil
}

func (f *fakeReleases) Uninstall(ctx context.Context, rel engine.ReleaseSpec) error {
	f.uninstalls++
	key := releaseKey(rel.Name, rel.Namespace)
	delete(f.installed, key)
	delete(f.revisions, key)
	return nil
}

func (f *fakeReleases) CurrentRevision(ctx context.Context, name, namespace string) (int, bool, error) {
	rev, ok := f.revisions[releaseKey(name, namespace)]
	return rev, ok, nil
}

func (f *fakeReleases) NeedsInstallOrUpgrade(ctx context.Context, rel engine.ReleaseSpec) (bool, error) {
	current, ok := f.installed[releaseKey(rel.Name, rel.Namespace)]
	if !ok {
		return true, nil
	}
	if current.Chart != rel.Chart || current.Version != rel.Version {
		return true, nil
	}
	return fmt.Sprint(current.Values) != fmt.Sprint(rel.Values), nil
}

type runCall struct {
	cmd   string
	host  string
	raise bool
}

// fakeRunner returns scripted results per command; unknown commands exit 0.
type fakeRunner struct {
	mu       sync.Mutex
	handlers map[string]func() engine.CommandResult
	calls    []runCall
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{handlers: make(map[string]func() engine.CommandResult)}
}

func (f *fakeRunner) on(cmd string, fn func() engine.CommandResult) {
	f.handlers[cmd] = fn
}

func (f *fakeRunner) exit(cmd string, code int) {
	f.on(cmd, func() engine.CommandResult { return engine.CommandResult{ExitCode: code} })
}

func (f *fakeRunner) RunCommand(ctx context.Context, cmd, host string, raiseOnFailure bool) (engine.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{cmd: cmd, host: host, raise: raiseOnFailure})
	fn := f.handlers[cmd]
	f.mu.Unlock()

	var result engine.CommandResult
	if fn != nil {
		result = fn()
	}
	if raiseOnFailure && result.ExitCode != 0 {
		return result, engine.NewProvisioningError(
			fmt.Sprintf("command exited with status %d", result.ExitCode), nil,
		).WithCode(engine.ErrCodeCommandFailed)
	}
	return result, nil
}

func (f *fakeRunner) ran(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.cmd == cmd {
			n++
		}
	}
	return n
}

// fakeUploader records uploads.
type fakeUploader struct {
	uploads []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, remotePath, host string, mode os.FileMode) error {
	f.uploads = append(f.uploads, fmt.Sprintf("%s->%s:%s@%o", localPath, host, remotePath, mode))
	return nil
}

// fakeProber records which wait was called for which probe.
type fakeProber struct {
	calls []string
	err   error
}

func (f *fakeProber) WaitForReady(ctx context.Context, p engine.Probe) error {
	f.calls = append(f.calls, "ready:"+p.Target+"@"+p.Host)
	return f.err
}

func (f *fakeProber) WaitForDeleted(ctx context.Context, p engine.Probe) error {
	f.calls = append(f.calls, "deleted:"+p.Target+"@"+p.Host)
	return f.err
}

func (f *fakeProber) WaitForDesiredValue(ctx context.Context, p engine.Probe) error {
	f.calls = append(f.calls, "value:"+p.Target+"@"+p.Host)
	return f.err
}

type testBackends struct {
	manifests *fakeManifests
	releases  *fakeReleases
	runner    *fakeRunner
	prober    *fakeProber
	uploader  *fakeUploader
	outputs   *memOutputs
	deps      Dependencies
}

func newTestBackends(renderDir string) *testBackends {
	b := &testBackends{
		manifests: newFakeManifests(),
		releases:  newFakeReleases(),
		runner:    newFakeRunner(),
		prober:    &fakeProber{},
		uploader:  &fakeUploader{},
		outputs:   newMemOutputs(),
	}
	b.deps = Dependencies{
		Manifests: b.manifests,
		Releases:  b.releases,
		Runner:    b.runner,
		Uploader:  b.uploader,
		Prober:    b.prober,
		Renderer:  NewRenderer(renderDir),
		Logger:    zerolog.Nop(),
	}
	return b
}
