package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadQuiet is how long the watcher waits after the last change.
const reloadQuiet = 500 * time.Millisecond

// Loader reads policy files: Rego modules (.rego) and JSON policy
// definitions (.json).
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths reads every policy under paths. A path is a policy file or a
// directory searched recursively; inside a directory, files that fail to
// parse are logged and skipped.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var policies []Policy
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := l.load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		policies = append(policies, found...)
	}

	l.logger.Debug().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")
	return policies, nil
}

func (l *Loader) load(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		p, err := readPolicy(path)
		if err != nil {
			return nil, err
		}
		return []Policy{*p}, nil
	}

	var policies []Policy
	err = filepath.WalkDir(path, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(file) {
			return nil
		}
		p, err := readPolicy(file)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", file).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, *p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

// readPolicy parses one policy file; Source is set to its path.
func readPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p Policy
	switch filepath.Ext(path) {
	case ".rego":
		description, severity := regoHeader(string(data))
		p = Policy{
			Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
			Description: description,
			Rego:        string(data),
			Severity:    severity,
			Enabled:     true,
		}
	case ".json":
		p = Policy{Enabled: true}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("JSON policy has no name")
		}
		if p.Severity == "" {
			p.Severity = SeverityWarning
		}
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	p.Source = path
	return &p, nil
}

// regoHeader reads the leading comment block of a Rego module. Comment
// lines form the description, except "# severity: <level>" which sets the
// severity (warning when absent).
func regoHeader(content string) (string, Severity) {
	var lines []string
	severity := SeverityWarning

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		comment, ok := strings.CutPrefix(line, "#")
		if !ok {
			if line != "" {
				break
			}
			continue
		}
		comment = strings.TrimSpace(comment)
		if s, ok := strings.CutPrefix(comment, "severity:"); ok {
			severity = Severity(strings.TrimSpace(s))
		} else if comment != "" {
			lines = append(lines, comment)
		}
	}
	return strings.Join(lines, " "), severity
}

// Watch reloads the policies under paths whenever a policy file there, or
// one of the extra files, changes. Changes are coalesced until the tree has
// been quiet for a moment; reloadFn then receives the freshly read policies.
// Watch returns once watching has started and stops when ctx is done.
func (l *Loader) Watch(ctx context.Context, paths, extra []string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	files := make(map[string]bool)
	for _, path := range append(append([]string{}, paths...), extra...) {
		if err := addWatch(watcher, path, files); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Not watching path")
		}
	}

	go l.watchLoop(ctx, watcher, paths, files, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)+len(extra)).
		Msg("Started watching policy paths")
	return nil
}

// addWatch watches every directory below a directory path. For a file
// path it watches the parent, since editors replace files on save, and
// records the file in files.
func addWatch(watcher *fsnotify.Watcher, path string, files map[string]bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.WalkDir(path, func(dir string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return err
			}
			return watcher.Add(dir)
		})
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	files[abs] = true
	return watcher.Add(filepath.Dir(abs))
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, paths []string, files map[string]bool, reloadFn func([]Policy) error) {
	defer watcher.Close()

	quiet := time.NewTimer(reloadQuiet)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isPolicyFile(event.Name) && !files[absPath(event.Name)] {
				continue
			}
			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Watched file changed")
			quiet.Reset(reloadQuiet)

		case <-quiet.C:
			policies, err := l.LoadFromPaths(ctx, paths)
			if err == nil {
				err = reloadFn(policies)
			}
			if err != nil {
				l.logger.Error().Err(err).Msg("Failed to reload policies")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func absPath(name string) string {
	abs, err := filepath.Abs(name)
	if err != nil {
		return name
	}
	return abs
}
