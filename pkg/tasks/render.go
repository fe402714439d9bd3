package tasks

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/provisioner/pkg/engine"
)

type objectMeta struct {
	Name        string            `yaml:"name"`
	Namespace   string            `yaml:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

type namespaceObject struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   objectMeta `yaml:"metadata"`
}

type secretObject struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   objectMeta        `yaml:"metadata"`
	Type       string            `yaml:"type,omitempty"`
	Data       map[string]string `yaml:"data,omitempty"`
}

type dockerAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Auth     string `json:"auth"`
}

type dockerConfig struct {
	Auths map[string]dockerAuth `json:"auths"`
}

// Renderer writes generated manifests into a directory.
type Renderer struct {
	dir string
}

// NewRenderer creates a renderer writing into dir.
func NewRenderer(dir string) *Renderer {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "provisioner")
	}
	return &Renderer{dir: filepath.Clean(dir)}
}

// Dir returns the render directory.
func (r *Renderer) Dir() string { return r.dir }

// Namespace renders a Namespace object and returns the file path.
func (r *Renderer) Namespace(resource string, spec engine.NamespaceSpec) (string, error) {
	obj := namespaceObject{
		APIVersion: "v1",
		Kind:       "Namespace",
		Metadata: objectMeta{
			Name:        spec.Name,
			Labels:      spec.Labels,
			Annotations: spec.Annotations,
		},
	}
	return r.write("namespace-"+resource+".yaml", obj, 0640)
}

// Secret renders a Secret object and returns the file path.
func (r *Renderer) Secret(resource string, spec engine.SecretSpec) (string, error) {
	obj := secretObject{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata: objectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels:    spec.Labels,
		},
		Data: make(map[string]string),
	}

	switch spec.Kind {
	case engine.SecretKindDockerRegistry:
		if spec.Registry == nil {
			return "", fmt.Errorf("docker-registry secret %s has no registry credentials", spec.Name)
		}
		auth := spec.Registry
		cfg := dockerConfig{Auths: map[string]dockerAuth{
			auth.Server: {
				Username: auth.Username,
				Password: auth.Password,
				Email:    auth.Email,
				Auth:     base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password)),
			},
		}}
		data, err := json.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("failed to encode docker config: %w", err)
		}
		obj.Type = "kubernetes.io/dockerconfigjson"
		obj.Data[".dockerconfigjson"] = base64.StdEncoding.EncodeToString(data)

	case engine.SecretKindGeneric:
		keys := make([]string, 0, len(spec.Files))
		for key := range spec.Files {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			content, err := os.ReadFile(spec.Files[key])
			if err != nil {
				return "", fmt.Errorf("failed to read secret file for key %s: %w", key, err)
			}
			obj.Data[key] = base64.StdEncoding.EncodeToString(content)
		}
		obj.Type = "Opaque"

	default:
		return "", fmt.Errorf("unsupported secret kind: %s", spec.Kind)
	}

	return r.write("secret-"+resource+".yaml", obj, 0600)
}

// SecretRef renders a Secret carrying only its name and namespace, enough
// to delete it without reading credentials or source files.
func (r *Renderer) SecretRef(resource string, spec engine.SecretSpec) (string, error) {
	obj := secretObject{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata: objectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
		},
	}
	return r.write("secret-"+resource+".yaml", obj, 0600)
}

func (r *Renderer) write(name string, obj interface{}, perm os.FileMode) (string, error) {
	if err := os.MkdirAll(r.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create render directory: %w", err)
	}

	path := filepath.Join(r.dir, name)

	// Prevent path traversal
	if filepath.Dir(path) != r.dir || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("invalid manifest name %q: path traversal detected", name)
	}

	data, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
