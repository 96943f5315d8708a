package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

// ManifestFiles are the file names looked for, in order, in each capsule
// directory.
var ManifestFiles = []string{"capsule.json", "capsule.yaml", "capsule.yml"}

// Runtime names understood by manifests.
const (
	RuntimeExec = "exec"
	RuntimeLua  = "lua"
)

// Manifest describes a capsule installed on disk.
type Manifest struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Roles       []string `json:"roles" yaml:"roles"`

	// Entrypoint is relative to the manifest's directory.
	Entrypoint string `json:"entrypoint" yaml:"entrypoint"`
	// Runtime is "exec" or "lua"; inferred from the entrypoint when empty.
	Runtime string `json:"runtime,omitempty" yaml:"runtime,omitempty"`

	MinVersion       string `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	MaxVersion       string `json:"max_version,omitempty" yaml:"max_version,omitempty"`
	CheckToolVersion bool   `json:"check_tool_version,omitempty" yaml:"check_tool_version,omitempty"`
	MinToolVersion   string `json:"min_tool_version,omitempty" yaml:"min_tool_version,omitempty"`
	MaxToolVersion   string `json:"max_tool_version,omitempty" yaml:"max_tool_version,omitempty"`

	// Path is the manifest file the capsule was loaded from.
	Path string `json:"-" yaml:"-"`
}

// FindManifest returns the manifest file in dir, or "" if there is none.
func FindManifest(dir string) string {
	for _, name := range ManifestFiles {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// ParseManifest reads a JSON or YAML manifest, chosen by file extension.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", path, err)
		}
	}
	m.Path = path

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the required fields.
func (m *Manifest) Validate() error {
	if !capsule.ValidName(capsule.Normalize(m.Name)) {
		return fmt.Errorf("manifest %s: invalid or missing name %q", m.Path, m.Name)
	}
	if len(m.Roles) == 0 {
		return fmt.Errorf("manifest %s: roles is required", m.Path)
	}
	for _, r := range m.Roles {
		if _, err := capsule.ParseRole(r); err != nil {
			return fmt.Errorf("manifest %s: %w", m.Path, err)
		}
	}
	if strings.TrimSpace(m.Entrypoint) == "" {
		return fmt.Errorf("manifest %s: entrypoint is required", m.Path)
	}
	switch m.RuntimeName() {
	case RuntimeExec, RuntimeLua:
	default:
		return fmt.Errorf("manifest %s: unknown runtime %q", m.Path, m.Runtime)
	}
	return nil
}

// Dir is the directory holding the manifest.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// RuntimeName returns the declared runtime, or the one implied by the
// entrypoint's extension.
func (m *Manifest) RuntimeName() string {
	if rt := strings.ToLower(strings.TrimSpace(m.Runtime)); rt != "" {
		return rt
	}
	if strings.EqualFold(filepath.Ext(m.Entrypoint), ".lua") {
		return RuntimeLua
	}
	return RuntimeExec
}

// Descriptor converts the manifest into an immutable descriptor.
func (m *Manifest) Descriptor() capsule.Descriptor {
	roles := make([]capsule.Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		role, err := capsule.ParseRole(r)
		if err == nil && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return capsule.Descriptor{
		Name:             capsule.Normalize(m.Name),
		Roles:            roles,
		Description:      m.Description,
		MinVersion:       m.MinVersion,
		MaxVersion:       m.MaxVersion,
		CheckToolVersion: m.CheckToolVersion,
		MinToolVersion:   m.MinToolVersion,
		MaxToolVersion:   m.MaxToolVersion,
		Source:           m.Path,
	}
}

// EntrypointPath resolves and validates the entrypoint: no path traversal,
// must stay inside the capsule directory (after resolving symlinks) and
// must be a regular file.
func (m *Manifest) EntrypointPath() (string, error) {
	if strings.Contains(m.Entrypoint, "..") {
		return "", fmt.Errorf("entrypoint contains path traversal")
	}
	if filepath.IsAbs(m.Entrypoint) {
		return "", fmt.Errorf("entrypoint must be relative to the capsule directory")
	}

	dir, err := filepath.Abs(m.Dir())
	if err != nil {
		return "", fmt.Errorf("resolve capsule directory: %w", err)
	}
	entry := filepath.Join(dir, m.Entrypoint)

	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("resolve capsule directory: %w", err)
	}
	realEntry, err := filepath.EvalSymlinks(entry)
	if err != nil {
		return "", fmt.Errorf("entrypoint not found: %w", err)
	}
	rel, err := filepath.Rel(realDir, realEntry)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entrypoint escapes the capsule directory")
	}

	info, err := os.Stat(realEntry)
	if err != nil {
		return "", fmt.Errorf("stat entrypoint: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("entrypoint is not a regular file")
	}
	return entry, nil
}
