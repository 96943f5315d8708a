// Package registry resolves the capsules available to a dispatch: built-in
// registrations compiled into the binary plus capsules installed on disk.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
	apperrors "github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/logging"
)

// Registration pairs a descriptor with the factory that builds the capsule.
type Registration struct {
	Descriptor capsule.Descriptor
	Factory    capsule.Factory
}

// RuntimeFactory turns an on-disk manifest into a capsule factory.
type RuntimeFactory func(m *Manifest) (capsule.Factory, error)

// Registry holds every capsule found at startup. It is populated once per
// process and read-only afterwards.
type Registry struct {
	logger   *zap.Logger
	byName   map[string]Registration
	runtimes map[string]RuntimeFactory
	disabled map[string]bool
}

// New returns an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:   logger,
		byName:   make(map[string]Registration),
		runtimes: make(map[string]RuntimeFactory),
		disabled: make(map[string]bool),
	}
}

// Register adds a capsule. Names are normalized; a duplicate name, an
// invalid name, no roles, an unknown role or a nil factory is rejected.
func (r *Registry) Register(reg Registration) error {
	d := reg.Descriptor
	d.Name = capsule.Normalize(d.Name)
	if d.Source == "" {
		d.Source = capsule.SourceBuiltin
	}

	if !capsule.ValidName(d.Name) {
		return apperrors.NewLoadFailed(d.Source, fmt.Errorf("invalid capsule name %q", reg.Descriptor.Name))
	}
	if len(d.Roles) == 0 {
		return apperrors.NewLoadFailed(d.Source, fmt.Errorf("capsule %s declares no roles", d.Name))
	}
	for _, role := range d.Roles {
		if !role.Valid() {
			return apperrors.NewLoadFailed(d.Source, fmt.Errorf("capsule %s: unknown role %q", d.Name, role))
		}
	}
	if reg.Factory == nil {
		return apperrors.NewLoadFailed(d.Source, fmt.Errorf("capsule %s has no factory", d.Name))
	}
	if existing, ok := r.byName[d.Name]; ok {
		return apperrors.NewLoadFailed(d.Source, fmt.Errorf("capsule %s already registered from %s", d.Name, existing.Descriptor.Source))
	}

	reg.Descriptor = d
	r.byName[d.Name] = reg
	logging.CapsuleLoaded(r.logger, d.Name, d.Source, d.RoleNames())
	return nil
}

// UseRuntime installs the factory used for manifests declaring runtime name.
func (r *Registry) UseRuntime(name string, f RuntimeFactory) {
	r.runtimes[name] = f
}

// Disable hides capsules from discovery. Names are normalized.
func (r *Registry) Disable(names ...string) {
	for _, n := range names {
		if n = capsule.Normalize(n); n != "" {
			r.disabled[n] = true
		}
	}
}

// LoadDir registers every capsule installed under dir: each immediate
// sub-directory holding a manifest is a candidate. Candidates that fail to
// load are logged and skipped. A missing dir is not an error.
// Returns the number of capsules registered.
func (r *Registry) LoadDir(dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve capsule directory: %w", err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read capsule directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(absDir, entry.Name())
		manifestPath := FindManifest(candidate)
		if manifestPath == "" {
			continue
		}
		if err := r.loadManifest(manifestPath); err != nil {
			logging.CapsuleSkipped(r.logger, candidate, err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (r *Registry) loadManifest(path string) error {
	m, err := ParseManifest(path)
	if err != nil {
		return apperrors.NewLoadFailed(path, err)
	}
	if _, err := m.EntrypointPath(); err != nil {
		return apperrors.NewLoadFailed(path, err)
	}

	runtime, ok := r.runtimes[m.RuntimeName()]
	if !ok {
		return apperrors.NewLoadFailed(path, fmt.Errorf("no %s runtime available", m.RuntimeName()))
	}
	factory, err := runtime(m)
	if err != nil {
		return apperrors.NewLoadFailed(path, err)
	}
	return r.Register(Registration{Descriptor: m.Descriptor(), Factory: factory})
}

// Discover returns the enabled capsules registered for role, keyed by name.
func (r *Registry) Discover(role capsule.Role) map[string]Registration {
	out := make(map[string]Registration)
	for name, reg := range r.byName {
		if r.disabled[name] || !reg.Descriptor.HasRole(role) {
			continue
		}
		out[name] = reg
	}
	return out
}

// Registrations returns the enabled capsules for role sorted by name, the
// order in which the pipeline runs them.
func (r *Registry) Registrations(role capsule.Role) []Registration {
	found := r.Discover(role)
	out := make([]Registration, 0, len(found))
	for _, reg := range found {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.Name < out[j].Descriptor.Name })
	return out
}

// Ordered returns the descriptors for role sorted by name.
func (r *Registry) Ordered(role capsule.Role) []capsule.Descriptor {
	regs := r.Registrations(role)
	out := make([]capsule.Descriptor, len(regs))
	for i, reg := range regs {
		out[i] = reg.Descriptor
	}
	return out
}

// Lookup finds an enabled capsule by name.
func (r *Registry) Lookup(name string) (capsule.Descriptor, bool) {
	reg, ok := r.Get(name)
	return reg.Descriptor, ok
}

// Get returns the registration for an enabled capsule.
func (r *Registry) Get(name string) (Registration, bool) {
	name = capsule.Normalize(name)
	reg, ok := r.byName[name]
	if !ok || r.disabled[name] {
		return Registration{}, false
	}
	return reg, true
}

// CommandNames returns the names of enabled command capsules, sorted.
func (r *Registry) CommandNames() []string {
	descs := r.Ordered(capsule.RoleCommand)
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	return names
}
