package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mokrunka/taskwarrior-capsules/internal/capsule"
)

// DirName is the per-user (and per-project) metadata directory name.
const DirName = ".taskwarrior-capsules"

// HomeEnv overrides the per-user metadata directory.
const HomeEnv = "TW_CAPSULES_HOME"

// Config holds application configuration.
type Config struct {
	// TaskBinary is the external tool invoked for pass-through and version queries.
	TaskBinary string `json:"task_binary"`

	// CapsuleDirs are additional directories scanned for capsule manifests.
	// <home>/capsules is always scanned. Relative paths are ignored.
	CapsuleDirs []string `json:"capsule_dirs,omitempty"`

	// DisabledCapsules are capsule names excluded from discovery.
	DisabledCapsules []string `json:"disabled_capsules,omitempty"`

	// KnownCommands are extra command names the partitioner recognizes,
	// for task commands added through aliases or newer task releases.
	KnownCommands []string `json:"known_commands,omitempty"`

	// SkipToolVersionCheck disables the task version check for every capsule.
	SkipToolVersionCheck bool `json:"skip_tool_version_check,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFile redirects logs away from stderr when set.
	LogFile string `json:"log_file,omitempty"`

	// Capsules holds one configuration section per capsule name.
	Capsules map[string]map[string]any `json:"capsules,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TaskBinary: "task",
		LogLevel:   "warn",
	}
}

// HomeDir returns the per-user metadata directory: $TW_CAPSULES_HOME or
// ~/.taskwarrior-capsules.
func HomeDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(HomeEnv)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of the home directory.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both the global directory and the nearest
// project .taskwarrior-capsules directory found by walking upward from startDir.
// Project config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	if repoConfigPath == filepath.Join(globalDir, "config.json") {
		// Walking up from $HOME finds the global file again.
		repoConfigPath = ""
	}
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .taskwarrior-capsules/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// capsule sections are merged key by key with overlay keys winning.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.TaskBinary = overlay.TaskBinary
	if strings.TrimSpace(result.TaskBinary) == "" {
		result.TaskBinary = base.TaskBinary
	}

	result.LogLevel = overlay.LogLevel
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	result.LogFile = overlay.LogFile
	if result.LogFile == "" {
		result.LogFile = base.LogFile
	}

	// Booleans: overlay wins if true, else base
	result.SkipToolVersionCheck = base.SkipToolVersionCheck || overlay.SkipToolVersionCheck

	// Arrays: merge and deduplicate
	result.CapsuleDirs = mergeStringSlice(base.CapsuleDirs, overlay.CapsuleDirs)
	result.DisabledCapsules = mergeStringSlice(base.DisabledCapsules, overlay.DisabledCapsules)
	result.KnownCommands = mergeStringSlice(base.KnownCommands, overlay.KnownCommands)

	result.Capsules = mergeSections(base.Capsules, overlay.Capsules)

	return result
}

// Section returns a copy of the configuration section for a capsule.
// Section names match case-insensitively. Never returns nil.
func (c *Config) Section(name string) map[string]any {
	section := make(map[string]any)
	if c == nil {
		return section
	}
	name = capsule.Normalize(name)
	for key, values := range c.Capsules {
		if capsule.Normalize(key) != name {
			continue
		}
		for k, v := range values {
			section[k] = v
		}
	}
	return section
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// mergeSections merges per-capsule sections under their normalized names;
// overlay keys replace base keys.
func mergeSections(base, overlay map[string]map[string]any) map[string]map[string]any {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]map[string]any, len(base)+len(overlay))
	for _, src := range []map[string]map[string]any{base, overlay} {
		for name, section := range src {
			name = capsule.Normalize(name)
			dst, ok := result[name]
			if !ok {
				dst = make(map[string]any, len(section))
				result[name] = dst
			}
			for k, v := range section {
				dst[k] = v
			}
		}
	}
	return result
}
