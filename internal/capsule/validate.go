package capsule

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mokrunka/taskwarrior-capsules/internal/errors"
	"github.com/mokrunka/taskwarrior-capsules/internal/version"
)

// ToolName is how the external tool is named in compatibility messages.
const ToolName = "taskwarrior"

// SystemName is how the dispatcher itself is named in compatibility messages.
const SystemName = "taskwarrior-capsules"

// VersionSource reports the version of the external tool.
type VersionSource interface {
	Version(ctx context.Context) (string, error)
}

// Validator gates capsule invocations on their declared compatibility
// ranges. Missing ranges only produce warnings; a declared range that
// excludes the running version is an INCOMPATIBLE_VERSION error.
//
// The tool version is queried at most once per Validator.
type Validator struct {
	raw     string
	current *version.Version
	tool    VersionSource
	skip    bool

	toolQueried bool
	toolVersion *version.Version
	toolRaw     string
	toolErr     error
}

// describeSuffix matches what git describe appends to a tag:
// "<commits>-g<hash>", optionally followed by "-dirty".
var describeSuffix = regexp.MustCompile(`^(\d+-g[0-9a-f]+)?(-?dirty)?$`)

// NewValidator returns a Validator for the given dispatcher version. When
// skipTool is set, or tool is nil, tool version ranges are ignored.
//
// A git describe suffix on current is dropped, so "0.3.0-2-gabc123" counts
// as 0.3.0. A current version that does not parse at all ("dev") is a
// development build: its declared ranges are reported, not enforced.
func NewValidator(current string, tool VersionSource, skipTool bool) *Validator {
	return &Validator{
		raw:     current,
		current: releaseOf(current),
		tool:    tool,
		skip:    skipTool || tool == nil,
	}
}

func releaseOf(raw string) *version.Version {
	v, err := version.Parse(raw)
	if err != nil {
		return nil
	}
	if v.Prerelease != "" && describeSuffix.MatchString(v.Prerelease) {
		v.Prerelease = ""
	}
	return v
}

// Validate checks d against the running dispatcher version and, when the
// capsule asks for it, the tool version. It returns human-readable warnings
// for undeclared ranges.
func (v *Validator) Validate(ctx context.Context, d Descriptor) ([]string, error) {
	var warnings []string

	r, err := version.ParseRange(d.MinVersion, d.MaxVersion)
	if err != nil {
		return nil, errors.NewInvalidVersion(d.Name, "version range", d.MinVersion+".."+d.MaxVersion, err)
	}
	if !r.Declared() {
		warnings = append(warnings, fmt.Sprintf(
			"Capsule '%s' does not specify which %s versions it is compatible with; you may encounter compatibility problems.",
			d.Name, SystemName))
	} else if v.current == nil {
		warnings = append(warnings, fmt.Sprintf(
			"Capsule '%s' compatibility is not checked against development build %q of %s.",
			d.Name, v.raw, SystemName))
	} else if !r.Contains(v.current) {
		return nil, errors.NewIncompatibleVersion(d.Name, SystemName, v.current.String(), d.MinVersion, d.MaxVersion)
	}

	if !d.CheckToolVersion || v.skip {
		return warnings, nil
	}

	tr, err := version.ParseRange(d.MinToolVersion, d.MaxToolVersion)
	if err != nil {
		return nil, errors.NewInvalidVersion(d.Name, "tool version range", d.MinToolVersion+".."+d.MaxToolVersion, err)
	}
	if !tr.Declared() {
		warnings = append(warnings, fmt.Sprintf(
			"Capsule '%s' does not specify which %s versions it is compatible with; you may encounter compatibility problems.",
			d.Name, ToolName))
		return warnings, nil
	}

	tv, err := v.toolVersionFor(ctx)
	if err != nil {
		return nil, err
	}
	if !tr.Contains(tv) {
		return nil, errors.NewIncompatibleVersion(d.Name, ToolName, tv.String(), d.MinToolVersion, d.MaxToolVersion)
	}
	return warnings, nil
}

func (v *Validator) toolVersionFor(ctx context.Context) (*version.Version, error) {
	if !v.toolQueried {
		v.toolQueried = true
		v.toolRaw, v.toolErr = v.tool.Version(ctx)
		if v.toolErr == nil {
			v.toolVersion, v.toolErr = version.Parse(v.toolRaw)
			if v.toolErr != nil {
				v.toolErr = errors.NewInvalidVersion("", ToolName+" version", v.toolRaw, v.toolErr)
			}
		}
	}
	return v.toolVersion, v.toolErr
}
