// Package version parses and orders the dotted version strings used in
// capsule compatibility ranges and reported by task --version.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a normalized version: numeric release components plus an
// optional pre-release tag. Trailing zero components are insignificant,
// so "2.6" and "2.6.0" are equal.
type Version struct {
	Release    []int
	Prerelease string
}

// Parse parses strings such as "2.6.2", "v1.0", "3.0.0-beta1" or the first
// line of task --version output. Build metadata after '+' is ignored.
func Parse(v string) (*Version, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return nil, fmt.Errorf("version string is empty")
	}
	s := strings.TrimPrefix(fields[0], "v")

	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}

	ver := &Version{}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		ver.Prerelease = s[i+1:]
		s = s[:i]
		if ver.Prerelease == "" {
			return nil, fmt.Errorf("invalid version %q: empty pre-release", v)
		}
	}

	parts := strings.Split(s, ".")
	ver.Release = make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q: component %q is not a number", v, p)
		}
		ver.Release = append(ver.Release, n)
	}

	return ver, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(v string) *Version {
	ver, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return ver
}

// String returns the normalized representation.
func (v *Version) String() string {
	parts := make([]string, len(v.Release))
	for i, n := range v.Release {
		parts[i] = strconv.Itoa(n)
	}
	s := strings.Join(parts, ".")
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare compares two versions.
// Returns:
//
//	-1 if v < other
//	 0 if v == other
//	+1 if v > other
//
// Release components compare numerically; a missing component counts as 0.
// A pre-release sorts before the release it precedes.
func (v *Version) Compare(other *Version) int {
	n := max(len(v.Release), len(other.Release))
	for i := 0; i < n; i++ {
		a, b := component(v.Release, i), component(other.Release, i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

func component(r []int, i int) int {
	if i < len(r) {
		return r[i]
	}
	return 0
}

// comparePrerelease compares dot-separated identifiers, numerically when
// both are numbers.
func comparePrerelease(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

// Range is an inclusive compatibility range. A nil bound is unchecked.
type Range struct {
	Min *Version
	Max *Version
}

// ParseRange parses a range from its two bounds; an empty string leaves that
// bound unset.
func ParseRange(min, max string) (Range, error) {
	var r Range
	var err error
	if strings.TrimSpace(min) != "" {
		if r.Min, err = Parse(min); err != nil {
			return Range{}, fmt.Errorf("min: %w", err)
		}
	}
	if strings.TrimSpace(max) != "" {
		if r.Max, err = Parse(max); err != nil {
			return Range{}, fmt.Errorf("max: %w", err)
		}
	}
	return r, nil
}

// Declared reports whether at least one bound is set.
func (r Range) Declared() bool {
	return r.Min != nil || r.Max != nil
}

// Contains reports whether min <= v <= max for every declared bound.
// A degenerate range (min > max) contains nothing.
func (r Range) Contains(v *Version) bool {
	if r.Min != nil && r.Max != nil && r.Min.Compare(r.Max) > 0 {
		return false
	}
	if r.Min != nil && v.Compare(r.Min) < 0 {
		return false
	}
	if r.Max != nil && v.Compare(r.Max) > 0 {
		return false
	}
	return true
}
