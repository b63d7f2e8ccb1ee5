// Package versioning parses semantic versions and decides whether a
// manifest's declared version is compatible with the running tool.
package versioning

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Comparison int

const (
	ComparisonUnknown Comparison = iota
	ComparisonLess
	ComparisonEqual
	ComparisonGreater
)

var semverPattern = regexp.MustCompile(`^(?:[vV])?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?(?:\+([0-9A-Za-z.-]+))?$`)

type identifier struct {
	raw     string
	numeric bool
	num     int
}

// Version is a parsed SemVer 2.0.0 value.
type Version struct {
	Major int
	Minor int
	Patch int
	pre   []identifier
	Build string
	raw   string
}

// String returns the version as it was written.
func (v *Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.pre) > 0 {
		parts := make([]string, len(v.pre))
		for i, p := range v.pre {
			parts[i] = p.raw
		}
		s += "-" + strings.Join(parts, ".")
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Prerelease returns the dot-joined pre-release identifiers, if any.
func (v *Version) Prerelease() string {
	parts := make([]string, len(v.pre))
	for i, p := range v.pre {
		parts[i] = p.raw
	}
	return strings.Join(parts, ".")
}

// Parse parses MAJOR.MINOR.PATCH with optional pre-release and build suffixes.
// A leading "v" is tolerated.
func Parse(input string) (*Version, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, errors.New("empty version")
	}

	matches := semverPattern.FindStringSubmatch(trimmed)
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid format %q: expected MAJOR.MINOR.PATCH", trimmed)
	}

	segments := [3]int{}
	names := [3]string{"major", "minor", "patch"}
	for i := 0; i < 3; i++ {
		raw := matches[i+1]
		if len(raw) > 1 && strings.HasPrefix(raw, "0") {
			return nil, fmt.Errorf("invalid %s segment: leading zeros not allowed", names[i])
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("segment '%s': %w", raw, err)
		}
		segments[i] = n
	}

	version := &Version{
		Major: segments[0],
		Minor: segments[1],
		Patch: segments[2],
		raw:   trimmed,
	}

	if prerelease := matches[4]; prerelease != "" {
		parts := strings.Split(prerelease, ".")
		version.pre = make([]identifier, len(parts))
		for i, part := range parts {
			if part == "" {
				return nil, fmt.Errorf("invalid prerelease identifier: empty segment")
			}
			if isNumeric(part) {
				if len(part) > 1 && strings.HasPrefix(part, "0") {
					return nil, fmt.Errorf("invalid prerelease identifier: leading zeros not allowed")
				}
				num, err := strconv.Atoi(part)
				if err != nil {
					return nil, fmt.Errorf("invalid prerelease identifier '%s': %w", part, err)
				}
				version.pre[i] = identifier{raw: part, numeric: true, num: num}
			} else {
				version.pre[i] = identifier{raw: part}
			}
		}
	}

	if build := matches[5]; build != "" {
		for _, part := range strings.Split(build, ".") {
			if part == "" {
				return nil, fmt.Errorf("invalid build identifier: empty segment")
			}
		}
		version.Build = build
	}

	return version, nil
}

// Compare orders two version strings by SemVer precedence. Build
// metadata is ignored.
func Compare(a, b string) (Comparison, error) {
	av, err := Parse(a)
	if err != nil {
		return ComparisonUnknown, fmt.Errorf("invalid semver '%s': %w", a, err)
	}
	bv, err := Parse(b)
	if err != nil {
		return ComparisonUnknown, fmt.Errorf("invalid semver '%s': %w", b, err)
	}
	return compareVersions(av, bv), nil
}

func compareInts(a, b int) Comparison {
	switch {
	case a < b:
		return ComparisonLess
	case a > b:
		return ComparisonGreater
	default:
		return ComparisonEqual
	}
}

func compareVersions(a, b *Version) Comparison {
	if c := compareInts(a.Major, b.Major); c != ComparisonEqual {
		return c
	}
	if c := compareInts(a.Minor, b.Minor); c != ComparisonEqual {
		return c
	}
	if c := compareInts(a.Patch, b.Patch); c != ComparisonEqual {
		return c
	}

	if len(a.pre) == 0 && len(b.pre) == 0 {
		return ComparisonEqual
	}
	if len(a.pre) == 0 {
		return ComparisonGreater
	}
	if len(b.pre) == 0 {
		return ComparisonLess
	}

	limit := len(a.pre)
	if len(b.pre) < limit {
		limit = len(b.pre)
	}
	for i := 0; i < limit; i++ {
		ai, bi := a.pre[i], b.pre[i]
		switch {
		case ai.numeric && bi.numeric:
			if c := compareInts(ai.num, bi.num); c != ComparisonEqual {
				return c
			}
		case ai.numeric:
			return ComparisonLess
		case bi.numeric:
			return ComparisonGreater
		default:
			if cmp := strings.Compare(ai.raw, bi.raw); cmp != 0 {
				if cmp < 0 {
					return ComparisonLess
				}
				return ComparisonGreater
			}
		}
	}
	return compareInts(len(a.pre), len(b.pre))
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Verdict is the outcome of a compatibility check.
type Verdict int

const (
	Compatible Verdict = iota
	// Newer means same MAJOR but ahead of the tool; callers warn and continue.
	Newer
	MajorMismatch
	TooOld
)

// Policy describes the manifest versions a tool build understands.
type Policy struct {
	Minimum string
	Current string
}

// Check evaluates declared against the policy.
func (p Policy) Check(declared string) (Verdict, error) {
	dv, err := Parse(declared)
	if err != nil {
		return MajorMismatch, err
	}
	cur, err := Parse(p.Current)
	if err != nil {
		return MajorMismatch, fmt.Errorf("tool version policy: %w", err)
	}
	if dv.Major != cur.Major {
		return MajorMismatch, nil
	}
	if p.Minimum != "" {
		cmp, err := Compare(declared, p.Minimum)
		if err != nil {
			return MajorMismatch, fmt.Errorf("tool version policy: %w", err)
		}
		if cmp == ComparisonLess {
			return TooOld, nil
		}
	}
	if compareVersions(dv, cur) == ComparisonGreater {
		return Newer, nil
	}
	return Compatible, nil
}
