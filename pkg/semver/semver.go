package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sv "github.com/Masterminds/semver/v3"
)

// Version is a release version as it appears in release tags.
// An RC of zero means the version is not a release candidate.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	RC    uint64
}

type MalformedTagError struct {
	Tag string
}

func (e *MalformedTagError) Error() string {
	return fmt.Sprintf("malformed release tag %q: expected vMAJOR.MINOR.PATCH or vMAJOR.MINOR.PATCH-rcN", e.Tag)
}

type InvalidSeriesError struct {
	Series string
}

func (e *InvalidSeriesError) Error() string {
	return fmt.Sprintf("invalid release series %q: expected MAJOR.MINOR", e.Series)
}

var (
	tagRegex    = regexp.MustCompile(`^v([0-9]+)\.([0-9]+)\.([0-9]+)(?:-rc([0-9]+))?$`)
	seriesRegex = regexp.MustCompile(`^([0-9]+)\.([0-9]+)$`)
)

// ParseTag parses tags of the form vX.Y.Z and vX.Y.Z-rcN.
func ParseTag(tag string) (Version, error) {
	m := tagRegex.FindStringSubmatch(tag)
	if m == nil {
		return Version{}, &MalformedTagError{Tag: tag}
	}

	nums := make([]uint64, 4)
	for i, s := range m[1:] {
		if s == "" {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Version{}, &MalformedTagError{Tag: tag}
		}
		nums[i] = n
	}

	if m[4] != "" && nums[3] == 0 {
		return Version{}, &MalformedTagError{Tag: tag}
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], RC: nums[3]}, nil
}

// ParseSeries parses a MAJOR.MINOR release series into a version with a zero patch.
func ParseSeries(series string) (Version, error) {
	m := seriesRegex.FindStringSubmatch(strings.TrimSpace(series))
	if m == nil {
		return Version{}, &InvalidSeriesError{Series: series}
	}

	major, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Version{}, &InvalidSeriesError{Series: series}
	}

	minor, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return Version{}, &InvalidSeriesError{Series: series}
	}

	return Version{Major: major, Minor: minor}, nil
}

// FirstCandidate returns X.Y.0-rc1 for the series X.Y.
func FirstCandidate(series string) (Version, error) {
	v, err := ParseSeries(series)
	if err != nil {
		return Version{}, err
	}
	v.RC = 1
	return v, nil
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.HasRC() {
		s += fmt.Sprintf("-rc%d", v.RC)
	}
	return s
}

func (v Version) Tag() string {
	return "v" + v.String()
}

func (v Version) Series() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v Version) HasRC() bool {
	return v.RC > 0
}

// WithPatch returns a final (non-candidate) version of the same series with the given patch.
func (v Version) WithPatch(patch uint64) Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: patch}
}

// Compare returns -1, 0 or 1. A release candidate sorts before the final
// release with the same major, minor and patch.
func (v Version) Compare(o Version) int {
	for _, p := range [][2]uint64{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}} {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}

	switch {
	case v.RC == o.RC:
		return 0
	case !v.HasRC():
		return 1
	case !o.HasRC():
		return -1
	case v.RC < o.RC:
		return -1
	default:
		return 1
	}
}

func (v Version) LessThan(o Version) bool {
	return v.Compare(o) < 0
}

// Next computes the version following v in the same series.
//
// A candidate resets the patch to 0 and bumps the rc number. A stable release
// following a candidate is the .0 release of the series. Otherwise a stable
// release bumps the patch.
func (v Version) Next(t ReleaseType) Version {
	switch t {
	case ReleaseCandidate:
		return Version{Major: v.Major, Minor: v.Minor, Patch: 0, RC: v.RC + 1}
	default:
		if v.HasRC() {
			return v.WithPatch(0)
		}
		return v.WithPatch(v.Patch + 1)
	}
}

// Constraint restricts the release series a project accepts.
type Constraint struct {
	c   *sv.Constraints
	raw string
}

func NewConstraint(s string) (*Constraint, error) {
	c, err := sv.NewConstraint(s)
	if err != nil {
		return nil, fmt.Errorf("parsing series constraint %q: %w", s, err)
	}
	return &Constraint{c: c, raw: s}, nil
}

func (c *Constraint) Check(v Version) bool {
	sver := sv.New(v.Major, v.Minor, v.Patch, "", "")
	return c.c.Check(sver)
}

func (c *Constraint) String() string {
	return c.raw
}
