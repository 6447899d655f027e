package semver

import (
	"fmt"
	"strings"
)

type ReleaseType int

const (
	Stable ReleaseType = iota + 1
	ReleaseCandidate
)

func ParseReleaseType(s string) (ReleaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stable":
		return Stable, nil
	case "candidate":
		return ReleaseCandidate, nil
	}
	return 0, fmt.Errorf("unsupported release type %q: must be one of stable, candidate", s)
}

func (t ReleaseType) String() string {
	switch t {
	case Stable:
		return "stable"
	case ReleaseCandidate:
		return "candidate"
	}
	return fmt.Sprintf("ReleaseType(%d)", int(t))
}
