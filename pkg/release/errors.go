package release

import (
	"errors"
	"fmt"
)

// ErrAbortedRelease matches every AbortedReleaseError.
var ErrAbortedRelease = errors.New("release aborted")

type InvalidReleaseSeriesError struct {
	Project string
	Series  string
}

func (e *InvalidReleaseSeriesError) Error() string {
	return fmt.Sprintf("invalid release series `%s` for %s", e.Series, e.Project)
}

// InvalidReleaseTypeError is returned when a new series is not started with a release candidate.
type InvalidReleaseTypeError struct {
	Series string
	Type   string
}

func (e *InvalidReleaseTypeError) Error() string {
	return fmt.Sprintf("a new release series must start with a release candidate: got a %s release of %s", e.Type, e.Series)
}

type InvalidReleaseRebuildOptionError struct {
	Branch string
}

func (e *InvalidReleaseRebuildOptionError) Error() string {
	return fmt.Sprintf("cannot rebuild: branch `%s` does not exist", e.Branch)
}

// AbortedReleaseError stops a release on the operator's request, in dry runs,
// and when the build does not produce a usable tarball.
type AbortedReleaseError struct {
	Reason string
	Err    error
}

func (e *AbortedReleaseError) Error() string {
	return "release aborted: " + e.Reason
}

func (e *AbortedReleaseError) Unwrap() error {
	return e.Err
}

func (e *AbortedReleaseError) Is(target error) bool {
	return target == ErrAbortedRelease
}

func abort(reason string, err error) error {
	return &AbortedReleaseError{Reason: reason, Err: err}
}
