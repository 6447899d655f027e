package ci

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	Success  Status = "SUCCESS"
	Unstable Status = "UNSTABLE"
	Failure  Status = "FAILURE"
	Other    Status = "OTHER"
)

func classify(result string) Status {
	switch Status(strings.ToUpper(result)) {
	case Success:
		return Success
	case Unstable:
		return Unstable
	case Failure:
		return Failure
	}
	return Other
}

type Job struct {
	Name string
	URL  string
}

// QueuedBuild is a build request waiting in the CI queue.
type QueuedBuild struct {
	Job      Job
	QueueURL string
}

type Build struct {
	Job    Job
	Number int
	URL    string
}

type Artifact struct {
	FileName     string
	RelativePath string
	URL          string
}

type BuildResult struct {
	Build             Build
	Status            Status
	Result            string
	EstimatedDuration time.Duration
	BuiltOn           string
	Artifacts         []Artifact
}

// Progress is reported while a build runs.
type Progress struct {
	Elapsed   time.Duration
	Estimated time.Duration
	BuiltOn   string
}

// ConnectionError is a transient failure to reach the CI server.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type BuildFailedError struct {
	Build  Build
	Result string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build %s #%d failed with status %q", e.Build.Job.Name, e.Build.Number, e.Result)
}

type ArtifactNotFoundError struct {
	Version   string
	Artifacts []string
}

func (e *ArtifactNotFoundError) Error() string {
	if len(e.Artifacts) == 0 {
		return fmt.Sprintf("no release tarball for version %s: the build produced no artifacts", e.Version)
	}
	return fmt.Sprintf("no release tarball for version %s among build artifacts: %s", e.Version, strings.Join(e.Artifacts, ", "))
}

// AmbiguousArtifactError is returned when several artifacts look like the release tarball.
type AmbiguousArtifactError struct {
	Version   string
	Artifacts []string
}

func (e *AmbiguousArtifactError) Error() string {
	return fmt.Sprintf("several release tarballs for version %s: %s", e.Version, strings.Join(e.Artifacts, ", "))
}

type QueueItemCancelledError struct {
	QueueURL string
}

func (e *QueueItemCancelledError) Error() string {
	return fmt.Sprintf("queued build %s was cancelled", e.QueueURL)
}
