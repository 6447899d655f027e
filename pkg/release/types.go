package release

import (
	"context"

	"github.com/google/go-github/v57/github"
	"github.com/variantdev/reml/pkg/artifact"
	"github.com/variantdev/reml/pkg/ci"
	"github.com/variantdev/reml/pkg/gitops"
	"github.com/variantdev/reml/pkg/gitrepo"
	"github.com/variantdev/reml/pkg/semver"
)

// Request describes the release asked for by the operator.
type Request struct {
	Series  string
	Type    semver.ReleaseType
	Tagline string

	// Dry stops the release at the publish gate.
	Dry bool

	// Rebuild produces the artifacts of the latest tag of the series again.
	Rebuild bool

	// NoSign disables commit signoff, tag signing and artifact signing.
	NoSign bool

	ReuseLastBuildArtifacts bool
}

// Descriptor is the outcome of a successful release.
type Descriptor struct {
	ProjectName    string
	Version        semver.Version
	RepositoryPath string
}

func (d *Descriptor) Name() string {
	return d.ProjectName + " " + d.Version.String()
}

// SourceRepository is the clone a release is prepared in.
type SourceRepository interface {
	Clone(urls []string) (string, error)
	BranchExists(name string) (bool, error)
	Checkout(branch string, create bool) error
	LatestTagName() (string, error)
	PreviousTagName(tag string) (string, error)
	CommitsSinceTag(tag string) ([]string, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	PrependChangelog(name, text string) error
	Add(files ...string) error
	Commit(msg string, signoff bool) error
	Tag(name, msg string, sign bool) error
	Push(branch string, tags bool) error
}

// BuildService runs the release jobs producing the tarballs.
type BuildService interface {
	FindOrCreateJob(ctx context.Context, name string) (*ci.Job, error)
	Invoke(ctx context.Context, job *ci.Job) (*ci.QueuedBuild, error)
	AwaitScheduled(ctx context.Context, queued *ci.QueuedBuild) (*ci.Build, error)
	AwaitCompletion(ctx context.Context, build *ci.Build, progress func(ci.Progress)) (*ci.BuildResult, error)
	LastSuccessfulBuild(ctx context.Context, name string) (*ci.BuildResult, error)
}

// ReleaseHost publishes release notes and assets next to the hosted mirrors of the repository.
type ReleaseHost interface {
	artifact.ReleaseHost

	RepositoryURL(ctx context.Context, ref gitrepo.Ref) (string, error)
	HasRelease(ctx context.Context, ref gitrepo.Ref, tag string) (bool, error)
	CreateRelease(ctx context.Context, ref gitrepo.Ref, tag, body string, prerelease bool) (*github.RepositoryRelease, error)
}

// ArtifactStore prepares and distributes the release tarball.
type ArtifactStore interface {
	Fetch(ctx context.Context, fileName, url string) (*artifact.Artifact, error)
	Digest(a *artifact.Artifact) error
	Sign(a *artifact.Artifact) error
	Upload(a *artifact.Artifact, location string) error
	UploadToHost(ctx context.Context, host artifact.ReleaseHost, targets []gitrepo.Ref, tag string, a *artifact.Artifact) error
	Close() error
}

var (
	_ SourceRepository = &gitops.Client{}
	_ ArtifactStore    = &artifact.Handler{}
	_ ReleaseHost      = &gitrepo.Client{}
	_ BuildService     = &ci.Client{}
)
