package project

import "github.com/variantdev/reml/pkg/semver"

// Catalogue is the document shape of projects.yaml.
type Catalogue struct {
	Projects []Spec `yaml:"projects"`
}

// Spec declares the release conventions of one project.
// Optional fields are resolved by Compile.
type Spec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// ChangelogName is the name used in ChangeLog titles and release notes. Defaults to Name.
	ChangelogName string `yaml:"changelogName,omitempty"`

	// Series is a semver constraint every release series of the project must satisfy.
	Series string `yaml:"series"`

	// JobName is a template over JobData naming the CI release job.
	JobName string `yaml:"jobName,omitempty"`

	// BuildConfig is the repository-relative path of the file holding the version markers.
	BuildConfig string `yaml:"buildConfig,omitempty"`

	// Changelog is the repository-relative path of the changelog.
	Changelog string `yaml:"changelog,omitempty"`

	Markers []MarkerSpec `yaml:"markers"`

	// ReleaseName extracts the release name from the build config.
	// The first capture group of the pattern is the name.
	ReleaseName string `yaml:"releaseName,omitempty"`

	Release        CommitSpec  `yaml:"release"`
	WorkingVersion *CommitSpec `yaml:"workingVersion,omitempty"`

	// ReleaseTemplate is a template over NotesData. Defaults to Name.
	ReleaseTemplate string `yaml:"releaseTemplate,omitempty"`

	// ReleaseDescriptions maps a full version, a series or a major version to free text.
	ReleaseDescriptions map[string]string `yaml:"releaseDescriptions,omitempty"`
}

// MarkerSpec locates a version declaration in the build config.
type MarkerSpec struct {
	Pattern string `yaml:"pattern"`

	// Replacement is a template over VersionData, expanded as a regexp template afterwards,
	// so ${1} refers to the first capture group of Pattern.
	Replacement string `yaml:"replacement"`

	// Limit caps the number of replaced matches. Zero replaces every match.
	Limit int `yaml:"limit,omitempty"`
}

// CommitSpec describes a commit created by a release, and optionally its tag.
type CommitSpec struct {
	// Files are added to the index before committing.
	Files []string `yaml:"files"`

	// RewriteVersion rewrites the version markers before adding Files.
	RewriteVersion bool `yaml:"rewriteVersion,omitempty"`

	Message    string `yaml:"message"`
	Tag        string `yaml:"tag,omitempty"`
	TagMessage string `yaml:"tagMessage,omitempty"`
}

// VersionData is the data available to marker replacements and commit templates.
type VersionData struct {
	Name        string
	Version     string
	Tag         string
	Series      string
	Major       uint64
	Minor       uint64
	Patch       uint64
	RC          uint64
	ReleaseName string
}

// JobData is the data available to the CI job name template.
type JobData struct {
	Name   string
	Series string
}

// NotesData is the data available to the release notes template.
type NotesData struct {
	Name               string
	ChangelogName      string
	Tagline            string
	Tag                string
	Version            string
	Series             string
	PreviousTag        string
	PreviousVersion    string
	RepoURL            string
	Changelog          string
	ReleaseDescription string
}

// PlannedCommit is a commit to create in the release branch.
type PlannedCommit struct {
	// Rewrite, when set, is the version written to the build config markers before staging Files.
	Rewrite *semver.Version
	Files   []string
	Message string
}

// CommitPlan is the set of commits and the tag a release creates.
// The tag points at the Release commit. FollowUp, when set, is committed after tagging.
type CommitPlan struct {
	Release    PlannedCommit
	TagName    string
	TagMessage string
	FollowUp   *PlannedCommit
}
