// Package release drives a release of a project, from its series to the distributed tarball.
//
// A release runs the following steps in order, each one fatal on error:
//
//	validate  the series is accepted by the project policy
//	clone     the repositories are cloned and the series branch looked up
//	resolve   the version to release is derived from the branch and its latest tag
//	commit    the changelog and the version markers are committed and tagged
//	publish   the branch and its tags are pushed once the operator agrees
//	host      hosted releases are created with the release notes
//	build     the release job runs on the CI server
//	artifact  the tarball is fetched, checksummed, signed and uploaded
//
// Rebuilds skip commit and publish. Once the tag is pushed, failures of
// individual hosted mirrors are logged and do not stop the release.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/variantdev/reml/pkg/artifact"
	"github.com/variantdev/reml/pkg/changelog"
	"github.com/variantdev/reml/pkg/ci"
	"github.com/variantdev/reml/pkg/gitops"
	"github.com/variantdev/reml/pkg/gitrepo"
	"github.com/variantdev/reml/pkg/operator"
	"github.com/variantdev/reml/pkg/project"
	"github.com/variantdev/reml/pkg/semver"
	"github.com/variantdev/reml/pkg/telemetry"
	"k8s.io/klog/v2"
)

const (
	StepValidate = "validate"
	StepClone    = "clone"
	StepResolve  = "resolve"
	StepCommit   = "commit"
	StepPublish  = "publish"
	StepHost     = "host"
	StepBuild    = "build"
	StepArtifact = "artifact"
)

type Orchestrator struct {
	Logger logr.Logger

	policy    *project.Policy
	repo      SourceRepository
	builds    BuildService
	host      ReleaseHost
	artifacts ArtifactStore
	operator  operator.Operator
	metrics   *telemetry.Metrics
	now       func() time.Time

	gitURLs        []string
	uploadLocation string
}

func New(policy *project.Policy, opts ...Option) (*Orchestrator, error) {
	if policy == nil {
		return nil, errors.New("no project policy")
	}

	o := &Orchestrator{policy: policy}

	for _, opt := range opts {
		if err := opt.SetOption(o); err != nil {
			return nil, err
		}
	}

	if o.Logger.GetSink() == nil {
		o.Logger = klog.NewKlogr()
	}

	if len(o.gitURLs) == 0 {
		return nil, fmt.Errorf("no repository url for %s", policy.Name())
	}
	if o.builds == nil {
		return nil, errors.New("no build service")
	}
	if o.artifacts == nil {
		return nil, errors.New("no artifact store")
	}

	if o.repo == nil {
		o.repo = gitops.New(gitops.Logger(o.Logger))
	}
	if o.operator == nil {
		o.operator = operator.NewTerminal()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.metrics != nil && o.metrics.IsAbort == nil {
		o.metrics.IsAbort = func(err error) bool {
			return errors.Is(err, ErrAbortedRelease)
		}
	}

	return o, nil
}

// BranchName is the branch holding the releases of a series.
func BranchName(series string) string {
	return "stable-" + series
}

// run is the state accumulated by the steps of one release.
type run struct {
	req Request

	path   string
	branch string
	exists bool

	version semver.Version
	tag     string
	prevTag string

	// section is the changelog section committed by the release. It is left empty by rebuilds.
	section *changelog.Section

	targets []gitrepo.Ref
}

// Release runs a release of the project. The artifact store is closed on return.
func (o *Orchestrator) Release(ctx context.Context, req Request) (*Descriptor, error) {
	defer func() {
		if err := o.artifacts.Close(); err != nil {
			o.Logger.Error(err, "removing artifact directory failed")
		}
	}()

	r := &run{req: req, branch: BranchName(req.Series)}

	if err := o.step(StepValidate, func() error { return o.validate(req) }); err != nil {
		return nil, err
	}

	if err := o.step(StepClone, func() error { return o.acquire(r) }); err != nil {
		return nil, err
	}

	if err := o.step(StepResolve, func() error { return o.resolve(r) }); err != nil {
		return nil, err
	}

	if !req.Rebuild {
		if err := o.step(StepCommit, func() error { return o.commitAndTag(r) }); err != nil {
			return nil, err
		}

		if err := o.step(StepPublish, func() error { return o.publish(r) }); err != nil {
			return nil, err
		}
	}

	if err := o.step(StepHost, func() error { return o.publishHostedReleases(ctx, r) }); err != nil {
		return nil, err
	}

	var selected *ci.Artifact
	err := o.step(StepBuild, func() error {
		var err error
		selected, err = o.build(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := o.step(StepArtifact, func() error { return o.distribute(ctx, r, selected) }); err != nil {
		return nil, err
	}

	return &Descriptor{
		ProjectName:    o.policy.Name(),
		Version:        r.version,
		RepositoryPath: r.path,
	}, nil
}

func (o *Orchestrator) step(name string, f func() error) error {
	if o.metrics == nil {
		return f()
	}

	done := o.metrics.Step(o.policy.ID(), name)
	err := f()
	done(err)

	return err
}

func (o *Orchestrator) validate(req Request) error {
	if !o.policy.IsSeriesValid(req.Series) {
		return &InvalidReleaseSeriesError{Project: o.policy.Name(), Series: req.Series}
	}

	switch req.Type {
	case semver.Stable, semver.ReleaseCandidate:
		return nil
	}
	return fmt.Errorf("unsupported release type %s", req.Type)
}

func (o *Orchestrator) acquire(r *run) error {
	path, err := o.repo.Clone(o.gitURLs)
	if err != nil {
		return err
	}
	r.path = path

	r.exists, err = o.repo.BranchExists(r.branch)
	return err
}

func (o *Orchestrator) resolve(r *run) error {
	switch {
	case r.req.Rebuild:
		if !r.exists {
			return &InvalidReleaseRebuildOptionError{Branch: r.branch}
		}

		if err := o.repo.Checkout(r.branch, false); err != nil {
			return err
		}

		tag, err := o.repo.LatestTagName()
		if err != nil {
			return err
		}

		r.version, err = semver.ParseTag(tag)
		if err != nil {
			return err
		}
		r.tag = tag

		if r.prevTag, err = o.repo.PreviousTagName(tag); err != nil {
			o.Logger.V(1).Info("no tag precedes the rebuilt one", "tag", tag, "err", err.Error())
			r.prevTag = ""
		}

		o.Logger.Info("rebuilding artifact", "version", r.version.String())
	case !r.exists:
		o.Logger.Info("branch does not exist", "branch", r.branch)

		if r.req.Type != semver.ReleaseCandidate {
			return &InvalidReleaseTypeError{Series: r.req.Series, Type: r.req.Type.String()}
		}

		v, err := semver.FirstCandidate(r.req.Series)
		if err != nil {
			return err
		}
		r.version = v
		r.tag = v.Tag()

		// The new branch forks from the default branch, whose latest tag bounds the changelog.
		if tag, err := o.repo.LatestTagName(); err != nil {
			o.Logger.V(1).Info("no tag on the default branch", "err", err.Error())
		} else {
			r.prevTag = tag
		}
	default:
		o.Logger.Info("branch already exists", "branch", r.branch)

		if err := o.repo.Checkout(r.branch, false); err != nil {
			return err
		}

		tag, err := o.repo.LatestTagName()
		if err != nil {
			return err
		}

		latest, err := semver.ParseTag(tag)
		if err != nil {
			return err
		}

		r.version = latest.Next(r.req.Type)
		r.tag = r.version.Tag()
		r.prevTag = tag

		o.Logger.Info("updating version", "from", latest.String(), "to", r.version.String())
	}

	return nil
}

func (o *Orchestrator) commitAndTag(r *run) error {
	entries, err := o.repo.CommitsSinceTag(r.prevTag)
	if err != nil {
		return err
	}

	r.section = &changelog.Section{
		Date:    o.now(),
		Project: o.policy.ChangelogName(),
		Version: r.version.String(),
		Tagline: r.req.Tagline,
		Entries: entries,
	}

	o.Logger.Info("updating changelog", "file", o.policy.Changelog(), "entries", len(entries))

	if err := o.repo.PrependChangelog(o.policy.Changelog(), r.section.String()); err != nil {
		return err
	}

	config, err := o.repo.ReadFile(o.policy.BuildConfig())
	if err != nil {
		return err
	}

	name, err := o.policy.ReleaseName(config)
	if err != nil {
		return err
	}

	plan, err := o.policy.ComposeReleaseCommitAndTag(r.version, name)
	if err != nil {
		return err
	}

	sign := !r.req.NoSign

	if err := o.commit(plan.Release, sign); err != nil {
		return err
	}

	if err := o.repo.Tag(plan.TagName, plan.TagMessage, sign); err != nil {
		return err
	}
	r.tag = plan.TagName

	if plan.FollowUp != nil {
		if err := o.commit(*plan.FollowUp, sign); err != nil {
			return err
		}
	}

	if !r.exists {
		return o.repo.Checkout(r.branch, true)
	}
	return nil
}

func (o *Orchestrator) commit(c project.PlannedCommit, signoff bool) error {
	if c.Rewrite != nil {
		name := o.policy.BuildConfig()

		text, err := o.repo.ReadFile(name)
		if err != nil {
			return err
		}

		text, err = o.policy.RewriteVersion(text, *c.Rewrite)
		if err != nil {
			return err
		}

		if err := o.repo.WriteFile(name, text); err != nil {
			return err
		}
	}

	if err := o.repo.Add(c.Files...); err != nil {
		return err
	}
	return o.repo.Commit(c.Message, signoff)
}

func (o *Orchestrator) publish(r *run) error {
	ok, err := o.operator.Confirm(fmt.Sprintf("Publish tree at %s?", r.path))
	if err != nil {
		return err
	}
	if !ok {
		return abort("publication declined", nil)
	}
	if r.req.Dry {
		return abort("dry run", nil)
	}

	o.Logger.Info("pushing new release", "branch", r.branch, "tag", r.tag)

	return o.repo.Push(r.branch, true)
}

type hostedRepository struct {
	ref gitrepo.Ref
	url string
}

func (o *Orchestrator) publishHostedReleases(ctx context.Context, r *run) error {
	if o.host == nil {
		return nil
	}

	r.targets = o.hostedTargets()

	var pending []hostedRepository
	for _, ref := range r.targets {
		has, err := o.host.HasRelease(ctx, ref, r.tag)
		if err != nil {
			o.Logger.Error(err, "looking up hosted release failed", "repository", ref.String(), "tag", r.tag)
			continue
		}
		if has {
			o.Logger.V(1).Info("hosted release already exists", "repository", ref.String(), "tag", r.tag)
			continue
		}

		u, err := o.host.RepositoryURL(ctx, ref)
		if err != nil {
			o.Logger.Error(err, "looking up hosted repository failed", "repository", ref.String())
			continue
		}
		pending = append(pending, hostedRepository{ref: ref, url: u})
	}

	if len(pending) == 0 || r.req.Dry {
		return nil
	}

	urls := make([]string, 0, len(pending))
	for _, p := range pending {
		urls = append(urls, p.url)
	}

	ok, err := o.operator.Confirm(fmt.Sprintf("Create GitHub releases at %s?", strings.Join(urls, ", ")))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	notes, err := o.notes(r, pending[0].url)
	if err != nil {
		return err
	}

	edited, err := o.operator.Edit(notes)
	if err != nil {
		o.Logger.Error(err, "editing release notes failed, keeping them unchanged")
	} else {
		notes = edited
	}

	prerelease := r.req.Type != semver.Stable

	for _, p := range pending {
		o.Logger.Info("creating hosted release", "url", p.url, "tag", r.tag, "prerelease", prerelease)

		if _, err := o.host.CreateRelease(ctx, p.ref, r.tag, notes, prerelease); err != nil {
			o.Logger.Error(err, "creating hosted release failed", "url", p.url)
		}
	}

	return nil
}

func (o *Orchestrator) hostedTargets() []gitrepo.Ref {
	var refs []gitrepo.Ref
	for _, u := range o.gitURLs {
		if !gitrepo.IsHosted(u) {
			continue
		}

		ref, err := gitrepo.ParseRepositoryURL(u)
		if err != nil {
			o.Logger.Error(err, "ignoring hosted repository")
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (o *Orchestrator) notes(r *run, repoURL string) (string, error) {
	section := r.section
	if section == nil {
		s, err := o.rebuiltSection(r)
		if err != nil {
			return "", err
		}
		section = s
	}

	prevVersion := strings.TrimPrefix(r.prevTag, "v")
	if v, err := semver.ParseTag(r.prevTag); err == nil {
		prevVersion = v.String()
	}

	return o.policy.RenderReleaseNotes(project.NotesData{
		Name:               o.policy.Name(),
		ChangelogName:      o.policy.ChangelogName(),
		Tagline:            r.req.Tagline,
		Tag:                r.tag,
		Version:            r.version.String(),
		Series:             r.version.Series(),
		PreviousTag:        r.prevTag,
		PreviousVersion:    prevVersion,
		RepoURL:            repoURL,
		Changelog:          section.String(),
		ReleaseDescription: o.policy.ReleaseDescription(r.version),
	})
}

// rebuiltSection lists the commits between the previous tag and the rebuilt one.
func (o *Orchestrator) rebuiltSection(r *run) (*changelog.Section, error) {
	s := &changelog.Section{
		Date:    o.now(),
		Project: o.policy.ChangelogName(),
		Version: r.version.String(),
		Tagline: r.req.Tagline,
	}

	if r.prevTag == "" {
		return s, nil
	}

	all, err := o.repo.CommitsSinceTag(r.prevTag)
	if err != nil {
		return nil, err
	}

	newer, err := o.repo.CommitsSinceTag(r.tag)
	if err != nil {
		return nil, err
	}

	if len(newer) <= len(all) {
		s.Entries = all[len(newer):]
	}

	return s, nil
}

func (o *Orchestrator) build(ctx context.Context, r *run) (*ci.Artifact, error) {
	name, err := o.policy.CIJobName(r.version)
	if err != nil {
		return nil, err
	}

	var res *ci.BuildResult
	if r.req.ReuseLastBuildArtifacts {
		o.Logger.Info("getting last build", "job", name)
		res, err = o.builds.LastSuccessfulBuild(ctx, name)
	} else {
		res, err = o.runJob(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	if err := ci.Accept(res); err != nil {
		return nil, abort(err.Error(), err)
	}

	a, err := ci.SelectArtifact(res, r.version.String())
	if err != nil {
		return nil, abort("unexpected artifacts generated by the release job", err)
	}

	o.Logger.Info("build succeeded", "job", name, "number", res.Build.Number, "result", res.Result, "artifact", a.FileName)

	return a, nil
}

func (o *Orchestrator) runJob(ctx context.Context, name string) (*ci.BuildResult, error) {
	o.Logger.Info("launching build job", "job", name)

	job, err := o.builds.FindOrCreateJob(ctx, name)
	if err != nil {
		return nil, err
	}

	queued, err := o.builds.Invoke(ctx, job)
	if err != nil {
		return nil, err
	}

	o.Logger.Info("waiting for job to be scheduled", "job", name)

	build, err := o.builds.AwaitScheduled(ctx, queued)
	if err != nil {
		return nil, err
	}

	return o.builds.AwaitCompletion(ctx, build, func(p ci.Progress) {
		o.Logger.Info("building",
			"job", name,
			"on", p.BuiltOn,
			"elapsed", p.Elapsed.Round(time.Second).String(),
			"estimated", p.Estimated.Round(time.Second).String(),
		)
	})
}

func (o *Orchestrator) distribute(ctx context.Context, r *run, selected *ci.Artifact) error {
	a, err := o.artifacts.Fetch(ctx, selected.FileName, selected.URL)
	if err != nil {
		return err
	}

	if err := o.artifacts.Digest(a); err != nil {
		return err
	}

	if !r.req.NoSign {
		if err := o.artifacts.Sign(a); err != nil {
			return declined(err)
		}
	}

	if err := o.artifacts.Upload(a, o.uploadLocation); err != nil {
		return declined(err)
	}

	if o.host != nil && len(r.targets) > 0 {
		if err := o.artifacts.UploadToHost(ctx, o.host, r.targets, r.tag, a); err != nil {
			o.Logger.Error(err, "uploading to hosted releases failed")
		}
	}

	return nil
}

func declined(err error) error {
	var d *artifact.ToolDeclinedError
	if errors.As(err, &d) {
		return abort(d.Error(), err)
	}
	return err
}
