package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/variantdev/reml/pkg/artifact"
	"github.com/variantdev/reml/pkg/ci"
	"github.com/variantdev/reml/pkg/gitrepo"
	"github.com/variantdev/reml/pkg/operator"
	"github.com/variantdev/reml/pkg/project"
	"github.com/variantdev/reml/pkg/semver"
	"github.com/variantdev/reml/pkg/telemetry"
)

const (
	lttngConfigure = "AC_PREREQ([2.64])\nAC_INIT([lttng-tools],[2.13.4],[jeremie.galarneau@efficios.com],[],[https://lttng.org])\n"

	babeltraceConfigure = `m4_define([bt_version_major], [2])
m4_define([bt_version_minor], [0])
m4_define([bt_version_patch], [4])
m4_define([bt_version_dev_stage], [])
m4_define([bt_version_name], [[Amqui]])
`
)

var (
	today     = time.Date(2023, time.March, 1, 15, 4, 5, 0, time.UTC)
	lttngURLs = []string{"git@git.lttng.org:lttng-tools.git", "git@github.com:lttng/lttng-tools.git"}
	lttngRef  = gitrepo.Ref{Owner: "lttng", Name: "lttng-tools"}
)

type fakeRepo struct {
	branchExists bool
	latestTag    string
	latestErr    error
	previousTags map[string]string
	commits      map[string][]string
	files        map[string]string

	calls []string
}

func (r *fakeRepo) record(format string, args ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *fakeRepo) Clone(urls []string) (string, error) {
	r.record("clone %s", strings.Join(urls, " "))
	return "/tmp/reml/lttng-tools", nil
}

func (r *fakeRepo) BranchExists(name string) (bool, error) {
	return r.branchExists, nil
}

func (r *fakeRepo) Checkout(branch string, create bool) error {
	if create {
		r.record("checkout -b %s", branch)
	} else {
		r.record("checkout %s", branch)
	}
	return nil
}

func (r *fakeRepo) LatestTagName() (string, error) {
	return r.latestTag, r.latestErr
}

func (r *fakeRepo) PreviousTagName(tag string) (string, error) {
	prev, ok := r.previousTags[tag]
	if !ok {
		return "", errors.New("no names found")
	}
	return prev, nil
}

func (r *fakeRepo) CommitsSinceTag(tag string) ([]string, error) {
	return r.commits[tag], nil
}

func (r *fakeRepo) ReadFile(name string) ([]byte, error) {
	content, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: not found", name)
	}
	return []byte(content), nil
}

func (r *fakeRepo) WriteFile(name string, data []byte) error {
	r.record("write %s", name)
	r.files[name] = string(data)
	return nil
}

func (r *fakeRepo) PrependChangelog(name, text string) error {
	r.record("prepend %s", name)
	r.files[name] = text + "\n" + r.files[name]
	return nil
}

func (r *fakeRepo) Add(files ...string) error {
	r.record("add %s", strings.Join(files, " "))
	return nil
}

func (r *fakeRepo) Commit(msg string, signoff bool) error {
	r.record("commit signoff=%v %s", signoff, msg)
	return nil
}

func (r *fakeRepo) Tag(name, msg string, sign bool) error {
	r.record("tag sign=%v %s %s", sign, name, msg)
	return nil
}

func (r *fakeRepo) Push(branch string, tags bool) error {
	r.record("push %s tags=%v", branch, tags)
	return nil
}

type fakeBuilds struct {
	result *ci.BuildResult
	calls  []string
}

func (b *fakeBuilds) FindOrCreateJob(ctx context.Context, name string) (*ci.Job, error) {
	b.calls = append(b.calls, "find "+name)
	return &ci.Job{Name: name, URL: "http://ci/job/" + name + "/"}, nil
}

func (b *fakeBuilds) Invoke(ctx context.Context, job *ci.Job) (*ci.QueuedBuild, error) {
	b.calls = append(b.calls, "invoke "+job.Name)
	return &ci.QueuedBuild{Job: *job, QueueURL: "http://ci/queue/item/1/"}, nil
}

func (b *fakeBuilds) AwaitScheduled(ctx context.Context, queued *ci.QueuedBuild) (*ci.Build, error) {
	b.calls = append(b.calls, "scheduled "+queued.Job.Name)
	return &ci.Build{Job: queued.Job, Number: 7, URL: queued.Job.URL + "7/"}, nil
}

func (b *fakeBuilds) AwaitCompletion(ctx context.Context, build *ci.Build, progress func(ci.Progress)) (*ci.BuildResult, error) {
	b.calls = append(b.calls, "completion "+build.Job.Name)
	progress(ci.Progress{Elapsed: time.Second, Estimated: time.Minute, BuiltOn: "deb12-amd64"})
	return b.result, nil
}

func (b *fakeBuilds) LastSuccessfulBuild(ctx context.Context, name string) (*ci.BuildResult, error) {
	b.calls = append(b.calls, "last "+name)
	return b.result, nil
}

func buildResult(status ci.Status, files ...string) *ci.BuildResult {
	res := &ci.BuildResult{
		Build:  ci.Build{Job: ci.Job{Name: "release"}, Number: 7, URL: "http://ci/job/release/7/"},
		Status: status,
		Result: string(status),
	}
	for _, f := range files {
		res.Artifacts = append(res.Artifacts, ci.Artifact{FileName: f, RelativePath: f, URL: res.Build.URL + "artifact/" + f})
	}
	return res
}

type createdRelease struct {
	Ref        gitrepo.Ref
	Tag        string
	Body       string
	Prerelease bool
}

type fakeHost struct {
	existing map[string]bool
	created  []createdRelease
}

func (h *fakeHost) RepositoryURL(ctx context.Context, ref gitrepo.Ref) (string, error) {
	return "https://github.com/" + ref.String(), nil
}

func (h *fakeHost) HasRelease(ctx context.Context, ref gitrepo.Ref, tag string) (bool, error) {
	return h.existing[ref.String()+"@"+tag], nil
}

func (h *fakeHost) CreateRelease(ctx context.Context, ref gitrepo.Ref, tag, body string, prerelease bool) (*github.RepositoryRelease, error) {
	h.created = append(h.created, createdRelease{Ref: ref, Tag: tag, Body: body, Prerelease: prerelease})
	return &github.RepositoryRelease{TagName: github.String(tag)}, nil
}

func (h *fakeHost) ReleaseByTag(ctx context.Context, ref gitrepo.Ref, tag string) (*github.RepositoryRelease, error) {
	return &github.RepositoryRelease{TagName: github.String(tag)}, nil
}

func (h *fakeHost) ReplaceAsset(ctx context.Context, ref gitrepo.Ref, rel *github.RepositoryRelease, path string) error {
	return nil
}

type fakeArtifacts struct {
	signErr error
	calls   []string
	closed  bool
}

func (a *fakeArtifacts) Fetch(ctx context.Context, fileName, url string) (*artifact.Artifact, error) {
	a.calls = append(a.calls, "fetch "+url)
	return &artifact.Artifact{FileName: fileName, Dir: "/tmp/reml-artifact"}, nil
}

func (a *fakeArtifacts) Digest(art *artifact.Artifact) error {
	a.calls = append(a.calls, "digest "+art.FileName)
	return nil
}

func (a *fakeArtifacts) Sign(art *artifact.Artifact) error {
	a.calls = append(a.calls, "sign "+art.FileName)
	return a.signErr
}

func (a *fakeArtifacts) Upload(art *artifact.Artifact, location string) error {
	a.calls = append(a.calls, "upload "+art.FileName+" "+location)
	return nil
}

func (a *fakeArtifacts) UploadToHost(ctx context.Context, host artifact.ReleaseHost, targets []gitrepo.Ref, tag string, art *artifact.Artifact) error {
	refs := []string{}
	for _, t := range targets {
		refs = append(refs, t.String())
	}
	a.calls = append(a.calls, "host "+tag+" "+strings.Join(refs, " "))
	return nil
}

func (a *fakeArtifacts) Close() error {
	a.closed = true
	return nil
}

type fixture struct {
	repo      *fakeRepo
	builds    *fakeBuilds
	host      *fakeHost
	artifacts *fakeArtifacts
	operator  *operator.Tester
}

func policy(t *testing.T, id string) *project.Policy {
	t.Helper()

	registry, err := project.Builtin()
	require.NoError(t, err)

	p, err := registry.Lookup(id)
	require.NoError(t, err)

	return p
}

func newOrchestrator(t *testing.T, id string, f *fixture, opts ...Option) *Orchestrator {
	t.Helper()

	if f.builds == nil {
		f.builds = &fakeBuilds{}
	}
	if f.host == nil {
		f.host = &fakeHost{}
	}
	if f.artifacts == nil {
		f.artifacts = &fakeArtifacts{}
	}
	if f.operator == nil {
		f.operator = operator.NewTester()
	}

	opts = append([]Option{
		Source(f.repo),
		Builder(f.builds),
		Host(f.host),
		Artifacts(f.artifacts),
		Operator(f.operator),
		Clock(func() time.Time { return today }),
		GitURLs(lttngURLs...),
		UploadLocation("releases@lttng.org:/srv/www/files/lttng-tools"),
	}, opts...)

	o, err := New(policy(t, id), opts...)
	require.NoError(t, err)

	return o
}

func TestReleaseVersions(t *testing.T) {
	testcases := []struct {
		name        string
		exists      bool
		latest      string
		releaseType semver.ReleaseType
		expected    string
		branch      []string
	}{
		{
			name:        "new series",
			releaseType: semver.ReleaseCandidate,
			expected:    "2.14.0-rc1",
			branch:      []string{"checkout -b stable-2.14"},
		},
		{
			name:        "stable after stable",
			exists:      true,
			latest:      "v2.14.4",
			releaseType: semver.Stable,
			expected:    "2.14.5",
		},
		{
			name:        "stable after candidate",
			exists:      true,
			latest:      "v2.14.0-rc2",
			releaseType: semver.Stable,
			expected:    "2.14.0",
		},
		{
			name:        "stable after candidate resets the patch",
			exists:      true,
			latest:      "v2.14.5-rc2",
			releaseType: semver.Stable,
			expected:    "2.14.0",
		},
		{
			name:        "candidate after candidate",
			exists:      true,
			latest:      "v2.14.0-rc1",
			releaseType: semver.ReleaseCandidate,
			expected:    "2.14.0-rc2",
		},
	}

	for i := range testcases {
		tc := testcases[i]
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{
				branchExists: tc.exists,
				latestTag:    tc.latest,
				files:        map[string]string{"configure.ac": lttngConfigure, "ChangeLog": ""},
			}
			if !tc.exists {
				// the version of a new series never depends on existing tags
				repo.latestErr = errors.New("no names found")
			}

			f := &fixture{
				repo:     repo,
				builds:   &fakeBuilds{result: buildResult(ci.Success, "lttng-tools-"+tc.expected+".tar.bz2")},
				host:     &fakeHost{existing: map[string]bool{"lttng/lttng-tools@v" + tc.expected: true}},
				operator: operator.NewTester(true),
			}

			d, err := newOrchestrator(t, "lttng-tools", f).Release(context.Background(), Request{
				Series: "2.14",
				Type:   tc.releaseType,
			})
			require.NoError(t, err)

			assert.Equal(t, tc.expected, d.Version.String())
			assert.Equal(t, "LTTng-tools "+tc.expected, d.Name())
			assert.Equal(t, "/tmp/reml/lttng-tools", d.RepositoryPath)

			expectedCalls := []string{"clone " + strings.Join(lttngURLs, " ")}
			if tc.exists {
				expectedCalls = append(expectedCalls, "checkout stable-2.14")
			}
			expectedCalls = append(expectedCalls,
				"prepend ChangeLog",
				"write configure.ac",
				"add ChangeLog configure.ac",
				"commit signoff=true Update version to v"+tc.expected,
				"tag sign=true v"+tc.expected+" Version "+tc.expected,
			)
			expectedCalls = append(expectedCalls, tc.branch...)
			expectedCalls = append(expectedCalls, "push stable-2.14 tags=true")
			assert.Equal(t, expectedCalls, repo.calls)

			assert.Contains(t, repo.files["configure.ac"], "AC_INIT([lttng-tools],["+tc.expected+"],")
			assert.Equal(t, []string{"Publish tree at /tmp/reml/lttng-tools?"}, f.operator.Prompts)
		})
	}
}

func TestReleaseStable(t *testing.T) {
	repo := &fakeRepo{
		branchExists: true,
		latestTag:    "v2.13.4",
		commits: map[string][]string{
			"v2.13.4": {"Fix: sessiond: crash on exit", "Tests: fix flaky rotation test"},
		},
		files: map[string]string{"configure.ac": lttngConfigure, "ChangeLog": "2023-01-10 lttng-tools 2.13.4\n"},
	}

	f := &fixture{
		repo:      repo,
		builds:    &fakeBuilds{result: buildResult(ci.Success, "config.log", "lttng-tools-2.13.5.tar.bz2")},
		host:      &fakeHost{},
		artifacts: &fakeArtifacts{},
		operator:  operator.NewTester(true, true).WithEdit(func(s string) string { return s + "Edited.\n" }),
	}

	metrics := telemetry.NewMetrics("reml")

	d, err := newOrchestrator(t, "lttng-tools", f, Metrics(metrics)).Release(context.Background(), Request{
		Series:  "2.13",
		Type:    semver.Stable,
		Tagline: "Nordicité",
	})
	require.NoError(t, err)
	assert.Equal(t, "2.13.5", d.Version.String())

	section := "2023-03-01 lttng-tools 2.13.5 (Nordicité)\n" +
		"\t* Fix: sessiond: crash on exit\n" +
		"\t* Tests: fix flaky rotation test\n"
	assert.Equal(t, section+"\n2023-01-10 lttng-tools 2.13.4\n", repo.files["ChangeLog"])

	assert.Equal(t, []string{
		"Publish tree at /tmp/reml/lttng-tools?",
		"Create GitHub releases at https://github.com/lttng/lttng-tools?",
	}, f.operator.Prompts)

	require.Len(t, f.host.created, 1)
	created := f.host.created[0]
	assert.Equal(t, lttngRef, created.Ref)
	assert.Equal(t, "v2.13.5", created.Tag)
	assert.False(t, created.Prerelease)
	assert.Contains(t, created.Body, section)
	assert.Contains(t, created.Body, "**Full changelog**: https://github.com/lttng/lttng-tools/compare/v2.13.4...v2.13.5")
	assert.Contains(t, created.Body, "About LTTng-tools 2.13")
	assert.True(t, strings.HasSuffix(created.Body, "Edited.\n"))

	assert.Equal(t, []string{
		"find lttng-tools_v2.13_release",
		"invoke lttng-tools_v2.13_release",
		"scheduled lttng-tools_v2.13_release",
		"completion lttng-tools_v2.13_release",
	}, f.builds.calls)

	assert.Equal(t, []string{
		"fetch http://ci/job/release/7/artifact/lttng-tools-2.13.5.tar.bz2",
		"digest lttng-tools-2.13.5.tar.bz2",
		"sign lttng-tools-2.13.5.tar.bz2",
		"upload lttng-tools-2.13.5.tar.bz2 releases@lttng.org:/srv/www/files/lttng-tools",
		"host v2.13.5 lttng/lttng-tools",
	}, f.artifacts.calls)
	assert.True(t, f.artifacts.closed)

	assert.Equal(t, 8, testutil.CollectAndCount(metrics, "reml_step_handled_total"))
}

func TestReleaseCandidateIsPrerelease(t *testing.T) {
	repo := &fakeRepo{
		branchExists: true,
		latestTag:    "v2.13.0-rc1",
		files:        map[string]string{"configure.ac": lttngConfigure, "ChangeLog": ""},
	}

	f := &fixture{
		repo:     repo,
		builds:   &fakeBuilds{result: buildResult(ci.Success, "lttng-tools-2.13.0-rc2.tar.bz2")},
		operator: operator.NewTester(true, true),
	}

	_, err := newOrchestrator(t, "lttng-tools", f).Release(context.Background(), Request{Series: "2.13", Type: semver.ReleaseCandidate})
	require.NoError(t, err)

	require.Len(t, f.host.created, 1)
	assert.True(t, f.host.created[0].Prerelease)
	assert.Equal(t, "v2.13.0-rc2", f.host.created[0].Tag)
}

func TestReleaseWorkingVersion(t *testing.T) {
	repo := &fakeRepo{
		branchExists: true,
		latestTag:    "v2.0.4",
		files:        map[string]string{"configure.ac": babeltraceConfigure, "ChangeLog": ""},
	}

	f := &fixture{
		repo:     repo,
		builds:   &fakeBuilds{result: buildResult(ci.Success, "babeltrace2-2.0.5.tar.bz2")},
		host:     &fakeHost{existing: map[string]bool{"lttng/lttng-tools@v2.0.5": true}},
		operator: operator.NewTester(true),
	}

	d, err := newOrchestrator(t, "babeltrace2", f).Release(context.Background(), Request{Series: "2.0", Type: semver.Stable})
	require.NoError(t, err)
	assert.Equal(t, "Babeltrace2 2.0.5", d.Name())

	assert.Equal(t, []string{
		"clone " + strings.Join(lttngURLs, " "),
		"checkout stable-2.0",
		"prepend ChangeLog",
		"add ChangeLog",
		`commit signoff=true Release: Babeltrace 2.0.5 "Amqui"`,
		"tag sign=true v2.0.5 Version 2.0.5",
		"write configure.ac",
		"add configure.ac",
		"commit signoff=true Update working version to Babeltrace v2.0.6",
		"push stable-2.0 tags=true",
	}, repo.calls)

	assert.Contains(t, repo.files["configure.ac"], "m4_define([bt_version_patch], [6])")
	assert.True(t, strings.HasPrefix(repo.files["ChangeLog"], "2023-03-01 Babeltrace 2.0.5\n"))

	assert.Equal(t, []string{
		"find babeltrace_v2.0_release",
		"invoke babeltrace_v2.0_release",
		"scheduled babeltrace_v2.0_release",
		"completion babeltrace_v2.0_release",
	}, f.builds.calls)
}

func TestReleaseRejected(t *testing.T) {
	testcases := []struct {
		name    string
		project string
		exists  bool
		req     Request
		check   func(t *testing.T, err error)
	}{
		{
			name:    "series of another major",
			project: "lttng-tools",
			req:     Request{Series: "1.13", Type: semver.Stable},
			check: func(t *testing.T, err error) {
				var e *InvalidReleaseSeriesError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "1.13", e.Series)
			},
		},
		{
			name:    "malformed series",
			project: "babeltrace1",
			req:     Request{Series: "abc", Type: semver.Stable},
			check: func(t *testing.T, err error) {
				var e *InvalidReleaseSeriesError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name:    "new series starting with a stable release",
			project: "lttng-tools",
			req:     Request{Series: "2.14", Type: semver.Stable},
			check: func(t *testing.T, err error) {
				var e *InvalidReleaseTypeError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name:    "rebuild of a missing branch",
			project: "lttng-tools",
			req:     Request{Series: "2.13", Type: semver.Stable, Rebuild: true},
			check: func(t *testing.T, err error) {
				var e *InvalidReleaseRebuildOptionError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, "stable-2.13", e.Branch)
			},
		},
	}

	for i := range testcases {
		tc := testcases[i]
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{branchExists: tc.exists, files: map[string]string{}}
			f := &fixture{repo: repo}

			_, err := newOrchestrator(t, tc.project, f).Release(context.Background(), tc.req)
			require.Error(t, err)
			tc.check(t, err)

			for _, c := range repo.calls {
				assert.True(t, strings.HasPrefix(c, "clone "), "unexpected repository mutation: %s", c)
			}
			assert.Empty(t, f.builds.calls)
			assert.Empty(t, f.operator.Prompts)
			assert.True(t, f.artifacts.closed)
		})
	}
}

func TestReleaseAbortedBeforePush(t *testing.T) {
	testcases := []struct {
		name   string
		answer bool
		dry    bool
		reason string
	}{
		{name: "declined", answer: false, reason: "publication declined"},
		{name: "dry run", answer: true, dry: true, reason: "dry run"},
	}

	for i := range testcases {
		tc := testcases[i]
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{
				branchExists: true,
				latestTag:    "v2.13.4",
				files:        map[string]string{"configure.ac": lttngConfigure, "ChangeLog": ""},
			}
			f := &fixture{repo: repo, operator: operator.NewTester(tc.answer)}
			metrics := telemetry.NewMetrics("reml")

			_, err := newOrchestrator(t, "lttng-tools", f, Metrics(metrics)).Release(context.Background(), Request{
				Series: "2.13",
				Type:   semver.Stable,
				Dry:    tc.dry,
			})

			require.ErrorIs(t, err, ErrAbortedRelease)
			var aborted *AbortedReleaseError
			require.ErrorAs(t, err, &aborted)
			assert.Equal(t, tc.reason, aborted.Reason)

			assert.NotContains(t, repo.calls, "push stable-2.13 tags=true")
			assert.Empty(t, f.builds.calls)
			assert.Empty(t, f.host.created)

			expected := `
# HELP reml_step_handled_total Total number of operations completed, regardless of success or failure.
# TYPE reml_step_handled_total counter
reml_step_handled_total{project="lttng-tools",status="aborted",step="publish"} 1
reml_step_handled_total{project="lttng-tools",status="success",step="clone"} 1
reml_step_handled_total{project="lttng-tools",status="success",step="commit"} 1
reml_step_handled_total{project="lttng-tools",status="success",step="resolve"} 1
reml_step_handled_total{project="lttng-tools",status="success",step="validate"} 1
`
			assert.NoError(t, testutil.CollectAndCompare(metrics, strings.NewReader(expected), "reml_step_handled_total"))
		})
	}
}

func TestRebuildReusingLastBuild(t *testing.T) {
	repo := &fakeRepo{
		branchExists: true,
		latestTag:    "v2.13.4",
		files:        map[string]string{},
	}

	f := &fixture{
		repo:   repo,
		builds: &fakeBuilds{result: buildResult(ci.Success, "lttng-tools-2.13.4.tar.bz2")},
		host:   &fakeHost{existing: map[string]bool{"lttng/lttng-tools@v2.13.4": true}},
	}

	d, err := newOrchestrator(t, "lttng-tools", f).Release(context.Background(), Request{
		Series:                  "2.13",
		Type:                    semver.Stable,
		Rebuild:                 true,
		NoSign:                  true,
		ReuseLastBuildArtifacts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2.13.4", d.Version.String())

	assert.Equal(t, []string{"clone " + strings.Join(lttngURLs, " "), "checkout stable-2.13"}, repo.calls)
	assert.Empty(t, f.operator.Prompts)
	assert.Equal(t, []string{"last lttng-tools_v2.13_release"}, f.builds.calls)

	assert.Equal(t, []string{
		"fetch http://ci/job/release/7/artifact/lttng-tools-2.13.4.tar.bz2",
		"digest lttng-tools-2.13.4.tar.bz2",
		"upload lttng-tools-2.13.4.tar.bz2 releases@lttng.org:/srv/www/files/lttng-tools",
		"host v2.13.4 lttng/lttng-tools",
	}, f.artifacts.calls)
}

func TestRebuildNotes(t *testing.T) {
	repo := &fakeRepo{
		branchExists: true,
		latestTag:    "v2.13.4",
		previousTags: map[string]string{"v2.13.4": "v2.13.3"},
		commits: map[string][]string{
			"v2.13.3": {"Fix: doc typo", "Update version to v2.13.4", "Fix: relayd: leak"},
			"v2.13.4": {"Fix: doc typo"},
		},
		files: map[string]string{},
	}

	f := &fixture{
		repo:     repo,
		builds:   &fakeBuilds{result: buildResult(ci.Success, "lttng-tools-2.13.4.tar.bz2")},
		operator: operator.NewTester(true),
	}

	_, err := newOrchestrator(t, "lttng-tools", f).Release(context.Background(), Request{Series: "2.13", Type: semver.Stable, Rebuild: true})
	require.NoError(t, err)

	require.Len(t, f.host.created, 1)
	body := f.host.created[0].Body
	assert.Contains(t, body, "2023-03-01 lttng-tools 2.13.4\n\t* Update version to v2.13.4\n\t* Fix: relayd: leak\n")
	assert.NotContains(t, body, "doc typo")
	assert.Contains(t, body, "compare/v2.13.3...v2.13.4")
}

func TestReleaseBuildOutcome(t *testing.T) {
	testcases := []struct {
		name    string
		result  *ci.BuildResult
		aborted bool
		check   func(t *testing.T, err error)
	}{
		{
			name:   "unstable",
			result: buildResult(ci.Unstable, "lttng-tools-2.13.5.tar.bz2"),
		},
		{
			name:    "failed",
			result:  buildResult(ci.Failure, "lttng-tools-2.13.5.tar.bz2"),
			aborted: true,
			check: func(t *testing.T, err error) {
				var e *ci.BuildFailedError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name:    "no tarball",
			result:  buildResult(ci.Success, "lttng-tools-2.13.5.log"),
			aborted: true,
			check: func(t *testing.T, err error) {
				var e *ci.ArtifactNotFoundError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, []string{"lttng-tools-2.13.5.log"}, e.Artifacts)
			},
		},
		{
			name:    "several tarballs",
			result:  buildResult(ci.Success, "lttng-tools-2.13.5.tar.bz2", "lttng-tools-2.13.5.tar.gz"),
			aborted: true,
			check: func(t *testing.T, err error) {
				var e *ci.AmbiguousArtifactError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, []string{"lttng-tools-2.13.5.tar.bz2", "lttng-tools-2.13.5.tar.gz"}, e.Artifacts)
			},
		},
	}

	for i := range testcases {
		tc := testcases[i]
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{
				branchExists: true,
				latestTag:    "v2.13.4",
				files:        map[string]string{"configure.ac": lttngConfigure, "ChangeLog": ""},
			}
			f := &fixture{
				repo:     repo,
				builds:   &fakeBuilds{result: tc.result},
				host:     &fakeHost{existing: map[string]bool{"lttng/lttng-tools@v2.13.5": true}},
				operator: operator.NewTester(true),
			}

			_, err := newOrchestrator(t, "lttng-tools", f).Release(context.Background(), Request{Series: "2.13", Type: semver.Stable})
			if !tc.aborted {
				require.NoError(t, err)
				assert.Contains(t, f.artifacts.calls, "digest lttng-tools-2.13.5.tar.bz2")
				return
			}

			require.ErrorIs(t, err, ErrAbortedRelease)
			tc.check(t, err)
			assert.Empty(t, f.artifacts.calls)
		})
	}
}

func TestReleaseSigningDeclined(t *testing.T) {
	repo := &fakeRepo{
		branchExists: true,
		latestTag:    "v2.13.4",
		files:        map[string]string{"configure.ac": lttngConfigure, "ChangeLog": ""},
	}
	f := &fixture{
		repo:      repo,
		builds:    &fakeBuilds{result: buildResult(ci.Success, "lttng-tools-2.13.5.tar.bz2")},
		host:      &fakeHost{existing: map[string]bool{"lttng/lttng-tools@v2.13.5": true}},
		artifacts: &fakeArtifacts{signErr: &artifact.ToolDeclinedError{Command: "gpg --armor -b lttng-tools-2.13.5.tar.bz2", Err: errors.New("exit status 2")}},
		operator:  operator.NewTester(true),
	}

	_, err := newOrchestrator(t, "lttng-tools", f).Release(context.Background(), Request{Series: "2.13", Type: semver.Stable})
	require.ErrorIs(t, err, ErrAbortedRelease)

	var declined *artifact.ToolDeclinedError
	require.ErrorAs(t, err, &declined)

	assert.Equal(t, []string{
		"fetch http://ci/job/release/7/artifact/lttng-tools-2.13.5.tar.bz2",
		"digest lttng-tools-2.13.5.tar.bz2",
		"sign lttng-tools-2.13.5.tar.bz2",
	}, f.artifacts.calls)
	assert.True(t, f.artifacts.closed)
}

func TestNew(t *testing.T) {
	p := policy(t, "lttng-tools")

	_, err := New(p, Builder(&fakeBuilds{}), Artifacts(&fakeArtifacts{}))
	assert.Error(t, err, "repository urls are required")

	_, err = New(p, GitURLs(lttngURLs...), Artifacts(&fakeArtifacts{}))
	assert.Error(t, err, "a build service is required")

	_, err = New(nil)
	assert.Error(t, err)

	o, err := New(p, GitURLs(lttngURLs...), Builder(&fakeBuilds{}), Artifacts(&fakeArtifacts{}))
	require.NoError(t, err)
	assert.NotNil(t, o.repo)
	assert.NotNil(t, o.operator)
}
