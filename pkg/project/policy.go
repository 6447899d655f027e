package project

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/variantdev/reml/pkg/semver"
	"github.com/variantdev/reml/pkg/tmpl"
)

const (
	DefaultJobName     = "{{ lower .Name }}_v{{ .Series }}_release"
	DefaultBuildConfig = "configure.ac"
	DefaultChangelog   = "ChangeLog"
)

type VersionMarkerNotFoundError struct {
	Project string
	Marker  string
}

func (e *VersionMarkerNotFoundError) Error() string {
	return fmt.Sprintf("%s: version marker %q not found in build configuration", e.Project, e.Marker)
}

// Policy is the compiled, ready to use form of a Spec.
type Policy struct {
	spec Spec

	series      *semver.Constraint
	markers     []marker
	releaseName *regexp.Regexp
}

type marker struct {
	pat         *regexp.Regexp
	replacement string
	limit       int
}

// Compile resolves the defaults of spec and validates its patterns and templates.
//
// Defaults: ChangelogName falls back to Name, ReleaseTemplate falls back to Name,
// JobName to DefaultJobName, BuildConfig to DefaultBuildConfig and Changelog to DefaultChangelog.
func Compile(spec Spec) (*Policy, error) {
	if spec.ChangelogName == "" {
		spec.ChangelogName = spec.Name
	}
	if spec.ReleaseTemplate == "" {
		spec.ReleaseTemplate = spec.Name
	}
	if spec.JobName == "" {
		spec.JobName = DefaultJobName
	}
	if spec.BuildConfig == "" {
		spec.BuildConfig = DefaultBuildConfig
	}
	if spec.Changelog == "" {
		spec.Changelog = DefaultChangelog
	}

	c, err := semver.NewConstraint(spec.Series)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.ID, err)
	}

	p := &Policy{spec: spec, series: c}

	for i, m := range spec.Markers {
		pat, err := regexp.Compile(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: markers[%d]: %w", spec.ID, i, err)
		}
		if err := tmpl.Validate(m.Pattern, m.Replacement); err != nil {
			return nil, fmt.Errorf("%s: markers[%d]: %w", spec.ID, i, err)
		}
		p.markers = append(p.markers, marker{pat: pat, replacement: m.Replacement, limit: m.Limit})
	}

	if spec.ReleaseName != "" {
		pat, err := regexp.Compile(spec.ReleaseName)
		if err != nil {
			return nil, fmt.Errorf("%s: releaseName: %w", spec.ID, err)
		}
		if pat.NumSubexp() < 1 {
			return nil, fmt.Errorf("%s: releaseName: pattern %q has no capture group", spec.ID, spec.ReleaseName)
		}
		p.releaseName = pat
	}

	templates := map[string]string{
		"jobName":            spec.JobName,
		"release.message":    spec.Release.Message,
		"release.tag":        spec.Release.Tag,
		"release.tagMessage": spec.Release.TagMessage,
		"releaseTemplate":    spec.ReleaseTemplate,
	}
	if w := spec.WorkingVersion; w != nil {
		templates["workingVersion.message"] = w.Message
	}
	for name, text := range templates {
		if err := tmpl.Validate(name, text); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", spec.ID, name, err)
		}
	}

	return p, nil
}

func (p *Policy) ID() string {
	return p.spec.ID
}

func (p *Policy) Name() string {
	return p.spec.Name
}

func (p *Policy) ChangelogName() string {
	return p.spec.ChangelogName
}

func (p *Policy) BuildConfig() string {
	return p.spec.BuildConfig
}

func (p *Policy) Changelog() string {
	return p.spec.Changelog
}

func (p *Policy) ReleaseTemplate() string {
	return p.spec.ReleaseTemplate
}

// IsSeriesValid never fails: a malformed series is simply not valid.
func (p *Policy) IsSeriesValid(series string) bool {
	v, err := semver.ParseSeries(series)
	if err != nil {
		return false
	}
	return p.series.Check(v)
}

func (p *Policy) CIJobName(v semver.Version) (string, error) {
	return tmpl.Render("jobName", p.spec.JobName, JobData{Name: p.spec.Name, Series: v.Series()})
}

// RewriteVersion replaces every version marker of the build config text with v.
func (p *Policy) RewriteVersion(text []byte, v semver.Version) ([]byte, error) {
	data := p.versionData(v, "")

	res := text
	for _, m := range p.markers {
		repl, err := tmpl.Render(m.pat.String(), m.replacement, data)
		if err != nil {
			return nil, err
		}

		var n int
		res, n = regexpReplace(res, m.pat, repl, m.limit)
		if n == 0 {
			return nil, &VersionMarkerNotFoundError{Project: p.spec.Name, Marker: m.pat.String()}
		}
	}

	return res, nil
}

// ReleaseName extracts the release name declared in the build config text.
// Projects without a release name marker yield an empty name.
func (p *Policy) ReleaseName(text []byte) (string, error) {
	if p.releaseName == nil {
		return "", nil
	}

	m := p.releaseName.FindSubmatch(text)
	if m == nil {
		return "", &VersionMarkerNotFoundError{Project: p.spec.Name, Marker: p.releaseName.String()}
	}

	return string(m[1]), nil
}

// ComposeReleaseCommitAndTag plans the commits and tag releasing v.
func (p *Policy) ComposeReleaseCommitAndTag(v semver.Version, releaseName string) (*CommitPlan, error) {
	data := p.versionData(v, releaseName)

	rel := p.spec.Release

	msg, err := tmpl.Render("release.message", rel.Message, data)
	if err != nil {
		return nil, err
	}

	tag := v.Tag()
	if rel.Tag != "" {
		if tag, err = tmpl.Render("release.tag", rel.Tag, data); err != nil {
			return nil, err
		}
	}

	tagMsg := "Version " + v.String()
	if rel.TagMessage != "" {
		if tagMsg, err = tmpl.Render("release.tagMessage", rel.TagMessage, data); err != nil {
			return nil, err
		}
	}

	plan := &CommitPlan{
		Release: PlannedCommit{
			Files:   append([]string{}, rel.Files...),
			Message: msg,
		},
		TagName:    tag,
		TagMessage: tagMsg,
	}
	if rel.RewriteVersion {
		rv := v
		plan.Release.Rewrite = &rv
	}

	if w := p.spec.WorkingVersion; w != nil {
		next := v.WithPatch(v.Patch + 1)

		msg, err := tmpl.Render("workingVersion.message", w.Message, p.versionData(next, releaseName))
		if err != nil {
			return nil, err
		}

		plan.FollowUp = &PlannedCommit{
			Files:   append([]string{}, w.Files...),
			Message: msg,
		}
		if w.RewriteVersion {
			plan.FollowUp.Rewrite = &next
		}
	}

	return plan, nil
}

// ReleaseDescription looks the description up by full version, then series, then major version.
func (p *Policy) ReleaseDescription(v semver.Version) string {
	for _, k := range []string{v.String(), v.Series(), strconv.FormatUint(v.Major, 10)} {
		if d, ok := p.spec.ReleaseDescriptions[k]; ok {
			return d
		}
	}
	return ""
}

func (p *Policy) RenderReleaseNotes(data NotesData) (string, error) {
	return tmpl.Render("releaseTemplate", p.spec.ReleaseTemplate, data)
}

func (p *Policy) versionData(v semver.Version, releaseName string) VersionData {
	return VersionData{
		Name:        p.spec.Name,
		Version:     v.String(),
		Tag:         v.Tag(),
		Series:      v.Series(),
		Major:       v.Major,
		Minor:       v.Minor,
		Patch:       v.Patch,
		RC:          v.RC,
		ReleaseName: releaseName,
	}
}
