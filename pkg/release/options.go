package release

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/variantdev/reml/pkg/operator"
	"github.com/variantdev/reml/pkg/telemetry"
)

type Option interface {
	SetOption(o *Orchestrator) error
}

func Logger(logger logr.Logger) Option {
	return &loggerOption{l: logger}
}

type loggerOption struct {
	l logr.Logger
}

func (s *loggerOption) SetOption(o *Orchestrator) error {
	o.Logger = s.l
	return nil
}

func Source(repo SourceRepository) Option {
	return &sourceOption{r: repo}
}

type sourceOption struct {
	r SourceRepository
}

func (s *sourceOption) SetOption(o *Orchestrator) error {
	o.repo = s.r
	return nil
}

func Builder(b BuildService) Option {
	return &builderOption{b: b}
}

type builderOption struct {
	b BuildService
}

func (s *builderOption) SetOption(o *Orchestrator) error {
	o.builds = s.b
	return nil
}

// Host enables publication of hosted releases. Without it, hosted mirrors are ignored.
func Host(h ReleaseHost) Option {
	return &hostOption{h: h}
}

type hostOption struct {
	h ReleaseHost
}

func (s *hostOption) SetOption(o *Orchestrator) error {
	o.host = s.h
	return nil
}

func Artifacts(a ArtifactStore) Option {
	return &artifactsOption{a: a}
}

type artifactsOption struct {
	a ArtifactStore
}

func (s *artifactsOption) SetOption(o *Orchestrator) error {
	o.artifacts = s.a
	return nil
}

func Operator(op operator.Operator) Option {
	return &operatorOption{op: op}
}

type operatorOption struct {
	op operator.Operator
}

func (s *operatorOption) SetOption(o *Orchestrator) error {
	o.operator = s.op
	return nil
}

// Clock dates the changelog sections.
func Clock(now func() time.Time) Option {
	return &clockOption{now: now}
}

type clockOption struct {
	now func() time.Time
}

func (s *clockOption) SetOption(o *Orchestrator) error {
	o.now = s.now
	return nil
}

func Metrics(m *telemetry.Metrics) Option {
	return &metricsOption{m: m}
}

type metricsOption struct {
	m *telemetry.Metrics
}

func (s *metricsOption) SetOption(o *Orchestrator) error {
	o.metrics = s.m
	return nil
}

// GitURLs are the repositories to clone from and push to. The first one is cloned.
func GitURLs(urls ...string) Option {
	return &gitURLsOption{urls: urls}
}

type gitURLsOption struct {
	urls []string
}

func (s *gitURLsOption) SetOption(o *Orchestrator) error {
	o.gitURLs = append([]string{}, s.urls...)
	return nil
}

// UploadLocation is the rsync destination of the signed tarball.
func UploadLocation(loc string) Option {
	return &uploadLocationOption{loc: loc}
}

type uploadLocationOption struct {
	loc string
}

func (s *uploadLocationOption) SetOption(o *Orchestrator) error {
	o.uploadLocation = s.loc
	return nil
}
