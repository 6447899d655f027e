// Package ci drives release jobs on a Jenkins server through its JSON API.
package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/variantdev/reml/pkg/vhttpget"
	"k8s.io/klog/v2"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 20

	// emptyJobConfig is posted when a release job does not exist yet.
	emptyJobConfig = "<?xml version='1.1' encoding='UTF-8'?>\n<project/>\n"
)

type Client struct {
	BaseURL string
	User    string
	Token   string

	Logger logr.Logger

	// PollInterval separates two polls of the queue or of a running build.
	PollInterval time.Duration

	// ScheduleTimeout bounds the wait for a queued build to start. Zero waits forever.
	ScheduleTimeout time.Duration

	// MaxAttempts bounds the attempts of each request failing with a ConnectionError.
	MaxAttempts int
	RetryDelay  time.Duration

	http  vhttpget.Getter
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(baseURL, user, token string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid ci url %q: %w", baseURL, err)
	}

	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		User:    user,
		Token:   token,
	}

	for _, o := range opts {
		if err := o.SetOption(c); err != nil {
			return nil, err
		}
	}

	if c.Logger.GetSink() == nil {
		c.Logger = klog.NewKlogr()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.http == nil {
		c.http = vhttpget.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleep
	}

	return c, nil
}

// FindOrCreateJob returns the job named name, creating it when absent.
func (c *Client) FindOrCreateJob(ctx context.Context, name string) (*Job, error) {
	job := &Job{Name: name, URL: c.jobURL(name)}

	err := c.retry(ctx, func() error {
		_, err := c.get(job.URL + "api/json")
		if err == nil {
			return nil
		}

		var status *vhttpget.StatusError
		if !errors.As(err, &status) || status.StatusCode != http.StatusNotFound {
			return err
		}

		c.Logger.V(1).Info("creating job", "job", name)
		_, err = c.do(c.BaseURL+"/createItem?name="+url.QueryEscape(name),
			vhttpget.Method(http.MethodPost),
			vhttpget.Header("Content-Type", "application/xml"),
			vhttpget.Body([]byte(emptyJobConfig)),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return job, nil
}

// Invoke queues a new build of the job.
func (c *Client) Invoke(ctx context.Context, job *Job) (*QueuedBuild, error) {
	var queued *QueuedBuild

	err := c.retry(ctx, func() error {
		res, err := c.do(job.URL+"build", vhttpget.Method(http.MethodPost))
		if err != nil {
			return err
		}

		loc := res.Header.Get("Location")
		if loc == "" {
			return backoff.Permanent(fmt.Errorf("invoking %s: no queue item in response", job.Name))
		}

		queued = &QueuedBuild{Job: *job, QueueURL: withSlash(loc)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Logger.V(1).Info("build queued", "job", job.Name, "queue", queued.QueueURL)

	return queued, nil
}

// AwaitScheduled polls the queue item until the build starts.
// The wait is unbounded unless ScheduleTimeout is set.
func (c *Client) AwaitScheduled(ctx context.Context, queued *QueuedBuild) (*Build, error) {
	if c.ScheduleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ScheduleTimeout)
		defer cancel()
	}

	for {
		var doc interface{}
		err := c.retry(ctx, func() error {
			var err error
			doc, err = c.get(queued.QueueURL + "api/json")
			return err
		})
		if err != nil {
			return nil, err
		}

		if cancelled, ok := lookup(doc, "$.cancelled").(bool); ok && cancelled {
			return nil, &QueueItemCancelledError{QueueURL: queued.QueueURL}
		}

		if n, ok := number(lookup(doc, "$.executable.number")); ok {
			u, _ := lookup(doc, "$.executable.url").(string)
			if u == "" {
				u = fmt.Sprintf("%s%d/", queued.Job.URL, n)
			}
			return &Build{Job: queued.Job, Number: n, URL: withSlash(u)}, nil
		}

		c.Logger.V(2).Info("build not scheduled yet", "queue", queued.QueueURL)

		if err := c.sleep(ctx, c.PollInterval); err != nil {
			return nil, fmt.Errorf("waiting for %s to be scheduled: %w", queued.Job.Name, err)
		}
	}
}

// AwaitCompletion polls the build until it stops running, reporting progress after each poll.
func (c *Client) AwaitCompletion(ctx context.Context, build *Build, progress func(Progress)) (*BuildResult, error) {
	start := c.now()

	for {
		res, building, err := c.status(ctx, build)
		if err != nil {
			return nil, err
		}

		if !building {
			return res, nil
		}

		if err := c.sleep(ctx, c.PollInterval); err != nil {
			return nil, fmt.Errorf("waiting for %s #%d: %w", build.Job.Name, build.Number, err)
		}

		if progress != nil {
			progress(Progress{Elapsed: c.now().Sub(start), Estimated: res.EstimatedDuration, BuiltOn: res.BuiltOn})
		}
	}
}

// LastSuccessfulBuild returns the result of the last successful build of the job.
func (c *Client) LastSuccessfulBuild(ctx context.Context, name string) (*BuildResult, error) {
	job := Job{Name: name, URL: c.jobURL(name)}
	build := &Build{Job: job, URL: job.URL + "lastSuccessfulBuild/"}

	res, _, err := c.status(ctx, build)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Accept tolerates unstable builds, which only carry warnings.
func Accept(res *BuildResult) error {
	switch res.Status {
	case Success, Unstable:
		return nil
	}
	return &BuildFailedError{Build: res.Build, Result: res.Result}
}

// SelectArtifact picks the only artifact looking like the release tarball of version.
func SelectArtifact(res *BuildResult, version string) (*Artifact, error) {
	var (
		names   []string
		matches []Artifact
	)
	for _, a := range res.Artifacts {
		if strings.Contains(a.FileName, version) && strings.Contains(a.FileName, ".tar") {
			matches = append(matches, a)
		}
		names = append(names, a.FileName)
	}

	switch len(matches) {
	case 0:
		return nil, &ArtifactNotFoundError{Version: version, Artifacts: names}
	case 1:
		return &matches[0], nil
	}

	candidates := make([]string, 0, len(matches))
	for _, a := range matches {
		candidates = append(candidates, a.FileName)
	}
	return nil, &AmbiguousArtifactError{Version: version, Artifacts: candidates}
}

func (c *Client) status(ctx context.Context, build *Build) (*BuildResult, bool, error) {
	var doc interface{}
	err := c.retry(ctx, func() error {
		var err error
		doc, err = c.get(build.URL + "api/json")
		return err
	})
	if err != nil {
		return nil, false, err
	}

	b := *build
	if n, ok := number(lookup(doc, "$.number")); ok {
		b.Number = n
	}
	if u, ok := lookup(doc, "$.url").(string); ok && u != "" {
		b.URL = withSlash(u)
	}

	result, _ := lookup(doc, "$.result").(string)
	building, _ := lookup(doc, "$.building").(bool)
	builtOn, _ := lookup(doc, "$.builtOn").(string)
	estimated, _ := number(lookup(doc, "$.estimatedDuration"))

	res := &BuildResult{
		Build:             b,
		Status:            classify(result),
		Result:            result,
		EstimatedDuration: time.Duration(estimated) * time.Millisecond,
		BuiltOn:           builtOn,
	}

	if items, ok := lookup(doc, "$.artifacts[*]").([]interface{}); ok {
		for _, item := range items {
			name, _ := lookup(item, "$.fileName").(string)
			rel, _ := lookup(item, "$.relativePath").(string)
			if rel == "" {
				rel = name
			}
			res.Artifacts = append(res.Artifacts, Artifact{FileName: name, RelativePath: rel, URL: b.URL + "artifact/" + rel})
		}
	}

	return res, building, nil
}

// retry runs op up to MaxAttempts times while it fails with a ConnectionError.
func (c *Client) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryDelay), uint64(c.MaxAttempts-1)),
		ctx,
	)

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, d time.Duration) {
		c.Logger.V(1).Info("retrying after connection error", "err", err.Error(), "delay", d)
	})
}

func (c *Client) get(u string) (interface{}, error) {
	res, err := c.do(u)
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(res.Body), &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", u, err)
	}

	c.Logger.V(2).Info("ci response", "url", u, "body", res.Body)

	return doc, nil
}

func (c *Client) do(u string, opts ...vhttpget.Option) (*vhttpget.Response, error) {
	c.Logger.V(1).Info("ci request", "url", u)

	opts = append(opts, vhttpget.BasicAuth(c.User, c.Token))
	res, err := c.http.Do(u, opts...)

	var transport *vhttpget.TransportError
	if errors.As(err, &transport) {
		return nil, &ConnectionError{URL: u, Err: transport.Err}
	}

	return res, err
}

func (c *Client) jobURL(name string) string {
	return fmt.Sprintf("%s/job/%s/", c.BaseURL, url.PathEscape(name))
}

func lookup(doc interface{}, path string) interface{} {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil
	}
	return v
}

func number(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func withSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
