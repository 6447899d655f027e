// Package gitrepo publishes releases and release assets on GitHub.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"k8s.io/klog/v2"
)

const defaultContentType = "application/octet-stream"

// Ref identifies a hosted repository.
type Ref struct {
	Owner string
	Name  string
}

func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// IsHosted tells whether a git remote url points at GitHub.
func IsHosted(gitURL string) bool {
	return strings.Contains(gitURL, "github.com")
}

// ParseRepositoryURL accepts both the scp-like ssh form (git@github.com:owner/repo.git)
// and the https form of a GitHub remote.
func ParseRepositoryURL(gitURL string) (Ref, error) {
	var path string

	if u, err := url.Parse(gitURL); err == nil && u.Scheme != "" && u.Host != "" {
		path = u.Path
	} else if i := strings.Index(gitURL, ":"); i >= 0 {
		path = gitURL[i+1:]
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	items := strings.Split(path, "/")
	if len(items) != 2 || items[0] == "" || items[1] == "" {
		return Ref{}, fmt.Errorf("unsupported repository url %q: expected OWNER/REPO", gitURL)
	}

	return Ref{Owner: items[0], Name: items[1]}, nil
}

const defaultPageSize = 100

type Client struct {
	github   *github.Client
	pageSize int
	Logger   logr.Logger
}

type Option func(*Client) error

// EnterpriseURL points the client at another API endpoint, such as a GitHub Enterprise server.
func EnterpriseURL(baseURL string) Option {
	return func(c *Client) error {
		gc, err := c.github.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return err
		}
		c.github = gc
		return nil
	}
}

func Logger(l logr.Logger) Option {
	return func(c *Client) error {
		c.Logger = l
		return nil
	}
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	c := &Client{
		github:   github.NewClient(tc),
		pageSize: defaultPageSize,
	}

	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}

	if c.Logger.GetSink() == nil {
		c.Logger = klog.NewKlogr()
	}

	return c, nil
}

// RepositoryURL returns the web page of the repository.
func (c *Client) RepositoryURL(ctx context.Context, ref Ref) (string, error) {
	repo, _, err := c.github.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return "", fmt.Errorf("getting repository %s: %w", ref, err)
	}
	return repo.GetHTMLURL(), nil
}

func (c *Client) HasRelease(ctx context.Context, ref Ref, tag string) (bool, error) {
	opt := &github.ListOptions{PerPage: c.pageSize}
	for {
		releases, resp, err := c.github.Repositories.ListReleases(ctx, ref.Owner, ref.Name, opt)
		if err != nil {
			return false, fmt.Errorf("listing releases of %s: %w", ref, err)
		}
		for _, r := range releases {
			if r.GetTagName() == tag {
				return true, nil
			}
		}
		if resp.NextPage == 0 {
			return false, nil
		}
		opt.Page = resp.NextPage
	}
}

// CreateRelease creates a release named after its tag.
func (c *Client) CreateRelease(ctx context.Context, ref Ref, tag, body string, prerelease bool) (*github.RepositoryRelease, error) {
	c.Logger.V(1).Info("creating release", "repo", ref.String(), "tag", tag, "prerelease", prerelease)

	rel, _, err := c.github.Repositories.CreateRelease(ctx, ref.Owner, ref.Name, &github.RepositoryRelease{
		TagName:    github.String(tag),
		Name:       github.String(tag),
		Body:       github.String(body),
		Prerelease: github.Bool(prerelease),
	})
	if err != nil {
		return nil, fmt.Errorf("creating release %s of %s: %w", tag, ref, err)
	}
	return rel, nil
}

// ReleaseByTag returns nil without error when the repository has no release for tag.
func (c *Client) ReleaseByTag(ctx context.Context, ref Ref, tag string) (*github.RepositoryRelease, error) {
	rel, _, err := c.github.Repositories.GetReleaseByTag(ctx, ref.Owner, ref.Name, tag)
	if err != nil {
		var errRes *github.ErrorResponse
		if errors.As(err, &errRes) && errRes.Response != nil && errRes.Response.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting release %s of %s: %w", tag, ref, err)
	}
	return rel, nil
}

// ReplaceAsset uploads the file at path to the release, deleting any asset of the same name first.
func (c *Client) ReplaceAsset(ctx context.Context, ref Ref, rel *github.RepositoryRelease, path string) error {
	name := filepath.Base(path)

	// Deleting shifts the following pages, so every page is listed first.
	var stale []int64
	opt := &github.ListOptions{PerPage: c.pageSize}
	for {
		assets, resp, err := c.github.Repositories.ListReleaseAssets(ctx, ref.Owner, ref.Name, rel.GetID(), opt)
		if err != nil {
			return fmt.Errorf("listing assets of %s: %w", ref, err)
		}
		for _, a := range assets {
			if a.GetName() == name {
				stale = append(stale, a.GetID())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	for _, id := range stale {
		c.Logger.V(1).Info("deleting asset", "repo", ref.String(), "asset", name, "id", id)
		if _, err := c.github.Repositories.DeleteReleaseAsset(ctx, ref.Owner, ref.Name, id); err != nil {
			return fmt.Errorf("deleting asset %s of %s: %w", name, ref, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c.Logger.V(1).Info("uploading asset", "repo", ref.String(), "asset", name)

	_, _, err = c.github.Repositories.UploadReleaseAsset(ctx, ref.Owner, ref.Name, rel.GetID(), &github.UploadOptions{
		Name:      name,
		MediaType: ContentType(name),
	}, f)
	if err != nil {
		return fmt.Errorf("uploading %s to %s: %w", name, ref, err)
	}

	return nil
}

// ContentType infers the media type of an asset from its file extension.
func ContentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return defaultContentType
}
