package gitops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-logr/logr"
	vfs "github.com/twpayne/go-vfs/v4"
	"github.com/variantdev/reml/pkg/changelog"
	"github.com/variantdev/reml/pkg/cmdsite"
	"k8s.io/klog/v2"
)

// SourceControlError wraps any failure of a repository operation.
type SourceControlError struct {
	Op  string
	Err error
}

func (e *SourceControlError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *SourceControlError) Unwrap() error {
	return e.Err
}

// Client operates on a single clone. Mutations run the git CLI, reads go through go-git.
type Client struct {
	cmdr    cmdsite.RunCommand
	sh      *cmdsite.CommandSite
	fs      vfs.FS
	logger  logr.Logger
	stdout  io.Writer
	stderr  io.Writer
	wd      string
	path    string
	gitPath string
}

type Option func(*Client)

// WD is the directory repositories are cloned into.
func WD(wd string) Option {
	return func(c *Client) {
		c.wd = wd
	}
}

// Path points the client at an existing clone.
func Path(p string) Option {
	return func(c *Client) {
		c.path = p
	}
}

func Commander(cmdr cmdsite.RunCommand) Option {
	return func(c *Client) {
		c.cmdr = cmdr
	}
}

func FS(fs vfs.FS) Option {
	return func(c *Client) {
		c.fs = fs
	}
}

func Logger(l logr.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Output redirects the output of mutating git commands, which defaults to the process' stdout and stderr.
func Output(stdout, stderr io.Writer) Option {
	return func(c *Client) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

func New(opt ...Option) *Client {
	c := &Client{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	for _, o := range opt {
		o(c)
	}

	c.sh = cmdsite.New(cmdsite.RunCmd(c.cmdr))
	c.gitPath = "git"

	if c.fs == nil {
		c.fs = vfs.OSFS
	}

	if c.logger.GetSink() == nil {
		c.logger = klog.NewKlogr()
	}

	return c
}

// Path is the root of the working tree, set once cloned.
func (c *Client) Path() string {
	return c.path
}

// Clone clones the first URL and adds the remaining ones as additional URLs of origin,
// so that pushes reach every mirror.
func (c *Client) Clone(urls []string) (string, error) {
	if len(urls) == 0 {
		return "", &SourceControlError{Op: "clone", Err: errors.New("no repository url")}
	}

	dest := filepath.Join(c.wd, repoDirName(urls[0]))

	c.logger.V(0).Info("cloning upstream repository", "url", urls[0], "path", dest)

	if err := c.sh.RunCommand(c.gitPath, []string{"clone", urls[0], dest}, c.stdout, c.stderr); err != nil {
		return "", &SourceControlError{Op: "clone", Err: err}
	}

	c.path = dest

	for _, u := range urls[1:] {
		if err := c.git("remote", "set-url", "--add", "origin", u); err != nil {
			return "", &SourceControlError{Op: "remote set-url", Err: err}
		}
	}

	return dest, nil
}

// BranchExists only considers the remote-tracking branches of origin.
func (c *Client) BranchExists(name string) (bool, error) {
	repo, err := c.open()
	if err != nil {
		return false, err
	}

	_, err = repo.Reference(plumbing.NewRemoteReferenceName("origin", name), false)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return false, nil
	default:
		return false, &SourceControlError{Op: "show-ref", Err: err}
	}
}

func (c *Client) Checkout(branch string, create bool) error {
	args := []string{branch}
	if create {
		c.logger.V(0).Info("switching to new branch", "branch", branch)
		args = []string{"-b", branch}
	} else {
		c.logger.V(0).Info("switching to branch", "branch", branch)
	}

	if err := c.git("checkout", args...); err != nil {
		return &SourceControlError{Op: "checkout", Err: err}
	}
	return nil
}

// LatestTagName returns the most recent annotated tag reachable from HEAD.
func (c *Client) LatestTagName() (string, error) {
	return c.describe("HEAD")
}

// PreviousTagName returns the most recent annotated tag reachable from the parent of tag.
func (c *Client) PreviousTagName(tag string) (string, error) {
	return c.describe(tag + "^")
}

func (c *Client) describe(rev string) (string, error) {
	stdout, _, err := c.sh.CaptureStrings(c.gitPath, []string{"-C", c.path, "describe", "--abbrev=0", rev})
	if err != nil {
		return "", &SourceControlError{Op: "describe", Err: err}
	}
	return strings.TrimSpace(stdout), nil
}

// CommitsSinceTag returns the summaries of the commits reachable from HEAD, newest first,
// stopping at the commit the tag points to. An empty tag walks the whole history.
func (c *Client) CommitsSinceTag(tag string) ([]string, error) {
	repo, err := c.open()
	if err != nil {
		return nil, err
	}

	var tagged plumbing.Hash
	if tag != "" {
		h, err := repo.ResolveRevision(plumbing.Revision(tag))
		if err != nil {
			return nil, &SourceControlError{Op: "rev-parse " + tag, Err: err}
		}
		tagged = *h
	}

	head, err := repo.Head()
	if err != nil {
		return nil, &SourceControlError{Op: "rev-parse HEAD", Err: err}
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, &SourceControlError{Op: "log", Err: err}
	}
	defer iter.Close()

	summaries := []string{}
	err = iter.ForEach(func(commit *object.Commit) error {
		if commit.Hash == tagged {
			return storer.ErrStop
		}
		summaries = append(summaries, summary(commit.Message))
		return nil
	})
	if err != nil {
		return nil, &SourceControlError{Op: "log", Err: err}
	}

	return summaries, nil
}

func (c *Client) ReadFile(name string) ([]byte, error) {
	bs, err := c.fs.ReadFile(c.abs(name))
	if err != nil {
		return nil, &SourceControlError{Op: "read " + name, Err: err}
	}
	return bs, nil
}

func (c *Client) WriteFile(name string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := c.fs.Stat(c.abs(name)); err == nil {
		perm = info.Mode().Perm()
	}
	if err := c.fs.WriteFile(c.abs(name), data, perm); err != nil {
		return &SourceControlError{Op: "write " + name, Err: err}
	}
	return nil
}

// PrependChangelog writes text at the top of the changelog, followed by a blank line.
func (c *Client) PrependChangelog(name, text string) error {
	c.logger.V(0).Info("updating changelog", "file", name)

	if err := changelog.Prepend(c.fs, c.abs(name), text); err != nil {
		return &SourceControlError{Op: "write " + name, Err: err}
	}
	return nil
}

func (c *Client) Add(files ...string) error {
	if err := c.git("add", files...); err != nil {
		return &SourceControlError{Op: "add", Err: err}
	}
	return nil
}

// Commit commits the index. signoff adds a Signed-off-by trailer.
func (c *Client) Commit(msg string, signoff bool) error {
	args := []string{}
	if signoff {
		args = append(args, "-s")
	}
	args = append(args, "-m", msg)

	if err := c.git("commit", args...); err != nil {
		return &SourceControlError{Op: "commit", Err: err}
	}
	return nil
}

// Tag creates an annotated tag, GPG-signed when sign is set.
func (c *Client) Tag(name, msg string, sign bool) error {
	mode := "-a"
	if sign {
		mode = "-s"
	}

	if err := c.git("tag", mode, name, "-m", msg); err != nil {
		return &SourceControlError{Op: "tag", Err: err}
	}
	return nil
}

// Push pushes the branch to the branch of the same name on origin, with all tags when tags is set,
// in a single push.
func (c *Client) Push(branch string, tags bool) error {
	c.logger.V(0).Info("pushing new release", "branch", branch)

	args := []string{"origin", branch + ":" + branch}
	if tags {
		args = append(args, "--tags")
	}

	if err := c.git("push", args...); err != nil {
		return &SourceControlError{Op: "push", Err: err}
	}
	return nil
}

func (c *Client) open() (*git.Repository, error) {
	if c.path == "" {
		return nil, &SourceControlError{Op: "open", Err: errors.New("repository not cloned")}
	}

	repo, err := git.PlainOpen(c.path)
	if err != nil {
		return nil, &SourceControlError{Op: "open", Err: err}
	}
	return repo, nil
}

func (c *Client) abs(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.path, name)
}

func (c *Client) git(cmd string, args ...string) error {
	return c.sh.RunCommand(c.gitPath, append([]string{"-C", c.path, cmd}, args...), c.stdout, c.stderr)
}

func summary(msg string) string {
	return strings.TrimSpace(strings.SplitN(strings.TrimLeft(msg, "\n"), "\n", 2)[0])
}

// repoDirName mirrors the directory name git clone derives from a url.
func repoDirName(url string) string {
	u := strings.TrimRight(url, "/")
	if i := strings.LastIndex(u, ":"); i >= 0 && !strings.Contains(u, "://") {
		u = u[i+1:]
	}
	base := path.Base(u)
	base = strings.TrimSuffix(base, ".git")
	if base == "" || base == "." || base == "/" {
		return "repo"
	}
	return base
}
