// Package artifact fetches, checksums, signs and distributes release tarballs.
package artifact

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/go-github/v57/github"
	vfs "github.com/twpayne/go-vfs/v4"
	"github.com/variantdev/reml/pkg/cmdsite"
	"github.com/variantdev/reml/pkg/gitrepo"
	"github.com/variantdev/reml/pkg/operator"
	"k8s.io/klog/v2"
)

// Artifact is a build output copied into the handler's directory.
type Artifact struct {
	FileName string
	Dir      string
	Digests  Digests
	Signed   bool
}

func (a *Artifact) Path() string {
	return filepath.Join(a.Dir, a.FileName)
}

type Digests struct {
	MD5    string
	SHA1   string
	SHA256 string
}

// ToolDeclinedError is returned when a failing external tool was not retried by the operator.
type ToolDeclinedError struct {
	Command string
	Err     error
}

func (e *ToolDeclinedError) Error() string {
	return fmt.Sprintf("'%s' failed: %v", e.Command, e.Err)
}

func (e *ToolDeclinedError) Unwrap() error {
	return e.Err
}

// ReleaseHost is where release assets are attached.
type ReleaseHost interface {
	ReleaseByTag(ctx context.Context, ref gitrepo.Ref, tag string) (*github.RepositoryRelease, error)
	ReplaceAsset(ctx context.Context, ref gitrepo.Ref, rel *github.RepositoryRelease, path string) error
}

type Handler struct {
	Logger   logr.Logger
	Operator operator.Operator

	fetcher Fetcher
	cmdsite *cmdsite.CommandSite
	fs      vfs.FS
	dir     string
	ownsDir bool
}

func New(opts ...Option) (*Handler, error) {
	h := &Handler{}

	for _, o := range opts {
		if err := o.SetOption(h); err != nil {
			return nil, err
		}
	}

	if h.Logger.GetSink() == nil {
		h.Logger = klog.NewKlogr()
	}
	if h.fs == nil {
		h.fs = vfs.OSFS
	}
	if h.cmdsite == nil {
		h.cmdsite = cmdsite.New()
	}
	if h.fetcher == nil {
		h.fetcher = &GoGetter{Logger: h.Logger}
	}
	if h.Operator == nil {
		h.Operator = operator.NewTerminal()
	}
	if h.dir == "" {
		dir, err := os.MkdirTemp("", "reml-artifact")
		if err != nil {
			return nil, err
		}
		h.dir = dir
		h.ownsDir = true
	}

	return h, nil
}

// Fetch downloads the artifact published at url under the name fileName.
func (h *Handler) Fetch(ctx context.Context, fileName, url string) (*Artifact, error) {
	a := &Artifact{FileName: fileName, Dir: h.dir}

	h.Logger.Info("fetching", "artifact", fileName)

	if err := h.fetcher.Fetch(ctx, url, a.Path()); err != nil {
		return nil, err
	}

	return a, nil
}

// Digest computes the checksums of the artifact and writes one sidecar file per algorithm.
func (h *Handler) Digest(a *Artifact) error {
	h.Logger.Info("hashing", "artifact", a.FileName)

	f, err := h.fs.Open(a.Path())
	if err != nil {
		return err
	}
	defer f.Close()

	md5h, sha1h, sha256h := md5.New(), sha1.New(), sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5h, sha1h, sha256h), f); err != nil {
		return fmt.Errorf("reading %s: %w", a.FileName, err)
	}

	a.Digests = Digests{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
	}

	for ext, sum := range map[string]string{".md5": a.Digests.MD5, ".sha1": a.Digests.SHA1, ".sha256": a.Digests.SHA256} {
		line := fmt.Sprintf("%s  %s\n", sum, a.FileName)
		if err := h.fs.WriteFile(a.Path()+ext, []byte(line), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// Sign writes a detached armored signature next to the artifact.
func (h *Handler) Sign(a *Artifact) error {
	h.Logger.Info("signing", "artifact", a.FileName)

	if err := h.runConfirmOnFailure("gpg", "--armor", "-b", a.Path()); err != nil {
		return err
	}

	a.Signed = true
	return nil
}

// Files lists the artifact and its sidecar files.
func (h *Handler) Files(a *Artifact) ([]string, error) {
	entries, err := h.fs.ReadDir(a.Dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), a.FileName) {
			continue
		}
		files = append(files, filepath.Join(a.Dir, e.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// Upload copies the artifact files to an rsync destination.
func (h *Handler) Upload(a *Artifact, location string) error {
	files, err := h.Files(a)
	if err != nil {
		return err
	}

	h.Logger.Info("uploading artifacts", "location", location)

	for _, f := range files {
		if err := h.runConfirmOnFailure("rsync", f, strings.TrimRight(location, "/")+"/"); err != nil {
			return err
		}
	}

	return nil
}

// UploadToHost attaches the artifact files to the release tagged tag of every target.
// A target without such a release is skipped with a warning. Failures of one target
// do not prevent the others from being attempted.
func (h *Handler) UploadToHost(ctx context.Context, host ReleaseHost, targets []gitrepo.Ref, tag string, a *Artifact) error {
	files, err := h.Files(a)
	if err != nil {
		return err
	}

	var errs []error

	for _, ref := range targets {
		rel, err := host.ReleaseByTag(ctx, ref, tag)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rel == nil {
			h.Logger.Info("Couldn't find release by tag, skipping", "repo", ref.String(), "tag", tag)
			continue
		}

		h.Logger.Info("uploading artifacts to release", "repo", ref.String(), "tag", tag)

		for _, f := range files {
			if err := host.ReplaceAsset(ctx, ref, rel, f); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// Close removes the directory holding the artifacts when the handler created it.
func (h *Handler) Close() error {
	if !h.ownsDir {
		return nil
	}
	return h.fs.RemoveAll(h.dir)
}

func (h *Handler) runConfirmOnFailure(name string, args ...string) error {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	for {
		_, _, err := h.cmdsite.CaptureStrings(name, args)
		if err == nil {
			return nil
		}

		code := -1
		var exitErr *cmdsite.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode
		}

		h.Logger.Error(err, "command failed", "command", cmdline)

		retry, perr := h.Operator.Confirm(fmt.Sprintf("Failed to run '%s' (returned %d). Retry?", cmdline, code))
		if perr != nil {
			return perr
		}
		if !retry {
			return &ToolDeclinedError{Command: cmdline, Err: err}
		}
	}
}
