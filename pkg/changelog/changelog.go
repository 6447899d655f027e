// Package changelog renders release sections of GNU-style ChangeLog files.
package changelog

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	vfs "github.com/twpayne/go-vfs/v4"
)

// Section is the block prepended to the changelog for one release.
type Section struct {
	Date    time.Time
	Project string
	Version string
	Tagline string

	// Entries are commit summaries, newest first.
	Entries []string
}

func (s Section) Title() string {
	title := fmt.Sprintf("%s %s %s", s.Date.Format("2006-01-02"), s.Project, s.Version)
	if s.Tagline != "" {
		title += fmt.Sprintf(" (%s)", s.Tagline)
	}
	return title
}

func (s Section) String() string {
	var b strings.Builder
	b.WriteString(s.Title())
	b.WriteString("\n")
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "\t* %s\n", e)
	}
	return b.String()
}

// Prepend writes text, a blank line and then the previous contents of the file at path.
// A missing file is treated as empty.
func Prepend(fsys vfs.FS, path, text string) error {
	var prev []byte

	info, err := fsys.Stat(path)
	switch {
	case err == nil:
		prev, err = fsys.ReadFile(path)
		if err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		info = nil
	default:
		return err
	}

	perm := fs.FileMode(0o644)
	if info != nil {
		perm = info.Mode().Perm()
	}

	contents := make([]byte, 0, len(text)+1+len(prev))
	contents = append(contents, text...)
	contents = append(contents, '\n')
	contents = append(contents, prev...)

	return fsys.WriteFile(path, contents, perm)
}
