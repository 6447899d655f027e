// Package operator asks the person running a release for confirmations and edits.
package operator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/variantdev/reml/pkg/shell"
)

type Operator interface {
	// Confirm asks a yes/no question. An interrupted prompt counts as a no.
	Confirm(prompt string) (bool, error)

	// Edit shows text and returns it, possibly modified by the operator.
	Edit(text string) (string, error)
}

var notesStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("63")).
	Padding(0, 1)

type Terminal struct {
	In  io.Reader
	Out io.Writer

	// Accessible replaces the interactive widgets with plain line prompts.
	Accessible bool

	Shell *shell.Shell

	// Getenv looks up the editor to use.
	Getenv func(string) string
}

var _ Operator = &Terminal{}

func NewTerminal() *Terminal {
	return &Terminal{
		In:     os.Stdin,
		Out:    os.Stdout,
		Shell:  &shell.Shell{Exec: shell.DefaultExec},
		Getenv: os.Getenv,
	}
}

func (t *Terminal) Confirm(prompt string) (bool, error) {
	var ok bool

	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).WithInput(t.In).WithOutput(t.Out).WithAccessible(t.Accessible)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}

	return ok, nil
}

func (t *Terminal) Edit(text string) (string, error) {
	fmt.Fprintln(t.Out, notesStyle.Render(text))

	ok, err := t.Confirm("Would you like to edit the release notes?")
	if err != nil || !ok {
		return text, err
	}

	dir, err := os.MkdirTemp("", "reml-notes")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "release-notes.md")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", err
	}

	editor := t.editor()
	res := t.Shell.Interact(&shell.Command{Name: editor, Args: []string{path}})
	if res.Error != nil {
		return "", fmt.Errorf("running %s: %w", editor, res.Error)
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(bs), nil
}

func (t *Terminal) editor() string {
	getenv := t.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	for _, k := range []string{"VISUAL", "EDITOR"} {
		if e := getenv(k); e != "" {
			return e
		}
	}

	return "editor"
}
