package shell

import (
	"io"
	"os"
)

type Shell struct {
	Exec Exec

	// Stdin, Stdout and Stderr are handed to interactive commands. They default to the process streams.
	Stdin          io.Reader
	Stdout, Stderr io.Writer
}

// Interact runs the command interactively, inheriting the terminal of the shell
func (s *Shell) Interact(cmd *Command) Result {
	cmd.Stdin = s.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return s.Exec(cmd)
}
