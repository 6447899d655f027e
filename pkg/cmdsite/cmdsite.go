package cmdsite

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"
)

type RunCommand func(name string, args []string, stdout, stderr io.Writer, env map[string]string) error

// ExitError is returned when a command ran but exited with a non-zero status.
type ExitError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("'%s %s' returned %d", e.Name, strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// DefaultRunCommand runs the command on the host, with env added to the current process environment.
func DefaultRunCommand(name string, args []string, stdout, stderr io.Writer, env map[string]string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ExitError{Name: name, Args: args, ExitCode: exitErr.ExitCode()}
		}
		return err
	}
	return nil
}

type CommandSite struct {
	RunCmd RunCommand

	Env map[string]string
}

type Option func(*CommandSite)

func RunCmd(r RunCommand) Option {
	return func(s *CommandSite) {
		s.RunCmd = r
	}
}

func New(opts ...Option) *CommandSite {
	s := &CommandSite{
		Env: map[string]string{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.RunCmd == nil {
		s.RunCmd = DefaultRunCommand
	}
	return s
}

func (s *CommandSite) RunCommand(cmd string, args []string, stdout, stderr io.Writer) error {
	klog.V(1).Infof("running %s %s", cmd, strings.Join(args, " "))
	return s.RunCmd(cmd, args, stdout, stderr, s.Env)
}

func (r *CommandSite) CaptureStrings(binary string, args []string) (string, string, error) {
	stdout, stderr, err := r.CaptureBytes(binary, args)

	var so, se string

	if stdout != nil {
		so = string(stdout)
	}

	if stderr != nil {
		se = string(stderr)
	}

	return so, se, err
}

func (r *CommandSite) CaptureBytes(binary string, args []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	err := r.RunCommand(binary, args, &stdout, &stderr)
	if err != nil {
		klog.V(1).Info(stderr.String())
		if exitErr, ok := err.(*ExitError); ok && exitErr.Stderr == "" {
			exitErr.Stderr = stderr.String()
		}
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
