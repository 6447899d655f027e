package shell

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

type FakeInput struct {
	Name string
	Args string
	Env  string
}

type FakeOutput struct {
	Stdout     string
	Stderr     string
	ExitStatus int

	// Effect, when set, runs before the output is written. It lets a fake editor modify the files it is given.
	Effect func(args []string) error
}

func NewFakeInput(name string, args []string, env map[string]string) FakeInput {
	envs := []string{}
	for k, v := range env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(envs)
	input := FakeInput{
		Name: name,
		Args: strings.Join(args, ","),
		Env:  strings.Join(envs, ","),
	}
	return input
}

func NewFake(expectations map[FakeInput]FakeOutput) Exec {
	return func(cmd *Command) Result {
		input := NewFakeInput(cmd.Name, cmd.Args, cmd.Env)
		output, ok := expectations[input]
		if !ok {
			err := fmt.Errorf("unexpected input: %v", input)
			return Result{ExitStatus: 1, Error: err}
		}

		if output.Effect != nil {
			if err := output.Effect(cmd.Args); err != nil {
				return Result{ExitStatus: 1, Error: err}
			}
		}

		if err := write(cmd.Stdout, output.Stdout); err != nil {
			return Result{ExitStatus: 1, Error: err}
		}

		if err := write(cmd.Stderr, output.Stderr); err != nil {
			return Result{ExitStatus: 1, Error: err}
		}

		if output.ExitStatus != 0 {
			return Result{ExitStatus: output.ExitStatus, Error: fmt.Errorf("%s exited with %d", cmd.Name, output.ExitStatus)}
		}

		return Result{ExitStatus: 0, Error: nil}
	}
}

func write(w io.Writer, s string) error {
	if w == nil || s == "" {
		return nil
	}

	n, err := io.WriteString(w, s)
	if err != nil {
		return err
	}

	if n != len(s) {
		return fmt.Errorf("insufficient write: wrote only %d of %d", n, len(s))
	}

	return nil
}
